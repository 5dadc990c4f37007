package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/skosovsky/chatcall"
	"github.com/skosovsky/chatcall/internal/cast"
)

// Params holds the effective call options decoded into typed fields.
// Pointer fields are nil when the option is unset. Extra carries every key that is
// not well known; providers forward it verbatim as a request body field.
type Params struct {
	Model            string
	Temperature      *float64
	MaxTokens        *int64
	TopP             *float64
	Stop             []string
	N                *int64
	Seed             *int64
	PresencePenalty  *float64
	FrequencyPenalty *float64
	Timeout          time.Duration
	ExtraHeaders     map[string]string
	ExtraQuery       map[string]string
	ExtraBody        map[string]any
	Extra            map[string]any
}

// ExtractParams decodes opts. Keys holding nil are skipped (unset).
// A well-known key with a value of the wrong shape returns chatcall.ErrInvalidOption;
// "stream": true returns chatcall.ErrUnsupportedOption since every call is single-shot.
// A leftover "api_key" is dropped; credentials travel in Request.APIKey.
func ExtractParams(opts chatcall.Options) (Params, error) {
	var p Params
	for key, v := range opts {
		if v == nil {
			continue
		}
		var ok bool
		switch key {
		case chatcall.KeyModel:
			p.Model, ok = cast.ToString(v)
		case chatcall.KeyTemperature:
			p.Temperature, ok = floatPtr(v)
		case chatcall.KeyTopP:
			p.TopP, ok = floatPtr(v)
		case chatcall.KeyPresencePenalty:
			p.PresencePenalty, ok = floatPtr(v)
		case chatcall.KeyFrequencyPenalty:
			p.FrequencyPenalty, ok = floatPtr(v)
		case chatcall.KeyMaxTokens:
			p.MaxTokens, ok = intPtr(v)
		case chatcall.KeyN:
			p.N, ok = intPtr(v)
		case chatcall.KeySeed:
			p.Seed, ok = intPtr(v)
		case chatcall.KeyStop:
			p.Stop, ok = cast.ToStringSlice(v)
		case chatcall.KeyTimeout:
			p.Timeout, ok = cast.ToDuration(v)
		case chatcall.KeyExtraHeaders:
			p.ExtraHeaders, ok = cast.ToStringMap(v)
		case chatcall.KeyExtraQuery:
			p.ExtraQuery, ok = cast.ToStringMap(v)
		case chatcall.KeyExtraBody:
			p.ExtraBody, ok = cast.ToMap(v)
		case chatcall.KeyStream:
			var stream bool
			stream, ok = cast.ToBool(v)
			if ok && stream {
				return Params{}, fmt.Errorf("%w: %q", chatcall.ErrUnsupportedOption, key)
			}
		case chatcall.KeyAPIKey:
			ok = true
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]any)
			}
			p.Extra[key] = v
			ok = true
		}
		if !ok {
			return Params{}, fmt.Errorf("%w: %q has unexpected type %T", chatcall.ErrInvalidOption, key, v)
		}
	}
	return p, nil
}

func floatPtr(v any) (*float64, bool) {
	f, ok := cast.ToFloat64(v)
	if !ok {
		return nil, false
	}
	return &f, true
}

func intPtr(v any) (*int64, bool) {
	i, ok := cast.ToInt64(v)
	if !ok {
		return nil, false
	}
	return &i, true
}

// Classify maps a failed SDK call to a *chatcall.ProviderError. status is the HTTP
// status of the error response, or 0 when none was received. Context errors are
// returned unchanged.
func Classify(err error, status int) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var kind error
	switch {
	case status == 0:
		kind = chatcall.ErrTransport
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = chatcall.ErrAuthentication
	case status == http.StatusTooManyRequests:
		kind = chatcall.ErrRateLimited
	default:
		kind = chatcall.ErrProvider
	}
	return &chatcall.ProviderError{Kind: kind, StatusCode: status, Err: err}
}
