package chatcall

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
)

// Well-known option keys. Any other key is forwarded to the provider verbatim.
const (
	KeyModel            = "model"
	KeyAPIKey           = "api_key"
	KeyTemperature      = "temperature"
	KeyMaxTokens        = "max_tokens"
	KeyTopP             = "top_p"
	KeyStop             = "stop"
	KeyN                = "n"
	KeySeed             = "seed"
	KeyPresencePenalty  = "presence_penalty"
	KeyFrequencyPenalty = "frequency_penalty"
	KeyStream           = "stream"
	KeyTimeout          = "timeout" // seconds
	KeyExtraHeaders     = "extra_headers"
	KeyExtraQuery       = "extra_query"
	KeyExtraBody        = "extra_body"
)

// Options maps option names to values. It is used both for the adapter's base
// configuration and for per-call overrides. A key holding nil means "unset".
type Options map[string]any

// Clone returns a shallow copy; nil stays nil.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	return maps.Clone(o)
}

// Merge returns a new map holding every key of base and overrides. For keys present
// in both, the override value wins, including a nil override. Neither input is modified.
func Merge(base, overrides Options) Options {
	out := make(Options, len(base)+len(overrides))
	maps.Copy(out, base)
	maps.Copy(out, overrides)
	return out
}

// SplitAPIKey removes KeyAPIKey from opts and returns it separately so credential
// material is never forwarded as a request field. opts is not modified.
// A missing, nil or empty key yields "" (ambient credentials); any non-string value
// returns ErrInvalidOption.
func SplitAPIKey(opts Options) (Options, string, error) {
	raw, ok := opts[KeyAPIKey]
	if !ok {
		return opts.Clone(), "", nil
	}
	rest := opts.Clone()
	delete(rest, KeyAPIKey)
	if raw == nil {
		return rest, "", nil
	}
	key, ok := raw.(string)
	if !ok {
		return nil, "", fmt.Errorf("%w: %q must be a string, got %T", ErrInvalidOption, KeyAPIKey, raw)
	}
	return rest, key, nil
}

// RequestKey returns a stable identifier for the request content: the normalized
// messages plus the effective options. The API key is not part of Request.Options
// and therefore never influences the key. Map keys are sorted by encoding/json.
func RequestKey(req *Request) (string, error) {
	data, err := json.Marshal(struct {
		Messages []Message `json:"messages"`
		Options  Options   `json:"options"`
	}{req.Messages, req.Options})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidOption, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// credentialScope fingerprints a per-call API key so concurrent calls only share
// in-flight work when they authenticate the same way.
func credentialScope(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:8])
}
