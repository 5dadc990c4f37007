package chatcall

import (
	"errors"
	"fmt"
)

// Sentinel errors for payload decoding, option handling and provider failures.
// All use prefix "chatcall:" for identification. Callers should use errors.Is/errors.As.
//
// ErrAuthentication, ErrTransport, ErrRateLimited and ErrProvider are produced by
// Provider implementations; the Adapter never creates or rewraps them.
var (
	ErrMalformedPayload  = errors.New("chatcall: message payload matches neither accepted shape")
	ErrInvalidOption     = errors.New("chatcall: option value has an unsupported type")
	ErrUnsupportedOption = errors.New("chatcall: option is not supported by this provider")
	ErrAuthentication    = errors.New("chatcall: provider rejected credentials")
	ErrTransport         = errors.New("chatcall: provider could not be reached")
	ErrRateLimited       = errors.New("chatcall: provider rate limit exceeded")
	ErrProvider          = errors.New("chatcall: provider returned an error")
)

// PayloadError wraps ErrMalformedPayload with the position of the offending record.
// Index is -1 when the payload as a whole is malformed.
type PayloadError struct {
	Index int
	Field string
	Err   error
}

// Error implements error.
func (e *PayloadError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("chatcall: payload: %v", e.Err)
	case e.Field == "":
		return fmt.Sprintf("chatcall: message %d: %v", e.Index, e.Err)
	default:
		return fmt.Sprintf("chatcall: message %d field %q: %v", e.Index, e.Field, e.Err)
	}
}

// Unwrap returns the wrapped error for errors.Is/errors.As.
func (e *PayloadError) Unwrap() error { return e.Err }

// ProviderError is returned by Provider implementations for failed remote calls.
// Kind is one of ErrAuthentication, ErrTransport, ErrRateLimited or ErrProvider;
// Err is the SDK error, kept in the chain so callers can still inspect it.
type ProviderError struct {
	Kind       error
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

// Error implements error.
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the SDK error to errors.Is/errors.As.
func (e *ProviderError) Unwrap() []error { return []error{e.Kind, e.Err} }

// IsRetryable reports whether err is worth another attempt: rate limiting,
// transport failures and provider 5xx responses. Malformed input, bad options,
// authentication failures and context errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransport) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) && errors.Is(pe.Kind, ErrProvider) {
		return pe.StatusCode >= 500
	}
	return false
}

func malformed(index int, field, format string, args ...any) error {
	return &PayloadError{
		Index: index,
		Field: field,
		Err:   fmt.Errorf("%w: "+format, append([]any{ErrMalformedPayload}, args...)...),
	}
}

// Compile-time checks that the error types implement error.
var (
	_ error = (*PayloadError)(nil)
	_ error = (*ProviderError)(nil)
)
