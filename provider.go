package chatcall

import "context"

// Provider performs one chat-completion exchange with a remote service.
// Implementations live in provider subpackages (e.g. provider/openai).
//
// Complete must not mutate req. Failures should be *ProviderError values wrapping
// ErrAuthentication, ErrTransport, ErrRateLimited or ErrProvider; context errors are
// returned as they are.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Request is the single outbound call built by the Adapter.
type Request struct {
	Messages []Message
	// Options are the effective options with KeyAPIKey removed; providers turn them
	// into request fields.
	Options Options
	// APIKey authenticates this call only. Empty means the provider falls back to its
	// own configured or ambient credentials.
	APIKey string
}

// Model returns the "model" option when it is a non-empty string.
func (r *Request) Model() string {
	if r == nil {
		return ""
	}
	m, _ := r.Options[KeyModel].(string)
	return m
}

// Response is the provider answer reduced to what the Adapter consumes.
type Response struct {
	Choices []Choice
}

// Choice is one generated candidate. Content is nil when the provider returned null.
type Choice struct {
	Content      *string
	FinishReason string
}
