// Package openai implements chatcall.Provider for the OpenAI Chat Completions API.
//
// Well-known options become typed request fields. "timeout" (seconds) sets the
// request timeout, "extra_headers" and "extra_query" add headers and query
// parameters, "extra_body" and any unknown key are set on the JSON body as they are.
// A per-call API key is applied to that request only. "stream": true is rejected
// with chatcall.ErrUnsupportedOption.
package openai
