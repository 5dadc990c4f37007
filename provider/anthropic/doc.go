// Package anthropic implements chatcall.Provider for the Anthropic Messages API.
//
// System and developer messages are joined into the system prompt. "max_tokens"
// defaults to 1024 because the API requires it; "stop" maps to stop sequences.
// The text blocks of the reply form the single choice.
package anthropic
