// Package chatcall adapts a remote LLM chat-completion service into a single call:
// payload in, answer text out.
//
// An Adapter holds a base configuration (model, sampling parameters, credentials)
// and the execution policies (capacity, retry, cache) it forwards to an execution
// engine. Each Call merges per-call overrides over the base configuration, normalizes
// the payload into one canonical message list, extracts the API key so it never
// becomes a request field, dispatches one request through the engine and returns the
// first choice's text.
//
// Payloads come in three forms: JSONPayload (a JSON array of message objects),
// Messages (typed records) and Records (loose maps as produced by row pipelines).
// Normalize is the single decoding boundary; anything it rejects wraps
// ErrMalformedPayload.
//
// Providers live in subpackages (provider/openai, provider/anthropic, provider/gemini,
// provider/ollama). The reference engine lives in package engine and tracing in
// ext/otelchat.
package chatcall
