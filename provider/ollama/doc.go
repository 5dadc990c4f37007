// Package ollama implements chatcall.Provider for the Ollama chat API.
//
// Generation options map onto Ollama model options ("max_tokens" becomes
// "num_predict"); keys that are not well known, such as "num_ctx" or "top_k",
// are passed through as model options. Requests are never streamed.
package ollama
