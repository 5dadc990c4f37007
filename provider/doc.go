// Package provider holds helpers shared by chatcall.Provider implementations:
// decoding effective options into typed request parameters and classifying SDK
// failures into chatcall's error kinds. Implementations live in provider-specific
// subpackages (provider/openai, provider/anthropic, provider/gemini, provider/ollama).
package provider
