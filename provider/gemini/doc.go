// Package gemini implements chatcall.Provider for the Gemini API through
// google.golang.org/genai.
//
// System and developer messages become the system instruction; assistant turns use
// the "model" role and tool messages are sent as function responses. "n" maps to the
// candidate count and every candidate becomes one choice.
package gemini
