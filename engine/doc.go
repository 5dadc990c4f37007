// Package engine is a reference asynchronous execution engine for remote calls.
// It bounds concurrency, rate-limits attempts, retries failures according to a
// RetryStrategy and serves repeated inputs from a CacheStrategy.
//
// The engine knows nothing about chat completions: tasks are opaque functions and
// results are opaque values of type T.
package engine
