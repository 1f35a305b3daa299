// Package embedding wraps embedding and rerank providers behind a common
// interface. The Adapter adds batching, caching, retry, rate limiting and
// per-call timeouts on top of the raw provider clients.
package embedding
