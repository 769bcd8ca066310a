// Package kv defines a small key-value store contract with TTL semantics and
// atomic compare-and-swap, plus in-memory and Redis-backed implementations.
//
// Short-lived security state (magic-link token records, OAuth nonces,
// sessions) is keyed by a unique identifier and mutated single-writer-per-key
// via CompareAndSwap or GetDel, so no in-process locks are needed above the
// store and the design survives multi-instance deployment.
//
// MemoryStore is suitable for tests and single-process development. Use
// RedisStore in production.
package kv
