// Package oauth implements the provider side of account signup and sign-in
// using the OAuth 2.0 authorization-code flow.
//
// A Coordinator owns state-nonce lifecycle and account resolution; provider
// specifics live behind the ProviderAdapter interface. Adapters for Google
// (userinfo endpoint) and Apple (verified id_token claims) are included.
//
// State nonces are stored in a kv.Store with a short TTL and consumed
// atomically on callback, so a callback URL cannot be replayed. An account is
// deduplicated first by provider identity and then by verified email: a
// returning person who previously signed up with a magic link gets the
// provider linked to their existing account instead of a duplicate.
package oauth
