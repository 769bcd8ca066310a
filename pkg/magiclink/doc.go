// Package magiclink implements passwordless email authentication with
// single-use, time-bounded tokens.
//
// Only the SHA-256 hash of a token is ever persisted; the raw token exists
// in the verification URL and nowhere else. One live token per email:
// requesting a new link invalidates any unexpired predecessor, so there is
// never ambiguity about which link is valid. Redemption flips the stored
// record's used flag with a compare-and-swap, which makes a retried redeem
// with the same token fail instead of succeeding twice.
package magiclink
