// Package csrf implements the double-submit-cookie pattern with
// self-describing signed tokens.
//
// A token is a signed JSON payload carrying a random value and its
// issued/expiry timestamps, so validation needs no server-side storage: the
// token proves its own provenance on arrival. The same encoded token is
// returned in the response body and set as a cookie readable by client
// script; state-changing requests must echo the cookie value in a header or
// form field, and validation requires the two to be byte-identical. An
// attacker page cannot read the cookie cross-origin, so it cannot echo it.
//
// Tokens close to expiry (or already expired) can be refreshed transparently
// with Refresh, which is idempotent for still-fresh tokens: clients retry a
// rejected request exactly once with the refreshed token before surfacing an
// error.
package csrf
