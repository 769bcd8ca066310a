// Package signer provides keyed signing and verification of opaque payloads.
//
// Signatures are HMAC-SHA256 over the raw payload bytes, base64url encoded.
// Verify compares signatures in constant time so signature checks never leak
// timing information about how much of the signature matched.
//
// The package also offers a compact signed-token format for embedding JSON
// payloads: base64url(payload).base64url(signature). Encode/Decode are the
// building blocks for self-describing tokens that are verified on arrival
// instead of being persisted server-side.
//
// # Usage
//
//	s, err := signer.New(secret)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sig := s.Sign([]byte("payload"))
//	if !s.Verify([]byte("payload"), sig) {
//	    // reject
//	}
package signer
