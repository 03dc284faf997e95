package opaque

import "errors"

var (
	// ErrAuthenticationFailed is the single failure every credential problem
	// collapses to at the public boundary: wrong password, unknown user,
	// malformed client message, tampered envelope. Callers must not be able
	// to tell which one it was.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrEnvelopeIntegrity means a sealed state token failed to decode or
	// verify. It is mapped to ErrAuthenticationFailed before leaving the
	// service but logged distinctly.
	ErrEnvelopeIntegrity = errors.New("envelope integrity check failed")

	// ErrProtocol covers failures inside the key exchange itself: messages
	// that do not parse, signatures or MACs that do not verify.
	ErrProtocol = errors.New("key exchange protocol error")

	// ErrStorageCorruption means a stored password file did not deserialize.
	// This is a data fault, not a credential fault, and must never be
	// reported as a wrong password.
	ErrStorageCorruption = errors.New("stored password file is corrupted")
)
