// Package credentials declares the storage contract for the opaque password
// files derived during registration.
package credentials

import "context"

// State tags the three-way result of a lookup. "No such user" and "user has
// no password file" are distinguished here for internal logging, but callers
// must never let the difference reach a client response.
type State int

const (
	StateNotFound State = iota
	StateNoCredential
	StateFound
)

// Lookup is the result of Get. File is non-nil only for StateFound.
type Lookup struct {
	State State
	File  []byte
}

// Repository reads and writes the single opaque password file per user.
type Repository interface {
	// Get returns the password file for username, distinguishing a missing
	// user row from a row whose password file column is null.
	Get(ctx context.Context, username string) (Lookup, error)

	// Set stores file for username, replacing any previous value in a single
	// statement (last write wins, atomic with respect to concurrent reads).
	// It returns common.ErrorNotFound when no such user row exists.
	Set(ctx context.Context, username string, file []byte) error
}
