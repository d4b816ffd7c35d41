package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs sort by creation time, which keeps
// user, credential and session ids roughly ordered in every backend.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
