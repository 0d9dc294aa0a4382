// Package ids centralizes identifier generation: UUIDv7 for entity rows so
// primary keys stay time-ordered, ULID for request correlation.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewEntity returns a UUIDv7 for a new database row. Falls back to a random
// UUIDv4 if the monotonic source errors.
func NewEntity() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// NewRequest returns a lexicographically sortable request identifier.
func NewRequest() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
