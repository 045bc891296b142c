// Package clock abstracts time and ID generation so business logic
// across the engine stays deterministic in tests. Grounded in the
// teacher's internal/bt/clock.go, generalized to UUIDv7 for
// time-ordered backup and key IDs.
package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval.
type Clock interface {
	Now() time.Time
}

// Real returns the actual current time.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique, time-ordered ID generation.
type IDGenerator interface {
	New() string
}

// UUIDv7Generator produces time-ordered UUIDv7 identifiers, used for
// backup IDs and key IDs so lexical and creation order agree.
type UUIDv7Generator struct{}

func (UUIDv7Generator) New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
