package ledger

import (
	"time"

	"github.com/google/uuid"
)

// IDSource issues identifiers for new rows.
type IDSource interface {
	NewID() (string, error)
}

// Clock stamps transaction dates.
type Clock interface {
	Now() time.Time
}

// UUIDSource issues UUIDv7 identifiers. They are time-ordered and the
// package keeps them monotonic within a process, so ids never collide at
// point-of-sale rates and sort in creation order.
type UUIDSource struct{}

func (UUIDSource) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// SystemClock is the UTC wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// IDFunc adapts a function to IDSource.
type IDFunc func() (string, error)

func (f IDFunc) NewID() (string, error) { return f() }
