package utils

import (
	"github.com/google/uuid"
)

// NewID returns a random identifier used to correlate the log lines of one
// connection attempt.
func NewID() string {
	return uuid.NewString()
}

// ShortID is the first block of NewID, enough to tell sessions apart in logs.
func ShortID() string {
	id := NewID()
	return id[:8]
}
