package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new time-ordered unique identifier string.
// IDs generated later sort after earlier ones, which storage layers use as
// the final tie-break between bids of equal amount and timestamp.
func GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
