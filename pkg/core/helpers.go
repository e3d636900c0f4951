package core

import (
	"github.com/google/uuid"
)

// NewID returns a random identifier for peers and sessions
func NewID() string {
	return uuid.NewString()
}
