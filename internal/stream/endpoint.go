package stream

import (
	"github.com/google/uuid"
)

// Endpoint builds the live transport URL for a session correlation token
type Endpoint func(token string) string

// NewToken generates a session correlation token
func NewToken() string {
	return uuid.NewString()
}
