package common

import (
	"github.com/google/uuid"
)

// NewLockID generates a unique lease token for job lock acquisition
func NewLockID() string {
	return uuid.New().String()
}
