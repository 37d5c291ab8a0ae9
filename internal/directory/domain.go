package directory

import (
	"errors"
	"time"
)

// User represents a person in the reporting hierarchy.
type User struct {
	ID         int64
	Email      string
	Name       string
	ReportsTo  *int64
	IsActive   bool
	CreatedAt  time.Time
	ModifiedAt time.Time
}

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("directory: user not found")
	// ErrCycle indicates the reports-to chain loops back on itself.
	ErrCycle = errors.New("directory: reporting chain contains a cycle")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("directory: invalid input")
)
