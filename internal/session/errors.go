// Package session persists conversation histories, one record per epoch.
package session

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("session: storage failure")

	// ErrNotFound is returned by backends for a missing key.
	ErrNotFound = errors.New("session: not found")

	// ErrInvalidID rejects empty or unsafe conversation ids.
	ErrInvalidID = errors.New("session: invalid conversation id")
)

// StorageError describes a failed backend operation.
type StorageError struct {
	Op  string // load, save, list
	Key string
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("session: %s [%s]: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("session: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStorage) match.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
