package storage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned when a write is rejected before touching the database
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidTransition is returned for a status change the lifecycle forbids
	ErrInvalidTransition = errors.New("invalid status transition")
)

// StoreError wraps validation and database failures with the operation name
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// VersionNotFoundError is returned when no stored version satisfies a lookup
type VersionNotFoundError struct {
	Library   string
	Version   string
	Available []string
}

func (e *VersionNotFoundError) Error() string {
	target := e.Version
	if target == "" {
		target = "latest"
	}
	if len(e.Available) == 0 {
		return fmt.Sprintf("no versions of %s found (requested %s)", e.Library, target)
	}
	return fmt.Sprintf("version %s of %s not found, available: %s",
		target, e.Library, strings.Join(e.Available, ", "))
}

func (e *VersionNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
