package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobNotFound is returned when no record exists for a job id.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when a record with the same id is already stored.
	ErrJobExists = errors.New("job already exists")
	// ErrEmptyKey is returned by cache repositories for an empty key.
	ErrEmptyKey = errors.New("key cannot be empty")
)
