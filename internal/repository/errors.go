package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrStaleState is returned when a compare-and-set update lost to a concurrent writer.
	ErrStaleState = errors.New("entity was modified concurrently")

	// ErrDriverUnavailable is returned when a driver already holds another active ride.
	ErrDriverUnavailable = errors.New("driver already holds an active ride")
)
