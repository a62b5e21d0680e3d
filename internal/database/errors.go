package database

import "errors"

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrOverlap is returned by CreateHold when the requested interval is no
	// longer free for the staff member.
	ErrOverlap = errors.New("interval overlaps an existing appointment")

	// ErrVersionConflict is returned when an optimistic version check lost a
	// race. Callers retry a bounded number of times.
	ErrVersionConflict = errors.New("version conflict")
)
