package sweep

import "errors"

var (
	// ErrNoMatchingRecords is returned when a deletion target resolves to no
	// stored record at all.
	ErrNoMatchingRecords = errors.New("no matching records")

	// ErrInvalidTarget is returned when a deletion target names neither an
	// external id nor a complete fingerprint, or names both.
	ErrInvalidTarget = errors.New("invalid deletion target")
)
