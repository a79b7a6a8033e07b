package domain

import "errors"

var (
	// ErrMissingAttribute is returned when an allow-listed event lacks an
	// attribute it must carry. It signals a chain schema change.
	ErrMissingAttribute = errors.New("event attribute missing")

	// ErrIndexerBehind is returned when the backend's indexed height is lower
	// than the height the observed events were taken from.
	ErrIndexerBehind = errors.New("backend indexer behind observed height")
)
