package domain

import "errors"

var (
	// ErrNoSplitsAvailable is returned when a fill arrives before any split table
	// was published, or after an empty one was. The fill is dropped.
	ErrNoSplitsAvailable = errors.New("no splits available")
	// ErrInvalidFill rejects fills without an instrument or with a non-positive price.
	ErrInvalidFill = errors.New("invalid fill")
	// ErrInvalidSplits rejects split tables that are empty or malformed.
	ErrInvalidSplits = errors.New("invalid splits")
)
