package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrStoreInactive indicates the store was deactivated and must be reconnected.
	ErrStoreInactive = errors.New("store inactive")
)
