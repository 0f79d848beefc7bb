// Package errors defines the sentinel errors shared by the work-log service layers.
package errors

import (
	"fmt"
)

var (
	ErrNotFound          = fmt.Errorf("not found")
	ErrInvalidInput      = fmt.Errorf("invalid input")
	ErrNoProjectAssigned = fmt.Errorf("no project assigned")
	ErrConflict          = fmt.Errorf("conflict")
	// ErrStorageUnavailable wraps any store failure that is not a lookup miss or a key collision.
	ErrStorageUnavailable = fmt.Errorf("storage unavailable")
	ErrInvalidTransition  = fmt.Errorf("invalid transition")
	ErrUnauthenticated    = fmt.Errorf("unauthenticated")
)
