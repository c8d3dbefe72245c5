// Package sentinel defines storage and coordination facts that services
// translate into domain errors. Request validation uses pkg/domain-errors.
package sentinel

import "errors"

var (
	// ErrNotFound means the row or object does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a write collided with an existing row.
	ErrConflict = errors.New("conflict")
	// ErrLeaseHeld means another worker owns the per-case lease.
	ErrLeaseHeld = errors.New("lease held")
)
