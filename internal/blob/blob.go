// Package blob defines the storage capability the engine consumes: an
// immutable named-blob store that refuses overwrites. All coordination
// between writers and readers happens through this contract; the engine
// never needs delete, and a backend that forbids delete outright is the
// preferred deployment.
package blob

import (
	"context"
	"errors"
)

var (
	// ErrExists is returned by Put when the name is already taken. A
	// collision implies a naming or clock bug, never a legitimate retry.
	ErrExists = errors.New("blob already exists")

	// ErrNotFound is returned by Get for unknown names.
	ErrNotFound = errors.New("blob not found")
)

// Store is the minimal blob-store contract. Implementations must make Put
// atomic with respect to the existence check: two concurrent Puts of the
// same name must not both succeed.
type Store interface {
	// Put stores data under name. Returns ErrExists if name is taken.
	Put(ctx context.Context, name string, data []byte) error

	// List returns all names with the given prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)

	// Get returns the blob's bytes. Returns ErrNotFound for unknown names.
	Get(ctx context.Context, name string) ([]byte, error)

	// Close releases backend resources.
	Close() error
}
