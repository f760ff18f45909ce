// Package artifact is the Artifact Store (C2): atomic read/write of
// checkpoints and model blobs, plus an append-only path tracker file used by
// Stage T to record which topic-slice artifacts it produced.
package artifact

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when name has never been saved.
var ErrNotFound = errors.New("artifact: not found")

// Store is the C2 contract: save/load opaque blobs by name, check existence,
// and append a line to a tracker file. Implementations must make Save
// atomic — a reader never observes a partially written blob.
type Store interface {
	Save(ctx context.Context, name string, data []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
	Exists(ctx context.Context, name string) (bool, error)
	AppendLine(ctx context.Context, name string, line string) error
}
