// Package checkpoint persists the pipeline's progress watermark across runs.
package checkpoint

import (
	"context"

	"github.com/Bloop-Tech/users-also-buy/internal/model"
)

// Store persists a single named checkpoint record. Implementations must make
// Save atomic from the caller's point of view: a concurrent or subsequent
// Load never observes a half-written checkpoint. Save failures are reported
// to the caller and never retried internally, so a failed batch cannot
// silently double-advance the watermark.
//
// The store is single-writer per pipeline instance; running two pipelines
// against the same checkpoint key is not supported.
type Store interface {
	// Load returns the current checkpoint, or (nil, nil) if none has ever
	// been written. A checkpoint that exists but cannot be decoded is an
	// error, not absence.
	Load(ctx context.Context) (*model.Checkpoint, error)

	// Save atomically overwrites the checkpoint.
	Save(ctx context.Context, cp model.Checkpoint) error

	// Delete removes the checkpoint. Deleting a checkpoint that does not
	// exist is not an error.
	Delete(ctx context.Context) error

	Close() error
}
