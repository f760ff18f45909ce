package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/achouhan93/clusterchat-go/internal/artifact"
)

// SaveCheckpoint JSON-serializes state and writes it atomically under name.
// Checkpoint failures are fatal (§7): callers should propagate the error.
func SaveCheckpoint(ctx context.Context, store artifact.Store, name string, state any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("pipeline: marshal checkpoint %s: %w", name, err)
	}
	if err := store.Save(ctx, name, data); err != nil {
		return fmt.Errorf("pipeline: save checkpoint %s: %w", name, err)
	}
	return nil
}

// LoadCheckpoint loads and JSON-decodes the checkpoint at name. found is
// false when no checkpoint has ever been saved, in which case the caller
// should start from its zero state.
func LoadCheckpoint[S any](ctx context.Context, store artifact.Store, name string) (state S, found bool, err error) {
	data, err := store.Load(ctx, name)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return state, false, nil
		}
		return state, false, fmt.Errorf("pipeline: load checkpoint %s: %w", name, err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, false, fmt.Errorf("pipeline: decode checkpoint %s: %w", name, err)
	}
	return state, true, nil
}

// ForEachResumable walks items in order, skipping any for which isDone
// already reports true (resumed work), and invoking step for the rest.
// Processing stops at the first error returned by step, so the caller's
// step function is expected to persist a checkpoint (via SaveCheckpoint)
// before returning, making the next ForEachResumable call a true resume.
func ForEachResumable[T any](ctx context.Context, items []T, isDone func(T) bool, step func(ctx context.Context, idx int, item T) error) error {
	for i, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isDone(item) {
			continue
		}
		if err := step(ctx, i, item); err != nil {
			return err
		}
	}
	return nil
}
