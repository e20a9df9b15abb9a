package sync

import (
	"context"
	"log/slog"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// deletionCandidates returns the sorted remote keys the pass did not touch, split into
// those to delete and those kept by a retention pattern.
func deletionCandidates(remote map[string]string, touched *TouchedKeySet, retain []string) (deletes, retained []string) {
	for key := range remote {
		if touched.Contains(key) {
			continue
		}
		if isRetained(key, retain) {
			retained = append(retained, key)
			continue
		}
		deletes = append(deletes, key)
	}
	slices.Sort(deletes)
	slices.Sort(retained)
	return deletes, retained
}

func isRetained(key string, patterns []string) bool {
	for _, pattern := range patterns {
		if doublestar.MatchUnvalidated(pattern, key) {
			return true
		}
	}
	return false
}

func chunkKeys(keys []string, chunkSize int) [][]string {
	var chunks [][]string
	for i := 0; i < len(keys); i += chunkSize {
		end := min(i+chunkSize, len(keys))
		chunks = append(chunks, keys[i:end])
	}
	return chunks
}

// runDeletes removes keys in sequential batches. A failed batch stops the pass.
func (se *SyncEngine) runDeletes(ctx context.Context, keys []string) (int, error) {
	deleted := 0
	for _, chunk := range chunkKeys(keys, se.opts.DeleteBatchSize) {
		if err := ctx.Err(); err != nil {
			return deleted, &TaskError{Op: OpDelete, Key: chunk[0], Err: err}
		}

		se.status.Setf("Removing objects %d to %d of %d", deleted+1, deleted+len(chunk), len(keys))
		if err := se.store.DeleteObjects(ctx, chunk); err != nil {
			slog.Error("sync", "op", OpDelete, "first", chunk[0], "count", len(chunk), "error", err)
			return deleted, &TaskError{Op: OpDelete, Key: chunk[0], Err: err}
		}

		deleted += len(chunk)
		slog.Info("sync", "op", OpDelete, "first", chunk[0], "last", chunk[len(chunk)-1], "count", len(chunk))
	}
	return deleted, nil
}
