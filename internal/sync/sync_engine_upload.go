package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

type uploadStats struct {
	files     atomic.Int64
	redirects atomic.Int64
	bytes     atomic.Int64
}

// runUploads issues tasks with at most ParallelLimit puts in flight. The first failure
// cancels the rest and is returned as a *TaskError.
func (se *SyncEngine) runUploads(ctx context.Context, tasks []*UploadTask, stats *uploadStats) error {
	if len(tasks) == 0 {
		return nil
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(se.opts.ParallelLimit)

	for _, task := range tasks {
		// stop scheduling once anything failed or the caller gave up
		if gctx.Err() != nil {
			break
		}
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return &TaskError{Op: task.Op(), Key: task.Key, Err: err}
			}
			if err := se.upload(gctx, task); err != nil {
				slog.Error("sync", "op", task.Op(), "key", task.Key, "error", err)
				return &TaskError{Op: task.Op(), Key: task.Key, Err: err}
			}

			if task.IsRedirect {
				stats.redirects.Add(1)
			} else {
				stats.files.Add(1)
			}
			stats.bytes.Add(task.Size)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	// the loop may have stopped early without any task failing
	if err := ctx.Err(); err != nil {
		return &TaskError{Op: OpUpload, Key: "", Err: err}
	}
	return nil
}

func (se *SyncEngine) upload(ctx context.Context, task *UploadTask) error {
	var body io.Reader
	if task.IsRedirect {
		body = strings.NewReader(task.Literal)
	} else {
		file, err := os.Open(task.FilePath)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		defer file.Close()
		body = file
	}

	params := task.putParams()
	params.Body = newProgressReader(body, task.Key, task.Size, se.observer)

	if _, err := se.store.PutObject(ctx, params); err != nil {
		return err
	}

	if task.IsRedirect {
		se.status.Setf("Created redirect %s => %s", task.Key, task.RedirectLocation)
		slog.Info("sync", "op", OpRedirect, "key", task.Key, "location", task.RedirectLocation)
	} else {
		se.status.Setf("Uploaded %s", task.Key)
		slog.Info("sync", "op", OpUpload, "key", task.Key, "size", task.Size, "contentType", params.ContentType)
	}
	return nil
}
