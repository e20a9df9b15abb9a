package sync

import (
	"errors"
	"fmt"
)

var ErrNoSourceDir = errors.New("source directory does not exist")

// TaskError is a fatal store failure for a single key or batch.
type TaskError struct {
	Op  SyncOp
	Key string
	Err error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}
