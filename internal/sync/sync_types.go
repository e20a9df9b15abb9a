package sync

import (
	"fmt"
	"time"
)

// SyncOp names the kind of store mutation in logs and errors.
type SyncOp string

const (
	OpUpload   SyncOp = "upload"
	OpRedirect SyncOp = "redirect"
	OpDelete   SyncOp = "delete"
	OpList     SyncOp = "list"
)

// LocalAsset is a regular file under the source dir.
type LocalAsset struct {
	AbsPath     string
	Key         string
	Size        int64
	Fingerprint Fingerprint
}

// RedirectDescriptor asks for a placeholder object at FromPath that redirects to ToPath.
type RedirectDescriptor struct {
	FromPath string
	ToPath   string
}

// candidate is a key the pass produced, before it is compared to the remote listing.
type candidate struct {
	Key         string
	Fingerprint Fingerprint
	Size        int64
	// exactly one of asset / redirectLocation is set
	asset            *LocalAsset
	redirectLocation string
}

func (c *candidate) isRedirect() bool {
	return c.asset == nil
}

func (c *candidate) source() string {
	if c.asset != nil {
		return c.asset.AbsPath
	}
	return c.redirectLocation
}

// UploadTask is a put the pass decided to issue.
type UploadTask struct {
	Key  string
	Size int64
	// FilePath is the body for file uploads, Literal for redirect objects.
	FilePath         string
	Literal          string
	IsRedirect       bool
	RedirectLocation string
	ContentType      string
	ACL              string
	Headers          Headers
}

func (t *UploadTask) Op() SyncOp {
	if t.IsRedirect {
		return OpRedirect
	}
	return OpUpload
}

// SyncPlan is what a pass would do against the current remote listing.
type SyncPlan struct {
	Uploads   []*UploadTask
	Unchanged []string
	Deletes   []string
	Retained  []string
}

// SyncResult summarises a completed pass.
type SyncResult struct {
	Uploaded      int
	Redirects     int
	Unchanged     int
	Deleted       int
	Retained      int
	BytesUploaded int64
	Duration      time.Duration
	DryRun        bool
}

func (r *SyncResult) String() string {
	return fmt.Sprintf("uploaded=%d redirects=%d unchanged=%d deleted=%d retained=%d",
		r.Uploaded, r.Redirects, r.Unchanged, r.Deleted, r.Retained)
}
