package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/openmined/sitedeploy/internal/artifacts"
	"github.com/openmined/sitedeploy/internal/blob"
	"github.com/openmined/sitedeploy/internal/config"
	"github.com/openmined/sitedeploy/internal/utils"
)

const (
	defaultParallelLimit = config.DefaultParallelLimit
	maxDeleteBatchSize   = config.DefaultDeleteBatchSize
)

type SyncOptions struct {
	SourceDir    string
	BucketPrefix string
	// ACL is sent with every put unless a param overrides it. Empty sends none.
	ACL    string
	Params artifacts.ParamRules
	Ignore []string

	Redirects []RedirectDescriptor
	Protocol  string
	Hostname  string

	ParallelLimit            int
	RemoveNonexistentObjects bool
	RetainPatterns           []string
	DeleteBatchSize          int

	DryRun bool
}

// OptionsFromConfig combines the deploy configuration with the pre-computed artifacts.
// Params from the artifacts apply first, so config params override them.
func OptionsFromConfig(cfg *config.Config, set *artifacts.Set) SyncOptions {
	params := make(artifacts.ParamRules, 0, len(set.Params)+len(cfg.Params))
	params = append(params, set.Params...)
	params = append(params, cfg.Params...)

	redirects := make([]RedirectDescriptor, 0, len(set.RedirectObjects))
	for _, r := range set.RedirectObjects {
		redirects = append(redirects, RedirectDescriptor{FromPath: r.FromPath, ToPath: r.ToPath})
	}

	return SyncOptions{
		SourceDir:                cfg.SourceDir,
		BucketPrefix:             cfg.BucketPrefix,
		ACL:                      cfg.UploadACL(),
		Params:                   params,
		Ignore:                   cfg.Ignore,
		Redirects:                redirects,
		Protocol:                 cfg.Protocol,
		Hostname:                 cfg.Hostname,
		ParallelLimit:            cfg.ParallelLimit,
		RemoveNonexistentObjects: cfg.RemoveNonexistentObjects,
		RetainPatterns:           cfg.RetainObjectsPatterns,
		DeleteBatchSize:          cfg.DeleteBatchSize,
	}
}

// SyncEngine brings the bucket in line with the source dir in a single pass.
// It holds no state between passes.
type SyncEngine struct {
	store    blob.IBlobClient
	opts     SyncOptions
	status   *SyncStatus
	observer ProgressObserver
}

func NewSyncEngine(store blob.IBlobClient, opts SyncOptions) (*SyncEngine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.SourceDir == "" {
		return nil, fmt.Errorf("source dir is required")
	}
	if opts.ParallelLimit < 1 {
		opts.ParallelLimit = defaultParallelLimit
	}
	if opts.DeleteBatchSize < 1 || opts.DeleteBatchSize > maxDeleteBatchSize {
		opts.DeleteBatchSize = maxDeleteBatchSize
	}

	status := NewSyncStatus()
	return &SyncEngine{
		store:    store,
		opts:     opts,
		status:   status,
		observer: status,
	}, nil
}

func (se *SyncEngine) Status() *SyncStatus {
	return se.status
}

// SetObserver replaces the progress observer. The default forwards to Status.
func (se *SyncEngine) SetObserver(observer ProgressObserver) {
	se.observer = observer
}

// plan lists the bucket, scans the source dir and decides every put and delete
// without mutating the store.
func (se *SyncEngine) plan(ctx context.Context) (*SyncPlan, *TouchedKeySet, error) {
	se.status.Set("Listing objects...")
	remote, err := se.listRemote(ctx)
	if err != nil {
		return nil, nil, err
	}

	se.status.Set("Syncing...")
	candidates, err := se.collectCandidates()
	if err != nil {
		return nil, nil, err
	}

	touched := NewTouchedKeySet()
	d := &differ{
		remote:  remote,
		touched: touched,
		params:  NewParamResolver(se.opts.Params),
		acl:     se.opts.ACL,
	}

	plan := &SyncPlan{}
	for _, c := range candidates {
		if task := d.Classify(c); task != nil {
			plan.Uploads = append(plan.Uploads, task)
		} else {
			plan.Unchanged = append(plan.Unchanged, c.Key)
		}
	}

	if se.opts.RemoveNonexistentObjects {
		plan.Deletes, plan.Retained = deletionCandidates(remote, touched, se.opts.RetainPatterns)
	}

	slog.Debug("sync plan",
		"remote", len(remote),
		"candidates", len(candidates),
		"uploads", len(plan.Uploads),
		"unchanged", len(plan.Unchanged),
		"deletes", len(plan.Deletes),
		"retained", len(plan.Retained),
	)
	return plan, touched, nil
}

// RunSync executes one pass: listing, classification, uploads, then reconciliation.
// Any store failure stops the pass with a *TaskError; deletes never run after a failed upload.
func (se *SyncEngine) RunSync(ctx context.Context) (*SyncResult, error) {
	start := time.Now()

	plan, _, err := se.plan(ctx)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{
		Unchanged: len(plan.Unchanged),
		Retained:  len(plan.Retained),
		DryRun:    se.opts.DryRun,
	}

	if se.opts.DryRun {
		for _, task := range plan.Uploads {
			if task.IsRedirect {
				result.Redirects++
			} else {
				result.Uploaded++
			}
			result.BytesUploaded += task.Size
			slog.Info("dry-run", "op", task.Op(), "key", task.Key, "size", task.Size)
		}
		for _, key := range plan.Deletes {
			slog.Info("dry-run", "op", OpDelete, "key", key)
		}
		result.Deleted = len(plan.Deletes)
		result.Duration = time.Since(start)
		return result, nil
	}

	var stats uploadStats
	err = se.runUploads(ctx, plan.Uploads, &stats)
	result.Uploaded = int(stats.files.Load())
	result.Redirects = int(stats.redirects.Load())
	result.BytesUploaded = stats.bytes.Load()
	if err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	if len(plan.Deletes) > 0 {
		result.Deleted, err = se.runDeletes(ctx, plan.Deletes)
		if err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
	}

	result.Duration = time.Since(start)
	se.status.Set("Synced.")
	return result, nil
}

func (se *SyncEngine) listRemote(ctx context.Context) (map[string]string, error) {
	objects, err := se.store.ListObjects(ctx, se.opts.BucketPrefix)
	if err != nil {
		return nil, &TaskError{Op: OpList, Key: se.opts.BucketPrefix, Err: err}
	}

	// an empty etag never matches a fingerprint but the key still takes part in
	// reconciliation
	remote := make(map[string]string, len(objects))
	for _, obj := range objects {
		if obj.Key == "" {
			continue
		}
		remote[obj.Key] = obj.ETag
	}
	return remote, nil
}

// collectCandidates observes local files in walk order, then redirects in declaration
// order, and resolves key collisions.
func (se *SyncEngine) collectCandidates() ([]*candidate, error) {
	root, err := resolveSourceDir(se.opts.SourceDir)
	if err != nil {
		return nil, err
	}

	ignore := NewSyncIgnoreList(root, se.opts.Ignore)
	ignore.Load()

	assets, err := NewSyncLocalState(root, se.opts.BucketPrefix, ignore).Scan()
	if err != nil {
		return nil, err
	}

	candidates := make([]*candidate, 0, len(assets)+len(se.opts.Redirects))
	for _, asset := range assets {
		candidates = append(candidates, &candidate{
			Key:         asset.Key,
			Fingerprint: asset.Fingerprint,
			Size:        asset.Size,
			asset:       asset,
		})
	}

	for _, r := range se.opts.Redirects {
		location, err := RedirectLocation(se.opts.Protocol, se.opts.Hostname, r.ToPath)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, &candidate{
			Key:              RedirectKey(se.opts.BucketPrefix, r.FromPath),
			Fingerprint:      RedirectFingerprint(location),
			Size:             int64(len(location)),
			redirectLocation: location,
		})
	}

	return dedupeCandidates(candidates), nil
}

func resolveSourceDir(dir string) (string, error) {
	abs, err := utils.ResolvePath(dir)
	if err != nil {
		return "", fmt.Errorf("source dir: %w", err)
	}
	if !utils.DirExists(abs) {
		return "", fmt.Errorf("%w: %s", ErrNoSourceDir, abs)
	}
	// walk the real tree when the source dir itself is a symlink
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("source dir: %w", err)
	}
	return resolved, nil
}
