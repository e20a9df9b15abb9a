package sync

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/openmined/sitedeploy/internal/blob"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	etag   string
	body   []byte
	params blob.PutObjectParams
}

// fakeStore is an in-memory bucket that computes single part ETags the way S3 does.
type fakeStore struct {
	mu            gosync.Mutex
	objects       map[string]*fakeObject
	puts          []string
	deleteBatches [][]string
	failPut       map[string]error
	failDelete    error
	putDelay      time.Duration
	inFlight      int
	maxInFlight   int

	// keys whose body could not be read in place
	unseekable []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects: make(map[string]*fakeObject),
		failPut: make(map[string]error),
	}
}

func (f *fakeStore) seed(key, etag string) {
	f.objects[key] = &fakeObject{etag: etag}
}

func (f *fakeStore) ListObjects(_ context.Context, prefix string) ([]*blob.BlobInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var out []*blob.BlobInfo
	for _, key := range keys {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, &blob.BlobInfo{Key: key, ETag: f.objects[key].etag, Size: int64(len(f.objects[key].body))})
	}
	return out, nil
}

func (f *fakeStore) PutObject(ctx context.Context, params *blob.PutObjectParams) (*blob.PutObjectResponse, error) {
	f.mu.Lock()
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	failErr := f.failPut[params.Key]
	delay := f.putDelay
	_, seekable := params.Body.(io.ReadSeeker)
	_, readerAt := params.Body.(io.ReaderAt)
	if !seekable || !readerAt {
		f.unseekable = append(f.unseekable, params.Key)
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failErr != nil {
		return nil, failErr
	}

	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	sum := md5.Sum(body)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`

	stored := *params
	stored.Body = nil

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[params.Key] = &fakeObject{etag: etag, body: body, params: stored}
	f.puts = append(f.puts, params.Key)
	return &blob.PutObjectResponse{Key: params.Key, ETag: etag, Size: int64(len(body))}, nil
}

func (f *fakeStore) DeleteObjects(_ context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleteBatches = append(f.deleteBatches, slices.Clone(keys))
	if f.failDelete != nil {
		return f.failDelete
	}
	for _, key := range keys {
		delete(f.objects, key)
	}
	return nil
}

func (f *fakeStore) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = nil
	f.deleteBatches = nil
}

func (f *fakeStore) deletedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for _, batch := range f.deleteBatches {
		keys = append(keys, batch...)
	}
	return keys
}

func md5ETag(body string) string {
	sum := md5.Sum([]byte(body))
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// recordingObserver keeps the last reported progress.
type recordingObserver struct {
	mu    gosync.Mutex
	sent  []int64
	total int64
}

func (r *recordingObserver) OnProgress(_ string, sent, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent)
	r.total = total
}

var _ blob.IBlobClient = (*fakeStore)(nil)

// writeTree creates files relative to root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newTestEngine(t *testing.T, store *fakeStore, opts SyncOptions) *SyncEngine {
	t.Helper()
	engine, err := NewSyncEngine(store, opts)
	require.NoError(t, err)
	return engine
}
