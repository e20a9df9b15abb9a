package blob

import (
	"context"
	"fmt"
	"io"
)

type IBlobClient interface {
	ListObjects(ctx context.Context, prefix string) ([]*BlobInfo, error)
	PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error)
	DeleteObjects(ctx context.Context, keys []string) error
}

// ===================================================================================================

type PutObjectParams struct {
	Key  string
	Body io.Reader
	Size int64

	// ACL is a canned ACL name. Empty sends no ACL.
	ACL                     string
	ContentType             string
	CacheControl            string
	ContentEncoding         string
	ContentDisposition      string
	ContentLanguage         string
	ServerSideEncryption    string
	StorageClass            string
	WebsiteRedirectLocation string
	Metadata                map[string]string
}

type PutObjectResponse struct {
	Key     string
	Version string
	ETag    string
	Size    int64
}

// ===================================================================================================

// DeleteError is a key the store refused to delete within an otherwise successful batch.
type DeleteError struct {
	Key     string
	Code    string
	Message string
}

// DeleteObjectsError reports the per-key failures of a batch delete.
type DeleteObjectsError struct {
	Errors []DeleteError
}

func (e *DeleteObjectsError) Error() string {
	first := e.Errors[0]
	return fmt.Sprintf("%d objects not deleted, first %s: %s %s", len(e.Errors), first.Key, first.Code, first.Message)
}

// ===================================================================================================

// BlobInfo is a listed object. ETag is the raw value reported by the store, quotes included.
type BlobInfo struct {
	Key          string `json:"key"`
	ETag         string `json:"etag"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified"`
}
