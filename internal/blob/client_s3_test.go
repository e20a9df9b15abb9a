package blob

import (
	"context"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listPage = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>site-bucket</Name>
  <KeyCount>1</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>%t</IsTruncated>
  %s
  <Contents>
    <Key>%s</Key>
    <ETag>&quot;%s&quot;</ETag>
    <Size>%d</Size>
  </Contents>
</ListBucketResult>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *BlobClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := WithMinioConfig(srv.URL, "site-bucket", "test-key", "test-secret")
	cfg.MaxRetries = 0

	client, err := NewBlobClientWithS3Config(context.Background(), cfg)
	require.NoError(t, err)
	return client
}

func TestBlobClient_ListObjectsFollowsContinuation(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/site-bucket", r.URL.Path)
		assert.Equal(t, "blog", r.URL.Query().Get("prefix"))

		w.Header().Set("Content-Type", "application/xml")
		if r.URL.Query().Get("continuation-token") == "" {
			fmt.Fprintf(w, listPage, true, "<NextContinuationToken>page-2</NextContinuationToken>", "blog/a.html", "aaa", 3)
			return
		}
		assert.Equal(t, "page-2", r.URL.Query().Get("continuation-token"))
		fmt.Fprintf(w, listPage, false, "", "blog/b.html", "bbb", 4)
	})

	objects, err := client.ListObjects(context.Background(), "blog")
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	require.Len(t, objects, 2)
	assert.Equal(t, "blog/a.html", objects[0].Key)
	assert.Equal(t, `"aaa"`, objects[0].ETag, "etag keeps its quotes")
	assert.Equal(t, int64(4), objects[1].Size)
}

func TestBlobClient_CABundle(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, listPage, false, "", "index.html", "abc", 5)
	}))
	t.Cleanup(srv.Close)

	// the test server certificate is only trusted through the bundle
	bundle := filepath.Join(t.TempDir(), "ca.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(bundle, certPEM, 0o600))
	t.Setenv("AWS_CA_BUNDLE", bundle)

	cfg := WithMinioConfig(srv.URL, "site-bucket", "test-key", "test-secret")
	cfg.MaxRetries = 0

	client, err := NewBlobClientWithS3Config(context.Background(), cfg)
	require.NoError(t, err)

	objects, err := client.ListObjects(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "index.html", objects[0].Key)
}

func TestBlobClient_DeleteObjectsReportsPerKeyErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, isDelete := r.URL.Query()["delete"]
		assert.True(t, isDelete)

		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Error><Key>locked.html</Key><Code>AccessDenied</Code><Message>Access Denied</Message></Error>
</DeleteResult>`)
	})

	err := client.DeleteObjects(context.Background(), []string{"gone.html", "locked.html"})
	require.Error(t, err)

	var delErr *DeleteObjectsError
	require.ErrorAs(t, err, &delErr)
	assert.Equal(t, []DeleteError{{Key: "locked.html", Code: "AccessDenied", Message: "Access Denied"}}, delErr.Errors)
}

func TestBlobClient_DeleteObjectsEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL)
	})
	assert.NoError(t, client.DeleteObjects(context.Background(), nil))
}

func TestBlobClient_BucketInfo(t *testing.T) {
	t.Run("missing bucket", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchBucket</Code><Message>The specified bucket does not exist</Message></Error>`)
		})

		state, err := client.BucketInfo(context.Background())
		require.NoError(t, err)
		assert.False(t, state.Exists)
		assert.Equal(t, "us-east-1", state.Region)
	})

	t.Run("existing bucket", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, isLocation := r.URL.Query()["location"]
			assert.True(t, isLocation)
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">eu-central-1</LocationConstraint>`)
		})

		state, err := client.BucketInfo(context.Background())
		require.NoError(t, err)
		assert.True(t, state.Exists)
		assert.Equal(t, "eu-central-1", state.Region)
	})

	t.Run("access denied is a setup error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
		})

		_, err := client.BucketInfo(context.Background())
		assert.ErrorIs(t, err, ErrSetup)
	})
}

func TestBlobClient_WithRegion(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	assert.Same(t, client, client.WithRegion(""))
	assert.Same(t, client, client.WithRegion("us-east-1"))

	moved := client.WithRegion("eu-west-2")
	assert.Equal(t, "eu-west-2", moved.Region())
	assert.Equal(t, "site-bucket", moved.Bucket())
	assert.Equal(t, "us-east-1", client.Region())
}

func TestPutObjectInput(t *testing.T) {
	input := putObjectInput("site-bucket", &PutObjectParams{
		Key:                     "old/index.html",
		Body:                    strings.NewReader("https://example.com/new/"),
		ACL:                     "public-read",
		ContentType:             "application/octet-stream",
		CacheControl:            "no-cache",
		WebsiteRedirectLocation: "https://example.com/new/",
		Metadata:                map[string]string{"team": "web"},
	})

	assert.Equal(t, "site-bucket", aws.ToString(input.Bucket))
	assert.Equal(t, types.ObjectCannedACLPublicRead, input.ACL)
	assert.Equal(t, "no-cache", aws.ToString(input.CacheControl))
	assert.Equal(t, "https://example.com/new/", aws.ToString(input.WebsiteRedirectLocation))
	assert.Nil(t, input.ContentEncoding)
	assert.Empty(t, input.StorageClass)
	assert.Equal(t, map[string]string{"team": "web"}, input.Metadata)

	bare := putObjectInput("site-bucket", &PutObjectParams{Key: "a.txt"})
	assert.Empty(t, bare.ACL, "no ACL header when none is configured")
	assert.Nil(t, bare.Metadata)
}

func TestFixedBackoff(t *testing.T) {
	backoff := fixedBackoff(150 * time.Millisecond)
	for attempt := 1; attempt <= 3; attempt++ {
		delay, err := backoff.BackoffDelay(attempt, nil)
		require.NoError(t, err)
		assert.Equal(t, 150*time.Millisecond, delay)
	}

	retryer := newRetryer(&S3BlobConfig{MaxRetries: 4, RetryDelay: time.Second})()
	assert.Equal(t, 5, retryer.MaxAttempts())
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "https://storage.example.com", endpointURL("storage.example.com"))
	assert.Equal(t, "http://localhost:9000", endpointURL("http://localhost:9000"))
}
