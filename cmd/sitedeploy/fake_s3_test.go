package main

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
)

const testBucket = "site-bucket"

// fakeS3 answers the handful of path style S3 calls a deploy makes.
type fakeS3 struct {
	mu       sync.Mutex
	exists   bool
	objects  map[string]string
	puts     []string
	deletes  int
	websites int
	created  bool
	requests []string
}

func newFakeS3(t *testing.T, exists bool) (*fakeS3, string) {
	t.Helper()
	f := &fakeS3{exists: exists, objects: make(map[string]string)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query()
	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/"+testBucket), "/")
	f.requests = append(f.requests, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
	w.Header().Set("Content-Type", "application/xml")

	switch {
	case r.Method == http.MethodGet && q.Has("location"):
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchBucket</Code><Message>The specified bucket does not exist</Message></Error>`)
			return
		}
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></LocationConstraint>`)

	case r.Method == http.MethodGet && q.Get("list-type") == "2":
		keys := make([]string, 0, len(f.objects))
		for k := range f.objects {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		var b strings.Builder
		fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>%s</Name><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>`, testBucket, len(keys))
		for _, k := range keys {
			fmt.Fprintf(&b, `<Contents><Key>%s</Key><ETag>%s</ETag><Size>1</Size></Contents>`, k, f.objects[k])
		}
		b.WriteString(`</ListBucketResult>`)
		fmt.Fprint(w, b.String())

	case r.Method == http.MethodPut && q.Has("website"):
		f.websites++

	case r.Method == http.MethodPut && q.Has("policy"):
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodDelete && q.Has("publicAccessBlock"):
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodPut && key == "":
		f.created = true
		f.exists = true

	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		sum := md5.Sum(body)
		etag := `"` + hex.EncodeToString(sum[:]) + `"`
		f.objects[key] = etag
		f.puts = append(f.puts, key)
		w.Header().Set("ETag", etag)

	case r.Method == http.MethodPost && q.Has("delete"):
		f.deletes++
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></DeleteResult>`)

	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) snapshot() (puts []string, websites int, created bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.puts), f.websites, f.created
}
