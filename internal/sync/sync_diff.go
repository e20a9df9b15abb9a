package sync

import (
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/sitedeploy/internal/utils"
)

// TouchedKeySet records every key the current pass produced, changed or not. It only
// grows, and is safe for concurrent use.
type TouchedKeySet struct {
	keys mapset.Set[string]
}

func NewTouchedKeySet() *TouchedKeySet {
	return &TouchedKeySet{keys: mapset.NewSet[string]()}
}

// Touch adds key and reports whether it was new.
func (t *TouchedKeySet) Touch(key string) bool {
	return t.keys.Add(key)
}

func (t *TouchedKeySet) Contains(key string) bool {
	return t.keys.Contains(key)
}

func (t *TouchedKeySet) Len() int {
	return t.keys.Cardinality()
}

// dedupeCandidates resolves key collisions. The last observed candidate wins and keeps
// the position of the first.
func dedupeCandidates(in []*candidate) []*candidate {
	index := make(map[string]int, len(in))
	out := make([]*candidate, 0, len(in))
	for _, c := range in {
		i, seen := index[c.Key]
		if !seen {
			index[c.Key] = len(out)
			out = append(out, c)
			continue
		}
		slog.Warn("sync key collision, last one wins", "key", c.Key, "replaced", out[i].source(), "by", c.source())
		out[i] = c
	}
	return out
}

// differ compares candidates against the remote listing and produces upload tasks.
type differ struct {
	remote  map[string]string
	touched *TouchedKeySet
	params  *ParamResolver
	acl     string
}

// Classify marks the candidate touched and returns nil when the remote object already
// carries the same fingerprint.
func (d *differ) Classify(c *candidate) *UploadTask {
	d.touched.Touch(c.Key)

	if etag, ok := d.remote[c.Key]; ok && c.Fingerprint.Matches(etag) {
		return nil
	}

	task := &UploadTask{
		Key:     c.Key,
		Size:    c.Size,
		ACL:     d.acl,
		Headers: d.params.Resolve(c.Key),
	}
	if c.isRedirect() {
		task.IsRedirect = true
		task.Literal = c.redirectLocation
		task.RedirectLocation = c.redirectLocation
		task.ContentType = utils.DefaultContentType
	} else {
		task.FilePath = c.asset.AbsPath
		task.ContentType = utils.DetectContentType(c.Key)
	}
	return task
}
