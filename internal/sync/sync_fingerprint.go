package sync

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Fingerprint is the lowercase hex MD5 of an object body.
type Fingerprint string

// ETag renders the fingerprint the way S3 reports single part uploads.
func (f Fingerprint) ETag() string {
	return `"` + string(f) + `"`
}

// Matches compares against a raw remote ETag. Multipart ETags never match.
func (f Fingerprint) Matches(remoteETag string) bool {
	return f.ETag() == remoteETag
}

// FileFingerprint hashes the complete contents of the file at path.
func FileFingerprint(path string) (Fingerprint, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file '%s': %w", path, err)
	}
	defer file.Close()

	h := md5.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to hash '%s': %w", path, err)
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// RedirectFingerprint hashes the resolved redirect location, which is also the body
// of the redirect object. Two redirects to the same target share a fingerprint.
func RedirectFingerprint(location string) Fingerprint {
	sum := md5.Sum([]byte(location))
	return Fingerprint(hex.EncodeToString(sum[:]))
}
