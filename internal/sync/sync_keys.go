package sync

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ObjectKey maps a slash separated relative path to its store key under prefix.
// Other characters, backslashes included, are kept as they are.
func ObjectKey(prefix, rel string) string {
	key := strings.TrimPrefix(rel, "/")
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// RedirectKey maps a redirect's fromPath to the object that carries it. Directory
// paths are served by their index document.
func RedirectKey(prefix, fromPath string) string {
	key := strings.TrimPrefix(fromPath, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		key = path.Join(key, "index.html")
	}
	return ObjectKey(prefix, key)
}

// RedirectLocation resolves toPath against protocol://hostname. Without a base the
// target is used as declared.
func RedirectLocation(protocol, hostname, toPath string) (string, error) {
	if protocol == "" || hostname == "" {
		return toPath, nil
	}
	base, err := url.Parse(protocol + "://" + hostname)
	if err != nil {
		return "", fmt.Errorf("redirect base: %w", err)
	}
	target, err := url.Parse(toPath)
	if err != nil {
		return "", fmt.Errorf("redirect target '%s': %w", toPath, err)
	}
	resolved := base.ResolveReference(target)
	if resolved.Path == "" {
		resolved.Path = "/"
	}
	return resolved.String(), nil
}
