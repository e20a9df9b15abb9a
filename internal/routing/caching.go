package routing

import (
	"path"
	"strings"

	"github.com/openmined/sitedeploy/internal/artifacts"
)

const (
	cacheRevalidate = "public, max-age=0, must-revalidate"
	cacheImmutable  = "public, max-age=31536000, immutable"
)

// defaultCachingParams keeps html and data files fresh and lets hashed assets live
// forever. The service worker must always revalidate, so it comes last.
var defaultCachingParams = []struct {
	pattern string
	value   string
}{
	{"**/*.html", cacheRevalidate},
	{"page-data/**/*.json", cacheRevalidate},
	{"chunk-map.json", cacheRevalidate},
	{"webpack.stats.json", cacheRevalidate},
	{"static/**", cacheImmutable},
	{"**/*.js", cacheImmutable},
	{"**/*.css", cacheImmutable},
	{"sw.js", cacheRevalidate},
}

// CachingParams returns the default Cache-Control rules, rooted at prefix when set.
func CachingParams(prefix string) artifacts.ParamRules {
	prefix = strings.Trim(prefix, "/")
	rules := make(artifacts.ParamRules, 0, len(defaultCachingParams))
	for _, p := range defaultCachingParams {
		pattern := p.pattern
		if prefix != "" {
			pattern = path.Join(prefix, pattern)
		}
		rules = append(rules, artifacts.ParamRule{
			Pattern: pattern,
			Params:  map[string]string{"CacheControl": p.value},
		})
	}
	return rules
}
