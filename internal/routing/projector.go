package routing

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/openmined/sitedeploy/internal/artifacts"
	"github.com/openmined/sitedeploy/internal/config"
)

var (
	ErrHostnameProtocol    = errors.New("provide both hostname and protocol, or neither of them")
	ErrTooManyRoutingRules = errors.New("too many routing rules")
	ErrDuplicateRedirect   = errors.New("duplicate redirect")
)

const homePath = "/"

// Options controls how declarations are projected into artifacts.
type Options struct {
	Protocol string
	Hostname string

	GenerateRoutingRules                         bool
	GenerateRedirectObjectsForPermanentRedirects bool
	GenerateIndexPageForRedirect                 bool
	GenerateMatchPathRewrites                    bool
	MergeCachingParams                           bool
	StrictRedirects                              bool

	// MaxRoutingRules is the S3 website configuration limit. Zero disables the check.
	MaxRoutingRules int
	BucketPrefix    string
	Params          artifacts.ParamRules
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Protocol:             cfg.Protocol,
		Hostname:             cfg.Hostname,
		GenerateRoutingRules: cfg.GenerateRoutingRules,
		GenerateRedirectObjectsForPermanentRedirects: cfg.GenerateRedirectObjectsForPermanentRedirects,
		GenerateIndexPageForRedirect:                 cfg.GenerateIndexPageForRedirect,
		GenerateMatchPathRewrites:                    cfg.GenerateMatchPathRewrites,
		MergeCachingParams:                           cfg.MergeCachingParams,
		StrictRedirects:                              cfg.StrictRedirects,
		MaxRoutingRules:                              cfg.MaxRoutingRules,
		BucketPrefix:                                 cfg.BucketPrefix,
		Params:                                       cfg.Params,
	}
}

// Project turns redirect and page declarations into the artifacts consumed by a deploy.
// It does not touch the filesystem.
func Project(decl *Declarations, opts Options) (*artifacts.Set, error) {
	if (opts.Hostname == "") != (opts.Protocol == "") {
		return nil, ErrHostnameProtocol
	}

	redirects, err := dedupeRedirects(decl.Redirects, opts.StrictRedirects)
	if err != nil {
		return nil, err
	}

	var temporary, permanent []Redirect
	var home *Redirect
	for i := range redirects {
		r := redirects[i]
		switch {
		case r.FromPath == homePath:
			home = &r
		case r.IsPermanent:
			permanent = append(permanent, r)
		default:
			temporary = append(temporary, r)
		}
	}

	set := &artifacts.Set{}

	if opts.GenerateRoutingRules {
		var rewrites []Redirect
		if opts.GenerateMatchPathRewrites {
			rewrites = matchPathRewrites(decl.Pages)
		}

		rules := buildRules(opts, temporary)
		rules = append(rules, buildRules(opts, rewrites)...)
		if !opts.GenerateRedirectObjectsForPermanentRedirects {
			rules = append(rules, buildRules(opts, permanent)...)
		}

		if opts.MaxRoutingRules > 0 && len(rules) > opts.MaxRoutingRules {
			return nil, fmt.Errorf("%w: %d provided, the website configuration allows %d; "+
				"try generateRedirectObjectsForPermanentRedirects",
				ErrTooManyRoutingRules, len(rules), opts.MaxRoutingRules)
		}
		set.RoutingRules = rules
	}

	if opts.GenerateRedirectObjectsForPermanentRedirects {
		for _, r := range permanent {
			set.RedirectObjects = append(set.RedirectObjects, artifacts.RedirectObject{FromPath: r.FromPath, ToPath: r.ToPath})
		}
	}
	if opts.GenerateIndexPageForRedirect && home != nil {
		set.RedirectObjects = append(set.RedirectObjects, artifacts.RedirectObject{FromPath: "/index.html", ToPath: home.ToPath})
	}

	if opts.MergeCachingParams {
		set.Params = append(set.Params, CachingParams(opts.BucketPrefix)...)
	}
	set.Params = append(set.Params, opts.Params...)

	slog.Debug("routing projected",
		"routingRules", len(set.RoutingRules),
		"redirectObjects", len(set.RedirectObjects),
		"params", len(set.Params),
	)
	return set, nil
}

// dedupeRedirects keeps the last declaration for each fromPath, in first-seen position.
func dedupeRedirects(in []Redirect, strict bool) ([]Redirect, error) {
	index := make(map[string]int, len(in))
	out := make([]Redirect, 0, len(in))
	for _, r := range in {
		i, seen := index[r.FromPath]
		if !seen {
			index[r.FromPath] = len(out)
			out = append(out, r)
			continue
		}
		if strict {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRedirect, r.FromPath)
		}
		slog.Warn("duplicate redirect, last declaration wins", "fromPath", r.FromPath, "toPath", r.ToPath, "replaced", out[i].ToPath)
		out[i] = r
	}
	return out, nil
}

func matchPathRewrites(pages []Page) []Redirect {
	var out []Redirect
	for _, p := range pages {
		if p.MatchPath == "" {
			continue
		}
		from := strings.TrimSuffix(p.MatchPath, "*")
		if from == p.Path {
			continue
		}
		out = append(out, Redirect{FromPath: from, ToPath: p.Path})
	}
	return out
}

func buildRules(opts Options, redirects []Redirect) []artifacts.RoutingRule {
	var rules []artifacts.RoutingRule
	for _, r := range redirects {
		rule := artifacts.RoutingRule{
			Condition: artifacts.RoutingRuleCondition{KeyPrefixEquals: withoutLeadingSlash(r.FromPath)},
			Redirect:  buildRedirect(opts, r),
		}
		// a target under its own prefix would match again on every hop
		if strings.HasPrefix(rule.Redirect.ReplaceKeyWith, rule.Condition.KeyPrefixEquals) {
			slog.Debug("skipping self-matching routing rule", "fromPath", r.FromPath, "toPath", r.ToPath)
			continue
		}
		rules = append(rules, rule)
	}
	return rules
}

func buildRedirect(opts Options, r Redirect) artifacts.RoutingRuleRedirect {
	code := "302"
	if r.IsPermanent {
		code = "301"
	}

	if strings.Index(r.ToPath, "://") > 0 {
		if u, err := url.Parse(r.ToPath); err == nil && u.Host != "" {
			origin := u.Scheme + "://" + u.Host
			return artifacts.RoutingRuleRedirect{
				ReplaceKeyWith:   withoutTrailingSlash(withoutLeadingSlash(strings.TrimPrefix(u.String(), origin))),
				HttpRedirectCode: code,
				Protocol:         u.Scheme,
				HostName:         u.Hostname(),
			}
		}
	}

	return artifacts.RoutingRuleRedirect{
		ReplaceKeyWith:   withoutTrailingSlash(withoutLeadingSlash(r.ToPath)),
		HttpRedirectCode: code,
		Protocol:         opts.Protocol,
		HostName:         opts.Hostname,
	}
}

func withoutLeadingSlash(s string) string {
	return strings.TrimPrefix(s, "/")
}

func withoutTrailingSlash(s string) string {
	return strings.TrimSuffix(s, "/")
}
