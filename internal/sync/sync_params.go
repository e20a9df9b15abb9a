package sync

import (
	"log/slog"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/sitedeploy/internal/artifacts"
	"github.com/openmined/sitedeploy/internal/blob"
)

// Headers are the per object put parameters resolved from ParamRules.
type Headers struct {
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

// set assigns a named parameter. Names are matched case insensitively; unknown names
// become user metadata.
func (h *Headers) set(name, value string) {
	switch strings.ToLower(name) {
	case "acl":
		h.ACL = value
	case "contenttype":
		h.ContentType = value
	case "cachecontrol":
		h.CacheControl = value
	case "contentencoding":
		h.ContentEncoding = value
	case "contentdisposition":
		h.ContentDisposition = value
	case "contentlanguage":
		h.ContentLanguage = value
	case "serversideencryption":
		h.ServerSideEncryption = value
	case "storageclass":
		h.StorageClass = value
	case "websiteredirectlocation":
		h.WebsiteRedirectLocation = value
	case "metadata":
		slog.Warn("params: nested Metadata is not supported, use top level names", "value", value)
	default:
		if h.Metadata == nil {
			h.Metadata = make(map[string]string)
		}
		h.Metadata[name] = value
	}
}

// ParamResolver applies ordered glob rules to keys.
type ParamResolver struct {
	rules artifacts.ParamRules
}

func NewParamResolver(rules artifacts.ParamRules) *ParamResolver {
	return &ParamResolver{rules: rules}
}

// Resolve merges the params of every rule matching key. Later rules win per parameter.
func (p *ParamResolver) Resolve(key string) Headers {
	var h Headers
	for _, rule := range p.rules {
		if !doublestar.MatchUnvalidated(rule.Pattern, key) {
			continue
		}
		for name, value := range rule.Params {
			h.set(name, value)
		}
	}
	return h
}

// putParams builds the store request for a task. Resolved params override the defaults
// the task carries.
func (t *UploadTask) putParams() *blob.PutObjectParams {
	params := &blob.PutObjectParams{
		Key:                     t.Key,
		Size:                    t.Size,
		ACL:                     t.ACL,
		ContentType:             t.ContentType,
		WebsiteRedirectLocation: t.RedirectLocation,
		CacheControl:            t.Headers.CacheControl,
		ContentEncoding:         t.Headers.ContentEncoding,
		ContentDisposition:      t.Headers.ContentDisposition,
		ContentLanguage:         t.Headers.ContentLanguage,
		ServerSideEncryption:    t.Headers.ServerSideEncryption,
		StorageClass:            t.Headers.StorageClass,
		Metadata:                t.Headers.Metadata,
	}
	if t.Headers.ACL != "" {
		params.ACL = t.Headers.ACL
	}
	if t.Headers.ContentType != "" {
		params.ContentType = t.Headers.ContentType
	}
	if t.Headers.WebsiteRedirectLocation != "" {
		params.WebsiteRedirectLocation = t.Headers.WebsiteRedirectLocation
	}
	return params
}
