package sync

import (
	"testing"

	"github.com/openmined/sitedeploy/internal/artifacts"
	"github.com/stretchr/testify/assert"
)

func TestParamResolver_Resolve(t *testing.T) {
	resolver := NewParamResolver(artifacts.ParamRules{
		{Pattern: "**/*.html", Params: map[string]string{"CacheControl": "public, max-age=0, must-revalidate"}},
		{Pattern: "static/**", Params: map[string]string{"CacheControl": "public, max-age=31536000, immutable"}},
		{Pattern: "static/legacy/**", Params: map[string]string{"cachecontrol": "no-store", "ContentEncoding": "gzip"}},
		{Pattern: "downloads/*.zip", Params: map[string]string{
			"ContentDisposition": "attachment",
			"StorageClass":       "STANDARD_IA",
			"ACL":                "private",
			"x-build":            "42",
		}},
	})

	html := resolver.Resolve("about/index.html")
	assert.Equal(t, "public, max-age=0, must-revalidate", html.CacheControl)
	assert.Empty(t, html.Metadata)

	legacy := resolver.Resolve("static/legacy/app.js")
	assert.Equal(t, "no-store", legacy.CacheControl, "later rules win")
	assert.Equal(t, "gzip", legacy.ContentEncoding)

	zip := resolver.Resolve("downloads/site.zip")
	assert.Equal(t, "attachment", zip.ContentDisposition)
	assert.Equal(t, "STANDARD_IA", zip.StorageClass)
	assert.Equal(t, "private", zip.ACL)
	assert.Equal(t, map[string]string{"x-build": "42"}, zip.Metadata)

	none := resolver.Resolve("robots.txt")
	assert.Equal(t, Headers{}, none)
}

func TestParamResolver_NestedMetadataIgnored(t *testing.T) {
	resolver := NewParamResolver(artifacts.ParamRules{
		{Pattern: "**", Params: map[string]string{"Metadata": "x=1"}},
	})
	assert.Equal(t, Headers{}, resolver.Resolve("index.html"))
}

func TestUploadTask_PutParams(t *testing.T) {
	task := &UploadTask{
		Key:              "old/index.html",
		Size:             24,
		IsRedirect:       true,
		RedirectLocation: "https://example.com/new/",
		ContentType:      "application/octet-stream",
		ACL:              "public-read",
		Headers: Headers{
			CacheControl: "no-cache",
			Metadata:     map[string]string{"x-owner": "web"},
		},
	}

	params := task.putParams()
	assert.Equal(t, "old/index.html", params.Key)
	assert.Equal(t, int64(24), params.Size)
	assert.Equal(t, "public-read", params.ACL)
	assert.Equal(t, "application/octet-stream", params.ContentType)
	assert.Equal(t, "https://example.com/new/", params.WebsiteRedirectLocation)
	assert.Equal(t, "no-cache", params.CacheControl)
	assert.Equal(t, map[string]string{"x-owner": "web"}, params.Metadata)

	task.Headers.ACL = "private"
	task.Headers.ContentType = "text/plain"
	task.Headers.WebsiteRedirectLocation = "/elsewhere"
	params = task.putParams()
	assert.Equal(t, "private", params.ACL)
	assert.Equal(t, "text/plain", params.ContentType)
	assert.Equal(t, "/elsewhere", params.WebsiteRedirectLocation)
}
