package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/sitedeploy/internal/artifacts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func validConfig() *Config {
	return &Config{
		BucketName:      "my-site.example",
		ACL:             DefaultACL,
		MaxRetries:      DefaultMaxRetries,
		ParallelLimit:   DefaultParallelLimit,
		PartSizeMB:      DefaultPartSizeMB,
		DeleteBatchSize: DefaultDeleteBatchSize,
		MaxRoutingRules: DefaultMaxRoutingRules,
		SourceDir:       DefaultSourceDir,
		ArtifactsDir:    artifacts.DefaultDir,
	}
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, DefaultACL, cfg.ACL)
	assert.Equal(t, DefaultParallelLimit, cfg.ParallelLimit)
	assert.Equal(t, DefaultDeleteBatchSize, cfg.DeleteBatchSize)
	assert.Equal(t, DefaultMaxRoutingRules, cfg.MaxRoutingRules)
	assert.Equal(t, DefaultSourceDir, cfg.SourceDir)
	assert.True(t, cfg.RemoveNonexistentObjects)
	assert.True(t, cfg.GenerateRoutingRules)
	assert.False(t, cfg.StrictRedirects)
	assert.Empty(t, cfg.Path)
	assert.Equal(t, int64(64*1024*1024), cfg.PartSize())
}

func TestLoad_ArtifactsDirConfigAndOrderedParams(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.MkdirAll(artifacts.DefaultDir, 0o755))

	doc := `{
		"bucketName": "example-bucket",
		"bucketPrefix": "site",
		"retainObjectsPatterns": ["keep/**"],
		"fixedRetryDelay": 250,
		"params": {
			"**/*.html": {"CacheControl": "public, max-age=0, must-revalidate"},
			"assets/**": {"CacheControl": "immutable", "x-team": "web"},
			"**/*.js":   {"CacheControl": "public, max-age=60"}
		}
	}`
	path := filepath.Join(artifacts.DefaultDir, artifacts.ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "example-bucket", cfg.BucketName)
	assert.Equal(t, "site", cfg.BucketPrefix)
	assert.Equal(t, []string{"keep/**"}, cfg.RetainObjectsPatterns)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay())

	require.Len(t, cfg.Params, 3)
	assert.Equal(t, "**/*.html", cfg.Params[0].Pattern)
	assert.Equal(t, "assets/**", cfg.Params[1].Pattern)
	assert.Equal(t, "**/*.js", cfg.Params[2].Pattern)
	assert.Equal(t, "web", cfg.Params[1].Params["x-team"], "param names keep their case")
}

func TestLoad_YAMLListParamsAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SITEDEPLOY_BUCKETNAME", "from-env")
	t.Setenv("SITEDEPLOY_PARALLELLIMIT", "4")

	doc := `
bucketName: from-file
acl: none
params:
  - pattern: "**/*.css"
    params:
      CacheControl: max-age=1
`
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.BucketName)
	assert.Equal(t, 4, cfg.ParallelLimit)
	assert.Equal(t, "", cfg.UploadACL())
	require.Len(t, cfg.Params, 1)
	assert.Equal(t, "max-age=1", cfg.Params[0].Params["CacheControl"])
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"missing bucket", func(c *Config) { c.BucketName = "" }, "bucketName"},
		{"bad bucket", func(c *Config) { c.BucketName = "Not_A_Bucket" }, "bucketName"},
		{"bad acl", func(c *Config) { c.ACL = "world-writable" }, "acl"},
		{"half credentials", func(c *Config) { c.AccessKeyID = "AKIA" }, "accessKeyId"},
		{"protocol without hostname", func(c *Config) { c.Protocol = "https" }, "hostname"},
		{"bad protocol", func(c *Config) { c.Protocol = "ftp"; c.Hostname = "example.com" }, "protocol"},
		{"zero parallel", func(c *Config) { c.ParallelLimit = 0 }, "parallelLimit"},
		{"tiny parts", func(c *Config) { c.PartSizeMB = 1 }, "partSizeMb"},
		{"huge batch", func(c *Config) { c.DeleteBatchSize = 1001 }, "deleteBatchSize"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "maxRetries"},
		{"bad retain glob", func(c *Config) { c.RetainObjectsPatterns = []string{"keep/[a"} }, "retainObjectsPatterns"},
		{"bad params glob", func(c *Config) {
			c.Params = artifacts.ParamRules{{Pattern: "a/{b", Params: map[string]string{}}}
		}, "params"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestConfig_ValidateReportsAll(t *testing.T) {
	cfg := validConfig()
	cfg.BucketName = ""
	cfg.ParallelLimit = 0
	cfg.DeleteBatchSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucketName")
	assert.Contains(t, err.Error(), "parallelLimit")
	assert.Contains(t, err.Error(), "deleteBatchSize")
}
