package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/sitedeploy/internal/artifacts"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "SITEDEPLOY"

	DefaultSourceDir       = "public"
	DefaultACL             = "public-read"
	DefaultParallelLimit   = 20
	DefaultPartSizeMB      = 64
	DefaultDeleteBatchSize = 1000
	DefaultMaxRetries      = 2
	DefaultMaxRoutingRules = 50
	DefaultRegion          = "us-east-1"

	// ACLNone disables the ACL header on uploads, for buckets that enforce object ownership.
	ACLNone = "none"

	maxDeleteBatchSize = 1000
	minPartSizeMB      = 5
)

var cannedACLs = []string{
	"private",
	"public-read",
	"public-read-write",
	"authenticated-read",
	"aws-exec-read",
	"bucket-owner-read",
	"bucket-owner-full-control",
	ACLNone,
}

var bucketNameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9.\-]{1,61}[a-z0-9]$`)

// Config is the resolved deploy configuration. It is built once per invocation and not
// mutated afterwards.
type Config struct {
	// Store
	BucketName                string `mapstructure:"bucketName"`
	BucketPrefix              string `mapstructure:"bucketPrefix"`
	Region                    string `mapstructure:"region"`
	CustomAwsEndpointHostname string `mapstructure:"customAwsEndpointHostname"`
	Profile                   string `mapstructure:"profile"`
	AccessKeyID               string `mapstructure:"accessKeyId"`
	SecretAccessKey           string `mapstructure:"secretAccessKey"`

	// Uploads
	ACL             string               `mapstructure:"acl"`
	Params          artifacts.ParamRules `mapstructure:"-"`
	MaxRetries      int                  `mapstructure:"maxRetries"`
	FixedRetryDelay int                  `mapstructure:"fixedRetryDelay"`
	Timeout         int                  `mapstructure:"timeout"`
	ConnectTimeout  int                  `mapstructure:"connectTimeout"`
	ParallelLimit   int                  `mapstructure:"parallelLimit"`
	PartSizeMB      int                  `mapstructure:"partSizeMb"`

	// Reconciliation
	RemoveNonexistentObjects bool     `mapstructure:"removeNonexistentObjects"`
	RetainObjectsPatterns    []string `mapstructure:"retainObjectsPatterns"`
	DeleteBatchSize          int      `mapstructure:"deleteBatchSize"`

	// Website & routing
	EnableS3StaticWebsiteHosting                 bool   `mapstructure:"enableS3StaticWebsiteHosting"`
	Protocol                                     string `mapstructure:"protocol"`
	Hostname                                     string `mapstructure:"hostname"`
	GenerateRoutingRules                         bool   `mapstructure:"generateRoutingRules"`
	GenerateRedirectObjectsForPermanentRedirects bool   `mapstructure:"generateRedirectObjectsForPermanentRedirects"`
	GenerateIndexPageForRedirect                 bool   `mapstructure:"generateIndexPageForRedirect"`
	GenerateMatchPathRewrites                    bool   `mapstructure:"generateMatchPathRewrites"`
	MergeCachingParams                           bool   `mapstructure:"mergeCachingParams"`
	StrictRedirects                              bool   `mapstructure:"strictRedirects"`
	MaxRoutingRules                              int    `mapstructure:"maxRoutingRules"`
	RoutesFile                                   string `mapstructure:"routesFile"`

	// Local
	SourceDir    string   `mapstructure:"sourceDir"`
	ArtifactsDir string   `mapstructure:"artifactsDir"`
	Ignore       []string `mapstructure:"ignore"`

	NotifyTopicArn string `mapstructure:"notifyTopicArn"`
	Verbose        bool   `mapstructure:"verbose"`

	// Path of the config file that was read, if any.
	Path string `mapstructure:"-"`
}

// ValidationError is a single invalid configuration field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Msg)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// SetDefaults registers every known key so env overrides apply to all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("bucketName", "")
	v.SetDefault("bucketPrefix", "")
	v.SetDefault("region", "")
	v.SetDefault("customAwsEndpointHostname", "")
	v.SetDefault("profile", "")
	v.SetDefault("accessKeyId", "")
	v.SetDefault("secretAccessKey", "")

	v.SetDefault("acl", DefaultACL)
	v.SetDefault("maxRetries", DefaultMaxRetries)
	v.SetDefault("fixedRetryDelay", 0)
	v.SetDefault("timeout", 0)
	v.SetDefault("connectTimeout", 0)
	v.SetDefault("parallelLimit", DefaultParallelLimit)
	v.SetDefault("partSizeMb", DefaultPartSizeMB)

	v.SetDefault("removeNonexistentObjects", true)
	v.SetDefault("retainObjectsPatterns", []string{})
	v.SetDefault("deleteBatchSize", DefaultDeleteBatchSize)

	v.SetDefault("enableS3StaticWebsiteHosting", true)
	v.SetDefault("protocol", "")
	v.SetDefault("hostname", "")
	v.SetDefault("generateRoutingRules", true)
	v.SetDefault("generateRedirectObjectsForPermanentRedirects", false)
	v.SetDefault("generateIndexPageForRedirect", true)
	v.SetDefault("generateMatchPathRewrites", true)
	v.SetDefault("mergeCachingParams", true)
	v.SetDefault("strictRedirects", false)
	v.SetDefault("maxRoutingRules", DefaultMaxRoutingRules)
	v.SetDefault("routesFile", "")

	v.SetDefault("sourceDir", DefaultSourceDir)
	v.SetDefault("artifactsDir", artifacts.DefaultDir)
	v.SetDefault("ignore", []string{})

	v.SetDefault("notifyTopicArn", "")
	v.SetDefault("verbose", false)
}

// New returns a viper instance with defaults and SITEDEPLOY_* env overrides.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// Load resolves the configuration. An explicit path must exist; without one the
// artifacts dir is checked for s3.config.json and a missing file is fine.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		candidate := filepath.Join(v.GetString("artifactsDir"), artifacts.ConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("json")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, invalid("file", "read '%s': %v", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, invalid("file", "decode: %v", err)
	}

	if path != "" {
		params, err := paramsFromFile(path)
		if err != nil {
			return nil, invalid("params", "%v", err)
		}
		cfg.Params = params
		cfg.Path = path
	}

	return &cfg, nil
}

// paramsFromFile re-reads the params key straight from the document. Viper decodes
// objects into maps, which would lose declaration order.
func paramsFromFile(path string) (artifacts.ParamRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Params yaml.Node `yaml:"params"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Params.Kind == 0 {
		return nil, nil
	}
	return artifacts.ParamRulesFromNode(&doc.Params)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.BucketName == "" {
		errs = append(errs, invalid("bucketName", "is required"))
	} else if !bucketNameRE.MatchString(c.BucketName) || strings.Contains(c.BucketName, "..") {
		errs = append(errs, invalid("bucketName", "'%s' is not a valid bucket name", c.BucketName))
	}

	if c.ACL == "" || !slices.Contains(cannedACLs, c.ACL) {
		errs = append(errs, invalid("acl", "'%s' must be one of %s", c.ACL, strings.Join(cannedACLs, ", ")))
	}

	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		errs = append(errs, invalid("accessKeyId", "accessKeyId and secretAccessKey must be set together"))
	}

	if (c.Protocol == "") != (c.Hostname == "") {
		errs = append(errs, invalid("hostname", "protocol and hostname must be set together"))
	}
	if c.Protocol != "" && c.Protocol != "http" && c.Protocol != "https" {
		errs = append(errs, invalid("protocol", "'%s' must be http or https", c.Protocol))
	}

	if c.MaxRetries < 0 {
		errs = append(errs, invalid("maxRetries", "must not be negative"))
	}
	if c.FixedRetryDelay < 0 {
		errs = append(errs, invalid("fixedRetryDelay", "must not be negative"))
	}
	if c.Timeout < 0 {
		errs = append(errs, invalid("timeout", "must not be negative"))
	}
	if c.ConnectTimeout < 0 {
		errs = append(errs, invalid("connectTimeout", "must not be negative"))
	}
	if c.ParallelLimit < 1 {
		errs = append(errs, invalid("parallelLimit", "must be at least 1"))
	}
	if c.PartSizeMB < minPartSizeMB {
		errs = append(errs, invalid("partSizeMb", "must be at least %d", minPartSizeMB))
	}
	if c.DeleteBatchSize < 1 || c.DeleteBatchSize > maxDeleteBatchSize {
		errs = append(errs, invalid("deleteBatchSize", "must be between 1 and %d", maxDeleteBatchSize))
	}
	if c.MaxRoutingRules < 0 {
		errs = append(errs, invalid("maxRoutingRules", "must not be negative"))
	}

	for _, pattern := range c.RetainObjectsPatterns {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, invalid("retainObjectsPatterns", "bad glob '%s'", pattern))
		}
	}
	for _, rule := range c.Params {
		if !doublestar.ValidatePattern(rule.Pattern) {
			errs = append(errs, invalid("params", "bad glob '%s'", rule.Pattern))
		}
	}

	if c.SourceDir == "" {
		errs = append(errs, invalid("sourceDir", "is required"))
	}
	if c.ArtifactsDir == "" {
		errs = append(errs, invalid("artifactsDir", "is required"))
	}

	return errors.Join(errs...)
}

// UploadACL returns the canned ACL to send, or "" when uploads carry no ACL.
func (c *Config) UploadACL() string {
	if c.ACL == ACLNone {
		return ""
	}
	return c.ACL
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Millisecond
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.FixedRetryDelay) * time.Millisecond
}

func (c *Config) PartSize() int64 {
	return int64(c.PartSizeMB) * 1024 * 1024
}
