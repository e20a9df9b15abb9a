package blob

import (
	"time"

	"github.com/openmined/sitedeploy/internal/config"
	"github.com/openmined/sitedeploy/internal/version"
)

type S3BlobConfig struct {
	BucketName string
	Region     string
	// Endpoint targets an S3 compatible store. Path style addressing is used when set.
	Endpoint  string
	Profile   string
	AccessKey string
	SecretKey string
	AppID     string
	// UserAgent is extra text appended to the SDK user agent.
	UserAgent string

	MaxRetries     int
	RetryDelay     time.Duration
	Timeout        time.Duration
	ConnectTimeout time.Duration
	PartSize       int64
}

// WithDeployConfig maps the deploy configuration onto the store client settings.
func WithDeployConfig(cfg *config.Config, userAgent string) *S3BlobConfig {
	return &S3BlobConfig{
		BucketName:     cfg.BucketName,
		Region:         cfg.Region,
		Endpoint:       cfg.CustomAwsEndpointHostname,
		Profile:        cfg.Profile,
		AccessKey:      cfg.AccessKeyID,
		SecretKey:      cfg.SecretAccessKey,
		AppID:          version.AppName,
		UserAgent:      userAgent,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay(),
		Timeout:        cfg.RequestTimeout(),
		ConnectTimeout: cfg.DialTimeout(),
		PartSize:       cfg.PartSize(),
	}
}

// WithMinioConfig creates a configuration for a local Minio bucket
func WithMinioConfig(url, bucketName, accessKey, secretKey string) *S3BlobConfig {
	return &S3BlobConfig{
		BucketName: bucketName,
		Endpoint:   url,
		Region:     config.DefaultRegion,
		AccessKey:  accessKey,
		SecretKey:  secretKey,
		MaxRetries: config.DefaultMaxRetries,
		PartSize:   config.DefaultPartSizeMB * 1024 * 1024,
	}
}
