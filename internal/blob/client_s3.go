package blob

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go/middleware"
	"github.com/openmined/sitedeploy/internal/version"
)

const defaultConnectTimeout = 30 * time.Second

type BlobClient struct {
	s3Client *s3.Client
	uploader *manager.Uploader
	config   *S3BlobConfig
}

func NewBlobClient(s3Client *s3.Client, cfg *S3BlobConfig) *BlobClient {
	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		if cfg.PartSize >= manager.MinUploadPartSize {
			u.PartSize = cfg.PartSize
		}
	})
	return &BlobClient{
		s3Client: s3Client,
		uploader: uploader,
		config:   cfg,
	}
}

// NewBlobClientWithS3Config resolves credentials, retry and transport settings and
// returns a client bound to cfg.BucketName.
func NewBlobClientWithS3Config(ctx context.Context, cfg *S3BlobConfig) (*BlobClient, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	awsClient := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint))
			o.UsePathStyle = true
		}
	})

	return NewBlobClient(awsClient, cfg), nil
}

// LoadAWSConfig builds the shared AWS configuration: credentials, retryer, transport
// timeouts and app id. Other AWS clients of a deploy reuse it.
func LoadAWSConfig(ctx context.Context, cfg *S3BlobConfig) (aws.Config, error) {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	// a buildable client lets the SDK add a CA bundle from AWS_CA_BUNDLE or the profile
	httpClient := awshttp.NewBuildableClient().
		// zero means no per request timeout
		WithTimeout(cfg.Timeout).
		WithDialerOptions(func(d *net.Dialer) {
			d.Timeout = connectTimeout
			d.KeepAlive = 30 * time.Second
		}).
		WithTransportOptions(func(tr *http.Transport) {
			tr.Proxy = http.ProxyFromEnvironment
			tr.MaxIdleConns = 200
			tr.MaxIdleConnsPerHost = 100
			tr.IdleConnTimeout = 90 * time.Second
			tr.TLSHandshakeTimeout = 10 * time.Second
			tr.ExpectContinueTimeout = 1 * time.Second
			tr.ForceAttemptHTTP2 = true
		})

	opts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
		config.WithRetryer(newRetryer(cfg)),
	}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	} else if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AppID != "" {
		opts = append(opts, config.WithAppID(cfg.AppID))
	}
	apiOptions := []func(*middleware.Stack) error{
		awsmiddleware.AddUserAgentKeyValue(version.AppName, version.Version),
	}
	if cfg.UserAgent != "" {
		apiOptions = append(apiOptions, awsmiddleware.AddUserAgentKey(cfg.UserAgent))
	}
	opts = append(opts, config.WithAPIOptions(apiOptions))

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("%w: load aws config: %w", ErrSetup, err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = defaultRegion
	}
	return awsCfg, nil
}

// WithRegion returns a client for the same bucket that signs requests for region.
func (s *BlobClient) WithRegion(region string) *BlobClient {
	if region == "" || region == s.s3Client.Options().Region {
		return s
	}
	cfg := *s.config
	cfg.Region = region
	client := s3.New(s.s3Client.Options(), func(o *s3.Options) {
		o.Region = region
	})
	return NewBlobClient(client, &cfg)
}

func (s *BlobClient) Region() string {
	return s.s3Client.Options().Region
}

func (s *BlobClient) Bucket() string {
	return s.config.BucketName
}

// ===================================================================================================

// PutObject uploads params.Body. Bodies larger than the part size go through a multipart upload.
func (s *BlobClient) PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error) {
	input := putObjectInput(s.config.BucketName, params)
	resp, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return nil, err
	}

	return &PutObjectResponse{
		Key:     params.Key,
		Size:    params.Size,
		Version: aws.ToString(resp.VersionID),
		ETag:    aws.ToString(resp.ETag),
	}, nil
}

// ===================================================================================================

// DeleteObjects removes keys in one request. Callers keep batches within the store limit.
func (s *BlobClient) DeleteObjects(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	objects := make([]types.ObjectIdentifier, len(keys))
	for i := range keys {
		objects[i] = types.ObjectIdentifier{Key: aws.String(keys[i])}
	}

	resp, err := s.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: &s.config.BucketName,
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return err
	}

	if len(resp.Errors) > 0 {
		failed := make([]DeleteError, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			failed = append(failed, DeleteError{
				Key:     aws.ToString(e.Key),
				Code:    aws.ToString(e.Code),
				Message: aws.ToString(e.Message),
			})
		}
		return &DeleteObjectsError{Errors: failed}
	}

	slog.Debug("delete objects", "bucket", s.config.BucketName, "count", len(keys))
	return nil
}

// ===================================================================================================

// ListObjects returns every object under prefix, following continuation tokens to the end.
func (s *BlobClient) ListObjects(ctx context.Context, prefix string) ([]*BlobInfo, error) {
	var objects []*BlobInfo

	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: &s.config.BucketName,
		Prefix: optional(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			info := &BlobInfo{
				Key:  aws.ToString(obj.Key),
				ETag: aws.ToString(obj.ETag),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.LastModified = obj.LastModified.Format(time.RFC3339)
			}
			objects = append(objects, info)
		}
	}

	return objects, nil
}

func putObjectInput(bucket string, params *PutObjectParams) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket:                  aws.String(bucket),
		Key:                     aws.String(params.Key),
		Body:                    params.Body,
		ContentType:             optional(params.ContentType),
		CacheControl:            optional(params.CacheControl),
		ContentEncoding:         optional(params.ContentEncoding),
		ContentDisposition:      optional(params.ContentDisposition),
		ContentLanguage:         optional(params.ContentLanguage),
		WebsiteRedirectLocation: optional(params.WebsiteRedirectLocation),
		ACL:                     types.ObjectCannedACL(params.ACL),
		ServerSideEncryption:    types.ServerSideEncryption(params.ServerSideEncryption),
		StorageClass:            types.StorageClass(params.StorageClass),
	}
	if len(params.Metadata) > 0 {
		input.Metadata = params.Metadata
	}
	return input
}

// ===================================================================================================

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

// endpointURL accepts a bare hostname as well as a full URL.
func endpointURL(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "https://" + endpoint
}

// check if BlobClient implements IBlobClient interface
var _ IBlobClient = (*BlobClient)(nil)
