package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	json "github.com/goccy/go-json"
	"github.com/openmined/sitedeploy/internal/artifacts"
)

const (
	defaultRegion = "us-east-1"

	IndexDocument = "index.html"
	ErrorDocument = "404.html"
)

var ErrSetup = errors.New("bucket setup failed")

// regions that still use the legacy dash form of the website endpoint
var dashWebsiteRegions = []string{
	"us-east-1",
	"us-west-1",
	"us-west-2",
	"ap-southeast-1",
	"ap-southeast-2",
	"ap-northeast-1",
	"eu-west-1",
	"sa-east-1",
	"us-gov-west-1",
}

type BucketState struct {
	Exists bool
	Region string
}

type ProvisionOptions struct {
	Exists         bool
	Region         string
	WebsiteHosting bool
	// PublicRead attaches a public GetObject bucket policy to a newly created bucket.
	PublicRead   bool
	RoutingRules []artifacts.RoutingRule
}

// BucketInfo reports whether the bucket exists and where it lives. A missing bucket is
// not an error.
func (s *BlobClient) BucketInfo(ctx context.Context) (*BucketState, error) {
	resp, err := s.s3Client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{
		Bucket: &s.config.BucketName,
	})
	if err != nil {
		if isNoSuchBucket(err) {
			return &BucketState{Exists: false, Region: s.fallbackRegion()}, nil
		}
		return nil, fmt.Errorf("%w: get bucket location: %w", ErrSetup, err)
	}

	region := string(resp.LocationConstraint)
	switch region {
	case "":
		region = s.fallbackRegion()
	case string(types.BucketLocationConstraintEu):
		region = "eu-west-1"
	}
	return &BucketState{Exists: true, Region: region}, nil
}

// Provision creates the bucket when missing and applies the website configuration.
func (s *BlobClient) Provision(ctx context.Context, opts ProvisionOptions) error {
	bucket := s.config.BucketName

	if !opts.Exists {
		input := &s3.CreateBucketInput{
			Bucket:          &bucket,
			ObjectOwnership: types.ObjectOwnershipBucketOwnerPreferred,
		}
		// us-east-1 is the implicit location and rejects an explicit constraint
		if opts.Region != "" && opts.Region != defaultRegion {
			input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
				LocationConstraint: types.BucketLocationConstraint(opts.Region),
			}
		}
		if _, err := s.s3Client.CreateBucket(ctx, input); err != nil {
			return fmt.Errorf("%w: create bucket: %w", ErrSetup, err)
		}
		slog.Info("bucket created", "bucket", bucket, "region", opts.Region)

		if opts.WebsiteHosting {
			if _, err := s.s3Client.DeletePublicAccessBlock(ctx, &s3.DeletePublicAccessBlockInput{Bucket: &bucket}); err != nil {
				return fmt.Errorf("%w: delete public access block: %w", ErrSetup, err)
			}
		}

		if opts.PublicRead {
			policy, err := PublicReadPolicy(bucket)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrSetup, err)
			}
			if _, err := s.s3Client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
				Bucket: &bucket,
				Policy: aws.String(policy),
			}); err != nil {
				return fmt.Errorf("%w: put bucket policy: %w", ErrSetup, err)
			}
		}
	}

	if opts.WebsiteHosting {
		if _, err := s.s3Client.PutBucketWebsite(ctx, &s3.PutBucketWebsiteInput{
			Bucket:               &bucket,
			WebsiteConfiguration: WebsiteConfiguration(opts.RoutingRules),
		}); err != nil {
			return fmt.Errorf("%w: put bucket website: %w", ErrSetup, err)
		}
		slog.Debug("bucket website configured", "bucket", bucket, "routingRules", len(opts.RoutingRules))
	}

	return nil
}

func (s *BlobClient) fallbackRegion() string {
	if s.config.Region != "" {
		return s.config.Region
	}
	if r := s.s3Client.Options().Region; r != "" {
		return r
	}
	return defaultRegion
}

func isNoSuchBucket(err error) bool {
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket"
}

// ===================================================================================================

// WebsiteConfiguration builds the index/error documents and routing rules for the bucket.
func WebsiteConfiguration(rules []artifacts.RoutingRule) *types.WebsiteConfiguration {
	website := &types.WebsiteConfiguration{
		IndexDocument: &types.IndexDocument{Suffix: aws.String(IndexDocument)},
		ErrorDocument: &types.ErrorDocument{Key: aws.String(ErrorDocument)},
	}
	for _, rule := range rules {
		website.RoutingRules = append(website.RoutingRules, types.RoutingRule{
			Condition: &types.Condition{
				KeyPrefixEquals:             optional(rule.Condition.KeyPrefixEquals),
				HttpErrorCodeReturnedEquals: optional(rule.Condition.HttpErrorCodeReturnedEquals),
			},
			Redirect: &types.Redirect{
				ReplaceKeyWith:       optional(rule.Redirect.ReplaceKeyWith),
				ReplaceKeyPrefixWith: optional(rule.Redirect.ReplaceKeyPrefixWith),
				HttpRedirectCode:     optional(rule.Redirect.HttpRedirectCode),
				Protocol:             types.Protocol(rule.Redirect.Protocol),
				HostName:             optional(rule.Redirect.HostName),
			},
		})
	}
	return website
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Sid       string   `json:"Sid"`
	Effect    string   `json:"Effect"`
	Principal string   `json:"Principal"`
	Action    []string `json:"Action"`
	Resource  []string `json:"Resource"`
}

// PublicReadPolicy allows anonymous GetObject on every key in bucket.
func PublicReadPolicy(bucket string) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{{
			Sid:       "PublicReadGetObject",
			Effect:    "Allow",
			Principal: "*",
			Action:    []string{"s3:GetObject"},
			Resource:  []string{fmt.Sprintf("arn:aws:s3:::%s/*", bucket)},
		}},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode bucket policy: %w", err)
	}
	return string(data), nil
}

// WebsiteURL is the public website endpoint of bucket in region.
func WebsiteURL(bucket, region string) string {
	if region == "" {
		region = defaultRegion
	}
	domain := "s3-website." + region + ".amazonaws.com"
	if slices.Contains(dashWebsiteRegions, region) {
		domain = "s3-website-" + region + ".amazonaws.com"
	}
	return "http://" + bucket + "." + domain
}
