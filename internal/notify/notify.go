package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/openmined/sitedeploy/internal/sync"
)

// SNS rejects subjects over 100 characters.
const maxSubjectLen = 100

var ErrInvalidTopic = errors.New("invalid notify topic arn")

// SNSPublisher is the subset of *sns.Client the notifier uses.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSNotifier struct {
	Client SNSPublisher
	Topic  string
}

// NewSNSNotifier publishes to topicArn with the deploy's AWS configuration. The client
// is pinned to the topic's region, which may differ from the bucket's.
func NewSNSNotifier(awsCfg aws.Config, topicArn string) (*SNSNotifier, error) {
	parsed, err := arn.Parse(topicArn)
	if err != nil || parsed.Service != "sns" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, topicArn)
	}

	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if parsed.Region != "" {
			o.Region = parsed.Region
		}
	})
	return &SNSNotifier{Client: client, Topic: topicArn}, nil
}

// DeployReport is what a notification describes.
type DeployReport struct {
	RunID      string
	Bucket     string
	Prefix     string
	WebsiteURL string
	Result     *sync.SyncResult
	Err        error
	Finished   time.Time
}

func (r *DeployReport) subject() string {
	status := "succeeded"
	if r.Err != nil {
		status = "failed"
	}
	subject := fmt.Sprintf("Deploy %s: %s", status, r.Bucket)
	if len(subject) > maxSubjectLen {
		subject = subject[:maxSubjectLen]
	}
	return subject
}

func (r *DeployReport) body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\n", r.RunID)
	fmt.Fprintf(&b, "Bucket: %s\n", r.Bucket)
	if r.Prefix != "" {
		fmt.Fprintf(&b, "Prefix: %s\n", r.Prefix)
	}
	if r.WebsiteURL != "" {
		fmt.Fprintf(&b, "Website: %s\n", r.WebsiteURL)
	}
	if !r.Finished.IsZero() {
		fmt.Fprintf(&b, "Finished: %s\n", r.Finished.UTC().Format(time.RFC3339))
	}
	if res := r.Result; res != nil {
		fmt.Fprintf(&b, "Uploaded: %d\n", res.Uploaded)
		fmt.Fprintf(&b, "Redirects: %d\n", res.Redirects)
		fmt.Fprintf(&b, "Unchanged: %d\n", res.Unchanged)
		fmt.Fprintf(&b, "Deleted: %d\n", res.Deleted)
		fmt.Fprintf(&b, "Retained: %d\n", res.Retained)
		fmt.Fprintf(&b, "Duration: %s\n", res.Duration.Round(time.Millisecond))
	}
	if r.Err != nil {
		fmt.Fprintf(&b, "Error: %v\n", r.Err)
	}
	return b.String()
}

// NotifyDeploy publishes one message per deploy, success or failure.
func (s *SNSNotifier) NotifyDeploy(ctx context.Context, report *DeployReport) error {
	input := &sns.PublishInput{
		TopicArn: aws.String(s.Topic),
		Subject:  aws.String(report.subject()),
		Message:  aws.String(report.body()),
	}
	out, err := s.Client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", s.Topic, err)
	}
	slog.Debug("notify", "topic", s.Topic, "messageId", aws.ToString(out.MessageId))
	return nil
}
