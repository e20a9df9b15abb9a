package blob

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/ratelimit"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
)

// fixedBackoff waits the same delay before every retry attempt.
type fixedBackoff time.Duration

func (d fixedBackoff) BackoffDelay(int, error) (time.Duration, error) {
	return time.Duration(d), nil
}

// newRetryer retries throttling and transient errors up to MaxRetries times. Without a
// fixed delay the SDK's exponential jitter backoff applies. There is no client side retry
// quota, so a burst of parallel uploads cannot exhaust the retry budget.
func newRetryer(cfg *S3BlobConfig) func() aws.Retryer {
	return func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = cfg.MaxRetries + 1
			o.RateLimiter = ratelimit.None
			if cfg.RetryDelay > 0 {
				o.Backoff = fixedBackoff(cfg.RetryDelay)
			}
		})
	}
}
