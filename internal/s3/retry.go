package s3

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"

	"github.com/arencloud/s3audit/internal/config"
)

// newRetryer maps the configured policy onto the SDK's standard retryer.
// The attempt count is always bounded by p.MaxAttempts.
func newRetryer(p config.RetryPolicy) func() aws.Retryer {
	return func() aws.Retryer {
		if p.MaxAttempts <= 1 {
			return aws.NopRetryer{}
		}
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = p.MaxAttempts
			o.Backoff = backoffFor(p)
		})
	}
}

func backoffFor(p config.RetryPolicy) retry.BackoffDelayer {
	switch p.Backoff {
	case config.BackoffNone:
		return retry.BackoffDelayerFunc(func(int, error) (time.Duration, error) { return 0, nil })
	case config.BackoffConstant:
		d := p.Delay
		return retry.BackoffDelayerFunc(func(int, error) (time.Duration, error) { return d, nil })
	default:
		max := p.Delay
		if max <= 0 {
			max = retry.DefaultMaxBackoff
		}
		return retry.NewExponentialJitterBackoff(max)
	}
}
