package embedding

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"chapter-tutor/internal/config"
	"chapter-tutor/internal/models"
)

// RetryPolicy bounds repeated attempts against the rate-limited embedding
// service: exponential backoff from BaseDelay, capped at MaxDelay in
// total, at most Attempts retries, one Timeout per attempt.
type RetryPolicy struct {
	Attempts  uint64
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Timeout   time.Duration
}

func PolicyFromConfig(rc *config.RetryConfig, timeout time.Duration) RetryPolicy {
	return RetryPolicy{
		Attempts:  uint64(rc.Attempts),
		BaseDelay: time.Duration(rc.BaseDelay),
		MaxDelay:  time.Duration(rc.MaxDelay),
		Timeout:   timeout,
	}
}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.BaseDelay)
	if p.MaxDelay > 0 {
		b = retry.WithMaxDuration(p.MaxDelay, b)
	}
	return retry.WithMaxRetries(p.Attempts, b)
}

// EmbedWithRetry embeds one text, retrying on service failure and timeout.
// A final failure surfaces as a *ServiceError so callers can drop the
// offending chunk and keep going.
func EmbedWithRetry(ctx context.Context, client Client, text string, p RetryPolicy) ([]float32, error) {
	var vector []float32
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		callCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		v, err := client.EmbedQuery(callCtx, text)
		if err != nil {
			return retry.RetryableError(err)
		}
		vector = v
		return nil
	})
	if err != nil {
		return nil, &models.ServiceError{Op: "embed", Err: err}
	}
	return vector, nil
}
