// Package retry wraps cenkalti/backoff for calls to external APIs.
package retry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds the retries of one external call.
type Policy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Default is used for transcription, summarization and destination calls.
var Default = Policy{Attempts: 3, InitialInterval: 2 * time.Second, MaxInterval: 30 * time.Second}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, or the attempts are used up.
// notify, if set, is called before each wait.
func Do(ctx context.Context, p Policy, op func() error, notify func(err error, wait time.Duration)) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0
	var bo backoff.BackOff = backoff.WithMaxRetries(b, uint64(p.Attempts-1))
	bo = backoff.WithContext(bo, ctx)
	err := backoff.RetryNotify(op, bo, notify)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

// RetryableStatus reports whether an HTTP status is worth another attempt.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// Classify marks err permanent when it carries a non-retryable HTTP status.
// status is 0 when unknown; such errors (network, timeouts) stay retryable.
func Classify(err error, status int) error {
	if err == nil || status == 0 || RetryableStatus(status) {
		return err
	}
	return Permanent(err)
}
