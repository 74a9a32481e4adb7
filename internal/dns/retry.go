package dns

import (
	"errors"
	"time"

	"go_subdns/internal/dnstypes"
)

const (
	// DefaultMaxAttempts is the number of failures after which a job is failed
	DefaultMaxAttempts = 5
	// DefaultBaseDelay is multiplied by 2^attempts for the retry delay
	DefaultBaseDelay = 30 * time.Second
)

// RetryPolicy decides what happens to a job after a failed attempt
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy returns the production policy: 60s, 120s, 240s, 480s, then failed
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// Decision is the outcome of RetryPolicy.Decide
type Decision struct {
	Attempts  int        // attempts after counting this failure
	Terminal  bool       // job -> failed, record -> error
	NextRunAt *time.Time // set only when not terminal
	Message   string     // becomes job.error / record.last_error
}

// Decide counts the failure err and either schedules a retry or gives up.
//
// backoff = BaseDelay * 2^attempts' where attempts' = attempts + 1
// attempts' >= MaxAttempts is terminal. ErrStateDiverged is terminal at once.
func (p RetryPolicy) Decide(attempts int, err error, now time.Time) Decision {
	next := attempts + 1
	d := Decision{Attempts: next, Message: errorMessage(err)}

	if !retryable(err) || next >= p.maxAttempts() {
		d.Terminal = true
		return d
	}

	at := now.Add(p.delay(next))
	d.NextRunAt = &at
	return d
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p RetryPolicy) delay(attempts int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	return base * time.Duration(1<<uint(attempts))
}

// retryable: every provider error kind is retried, local divergence is not
func retryable(err error) bool {
	if errors.Is(err, ErrStateDiverged) {
		return false
	}
	perr, ok := dnstypes.AsProviderError(err)
	if !ok {
		return true
	}
	switch perr.Kind {
	case dnstypes.ErrorKindNetwork, dnstypes.ErrorKindRejected,
		dnstypes.ErrorKindNotFound, dnstypes.ErrorKindOther:
		return true
	}
	return true
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
