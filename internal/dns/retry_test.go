package dns

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"go_subdns/internal/dnstypes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_BackoffSequence(t *testing.T) {
	policy := DefaultRetryPolicy()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	failure := dnstypes.NewProviderError(dnstypes.ErrorKindNetwork, 0, "connection reset", nil)

	want := []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second, 480 * time.Second}

	attempts := 0
	for i, delay := range want {
		d := policy.Decide(attempts, failure, now)
		require.False(t, d.Terminal, "failure %d should be retried", i+1)
		require.NotNil(t, d.NextRunAt)
		assert.Equal(t, delay, d.NextRunAt.Sub(now), "failure %d", i+1)
		assert.Equal(t, attempts+1, d.Attempts)
		attempts = d.Attempts
	}

	d := policy.Decide(attempts, failure, now)
	assert.True(t, d.Terminal, "5th failure is terminal")
	assert.Nil(t, d.NextRunAt)
	assert.Equal(t, 5, d.Attempts)
	assert.Equal(t, failure.Error(), d.Message)
}

func TestRetryPolicy_AllProviderKindsRetryable(t *testing.T) {
	policy := DefaultRetryPolicy()
	kinds := []dnstypes.ErrorKind{
		dnstypes.ErrorKindNetwork,
		dnstypes.ErrorKindRejected,
		dnstypes.ErrorKindNotFound,
		dnstypes.ErrorKindOther,
	}
	for _, kind := range kinds {
		d := policy.Decide(0, dnstypes.NewProviderError(kind, 0, "x", nil), time.Now())
		assert.False(t, d.Terminal, "kind %s", kind)
	}

	d := policy.Decide(0, errors.New("database is locked"), time.Now())
	assert.False(t, d.Terminal)
}

func TestRetryPolicy_DivergenceIsTerminal(t *testing.T) {
	err := fmt.Errorf("record 7 is deleting: %w", ErrStateDiverged)
	d := DefaultRetryPolicy().Decide(0, err, time.Now())

	assert.True(t, d.Terminal)
	assert.Equal(t, 1, d.Attempts)
	assert.Contains(t, d.Message, "deleting")
}

func TestRetryPolicy_Custom(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second}
	now := time.Now()

	d := policy.Decide(0, errors.New("x"), now)
	require.False(t, d.Terminal)
	assert.Equal(t, 2*time.Second, d.NextRunAt.Sub(now))

	d = policy.Decide(1, errors.New("x"), now)
	assert.True(t, d.Terminal)
}
