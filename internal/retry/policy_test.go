package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Delay_DoublesUntilCap(t *testing.T) {
	t.Parallel()
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 400*time.Millisecond, p.Delay(2))
	assert.Equal(t, 800*time.Millisecond, p.Delay(3))
	assert.Equal(t, time.Second, p.Delay(4))
	assert.Equal(t, time.Second, p.Delay(40))
}

func TestPolicy_Backoff_StaysWithinJitterBounds(t *testing.T) {
	t.Parallel()
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	for attempt := 0; attempt < 6; attempt++ {
		for i := 0; i < 50; i++ {
			d := p.Backoff(attempt)
			assert.GreaterOrEqual(t, d, p.Delay(attempt)/2)
			assert.LessOrEqual(t, d, p.Delay(attempt))
		}
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	p := Policy{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxAttempts: 5}

	calls := 0
	err := Do(context.Background(), p, nil, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	t.Parallel()
	p := Policy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 5}
	permanent := errors.New("permanent")

	calls := 0
	err := Do(context.Background(), p, func(err error) bool { return !errors.Is(err, permanent) }, func(ctx context.Context) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()
	p := Policy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 3}

	calls := 0
	err := Do(context.Background(), p, nil, func(ctx context.Context) error {
		calls++
		return errors.New("down")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}
