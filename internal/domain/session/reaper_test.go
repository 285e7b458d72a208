package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingReaper struct {
	calls   atomic.Int32
	maxIdle atomic.Int64
}

func (c *countingReaper) ReapIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	c.calls.Add(1)
	c.maxIdle.Store(int64(maxIdle))
	return 1, nil
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		wantErr  bool
	}{
		{"@every 5m", false},
		{"*/5 * * * *", false},
		{"@hourly", false},
		{"90s", false},
		{"", true},
		{"-1m", true},
		{"sometimes", true},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			sched, err := ParseSchedule(tt.schedule)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			now := time.Now()
			assert.True(t, sched.Next(now).After(now))
		})
	}
}

func TestReaperRunsOnSchedule(t *testing.T) {
	target := &countingReaper{}
	reaper, err := NewReaper(target, "@every 1s", time.Hour, zap.NewNop())
	require.NoError(t, err)

	reaper.Start(context.Background())
	defer reaper.Stop()

	assert.Eventually(t, func() bool {
		return target.calls.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, int64(time.Hour), target.maxIdle.Load())
}

func TestReaperRunOnce(t *testing.T) {
	target := &countingReaper{}
	reaper, err := NewReaper(target, "@every 1h", 30*time.Minute, nil)
	require.NoError(t, err)

	n, err := reaper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(1), target.calls.Load())
}

func TestReaperStopIsIdempotent(t *testing.T) {
	reaper, err := NewReaper(&countingReaper{}, "@every 1h", time.Hour, nil)
	require.NoError(t, err)

	reaper.Stop()
	reaper.Start(context.Background())
	reaper.Start(context.Background())
	reaper.Stop()
	reaper.Stop()
}

func TestNewReaperRejectsBadSchedule(t *testing.T) {
	_, err := NewReaper(&countingReaper{}, "nope", time.Hour, nil)
	assert.Error(t, err)
}
