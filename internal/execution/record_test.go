package execution

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordGeneratesShortID(t *testing.T) {
	t.Parallel()

	r := NewRecord("")
	assert.Len(t, r.ExecutionID(), 8)
	assert.Equal(t, StatusRunning, r.Status())

	r = NewRecord("run-42")
	assert.Equal(t, "run-42", r.ExecutionID())
}

func TestRecordErrorsAndWarnings(t *testing.T) {
	t.Parallel()

	r := NewRecord("t1")
	r.AddError("extract", errors.New("store unreachable"), true)
	r.AddError("collect", nil, false) // nil errors are ignored
	r.AddWarning("collect", "no new messages")

	s := r.Summary()
	require.Len(t, s.Errors, 1)
	assert.Equal(t, "extract", s.Errors[0].Stage)
	assert.Equal(t, "store unreachable", s.Errors[0].Message)
	assert.True(t, s.Errors[0].Critical)

	require.Len(t, s.Warnings, 1)
	assert.Equal(t, "no new messages", s.Warnings[0].Message)
}

func TestRecordCompleteAndExitCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status Status
		exit   int
	}{
		{StatusSuccess, 0},
		{StatusPartial, 1},
		{StatusCritical, 2},
		{StatusInterrupted, 3},
		{StatusRunning, 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.exit, tt.status.ExitCode())
		})
	}

	r := NewRecord("t2")
	r.Complete(StatusPartial)
	assert.Equal(t, StatusPartial, r.Status())

	s := r.Summary()
	require.NotNil(t, s.FinishedAt)

	// A record finalizes once; a second Complete is ignored.
	r.Complete(StatusSuccess)
	assert.Equal(t, StatusPartial, r.Status())
	assert.Equal(t, *s.FinishedAt, *r.Summary().FinishedAt)
}

func TestRecordDurationUsesInjectedClock(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)
	r := &Record{
		executionID: "t3",
		status:      StatusRunning,
		metrics:     map[string]any{},
		nowFunc:     func() time.Time { return base },
	}
	r.startedAt = base

	r.nowFunc = func() time.Time { return base.Add(90 * time.Second) }
	assert.Equal(t, 90*time.Second, r.Duration())

	r.Complete(StatusSuccess)
	r.nowFunc = func() time.Time { return base.Add(10 * time.Minute) }
	assert.Equal(t, 90*time.Second, r.Duration(), "finished runs stop the clock")
	assert.InDelta(t, 90.0, r.Summary().DurationSeconds, 0.001)
}

func TestRecordMetrics(t *testing.T) {
	t.Parallel()

	r := NewRecord("t4")
	r.SetMetric("messages_collected", 12)
	r.SetMetric("prices_extracted", 7)

	v, ok := r.Metric("messages_collected")
	require.True(t, ok)
	assert.Equal(t, 12, v)

	_, ok = r.Metric("missing")
	assert.False(t, ok)

	s := r.Summary()
	assert.Equal(t, 7, s.Metrics["prices_extracted"])
}
