package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

type fakePublisher struct {
	mu   sync.Mutex
	jobs []*models.CampaignJob
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, job *models.CampaignJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New("every hour", &fakePublisher{}, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestScheduler_Trigger(t *testing.T) {
	pub := &fakePublisher{}
	s, err := New("0 * * * *", pub, quietLogger())
	require.NoError(t, err)

	fixed := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.Trigger(context.Background()))
	require.Len(t, pub.jobs, 1)
	assert.Equal(t, int64(0), pub.jobs[0].CampaignID)
	assert.Equal(t, models.TriggerSchedule, pub.jobs[0].Trigger)
	assert.Equal(t, fixed, pub.jobs[0].RequestedAt)

	pub.err = errors.New("queue unavailable")
	err = s.Trigger(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, pub.err)
}

func TestScheduler_StartStop(t *testing.T) {
	pub := &fakePublisher{}
	s, err := New("@every 1s", pub, quietLogger())
	require.NoError(t, err)

	s.Start()
	assert.False(t, s.Next().IsZero())

	assert.Eventually(t, func() bool { return pub.count() > 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}
