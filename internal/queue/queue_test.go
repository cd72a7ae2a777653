package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := Connect("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect("not a url")
	assert.Error(t, err)
}

func TestRedisClient_PublishAndLength(t *testing.T) {
	mr, rdb := newTestRedis(t)
	q := NewRedisClient(rdb, "passes", quietLogger())
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, &models.CampaignJob{CampaignID: 3, Trigger: models.TriggerManual}))
	require.NoError(t, q.Publish(ctx, &models.CampaignJob{Trigger: models.TriggerSchedule}))

	n, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	items, err := mr.List("passes")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Contains(t, items[1], `"campaign_id":3`)

	assert.NoError(t, q.Health(ctx))
}

func TestRedisClient_ConsumeInOrder(t *testing.T) {
	_, rdb := newTestRedis(t)
	q := NewRedisClient(rdb, "passes", quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, q.Publish(ctx, &models.CampaignJob{CampaignID: id, Trigger: models.TriggerManual}))
	}
	// malformed payloads are skipped
	require.NoError(t, rdb.LPush(ctx, "passes", "{not json").Err())

	var mu sync.Mutex
	var seen []int64
	handler := func(_ context.Context, job *models.CampaignJob) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, job.CampaignID)
		if job.CampaignID == 2 {
			return errors.New("handler failure does not stop the consumer")
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- q.Consume(ctx, handler, 1) }()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2, 3}, seen)
}

func TestRedisLocker(t *testing.T) {
	mr, rdb := newTestRedis(t)
	locker := NewRedisLocker(rdb, "drip:lock:")
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "campaign:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("drip:lock:campaign:1"))

	_, err = locker.Acquire(ctx, "campaign:1", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	other, err := locker.Acquire(ctx, "campaign:2", time.Minute)
	require.NoError(t, err)
	other()

	release()
	assert.False(t, mr.Exists("drip:lock:campaign:1"))

	release, err = locker.Acquire(ctx, "campaign:1", time.Minute)
	require.NoError(t, err)
	defer release()
}

func TestRedisLocker_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	mr, rdb := newTestRedis(t)
	locker := NewRedisLocker(rdb, "drip:lock:")
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "campaign:9", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	current, err := locker.Acquire(ctx, "campaign:9", time.Minute)
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists("drip:lock:campaign:9"), "stale release must not drop the new holder's lock")

	current()
	assert.False(t, mr.Exists("drip:lock:campaign:9"))
}

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "campaign:1", 0)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "campaign:1", 0)
	assert.ErrorIs(t, err, ErrLockHeld)

	release()
	release, err = locker.Acquire(ctx, "campaign:1", 0)
	require.NoError(t, err)
	release()
}
