package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/internal/recurrence"
	"github.com/Gofven/flowback-backend-sub001/internal/testutil"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func spec(name string) TaskSpec {
	return TaskSpec{
		Name:      name,
		Task:      "test.echo",
		Kwargs:    map[string]any{"event_id": 42},
		Frequency: recurrence.Monthly,
		Anchor:    time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC),
		TimeZone:  "UTC",
		Enabled:   true,
	}
}

func TestRegistryUpsert(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	reg := NewRegistry(db, nil, zerolog.Nop())

	task, err := reg.Upsert(ctx, nil, spec("echo"))
	require.NoError(t, err)
	require.NotNil(t, task.NextRunAt)
	assert.True(t, time.Date(2025, 2, 28, 10, 0, 0, 0, time.UTC).Equal(*task.NextRunAt))

	got, err := reg.Get(ctx, nil, task.ID)
	require.NoError(t, err)
	eventID, err := KwargInt64(*got, "event_id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), eventID)

	t.Run("same cadence keeps next run", func(t *testing.T) {
		require.NoError(t, reg.MarkRun(ctx, task.ID, time.Now(), time.Date(2025, 3, 31, 10, 0, 0, 0, time.UTC)))

		s := spec("echo")
		s.Kwargs = map[string]any{"event_id": 43}
		updated, err := reg.Upsert(ctx, nil, s)
		require.NoError(t, err)
		assert.Equal(t, task.ID, updated.ID)
		assert.True(t, time.Date(2025, 3, 31, 10, 0, 0, 0, time.UTC).Equal(*updated.NextRunAt))
		assert.Equal(t, 1, updated.TotalRunCount)
	})

	t.Run("new cadence reschedules", func(t *testing.T) {
		s := spec("echo")
		s.Frequency = recurrence.Weekly
		updated, err := reg.Upsert(ctx, nil, s)
		require.NoError(t, err)
		assert.True(t, time.Date(2025, 2, 7, 10, 0, 0, 0, time.UTC).Equal(*updated.NextRunAt))
	})

	t.Run("invalid input", func(t *testing.T) {
		s := spec("bad")
		s.Frequency = 9
		_, err := reg.Upsert(ctx, nil, s)
		assert.ErrorIs(t, err, apperror.ErrValidation)

		s = spec("bad")
		s.TimeZone = "Mars/Olympus"
		_, err = reg.Upsert(ctx, nil, s)
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, reg.Delete(ctx, nil, task.ID))
		_, err := reg.Get(ctx, nil, task.ID)
		assert.ErrorIs(t, err, apperror.ErrNotFound)
		assert.NoError(t, reg.Delete(ctx, nil, task.ID))
	})
}

func TestRegistryNotify(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	reg := NewRegistry(testutil.NewDB(t), client, zerolog.Nop())

	sub := client.Subscribe(ctx, ChangedChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	reg.Notify(ctx)

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, ChangedChannel, msg.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestRuntimeSync(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	reg := NewRegistry(db, nil, zerolog.Nop())
	rt := NewRuntime(reg, nil, Options{Logger: zerolog.Nop()})

	a, err := reg.Upsert(ctx, nil, spec("a"))
	require.NoError(t, err)
	disabled := spec("b")
	disabled.Enabled = false
	b, err := reg.Upsert(ctx, nil, disabled)
	require.NoError(t, err)

	require.NoError(t, rt.Sync(ctx))
	assert.Equal(t, 1, rt.Len())
	assert.True(t, rt.Scheduled(a.ID))
	assert.False(t, rt.Scheduled(b.ID))

	require.NoError(t, reg.Delete(ctx, nil, a.ID))
	require.NoError(t, rt.Sync(ctx))
	assert.Equal(t, 0, rt.Len())
}

func TestRuntimeFire(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	reg := NewRegistry(db, nil, zerolog.Nop())
	rt := NewRuntime(reg, nil, Options{Logger: zerolog.Nop()})
	now := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	rt.now = func() time.Time { return now }

	var fired []int64
	rt.Handle("test.echo", func(ctx context.Context, task entity.PeriodicTask) error {
		id, err := KwargInt64(task, "event_id")
		if err != nil {
			return err
		}
		fired = append(fired, id)
		return nil
	})

	task, err := reg.Upsert(ctx, nil, spec("echo"))
	require.NoError(t, err)
	require.NoError(t, rt.Sync(ctx))

	require.NoError(t, rt.Fire(ctx, task.ID))
	assert.Equal(t, []int64{42}, fired)

	got, err := reg.Get(ctx, nil, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalRunCount)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, now.Equal(*got.LastRunAt))
	require.NotNil(t, got.NextRunAt)
	assert.True(t, time.Date(2025, 2, 28, 10, 0, 0, 0, time.UTC).Equal(*got.NextRunAt))

	t.Run("handler failure is recorded", func(t *testing.T) {
		boom := errors.New("boom")
		rt.Handle("test.echo", func(context.Context, entity.PeriodicTask) error { return boom })
		assert.ErrorIs(t, rt.Fire(ctx, task.ID), boom)

		got, err := reg.Get(ctx, nil, task.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.TotalRunCount)
	})

	t.Run("subject gone removes task", func(t *testing.T) {
		rt.Handle("test.echo", func(context.Context, entity.PeriodicTask) error {
			return fmt.Errorf("event: %w", apperror.ErrNotFound)
		})
		require.NoError(t, rt.Fire(ctx, task.ID))

		_, err := reg.Get(ctx, nil, task.ID)
		assert.ErrorIs(t, err, apperror.ErrNotFound)
		assert.False(t, rt.Scheduled(task.ID))
	})

	t.Run("missing task is dropped", func(t *testing.T) {
		assert.NoError(t, rt.Fire(ctx, 9999))
	})

	t.Run("unknown handler", func(t *testing.T) {
		s := spec("orphan")
		s.Task = "test.unknown"
		orphan, err := reg.Upsert(ctx, nil, s)
		require.NoError(t, err)
		assert.Error(t, rt.Fire(ctx, orphan.ID))
	})
}

func TestRuntimeJobDeadline(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	reg := NewRegistry(db, nil, zerolog.Nop())
	rt := NewRuntime(reg, nil, Options{LockTTL: 5 * time.Second, Logger: zerolog.Nop()})

	var deadline time.Time
	var hasDeadline bool
	rt.Handle("test.echo", func(ctx context.Context, _ entity.PeriodicTask) error {
		deadline, hasDeadline = ctx.Deadline()
		return nil
	})

	task, err := reg.Upsert(ctx, nil, spec("echo"))
	require.NoError(t, err)

	started := time.Now()
	rt.job(task.ID)
	require.True(t, hasDeadline, "a firing is bounded by the lock ttl")
	assert.WithinDuration(t, started.Add(5*time.Second), deadline, time.Second)
}

func TestRuntimeLeaderLock(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	reg := NewRegistry(testutil.NewDB(t), client, zerolog.Nop())

	first := NewRuntime(reg, client, Options{Logger: zerolog.Nop(), LockTTL: time.Minute})
	second := NewRuntime(reg, client, Options{Logger: zerolog.Nop(), LockTTL: time.Minute})

	ok, err := first.IsLeader(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.IsLeader(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = first.IsLeader(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "holder renews its own lock")

	mr.FastForward(2 * time.Minute)
	ok, err = second.IsLeader(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock is taken over")

	second.release(ctx)
	assert.False(t, mr.Exists(leaderKey))

	t.Run("without redis every runtime leads", func(t *testing.T) {
		rt := NewRuntime(reg, nil, Options{Logger: zerolog.Nop()})
		ok, err := rt.IsLeader(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
