package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/internal/recurrence"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const leaderKey = "scheduler:leader"

// Handler runs one firing of a task. Returning an error wrapping
// apperror.ErrNotFound means the task's subject is gone and the task is
// removed from the registry.
type Handler func(ctx context.Context, task entity.PeriodicTask) error

type Options struct {
	SyncInterval time.Duration
	LockTTL      time.Duration
	Logger       zerolog.Logger
}

type entry struct {
	id        cron.EntryID
	signature string
}

// Runtime keeps one cron entry per enabled task and fires the registered
// handler. With Redis configured only the holder of the leader lock fires;
// without it every runtime fires.
type Runtime struct {
	registry *Registry
	redis    *redis.Client
	cron     *cron.Cron
	log      zerolog.Logger
	owner    string

	syncInterval time.Duration
	lockTTL      time.Duration
	now          func() time.Time

	mu       sync.Mutex
	handlers map[string]Handler
	entries  map[int64]entry
}

func NewRuntime(registry *Registry, redisClient *redis.Client, opts Options) *Runtime {
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = 30 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = time.Minute
	}
	cl := cronLogger{log: opts.Logger}
	return &Runtime{
		registry:     registry,
		redis:        redisClient,
		cron:         cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		log:          opts.Logger,
		owner:        uuid.NewString(),
		syncInterval: opts.SyncInterval,
		lockTTL:      opts.LockTTL,
		now:          func() time.Time { return time.Now().UTC() },
		handlers:     make(map[string]Handler),
		entries:      make(map[int64]entry),
	}
}

// Handle registers the handler for a task name.
func (r *Runtime) Handle(task string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[task] = h
}

// Run syncs the registry, starts firing and blocks until ctx is done.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Sync(ctx); err != nil {
		return err
	}
	r.cron.Start()
	r.log.Info().Str("owner", r.owner).Int("tasks", r.Len()).Msg("scheduler started")
	defer func() {
		<-r.cron.Stop().Done()
		r.release(context.Background())
		r.log.Info().Msg("scheduler stopped")
	}()

	var changes <-chan *redis.Message
	if r.redis != nil {
		sub := r.redis.Subscribe(ctx, ChangedChannel)
		defer sub.Close()
		changes = sub.Channel()
	}

	ticker := time.NewTicker(r.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-changes:
		}
		if err := r.Sync(ctx); err != nil {
			r.log.Error().Err(err).Msg("failed to sync periodic tasks")
		}
	}
}

// Sync reconciles cron entries with the enabled tasks in the registry.
func (r *Runtime) Sync(ctx context.Context) error {
	tasks, err := r.registry.Enabled(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[int64]bool, len(tasks))
	for _, task := range tasks {
		seen[task.ID] = true
		sig := signature(task)
		if e, ok := r.entries[task.ID]; ok {
			if e.signature == sig {
				continue
			}
			r.cron.Remove(e.id)
			delete(r.entries, task.ID)
		}

		sched, err := scheduleOf(task)
		if err != nil {
			r.log.Warn().Err(err).Str("task", task.Name).Msg("skipping periodic task")
			continue
		}
		id := task.ID
		entryID := r.cron.Schedule(sched, cron.FuncJob(func() { r.job(id) }))
		r.entries[task.ID] = entry{id: entryID, signature: sig}
	}

	for id, e := range r.entries {
		if !seen[id] {
			r.cron.Remove(e.id)
			delete(r.entries, id)
		}
	}
	return nil
}

// Len reports the number of scheduled tasks.
func (r *Runtime) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Scheduled reports whether the task currently has a cron entry.
func (r *Runtime) Scheduled(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

func (r *Runtime) job(id int64) {
	// The lock is only held for lockTTL, so a firing may not outlive it.
	ctx, cancel := context.WithTimeout(context.Background(), r.lockTTL)
	defer cancel()
	leader, err := r.IsLeader(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to acquire scheduler lock")
		return
	}
	if !leader {
		return
	}
	if err := r.Fire(ctx, id); err != nil {
		r.log.Error().Err(err).Int64("task_id", id).Msg("periodic task failed")
	}
}

// Fire runs one firing of the task and records it. A task that no longer
// exists or was disabled loses its cron entry.
func (r *Runtime) Fire(ctx context.Context, id int64) error {
	task, err := r.registry.Get(ctx, nil, id)
	if errors.Is(err, apperror.ErrNotFound) {
		r.unschedule(id)
		return nil
	}
	if err != nil {
		return err
	}
	if !task.Enabled {
		r.unschedule(id)
		return nil
	}

	r.mu.Lock()
	h, ok := r.handlers[task.Task]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no handler registered for task %q", task.Task)
	}

	start := r.now()
	runErr := h(ctx, *task)
	if errors.Is(runErr, apperror.ErrNotFound) {
		r.log.Info().Str("task", task.Name).Msg("subject gone, removing periodic task")
		r.unschedule(id)
		if err := r.registry.Delete(ctx, nil, id); err != nil {
			return err
		}
		r.registry.Notify(ctx)
		return nil
	}

	var next time.Time
	if sched, err := scheduleOf(*task); err == nil {
		next = sched.Next(start)
	}
	if err := r.registry.MarkRun(ctx, id, start, next); err != nil {
		return err
	}

	r.log.Info().
		Str("task", task.Name).
		Dur("elapsed", r.now().Sub(start)).
		Err(runErr).
		Msg("periodic task fired")
	return runErr
}

// IsLeader takes or renews the leader lock.
func (r *Runtime) IsLeader(ctx context.Context) (bool, error) {
	if r.redis == nil {
		return true, nil
	}
	ok, err := r.redis.SetNX(ctx, leaderKey, r.owner, r.lockTTL).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	holder, err := r.redis.Get(ctx, leaderKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if holder != r.owner {
		return false, nil
	}
	return true, r.redis.PExpire(ctx, leaderKey, r.lockTTL).Err()
}

func (r *Runtime) release(ctx context.Context) {
	if r.redis == nil {
		return
	}
	holder, err := r.redis.Get(ctx, leaderKey).Result()
	if err == nil && holder == r.owner {
		r.redis.Del(ctx, leaderKey)
	}
}

func (r *Runtime) unschedule(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		r.cron.Remove(e.id)
		delete(r.entries, id)
	}
}

func scheduleOf(task entity.PeriodicTask) (recurrence.Schedule, error) {
	return recurrence.NewSchedule(task.Anchor, recurrence.Frequency(task.Frequency), task.TimeZone)
}

func signature(task entity.PeriodicTask) string {
	return fmt.Sprintf("%s|%d|%s|%s", task.Task, task.Frequency, task.Anchor.UTC().Format(time.RFC3339Nano), task.TimeZone)
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
