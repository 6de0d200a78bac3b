// Package scheduler owns the periodic-task registry and the runtime that
// fires registered tasks on their cadence.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/internal/recurrence"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChangedChannel is the Redis channel runtimes listen on to resync early.
const ChangedChannel = "periodic_tasks:changed"

// TaskSpec is the application-side definition of a periodic task.
type TaskSpec struct {
	Name      string
	Task      string
	Kwargs    map[string]any
	Frequency recurrence.Frequency
	Anchor    time.Time
	TimeZone  string
	Enabled   bool
}

// Registry reads and writes periodic_tasks. Every method takes an optional
// transaction; nil means the registry's own connection.
type Registry struct {
	db    *gorm.DB
	redis *redis.Client
	log   zerolog.Logger
}

func NewRegistry(db *gorm.DB, redisClient *redis.Client, log zerolog.Logger) *Registry {
	return &Registry{db: db, redis: redisClient, log: log}
}

func (r *Registry) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// Upsert creates the task named spec.Name or updates it in place. The next
// run is recomputed only when the cadence changed.
func (r *Registry) Upsert(ctx context.Context, tx *gorm.DB, spec TaskSpec) (*entity.PeriodicTask, error) {
	if !spec.Frequency.Valid() {
		return nil, fmt.Errorf("%w: unknown frequency %d", apperror.ErrValidation, spec.Frequency)
	}
	if spec.TimeZone == "" {
		spec.TimeZone = "UTC"
	}
	sched, err := recurrence.NewSchedule(spec.Anchor, spec.Frequency, spec.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperror.ErrValidation, err)
	}

	db := r.conn(ctx, tx)
	var task entity.PeriodicTask
	err = db.Where("name = ?", spec.Name).First(&task).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.FromDB(err)
	}

	reschedule := task.ID == 0 ||
		task.NextRunAt == nil ||
		!task.Anchor.Equal(spec.Anchor) ||
		task.Frequency != int(spec.Frequency) ||
		task.TimeZone != spec.TimeZone

	kwargs := datatypes.JSONMap{}
	for k, v := range spec.Kwargs {
		kwargs[k] = v
	}

	task.Name = spec.Name
	task.Task = spec.Task
	task.Kwargs = kwargs
	task.Frequency = int(spec.Frequency)
	task.Anchor = spec.Anchor.UTC()
	task.TimeZone = spec.TimeZone
	task.Enabled = spec.Enabled
	if reschedule {
		next := sched.Next(spec.Anchor).UTC()
		task.NextRunAt = &next
	}

	if err := db.Omit(clause.Associations).Save(&task).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &task, nil
}

func (r *Registry) Get(ctx context.Context, tx *gorm.DB, id int64) (*entity.PeriodicTask, error) {
	var task entity.PeriodicTask
	if err := r.conn(ctx, tx).First(&task, id).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &task, nil
}

// Delete removes the task. Rows referencing it through a cascading foreign
// key go with it. Deleting a missing task is not an error.
func (r *Registry) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	if err := r.conn(ctx, tx).Delete(&entity.PeriodicTask{}, id).Error; err != nil {
		return apperror.FromDB(err)
	}
	return nil
}

func (r *Registry) Enabled(ctx context.Context) ([]entity.PeriodicTask, error) {
	var tasks []entity.PeriodicTask
	if err := r.conn(ctx, nil).Where("enabled = ?", true).Order("id").Find(&tasks).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return tasks, nil
}

// MarkRun records a firing.
func (r *Registry) MarkRun(ctx context.Context, id int64, ranAt, next time.Time) error {
	updates := map[string]any{
		"last_run_at":     ranAt.UTC(),
		"total_run_count": gorm.Expr("total_run_count + 1"),
		"next_run_at":     nil,
	}
	if !next.IsZero() {
		updates["next_run_at"] = next.UTC()
	}
	err := r.conn(ctx, nil).Model(&entity.PeriodicTask{}).Where("id = ?", id).Updates(updates).Error
	return apperror.FromDB(err)
}

// Notify tells running runtimes that the registry changed. Call it after the
// writing transaction committed. Publishing is best effort.
func (r *Registry) Notify(ctx context.Context) {
	if r.redis == nil {
		return
	}
	if err := r.redis.Publish(ctx, ChangedChannel, time.Now().UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		r.log.Warn().Err(err).Msg("failed to publish periodic task change")
	}
}

// KwargInt64 reads an integer keyword argument. Values read back from the
// store decode as json.Number.
func KwargInt64(task entity.PeriodicTask, key string) (int64, error) {
	v, ok := task.Kwargs[key]
	if !ok {
		return 0, fmt.Errorf("%w: task %q has no %q argument", apperror.ErrInvalidInput, task.Name, key)
	}
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	}
	return 0, fmt.Errorf("%w: task %q argument %q is %T", apperror.ErrInvalidInput, task.Name, key, v)
}
