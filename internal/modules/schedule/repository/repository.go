package repository

import (
	"context"
	"time"

	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ScheduleRepository interface {
	WithTx(tx *gorm.DB) ScheduleRepository
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	CreateSchedule(ctx context.Context, schedule *entity.Schedule) error
	FindSchedule(ctx context.Context, id int64) (*entity.Schedule, error)

	CreateEvent(ctx context.Context, event *entity.ScheduleEvent) error
	FindEvent(ctx context.Context, id int64) (*entity.ScheduleEvent, error)
	SaveEvent(ctx context.Context, event *entity.ScheduleEvent) error
	DeleteEvent(ctx context.Context, id int64) error
	Events(ctx context.Context, scheduleID int64, from, to *time.Time, limit, offset int) ([]entity.ScheduleEvent, int64, error)

	IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error)
}

type scheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

func (r *scheduleRepository) WithTx(tx *gorm.DB) ScheduleRepository {
	if tx == nil {
		return r
	}
	return &scheduleRepository{db: tx}
}

func (r *scheduleRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *scheduleRepository) CreateSchedule(ctx context.Context, schedule *entity.Schedule) error {
	return apperror.FromDB(r.db.WithContext(ctx).Create(schedule).Error)
}

func (r *scheduleRepository) FindSchedule(ctx context.Context, id int64) (*entity.Schedule, error) {
	var schedule entity.Schedule
	if err := r.db.WithContext(ctx).First(&schedule, id).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &schedule, nil
}

func (r *scheduleRepository) CreateEvent(ctx context.Context, event *entity.ScheduleEvent) error {
	return apperror.FromDB(r.db.WithContext(ctx).Omit(clause.Associations).Create(event).Error)
}

func (r *scheduleRepository) FindEvent(ctx context.Context, id int64) (*entity.ScheduleEvent, error) {
	var event entity.ScheduleEvent
	if err := r.db.WithContext(ctx).First(&event, id).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &event, nil
}

// SaveEvent writes every column of an existing event, nil pointers included.
// An event that is gone yields ErrNotFound instead of being inserted again.
func (r *scheduleRepository) SaveEvent(ctx context.Context, event *entity.ScheduleEvent) error {
	res := r.db.WithContext(ctx).
		Model(event).
		Select("*").
		Omit("id", "created_at", clause.Associations).
		Updates(event)
	if res.Error != nil {
		return apperror.FromDB(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func (r *scheduleRepository) DeleteEvent(ctx context.Context, id int64) error {
	return apperror.FromDB(r.db.WithContext(ctx).Delete(&entity.ScheduleEvent{}, id).Error)
}

func (r *scheduleRepository) Events(ctx context.Context, scheduleID int64, from, to *time.Time, limit, offset int) ([]entity.ScheduleEvent, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.ScheduleEvent{}).Where("schedule_id = ?", scheduleID)
	if from != nil {
		// Recurring events stay visible after their first occurrence.
		query = query.Where("start_date >= ? OR repeat_frequency IS NOT NULL", from.UTC())
	}
	if to != nil {
		query = query.Where("start_date < ?", to.UTC())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperror.FromDB(err)
	}

	var events []entity.ScheduleEvent
	if err := query.Order("start_date").Order("id").Limit(limit).Offset(offset).Find(&events).Error; err != nil {
		return nil, 0, apperror.FromDB(err)
	}
	return events, total, nil
}

func (r *scheduleRepository) IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&entity.GroupUser{}).
		Where("group_id = ? AND user_id = ? AND active = ?", groupID, userID, true).
		Count(&n).Error
	if err != nil {
		return false, apperror.FromDB(err)
	}
	return n > 0, nil
}
