package repository

import (
	"context"
	"errors"

	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NotificationRepository interface {
	WithTx(tx *gorm.DB) NotificationRepository
	FindChannel(ctx context.Context, contentType string, objectID int64) (*entity.NotificationChannel, error)
	FindChannelByID(ctx context.Context, id int64) (*entity.NotificationChannel, error)
	GetOrCreateChannel(ctx context.Context, contentType string, objectID int64) (*entity.NotificationChannel, bool, error)
	DeleteChannel(ctx context.Context, contentType string, objectID int64) error
	Create(ctx context.Context, notification *entity.NotificationObject) error
	FindByChannel(ctx context.Context, channelID int64, limit, offset int) ([]entity.NotificationObject, int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) WithTx(tx *gorm.DB) NotificationRepository {
	if tx == nil {
		return r
	}
	return &notificationRepository{db: tx}
}

func (r *notificationRepository) FindChannel(ctx context.Context, contentType string, objectID int64) (*entity.NotificationChannel, error) {
	var channel entity.NotificationChannel
	err := r.db.WithContext(ctx).
		Where("content_type = ? AND object_id = ?", contentType, objectID).
		First(&channel).Error
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return &channel, nil
}

func (r *notificationRepository) FindChannelByID(ctx context.Context, id int64) (*entity.NotificationChannel, error) {
	var channel entity.NotificationChannel
	if err := r.db.WithContext(ctx).First(&channel, id).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &channel, nil
}

// GetOrCreateChannel returns the single channel of a subject. Concurrent
// callers race on the unique (content_type, object_id) key; the loser reads
// the winner's row.
func (r *notificationRepository) GetOrCreateChannel(ctx context.Context, contentType string, objectID int64) (*entity.NotificationChannel, bool, error) {
	channel, err := r.FindChannel(ctx, contentType, objectID)
	if err == nil {
		return channel, false, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, false, err
	}

	channel = &entity.NotificationChannel{ContentType: contentType, ObjectID: objectID}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_type"}, {Name: "object_id"}},
			DoNothing: true,
		}).
		Create(channel)
	if res.Error != nil {
		return nil, false, apperror.FromDB(res.Error)
	}
	if res.RowsAffected == 0 {
		channel, err = r.FindChannel(ctx, contentType, objectID)
		return channel, false, err
	}
	return channel, true, nil
}

func (r *notificationRepository) DeleteChannel(ctx context.Context, contentType string, objectID int64) error {
	err := r.db.WithContext(ctx).
		Where("content_type = ? AND object_id = ?", contentType, objectID).
		Delete(&entity.NotificationChannel{}).Error
	return apperror.FromDB(err)
}

func (r *notificationRepository) Create(ctx context.Context, notification *entity.NotificationObject) error {
	return apperror.FromDB(r.db.WithContext(ctx).Create(notification).Error)
}

func (r *notificationRepository) FindByChannel(ctx context.Context, channelID int64, limit, offset int) ([]entity.NotificationObject, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.NotificationObject{}).Where("channel_id = ?", channelID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperror.FromDB(err)
	}

	var notifications []entity.NotificationObject
	err := query.Order("timestamp desc").Order("id desc").Limit(limit).Offset(offset).Find(&notifications).Error
	if err != nil {
		return nil, 0, apperror.FromDB(err)
	}
	return notifications, total, nil
}
