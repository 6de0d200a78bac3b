package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gofven/flowback-backend-sub001/internal/contenttype"
	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/notification/dto"
	notifRepo "github.com/Gofven/flowback-backend-sub001/internal/modules/notification/repository"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	commonDto "github.com/Gofven/flowback-backend-sub001/pkg/dto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RedisChannel is the pub/sub channel live subscribers of a notification
// channel listen on.
func RedisChannel(channelID int64) string {
	return fmt.Sprintf("notification_channel:%d", channelID)
}

type NotificationService interface {
	// GetOrCreate returns the channel of ref, creating it on first use. tx may
	// be nil.
	GetOrCreate(ctx context.Context, tx *gorm.DB, ref contenttype.Ref) (*entity.NotificationChannel, error)
	// Notify stores a notification on ref's channel. With a nil tx it is
	// published right away; otherwise call Publish after the commit.
	Notify(ctx context.Context, tx *gorm.DB, ref contenttype.Ref, action, message string, data any) (*entity.NotificationObject, error)
	Publish(ctx context.Context, notification *entity.NotificationObject)
	Channel(ctx context.Context, ref contenttype.Ref) (*dto.ChannelResponse, error)
	List(ctx context.Context, query dto.ListQuery) (*dto.PaginatedNotificationResponse, error)
	Exists(ctx context.Context, channelID int64) error
}

type notificationService struct {
	db          *gorm.DB
	repo        notifRepo.NotificationRepository
	types       *contenttype.Registry
	redisClient *redis.Client
	log         zerolog.Logger
	now         func() time.Time
}

func NewNotificationService(db *gorm.DB, repo notifRepo.NotificationRepository, types *contenttype.Registry, redisClient *redis.Client, log zerolog.Logger) NotificationService {
	return &notificationService{
		db:          db,
		repo:        repo,
		types:       types,
		redisClient: redisClient,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *notificationService) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *notificationService) GetOrCreate(ctx context.Context, tx *gorm.DB, ref contenttype.Ref) (*entity.NotificationChannel, error) {
	if err := s.types.Resolve(ctx, s.conn(tx), ref); err != nil {
		return nil, err
	}
	channel, _, err := s.repo.WithTx(tx).GetOrCreateChannel(ctx, ref.ContentType, ref.ObjectID)
	return channel, err
}

func (s *notificationService) Notify(ctx context.Context, tx *gorm.DB, ref contenttype.Ref, action, message string, data any) (*entity.NotificationObject, error) {
	switch action {
	case entity.ActionCreate, entity.ActionUpdate, entity.ActionDelete:
	default:
		return nil, fmt.Errorf("%w: unknown notification action %q", apperror.ErrInvalidInput, action)
	}

	channel, err := s.GetOrCreate(ctx, tx, ref)
	if err != nil {
		return nil, err
	}

	payload := datatypes.JSON("{}")
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode notification data: %w", err)
		}
		payload = raw
	}

	notification := &entity.NotificationObject{
		ChannelID: channel.ID,
		Action:    action,
		Message:   message,
		Data:      payload,
		Timestamp: s.now(),
	}
	if err := s.repo.WithTx(tx).Create(ctx, notification); err != nil {
		return nil, err
	}

	if tx == nil {
		s.Publish(ctx, notification)
	}
	return notification, nil
}

func (s *notificationService) Publish(ctx context.Context, notification *entity.NotificationObject) {
	if s.redisClient == nil || notification == nil {
		return
	}

	payload, err := json.Marshal(toResponse(notification))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode notification")
		return
	}
	if err := s.redisClient.Publish(ctx, RedisChannel(notification.ChannelID), payload).Err(); err != nil {
		s.log.Warn().Err(err).Int64("channel_id", notification.ChannelID).Msg("failed to publish notification")
	}
}

func (s *notificationService) Channel(ctx context.Context, ref contenttype.Ref) (*dto.ChannelResponse, error) {
	channel, err := s.GetOrCreate(ctx, nil, ref)
	if err != nil {
		return nil, err
	}
	return &dto.ChannelResponse{
		ID:          channel.ID,
		ContentType: channel.ContentType,
		ObjectID:    channel.ObjectID,
	}, nil
}

func (s *notificationService) List(ctx context.Context, query dto.ListQuery) (*dto.PaginatedNotificationResponse, error) {
	if err := s.Exists(ctx, query.ChannelID); err != nil {
		return nil, err
	}

	offset := query.Normalize()
	notifications, total, err := s.repo.FindByChannel(ctx, query.ChannelID, query.Limit, offset)
	if err != nil {
		return nil, err
	}

	data := make([]dto.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		data = append(data, toResponse(&notifications[i]))
	}
	return &dto.PaginatedNotificationResponse{
		Data: data,
		Meta: commonDto.NewPaginationMeta(query.PaginationQuery, total),
	}, nil
}

func (s *notificationService) Exists(ctx context.Context, channelID int64) error {
	_, err := s.repo.FindChannelByID(ctx, channelID)
	return err
}

func toResponse(n *entity.NotificationObject) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:        n.ID,
		ChannelID: n.ChannelID,
		Action:    n.Action,
		Message:   n.Message,
		Data:      json.RawMessage(n.Data),
		Timestamp: n.Timestamp,
	}
}
