package repository

import (
	"context"
	"errors"

	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ParticipantRow is a participant joined with its user's name.
type ParticipantRow struct {
	entity.MessageChannelParticipant
	Username string
}

type ChatRepository interface {
	WithTx(tx *gorm.DB) ChatRepository
	CreateChannel(ctx context.Context, channel *entity.MessageChannel) error
	FindChannel(ctx context.Context, id int64) (*entity.MessageChannel, error)
	UpdateTitle(ctx context.Context, id int64, title string) error
	DeleteChannel(ctx context.Context, id int64) error
	ChannelsOf(ctx context.Context, userID int64) ([]entity.MessageChannel, error)
	GetOrCreateParticipant(ctx context.Context, channelID, userID int64) (*entity.MessageChannelParticipant, error)
	FindParticipant(ctx context.Context, channelID, userID int64) (*entity.MessageChannelParticipant, error)
	DeleteParticipant(ctx context.Context, id int64) error
	Participants(ctx context.Context, channelID int64) ([]ParticipantRow, error)
}

type chatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) WithTx(tx *gorm.DB) ChatRepository {
	if tx == nil {
		return r
	}
	return &chatRepository{db: tx}
}

func (r *chatRepository) CreateChannel(ctx context.Context, channel *entity.MessageChannel) error {
	return apperror.FromDB(r.db.WithContext(ctx).Create(channel).Error)
}

func (r *chatRepository) FindChannel(ctx context.Context, id int64) (*entity.MessageChannel, error) {
	var channel entity.MessageChannel
	if err := r.db.WithContext(ctx).First(&channel, id).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &channel, nil
}

func (r *chatRepository) UpdateTitle(ctx context.Context, id int64, title string) error {
	err := r.db.WithContext(ctx).Model(&entity.MessageChannel{}).Where("id = ?", id).Update("title", title).Error
	return apperror.FromDB(err)
}

func (r *chatRepository) DeleteChannel(ctx context.Context, id int64) error {
	return apperror.FromDB(r.db.WithContext(ctx).Delete(&entity.MessageChannel{}, id).Error)
}

func (r *chatRepository) ChannelsOf(ctx context.Context, userID int64) ([]entity.MessageChannel, error) {
	var channels []entity.MessageChannel
	err := r.db.WithContext(ctx).
		Joins("JOIN message_channel_participants p ON p.channel_id = message_channels.id").
		Where("p.user_id = ?", userID).
		Order("message_channels.id").
		Find(&channels).Error
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return channels, nil
}

func (r *chatRepository) GetOrCreateParticipant(ctx context.Context, channelID, userID int64) (*entity.MessageChannelParticipant, error) {
	participant, err := r.FindParticipant(ctx, channelID, userID)
	if err == nil {
		return participant, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	participant = &entity.MessageChannelParticipant{ChannelID: channelID, UserID: userID}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(participant)
	if res.Error != nil {
		return nil, apperror.FromDB(res.Error)
	}
	if res.RowsAffected == 0 {
		return r.FindParticipant(ctx, channelID, userID)
	}
	return participant, nil
}

func (r *chatRepository) FindParticipant(ctx context.Context, channelID, userID int64) (*entity.MessageChannelParticipant, error) {
	var participant entity.MessageChannelParticipant
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		First(&participant).Error
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return &participant, nil
}

func (r *chatRepository) DeleteParticipant(ctx context.Context, id int64) error {
	return apperror.FromDB(r.db.WithContext(ctx).Delete(&entity.MessageChannelParticipant{}, id).Error)
}

func (r *chatRepository) Participants(ctx context.Context, channelID int64) ([]ParticipantRow, error) {
	var rows []ParticipantRow
	err := r.db.WithContext(ctx).
		Model(&entity.MessageChannelParticipant{}).
		Select("message_channel_participants.*, users.username").
		Joins("JOIN users ON users.id = message_channel_participants.user_id").
		Where("message_channel_participants.channel_id = ?", channelID).
		Order("message_channel_participants.id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return rows, nil
}
