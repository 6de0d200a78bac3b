package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/chat/dto"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/chat/repository"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"gorm.io/gorm"
)

// ChatService manages channels and their participants. Methods taking a tx
// run inside the caller's transaction when it is non-nil.
type ChatService interface {
	CreateChannel(ctx context.Context, tx *gorm.DB, origin string, title *string) (*entity.MessageChannel, error)
	RenameChannel(ctx context.Context, tx *gorm.DB, channelID int64, title string) error
	DeleteChannel(ctx context.Context, tx *gorm.DB, channelID int64) error
	Join(ctx context.Context, tx *gorm.DB, channelID, userID int64) (*entity.MessageChannelParticipant, error)
	Leave(ctx context.Context, tx *gorm.DB, channelID, userID int64) error
	RemoveParticipant(ctx context.Context, tx *gorm.DB, participantID int64) error

	MyChannels(ctx context.Context, userID int64) ([]dto.ChannelResponse, error)
	Participants(ctx context.Context, userID, channelID int64) ([]dto.ParticipantResponse, error)
}

type chatService struct {
	repo repository.ChatRepository
}

func NewChatService(repo repository.ChatRepository) ChatService {
	return &chatService{repo: repo}
}

func (s *chatService) CreateChannel(ctx context.Context, tx *gorm.DB, origin string, title *string) (*entity.MessageChannel, error) {
	channel := &entity.MessageChannel{OriginName: origin, Title: title}
	if err := s.repo.WithTx(tx).CreateChannel(ctx, channel); err != nil {
		return nil, err
	}
	return channel, nil
}

func (s *chatService) RenameChannel(ctx context.Context, tx *gorm.DB, channelID int64, title string) error {
	return s.repo.WithTx(tx).UpdateTitle(ctx, channelID, title)
}

// DeleteChannel fails with a foreign key constraint error while an owner
// still references the channel.
func (s *chatService) DeleteChannel(ctx context.Context, tx *gorm.DB, channelID int64) error {
	return s.repo.WithTx(tx).DeleteChannel(ctx, channelID)
}

func (s *chatService) Join(ctx context.Context, tx *gorm.DB, channelID, userID int64) (*entity.MessageChannelParticipant, error) {
	return s.repo.WithTx(tx).GetOrCreateParticipant(ctx, channelID, userID)
}

func (s *chatService) Leave(ctx context.Context, tx *gorm.DB, channelID, userID int64) error {
	repo := s.repo.WithTx(tx)
	participant, err := repo.FindParticipant(ctx, channelID, userID)
	if err != nil {
		return err
	}
	return repo.DeleteParticipant(ctx, participant.ID)
}

func (s *chatService) RemoveParticipant(ctx context.Context, tx *gorm.DB, participantID int64) error {
	return s.repo.WithTx(tx).DeleteParticipant(ctx, participantID)
}

func (s *chatService) MyChannels(ctx context.Context, userID int64) ([]dto.ChannelResponse, error) {
	channels, err := s.repo.ChannelsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.ChannelResponse, 0, len(channels))
	for _, c := range channels {
		resp = append(resp, dto.ChannelResponse{
			ID:         c.ID,
			OriginName: c.OriginName,
			Title:      c.Title,
			CreatedAt:  c.CreatedAt,
		})
	}
	return resp, nil
}

// Participants is visible to members of the channel only.
func (s *chatService) Participants(ctx context.Context, userID, channelID int64) ([]dto.ParticipantResponse, error) {
	if _, err := s.repo.FindParticipant(ctx, channelID, userID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("channel %d: %w", channelID, apperror.ErrForbidden)
		}
		return nil, err
	}

	rows, err := s.repo.Participants(ctx, channelID)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.ParticipantResponse, 0, len(rows))
	for _, r := range rows {
		resp = append(resp, dto.ParticipantResponse{
			ID:        r.ID,
			ChannelID: r.ChannelID,
			UserID:    r.UserID,
			Username:  r.Username,
			CreatedAt: r.CreatedAt,
		})
	}
	return resp, nil
}
