package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	chatService "github.com/Gofven/flowback-backend-sub001/internal/modules/chat/service"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/group/dto"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/group/repository"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// WorkGroupService manages work groups. Each work group owns a chat channel
// and each membership owns a participant on that channel.
type WorkGroupService interface {
	Create(ctx context.Context, userID, groupID int64, req dto.CreateWorkGroupRequest) (*dto.WorkGroupResponse, error)
	List(ctx context.Context, groupID int64) ([]dto.WorkGroupResponse, error)
	Join(ctx context.Context, userID, workGroupID int64) (*dto.WorkGroupMemberResponse, error)
	Leave(ctx context.Context, userID, workGroupID int64) error
	Delete(ctx context.Context, userID, workGroupID int64) error
	Members(ctx context.Context, workGroupID int64) ([]dto.WorkGroupMemberResponse, error)
}

type workGroupService struct {
	repo repository.GroupRepository
	chat chatService.ChatService
	log  zerolog.Logger
}

func NewWorkGroupService(repo repository.GroupRepository, chat chatService.ChatService, log zerolog.Logger) WorkGroupService {
	return &workGroupService{repo: repo, chat: chat, log: log}
}

func (s *workGroupService) Create(ctx context.Context, userID, groupID int64, req dto.CreateWorkGroupRequest) (*dto.WorkGroupResponse, error) {
	if _, err := s.repo.FindByID(ctx, groupID); err != nil {
		return nil, err
	}
	if err := requireGroupAdmin(ctx, s.repo, groupID, userID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	wg := &entity.WorkGroup{Name: name, DirectJoin: req.DirectJoin, GroupID: groupID}
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		channel, err := s.chat.CreateChannel(ctx, tx, entity.OriginWorkGroup, &name)
		if err != nil {
			return err
		}
		wg.ChatID = channel.ID
		return s.repo.WithTx(tx).CreateWorkGroup(ctx, wg)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("group_id", groupID).Int64("work_group_id", wg.ID).Msg("work group created")
	return toWorkGroupResponse(wg, 0), nil
}

func (s *workGroupService) List(ctx context.Context, groupID int64) ([]dto.WorkGroupResponse, error) {
	if _, err := s.repo.FindByID(ctx, groupID); err != nil {
		return nil, err
	}
	rows, err := s.repo.WorkGroups(ctx, groupID)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.WorkGroupResponse, 0, len(rows))
	for i := range rows {
		resp = append(resp, *toWorkGroupResponse(&rows[i].WorkGroup, rows[i].Members))
	}
	return resp, nil
}

// Join adds the caller to the work group and its channel. Only active group
// members may join, and only when the work group allows direct joins or the
// caller is a group admin.
func (s *workGroupService) Join(ctx context.Context, userID, workGroupID int64) (*dto.WorkGroupMemberResponse, error) {
	wg, err := s.repo.FindWorkGroup(ctx, workGroupID)
	if err != nil {
		return nil, err
	}
	groupUser, err := s.activeGroupUser(ctx, wg.GroupID, userID)
	if err != nil {
		return nil, err
	}
	if !wg.DirectJoin && !groupUser.IsAdmin {
		return nil, fmt.Errorf("work group %d requires an invitation: %w", workGroupID, apperror.ErrForbidden)
	}

	var member *entity.WorkGroupUser
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		participant, err := s.chat.Join(ctx, tx, wg.ChatID, userID)
		if err != nil {
			return err
		}

		existing, err := repo.FindWorkGroupMember(ctx, workGroupID, groupUser.ID)
		switch {
		case err == nil:
			existing.Active = true
			existing.ChatParticipantID = participant.ID
			member = existing
			return repo.UpdateWorkGroupMember(ctx, existing)
		case !errors.Is(err, apperror.ErrNotFound):
			return err
		}

		member = &entity.WorkGroupUser{
			WorkGroupID:       workGroupID,
			GroupUserID:       groupUser.ID,
			ChatParticipantID: participant.ID,
			Active:            true,
		}
		return repo.AddWorkGroupMember(ctx, member)
	})
	if err != nil {
		return nil, err
	}
	return toWorkGroupMemberResponse(member, userID, ""), nil
}

// Leave deactivates the membership. The chat participant stays, it is owned
// by the membership row.
func (s *workGroupService) Leave(ctx context.Context, userID, workGroupID int64) error {
	wg, err := s.repo.FindWorkGroup(ctx, workGroupID)
	if err != nil {
		return err
	}
	groupUser, err := s.repo.FindMember(ctx, wg.GroupID, userID)
	if err != nil {
		return err
	}
	member, err := s.repo.FindWorkGroupMember(ctx, workGroupID, groupUser.ID)
	if err != nil {
		return err
	}
	if !member.Active {
		return nil
	}
	member.Active = false
	return s.repo.UpdateWorkGroupMember(ctx, member)
}

// Delete removes the work group and then its channel; the channel is
// protected while the work group references it.
func (s *workGroupService) Delete(ctx context.Context, userID, workGroupID int64) error {
	wg, err := s.repo.FindWorkGroup(ctx, workGroupID)
	if err != nil {
		return err
	}
	if err := requireGroupAdmin(ctx, s.repo, wg.GroupID, userID); err != nil {
		return err
	}

	return s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).DeleteWorkGroup(ctx, wg.ID); err != nil {
			return err
		}
		return s.chat.DeleteChannel(ctx, tx, wg.ChatID)
	})
}

func (s *workGroupService) Members(ctx context.Context, workGroupID int64) ([]dto.WorkGroupMemberResponse, error) {
	if _, err := s.repo.FindWorkGroup(ctx, workGroupID); err != nil {
		return nil, err
	}
	rows, err := s.repo.WorkGroupMembers(ctx, workGroupID)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.WorkGroupMemberResponse, 0, len(rows))
	for i := range rows {
		resp = append(resp, *toWorkGroupMemberResponse(&rows[i].WorkGroupUser, rows[i].UserID, rows[i].Username))
	}
	return resp, nil
}

func (s *workGroupService) activeGroupUser(ctx context.Context, groupID, userID int64) (*entity.GroupUser, error) {
	member, err := s.repo.FindMember(ctx, groupID, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("not a member of group %d: %w", groupID, apperror.ErrForbidden)
	}
	if err != nil {
		return nil, err
	}
	if !member.Active {
		return nil, fmt.Errorf("not a member of group %d: %w", groupID, apperror.ErrForbidden)
	}
	return member, nil
}

func toWorkGroupResponse(wg *entity.WorkGroup, members int64) *dto.WorkGroupResponse {
	return &dto.WorkGroupResponse{
		ID:         wg.ID,
		GroupID:    wg.GroupID,
		Name:       wg.Name,
		DirectJoin: wg.DirectJoin,
		ChatID:     wg.ChatID,
		Members:    members,
		CreatedAt:  wg.CreatedAt,
	}
}

func toWorkGroupMemberResponse(m *entity.WorkGroupUser, userID int64, username string) *dto.WorkGroupMemberResponse {
	return &dto.WorkGroupMemberResponse{
		ID:                m.ID,
		GroupUserID:       m.GroupUserID,
		UserID:            userID,
		Username:          username,
		IsModerator:       m.IsModerator,
		Active:            m.Active,
		ChatParticipantID: m.ChatParticipantID,
	}
}
