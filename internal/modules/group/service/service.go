package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Gofven/flowback-backend-sub001/internal/contenttype"
	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/group/dto"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/group/repository"
	notifService "github.com/Gofven/flowback-backend-sub001/internal/modules/notification/service"
	search "github.com/Gofven/flowback-backend-sub001/internal/modules/search/service"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	commonDto "github.com/Gofven/flowback-backend-sub001/pkg/dto"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type GroupService interface {
	Create(ctx context.Context, userID int64, req dto.CreateGroupRequest) (*dto.GroupResponse, error)
	Get(ctx context.Context, id int64) (*dto.GroupResponse, error)
	List(ctx context.Context, filter dto.GroupFilter) (*dto.PaginatedGroupResponse, error)
	Update(ctx context.Context, userID, id int64, req dto.UpdateGroupRequest) (*dto.GroupResponse, error)
	Delete(ctx context.Context, userID, id int64) error
	Join(ctx context.Context, userID, id int64) (*dto.MemberResponse, error)
	Leave(ctx context.Context, userID, id int64) error
	Members(ctx context.Context, id int64) ([]dto.MemberResponse, error)
}

type groupService struct {
	repo          repository.GroupRepository
	notifications notifService.NotificationService
	meili         search.MeiliSearchService
	log           zerolog.Logger
}

// NewGroupService wires the group service. meili may be nil, in which case
// search falls back to the database.
func NewGroupService(repo repository.GroupRepository, notifications notifService.NotificationService, meili search.MeiliSearchService, log zerolog.Logger) GroupService {
	return &groupService{
		repo:          repo,
		notifications: notifications,
		meili:         meili,
		log:           log,
	}
}

func groupRef(id int64) contenttype.Ref {
	return contenttype.Ref{ContentType: contenttype.Group, ObjectID: id}
}

func (s *groupService) Create(ctx context.Context, userID int64, req dto.CreateGroupRequest) (*dto.GroupResponse, error) {
	group := &entity.Group{
		Name:            strings.TrimSpace(req.Name),
		CreatedByID:     userID,
		Active:          true,
		Description:     req.Description,
		DirectJoin:      req.DirectJoin,
		NeedsModeration: req.NeedsModeration,
		Private:         req.Private,
		Public:          req.Public,
		Tag:             datatypes.JSONSlice[string](normalizeTags(req.Tags)),
	}

	var channelID int64
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, group); err != nil {
			return err
		}
		if err := repo.AddMember(ctx, &entity.GroupUser{GroupID: group.ID, UserID: userID, IsAdmin: true, Active: true}); err != nil {
			return err
		}
		channel, err := s.notifications.GetOrCreate(ctx, tx, groupRef(group.ID))
		if err != nil {
			return err
		}
		channelID = channel.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.index(group)
	resp := toGroupResponse(group)
	resp.NotificationChannelID = channelID
	return resp, nil
}

func (s *groupService) Get(ctx context.Context, id int64) (*dto.GroupResponse, error) {
	group, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toGroupResponse(group)
	if channel, err := s.notifications.GetOrCreate(ctx, nil, groupRef(id)); err == nil {
		resp.NotificationChannelID = channel.ID
	}
	return resp, nil
}

func (s *groupService) List(ctx context.Context, filter dto.GroupFilter) (*dto.PaginatedGroupResponse, error) {
	offset := filter.Normalize()
	term := strings.ToLower(strings.TrimSpace(filter.Search))

	var (
		groups []entity.Group
		total  int64
		err    error
	)
	if term != "" && s.meili != nil {
		groups, total, err = s.searchIndex(ctx, term, filter.Limit, offset)
		if err != nil {
			s.log.Warn().Err(err).Msg("group search index unavailable, falling back to database")
		}
	}
	if groups == nil {
		groups, total, err = s.repo.FindAll(ctx, term, filter.Limit, offset)
		if err != nil {
			return nil, err
		}
	}

	data := make([]dto.GroupResponse, 0, len(groups))
	for i := range groups {
		data = append(data, *toGroupResponse(&groups[i]))
	}
	return &dto.PaginatedGroupResponse{
		Data: data,
		Meta: commonDto.NewPaginationMeta(filter.PaginationQuery, total),
	}, nil
}

// searchIndex returns nil groups when the index cannot be used.
func (s *groupService) searchIndex(ctx context.Context, term string, limit, offset int) ([]entity.Group, int64, error) {
	docs, total, err := s.meili.SearchGroups(term, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	ids := make([]int64, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	found, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	// Keep the index's ranking.
	byID := make(map[int64]entity.Group, len(found))
	for _, g := range found {
		byID[g.ID] = g
	}
	groups := make([]entity.Group, 0, len(found))
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			groups = append(groups, g)
		}
	}
	return groups, total, nil
}

func (s *groupService) Update(ctx context.Context, userID, id int64, req dto.UpdateGroupRequest) (*dto.GroupResponse, error) {
	group, err := s.requireAdmin(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		group.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		group.Description = req.Description
	}
	if req.DirectJoin != nil {
		group.DirectJoin = *req.DirectJoin
	}
	if req.NeedsModeration != nil {
		group.NeedsModeration = *req.NeedsModeration
	}
	if req.Private != nil {
		group.Private = *req.Private
	}
	if req.Public != nil {
		group.Public = *req.Public
	}
	if req.Tags != nil {
		group.Tag = datatypes.JSONSlice[string](normalizeTags(req.Tags))
	}
	group.UpdatedByID = &userID

	if err := s.repo.Update(ctx, group); err != nil {
		return nil, err
	}

	s.index(group)
	if _, err := s.notifications.Notify(ctx, nil, groupRef(group.ID), entity.ActionUpdate, fmt.Sprintf("Group %s was updated", group.Name), nil); err != nil {
		s.log.Warn().Err(err).Int64("group_id", group.ID).Msg("failed to notify group update")
	}
	return toGroupResponse(group), nil
}

// Delete is a soft delete.
func (s *groupService) Delete(ctx context.Context, userID, id int64) error {
	group, err := s.requireAdmin(ctx, userID, id)
	if err != nil {
		return err
	}

	group.Deleted = true
	group.Active = false
	group.UpdatedByID = &userID
	if err := s.repo.Update(ctx, group); err != nil {
		return err
	}

	if s.meili != nil {
		if err := s.meili.DeleteGroup(group.ID); err != nil {
			s.log.Warn().Err(err).Int64("group_id", group.ID).Msg("failed to remove group from search index")
		}
	}
	return nil
}

func (s *groupService) Join(ctx context.Context, userID, id int64) (*dto.MemberResponse, error) {
	group, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	member, err := s.repo.FindMember(ctx, id, userID)
	switch {
	case err == nil:
		if member.Active {
			return toMemberResponse(member, ""), nil
		}
		if !group.DirectJoin {
			return nil, fmt.Errorf("group %d requires an invitation: %w", id, apperror.ErrForbidden)
		}
		member.Active = true
		if err := s.repo.UpdateMember(ctx, member); err != nil {
			return nil, err
		}
		return toMemberResponse(member, ""), nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, err
	}

	if !group.DirectJoin {
		return nil, fmt.Errorf("group %d requires an invitation: %w", id, apperror.ErrForbidden)
	}
	member = &entity.GroupUser{GroupID: id, UserID: userID, Active: true}
	if err := s.repo.AddMember(ctx, member); err != nil {
		return nil, err
	}
	return toMemberResponse(member, ""), nil
}

func (s *groupService) Leave(ctx context.Context, userID, id int64) error {
	member, err := s.repo.FindMember(ctx, id, userID)
	if err != nil {
		return err
	}
	member.Active = false
	return s.repo.UpdateMember(ctx, member)
}

func (s *groupService) Members(ctx context.Context, id int64) ([]dto.MemberResponse, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.repo.Members(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.MemberResponse, 0, len(rows))
	for i := range rows {
		resp = append(resp, *toMemberResponse(&rows[i].GroupUser, rows[i].Username))
	}
	return resp, nil
}

func (s *groupService) requireAdmin(ctx context.Context, userID, groupID int64) (*entity.Group, error) {
	group, err := s.repo.FindByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := requireGroupAdmin(ctx, s.repo, groupID, userID); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *groupService) index(group *entity.Group) {
	if s.meili == nil {
		return
	}
	if err := s.meili.IndexGroup(group); err != nil {
		s.log.Warn().Err(err).Int64("group_id", group.ID).Msg("failed to index group")
	}
}

func requireGroupAdmin(ctx context.Context, repo repository.GroupRepository, groupID, userID int64) error {
	member, err := repo.FindMember(ctx, groupID, userID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	if member == nil || !member.Active || !member.IsAdmin {
		return fmt.Errorf("group %d: admin rights required: %w", groupID, apperror.ErrForbidden)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func toGroupResponse(g *entity.Group) *dto.GroupResponse {
	tags := []string(g.Tag)
	if tags == nil {
		tags = []string{}
	}
	return &dto.GroupResponse{
		ID:              g.ID,
		Name:            g.Name,
		Description:     g.Description,
		CreatedByID:     g.CreatedByID,
		Active:          g.Active,
		DirectJoin:      g.DirectJoin,
		NeedsModeration: g.NeedsModeration,
		Private:         g.Private,
		Public:          g.Public,
		Tags:            tags,
		CreatedAt:       g.CreatedAt,
		UpdatedAt:       g.UpdatedAt,
	}
}

func toMemberResponse(m *entity.GroupUser, username string) *dto.MemberResponse {
	return &dto.MemberResponse{
		ID:       m.ID,
		UserID:   m.UserID,
		Username: username,
		IsAdmin:  m.IsAdmin,
		Active:   m.Active,
	}
}
