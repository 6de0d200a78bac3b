package dto

import (
	"time"

	commonDto "github.com/Gofven/flowback-backend-sub001/pkg/dto"
)

type CreateGroupRequest struct {
	Name            string   `json:"name" binding:"required,max=255"`
	Description     *string  `json:"description" binding:"omitempty,max=10000"`
	DirectJoin      bool     `json:"direct_join"`
	NeedsModeration bool     `json:"needs_moderation"`
	Private         bool     `json:"private"`
	Public          bool     `json:"public"`
	Tags            []string `json:"tags" binding:"omitempty,max=20,dive,max=50"`
}

type UpdateGroupRequest struct {
	Name            *string  `json:"name" binding:"omitempty,max=255"`
	Description     *string  `json:"description" binding:"omitempty,max=10000"`
	DirectJoin      *bool    `json:"direct_join"`
	NeedsModeration *bool    `json:"needs_moderation"`
	Private         *bool    `json:"private"`
	Public          *bool    `json:"public"`
	Tags            []string `json:"tags" binding:"omitempty,max=20,dive,max=50"`
}

type GroupFilter struct {
	commonDto.PaginationQuery
	Search string `form:"search" binding:"omitempty,max=200"`
}

type GroupResponse struct {
	ID                    int64     `json:"id"`
	Name                  string    `json:"name"`
	Description           *string   `json:"description"`
	CreatedByID           int64     `json:"created_by_id"`
	Active                bool      `json:"active"`
	DirectJoin            bool      `json:"direct_join"`
	NeedsModeration       bool      `json:"needs_moderation"`
	Private               bool      `json:"private"`
	Public                bool      `json:"public"`
	Tags                  []string  `json:"tags"`
	NotificationChannelID int64     `json:"notification_channel_id,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type PaginatedGroupResponse struct {
	Data []GroupResponse          `json:"data"`
	Meta commonDto.PaginationMeta `json:"meta"`
}

type MemberResponse struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	Active   bool   `json:"active"`
}

type CreateWorkGroupRequest struct {
	Name       string `json:"name" binding:"required,max=255"`
	DirectJoin bool   `json:"direct_join"`
}

type WorkGroupResponse struct {
	ID         int64     `json:"id"`
	GroupID    int64     `json:"group_id"`
	Name       string    `json:"name"`
	DirectJoin bool      `json:"direct_join"`
	ChatID     int64     `json:"chat_id"`
	Members    int64     `json:"members"`
	CreatedAt  time.Time `json:"created_at"`
}

type WorkGroupMemberResponse struct {
	ID                int64  `json:"id"`
	GroupUserID       int64  `json:"group_user_id"`
	UserID            int64  `json:"user_id"`
	Username          string `json:"username"`
	IsModerator       bool   `json:"is_moderator"`
	Active            bool   `json:"active"`
	ChatParticipantID int64  `json:"chat_participant_id"`
}
