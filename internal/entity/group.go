package entity

import (
	"time"

	"gorm.io/datatypes"
)

type Group struct {
	ID              int64                       `gorm:"primaryKey" json:"id"`
	Name            string                      `gorm:"size:255;not null" json:"name"`
	CreatedByID     int64                       `gorm:"not null" json:"created_by_id"`
	Active          bool                        `gorm:"not null" json:"active"`
	Deleted         bool                        `gorm:"not null" json:"deleted"`
	Description     *string                     `gorm:"type:text" json:"description,omitempty"`
	DirectJoin      bool                        `gorm:"not null" json:"direct_join"`
	NeedsModeration bool                        `gorm:"not null" json:"needs_moderation"`
	Private         bool                        `gorm:"not null" json:"private"`
	Public          bool                        `gorm:"not null" json:"public"`
	Tag             datatypes.JSONSlice[string] `gorm:"not null" json:"tag"`
	UpdatedByID     *int64                      `json:"updated_by_id,omitempty"`
	CreatedAt       time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

type GroupUser struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	GroupID   int64     `gorm:"not null" json:"group_id"`
	UserID    int64     `gorm:"not null" json:"user_id"`
	IsAdmin   bool      `gorm:"not null" json:"is_admin"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// WorkGroup owns its chat channel; the channel cannot be deleted while the
// work group exists.
type WorkGroup struct {
	ID         int64           `gorm:"primaryKey" json:"id"`
	Name       string          `gorm:"size:255;not null" json:"name"`
	DirectJoin bool            `gorm:"not null" json:"direct_join"`
	GroupID    int64           `gorm:"not null" json:"group_id"`
	ChatID     int64           `gorm:"not null;uniqueIndex" json:"chat_id"`
	Chat       *MessageChannel `gorm:"foreignKey:ChatID" json:"chat,omitempty"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type WorkGroupUser struct {
	ID                int64     `gorm:"primaryKey" json:"id"`
	WorkGroupID       int64     `gorm:"not null" json:"work_group_id"`
	GroupUserID       int64     `gorm:"not null" json:"group_user_id"`
	ChatParticipantID int64     `gorm:"not null;uniqueIndex" json:"chat_participant_id"`
	IsModerator       bool      `gorm:"not null" json:"is_moderator"`
	Active            bool      `gorm:"not null" json:"active"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
