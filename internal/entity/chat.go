package entity

import (
	"time"
)

// OriginWorkGroup is the origin_name of channels owned by a work group.
const OriginWorkGroup = "workgroup"

type MessageChannel struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	OriginName string    `gorm:"size:255;not null" json:"origin_name"`
	Title      *string   `gorm:"size:255" json:"title,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type MessageChannelParticipant struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	ChannelID int64     `gorm:"not null" json:"channel_id"`
	UserID    int64     `gorm:"not null" json:"user_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
