package entity

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationChannel routes notifications about one subject, identified by
// its content type tag and id.
type NotificationChannel struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	ContentType string    `gorm:"size:100;not null;uniqueIndex:notification_channel_unique" json:"content_type"`
	ObjectID    int64     `gorm:"not null;uniqueIndex:notification_channel_unique" json:"object_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

type NotificationObject struct {
	ID        int64          `gorm:"primaryKey" json:"id"`
	ChannelID int64          `gorm:"not null" json:"channel_id"`
	Action    string         `gorm:"size:20;not null" json:"action"`
	Message   string         `gorm:"type:text;not null" json:"message"`
	Data      datatypes.JSON `gorm:"not null" json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}
