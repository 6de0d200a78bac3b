package dto

import (
	"encoding/json"
	"time"

	commonDto "github.com/Gofven/flowback-backend-sub001/pkg/dto"
)

type ChannelQuery struct {
	ContentType string `form:"content_type" binding:"required,max=100"`
	ObjectID    int64  `form:"object_id" binding:"required,min=1"`
}

type ListQuery struct {
	commonDto.PaginationQuery
	ChannelID int64 `form:"channel_id" binding:"required,min=1"`
}

type StreamQuery struct {
	ChannelID int64 `form:"channel" binding:"required,min=1"`
}

type ChannelResponse struct {
	ID          int64  `json:"id"`
	ContentType string `json:"content_type"`
	ObjectID    int64  `json:"object_id"`
}

// NotificationResponse is also the payload published for live subscribers.
type NotificationResponse struct {
	ID        int64           `json:"id"`
	ChannelID int64           `json:"channel_id"`
	Action    string          `json:"action"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type PaginatedNotificationResponse struct {
	Data []NotificationResponse   `json:"data"`
	Meta commonDto.PaginationMeta `json:"meta"`
}
