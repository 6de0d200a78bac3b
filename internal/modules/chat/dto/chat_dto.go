package dto

import "time"

type ChannelResponse struct {
	ID         int64     `json:"id"`
	OriginName string    `json:"origin_name"`
	Title      *string   `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
}

type ParticipantResponse struct {
	ID        int64     `json:"id"`
	ChannelID int64     `json:"channel_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}
