package dto

import (
	"io"
	"time"

	commonDto "github.com/Gofven/flowback-backend-sub001/pkg/dto"
	"github.com/shopspring/decimal"
)

type CreateCommentRequest struct {
	ContentType string  `form:"content_type" json:"content_type" binding:"required,max=100"`
	ObjectID    int64   `form:"object_id" json:"object_id" binding:"required,min=1"`
	ParentID    *int64  `form:"parent_id" json:"parent_id" binding:"omitempty,min=1"`
	Message     *string `form:"message" json:"message" binding:"omitempty,max=10000"`
}

// Attachment is one uploaded file handed to the service.
type Attachment struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type CommentFilter struct {
	commonDto.PaginationQuery
	ContentType string `form:"content_type" binding:"required,max=100"`
	ObjectID    int64  `form:"object_id" binding:"required,min=1"`
	SortBy      string `form:"sort_by" binding:"omitempty,oneof=created_at score"`
}

type VoteRequest struct {
	Vote *bool `json:"vote" binding:"required"`
}

type FileResponse struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type CommentResponse struct {
	ID          int64                    `json:"id"`
	ContentType string                   `json:"content_type"`
	ObjectID    int64                    `json:"object_id"`
	Author      commonDto.AuthorResponse `json:"author"`
	ParentID    *int64                   `json:"parent_id"`
	Message     *string                  `json:"message"`
	Attachments []FileResponse           `json:"attachments"`
	Score       decimal.Decimal          `json:"score"`
	Edited      bool                     `json:"edited"`
	UserVote    *bool                    `json:"user_vote"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

type PaginatedCommentResponse struct {
	Data []CommentResponse        `json:"data"`
	Meta commonDto.PaginationMeta `json:"meta"`
}

type VoteCountResponse struct {
	Up   int64 `json:"up"`
	Down int64 `json:"down"`
}
