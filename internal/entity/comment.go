package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Comment must carry a message, an attachment collection, or both.
type Comment struct {
	ID            int64           `gorm:"primaryKey" json:"id"`
	ContentType   string          `gorm:"size:100;not null" json:"content_type"`
	ObjectID      int64           `gorm:"not null" json:"object_id"`
	AuthorID      int64           `gorm:"not null" json:"author_id"`
	Author        *User           `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	ParentID      *int64          `json:"parent_id,omitempty"`
	Message       *string         `gorm:"type:text" json:"message,omitempty"`
	AttachmentsID *int64          `json:"attachments_id,omitempty"`
	Attachments   *FileCollection `gorm:"foreignKey:AttachmentsID" json:"attachments,omitempty"`
	Score         decimal.Decimal `gorm:"type:decimal(11,10);not null" json:"score"`
	Active        bool            `gorm:"not null" json:"active"`
	Edited        bool            `gorm:"not null" json:"edited"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// CommentVote is unique per (comment, created_by).
type CommentVote struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	CommentID   int64     `gorm:"not null;uniqueIndex:comment_vote_unique" json:"comment_id"`
	CreatedByID int64     `gorm:"not null;uniqueIndex:comment_vote_unique" json:"created_by_id"`
	Vote        bool      `gorm:"not null" json:"vote"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
