package entity

import (
	"time"

	"gorm.io/datatypes"
)

// File is one uploaded object inside a FileCollection.
type File struct {
	URL         string `json:"url"`
	PublicID    string `json:"public_id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
}

type FileCollection struct {
	ID          int64                     `gorm:"primaryKey" json:"id"`
	CreatedByID *int64                    `json:"created_by_id,omitempty"`
	Files       datatypes.JSONSlice[File] `gorm:"not null" json:"files"`
	CreatedAt   time.Time                 `gorm:"autoCreateTime" json:"created_at"`
}
