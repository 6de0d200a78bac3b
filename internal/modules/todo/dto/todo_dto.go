package dto

import (
	"time"

	commonDto "github.com/Gofven/flowback-backend-sub001/pkg/dto"
)

type CreateTodoRequest struct {
	Title       string  `json:"title" binding:"required,max=255"`
	Description *string `json:"description"`
}

type UpdateTodoRequest struct {
	ID          int64   `json:"id" binding:"required,min=1"`
	Title       *string `json:"title" binding:"omitempty,max=255"`
	Description *string `json:"description"`
	Done        *bool   `json:"done"`
}

type DeleteTodoRequest struct {
	ID int64 `json:"id" binding:"required,min=1"`
}

type TodoFilter struct {
	commonDto.PaginationQuery
	Done *bool `form:"done"`
}

type TodoResponse struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Done        bool      `json:"done"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type PaginatedTodoResponse struct {
	Data []TodoResponse           `json:"data"`
	Meta commonDto.PaginationMeta `json:"meta"`
}
