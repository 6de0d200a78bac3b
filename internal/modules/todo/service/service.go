package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/todo/dto"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/todo/repository"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	commonDto "github.com/Gofven/flowback-backend-sub001/pkg/dto"
)

type TodoService interface {
	Create(ctx context.Context, userID int64, req dto.CreateTodoRequest) (*dto.TodoResponse, error)
	List(ctx context.Context, userID int64, filter dto.TodoFilter) (*dto.PaginatedTodoResponse, error)
	Update(ctx context.Context, userID int64, req dto.UpdateTodoRequest) (*dto.TodoResponse, error)
	Delete(ctx context.Context, userID, id int64) error
}

type todoService struct {
	repo repository.TodoRepository
}

func NewTodoService(repo repository.TodoRepository) TodoService {
	return &todoService{repo: repo}
}

func (s *todoService) Create(ctx context.Context, userID int64, req dto.CreateTodoRequest) (*dto.TodoResponse, error) {
	item := &entity.TodoItem{
		UserID:      userID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}
	return toResponse(item), nil
}

func (s *todoService) List(ctx context.Context, userID int64, filter dto.TodoFilter) (*dto.PaginatedTodoResponse, error) {
	offset := filter.Normalize()
	items, total, err := s.repo.FindByUser(ctx, userID, filter.Done, filter.Limit, offset)
	if err != nil {
		return nil, err
	}

	data := make([]dto.TodoResponse, 0, len(items))
	for i := range items {
		data = append(data, *toResponse(&items[i]))
	}
	return &dto.PaginatedTodoResponse{
		Data: data,
		Meta: commonDto.NewPaginationMeta(filter.PaginationQuery, total),
	}, nil
}

func (s *todoService) Update(ctx context.Context, userID int64, req dto.UpdateTodoRequest) (*dto.TodoResponse, error) {
	item, err := s.repo.FindByID(ctx, userID, req.ID)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		item.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		item.Description = req.Description
	}
	if req.Done != nil {
		item.Done = *req.Done
	}
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, err
	}
	return toResponse(item), nil
}

func (s *todoService) Delete(ctx context.Context, userID, id int64) error {
	deleted, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("todo %d: %w", id, apperror.ErrNotFound)
	}
	return nil
}

func toResponse(item *entity.TodoItem) *dto.TodoResponse {
	return &dto.TodoResponse{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		Done:        item.Done,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}
