package repository

import (
	"context"

	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"gorm.io/gorm"
)

type TodoRepository interface {
	Create(ctx context.Context, item *entity.TodoItem) error
	FindByID(ctx context.Context, userID, id int64) (*entity.TodoItem, error)
	FindByUser(ctx context.Context, userID int64, done *bool, limit, offset int) ([]entity.TodoItem, int64, error)
	Update(ctx context.Context, item *entity.TodoItem) error
	Delete(ctx context.Context, userID, id int64) (bool, error)
}

type todoRepository struct {
	db *gorm.DB
}

func NewTodoRepository(db *gorm.DB) TodoRepository {
	return &todoRepository{db: db}
}

func (r *todoRepository) Create(ctx context.Context, item *entity.TodoItem) error {
	return apperror.FromDB(r.db.WithContext(ctx).Create(item).Error)
}

func (r *todoRepository) FindByID(ctx context.Context, userID, id int64) (*entity.TodoItem, error) {
	var item entity.TodoItem
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&item, id).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &item, nil
}

func (r *todoRepository) FindByUser(ctx context.Context, userID int64, done *bool, limit, offset int) ([]entity.TodoItem, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.TodoItem{}).Where("user_id = ?", userID)
	if done != nil {
		query = query.Where("done = ?", *done)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperror.FromDB(err)
	}

	var items []entity.TodoItem
	err := query.Order("created_at desc").Order("id desc").Limit(limit).Offset(offset).Find(&items).Error
	if err != nil {
		return nil, 0, apperror.FromDB(err)
	}
	return items, total, nil
}

func (r *todoRepository) Update(ctx context.Context, item *entity.TodoItem) error {
	return apperror.FromDB(r.db.WithContext(ctx).Save(item).Error)
}

func (r *todoRepository) Delete(ctx context.Context, userID, id int64) (bool, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&entity.TodoItem{}, id)
	if res.Error != nil {
		return false, apperror.FromDB(res.Error)
	}
	return res.RowsAffected > 0, nil
}
