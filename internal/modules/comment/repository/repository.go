package repository

import (
	"context"
	"time"

	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CommentRepository interface {
	WithTx(tx *gorm.DB) CommentRepository
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	CreateFiles(ctx context.Context, files *entity.FileCollection) error
	DeleteFiles(ctx context.Context, id int64) error
	FindOrphanFiles(ctx context.Context, cutoff time.Time) ([]entity.FileCollection, error)

	Create(ctx context.Context, comment *entity.Comment) error
	FindByID(ctx context.Context, id int64) (*entity.Comment, error)
	FindByTarget(ctx context.Context, contentType string, objectID int64, sortBy string, limit, offset int) ([]entity.Comment, int64, error)
	Delete(ctx context.Context, id int64) error
	UpdateScore(ctx context.Context, id int64, score decimal.Decimal) error

	UpsertVote(ctx context.Context, vote *entity.CommentVote) error
	FindVote(ctx context.Context, commentID, userID int64) (*entity.CommentVote, error)
	DeleteVote(ctx context.Context, commentID, userID int64) (bool, error)
	CountVotes(ctx context.Context, commentID int64) (up, down int64, err error)
	UserVotes(ctx context.Context, userID int64, commentIDs []int64) (map[int64]bool, error)
}

type commentRepository struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) WithTx(tx *gorm.DB) CommentRepository {
	if tx == nil {
		return r
	}
	return &commentRepository{db: tx}
}

func (r *commentRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *commentRepository) CreateFiles(ctx context.Context, files *entity.FileCollection) error {
	return apperror.FromDB(r.db.WithContext(ctx).Create(files).Error)
}

func (r *commentRepository) DeleteFiles(ctx context.Context, id int64) error {
	return apperror.FromDB(r.db.WithContext(ctx).Delete(&entity.FileCollection{}, id).Error)
}

// FindOrphanFiles lists collections created before cutoff that no comment
// references.
func (r *commentRepository) FindOrphanFiles(ctx context.Context, cutoff time.Time) ([]entity.FileCollection, error) {
	var files []entity.FileCollection
	err := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Where("NOT EXISTS (SELECT 1 FROM comments WHERE comments.attachments_id = file_collections.id)").
		Order("id").
		Find(&files).Error
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return files, nil
}

func (r *commentRepository) Create(ctx context.Context, comment *entity.Comment) error {
	return apperror.FromDB(r.db.WithContext(ctx).Omit(clause.Associations).Create(comment).Error)
}

func (r *commentRepository) FindByID(ctx context.Context, id int64) (*entity.Comment, error) {
	var comment entity.Comment
	err := r.db.WithContext(ctx).
		Preload("Author").
		Preload("Attachments").
		First(&comment, id).Error
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return &comment, nil
}

func (r *commentRepository) FindByTarget(ctx context.Context, contentType string, objectID int64, sortBy string, limit, offset int) ([]entity.Comment, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&entity.Comment{}).
		Where("content_type = ? AND object_id = ? AND active = ?", contentType, objectID, true)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperror.FromDB(err)
	}

	switch sortBy {
	case "score":
		query = query.Order("score desc").Order("id desc")
	default:
		query = query.Order("created_at desc").Order("id desc")
	}

	var comments []entity.Comment
	err := query.
		Preload("Author").
		Preload("Attachments").
		Limit(limit).
		Offset(offset).
		Find(&comments).Error
	if err != nil {
		return nil, 0, apperror.FromDB(err)
	}
	return comments, total, nil
}

// Delete removes the comment. Votes and replies cascade.
func (r *commentRepository) Delete(ctx context.Context, id int64) error {
	return apperror.FromDB(r.db.WithContext(ctx).Delete(&entity.Comment{}, id).Error)
}

func (r *commentRepository) UpdateScore(ctx context.Context, id int64, score decimal.Decimal) error {
	err := r.db.WithContext(ctx).
		Model(&entity.Comment{}).
		Where("id = ?", id).
		UpdateColumn("score", score).Error
	return apperror.FromDB(err)
}

// UpsertVote inserts the vote or, when the user already voted on the
// comment, overwrites vote and updated_at.
func (r *commentRepository) UpsertVote(ctx context.Context, vote *entity.CommentVote) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "comment_id"}, {Name: "created_by_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"vote", "updated_at"}),
		}).
		Create(vote).Error
	return apperror.FromDB(err)
}

func (r *commentRepository) FindVote(ctx context.Context, commentID, userID int64) (*entity.CommentVote, error) {
	var vote entity.CommentVote
	err := r.db.WithContext(ctx).
		Where("comment_id = ? AND created_by_id = ?", commentID, userID).
		First(&vote).Error
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return &vote, nil
}

func (r *commentRepository) DeleteVote(ctx context.Context, commentID, userID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("comment_id = ? AND created_by_id = ?", commentID, userID).
		Delete(&entity.CommentVote{})
	if res.Error != nil {
		return false, apperror.FromDB(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *commentRepository) CountVotes(ctx context.Context, commentID int64) (int64, int64, error) {
	var rows []struct {
		Vote  bool
		Total int64
	}
	err := r.db.WithContext(ctx).
		Model(&entity.CommentVote{}).
		Select("vote, COUNT(*) AS total").
		Where("comment_id = ?", commentID).
		Group("vote").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, apperror.FromDB(err)
	}

	var up, down int64
	for _, row := range rows {
		if row.Vote {
			up = row.Total
		} else {
			down = row.Total
		}
	}
	return up, down, nil
}

func (r *commentRepository) UserVotes(ctx context.Context, userID int64, commentIDs []int64) (map[int64]bool, error) {
	votes := make(map[int64]bool)
	if len(commentIDs) == 0 {
		return votes, nil
	}

	var rows []entity.CommentVote
	err := r.db.WithContext(ctx).
		Where("created_by_id = ? AND comment_id IN ?", userID, commentIDs).
		Find(&rows).Error
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	for _, row := range rows {
		votes[row.CommentID] = row.Vote
	}
	return votes, nil
}
