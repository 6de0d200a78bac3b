package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gofven/flowback-backend-sub001/internal/contenttype"
	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/comment/dto"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/comment/repository"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	commonDto "github.com/Gofven/flowback-backend-sub001/pkg/dto"
	"github.com/Gofven/flowback-backend-sub001/pkg/storage"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxAttachments = 10

type CommentService interface {
	Create(ctx context.Context, userID int64, req dto.CreateCommentRequest, files []dto.Attachment) (*dto.CommentResponse, error)
	Delete(ctx context.Context, userID, commentID int64) error
	List(ctx context.Context, userID int64, filter dto.CommentFilter) (*dto.PaginatedCommentResponse, error)
	Cast(ctx context.Context, userID, commentID int64, vote bool) error
	Retract(ctx context.Context, userID, commentID int64) error
	Votes(ctx context.Context, commentID int64) (*dto.VoteCountResponse, error)
	// CleanupOrphanFiles removes uploads older than olderThan that ended up
	// without a comment and returns how many collections went.
	CleanupOrphanFiles(ctx context.Context, olderThan time.Duration) (int, error)
}

type commentService struct {
	db        *gorm.DB
	repo      repository.CommentRepository
	types     *contenttype.Registry
	storage   storage.FileStorage
	scores    ScoreWorker
	sanitizer *bluemonday.Policy
	folder    string
	log       zerolog.Logger
	now       func() time.Time
}

// NewCommentService wires the comment service. fileStorage may be nil, in
// which case comments with attachments are rejected.
func NewCommentService(db *gorm.DB, repo repository.CommentRepository, types *contenttype.Registry, fileStorage storage.FileStorage, scores ScoreWorker, folder string, log zerolog.Logger) CommentService {
	return &commentService{
		db:        db,
		repo:      repo,
		types:     types,
		storage:   fileStorage,
		scores:    scores,
		sanitizer: bluemonday.UGCPolicy(),
		folder:    folder,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a comment on the target. The message is sanitized; a comment
// left with neither message nor attachments is refused by the store's
// has-content check.
func (s *commentService) Create(ctx context.Context, userID int64, req dto.CreateCommentRequest, files []dto.Attachment) (*dto.CommentResponse, error) {
	ref := contenttype.Ref{ContentType: req.ContentType, ObjectID: req.ObjectID}
	if err := s.types.Resolve(ctx, s.db, ref); err != nil {
		return nil, err
	}
	if len(files) > maxAttachments {
		return nil, fmt.Errorf("%w: at most %d attachments", apperror.ErrValidation, maxAttachments)
	}
	if len(files) > 0 && s.storage == nil {
		return nil, apperror.New(http.StatusBadRequest, "attachments are not supported", apperror.ErrBadRequest)
	}

	if req.ParentID != nil {
		parent, err := s.repo.FindByID(ctx, *req.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.ContentType != ref.ContentType || parent.ObjectID != ref.ObjectID {
			return nil, fmt.Errorf("%w: parent comment belongs to another target", apperror.ErrValidation)
		}
	}

	comment := &entity.Comment{
		ContentType: ref.ContentType,
		ObjectID:    ref.ObjectID,
		AuthorID:    userID,
		ParentID:    req.ParentID,
		Message:     s.sanitize(req.Message),
		Active:      true,
	}

	uploaded, err := s.upload(ctx, files)
	if err != nil {
		return nil, err
	}

	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if len(uploaded) > 0 {
			collection := &entity.FileCollection{CreatedByID: &userID, Files: datatypes.JSONSlice[entity.File](uploaded)}
			if err := repo.CreateFiles(ctx, collection); err != nil {
				return err
			}
			comment.AttachmentsID = &collection.ID
		}
		return repo.Create(ctx, comment)
	})
	if err != nil {
		s.discard(ctx, uploaded)
		return nil, err
	}

	created, err := s.repo.FindByID(ctx, comment.ID)
	if err != nil {
		return nil, err
	}
	return toCommentResponse(created, nil), nil
}

// Delete removes the author's comment. Votes and replies go with it.
func (s *commentService) Delete(ctx context.Context, userID, commentID int64) error {
	comment, err := s.repo.FindByID(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != userID {
		return fmt.Errorf("comment %d: %w", commentID, apperror.ErrForbidden)
	}

	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Delete(ctx, comment.ID); err != nil {
			return err
		}
		if comment.AttachmentsID != nil {
			return repo.DeleteFiles(ctx, *comment.AttachmentsID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if comment.Attachments != nil {
		s.discard(ctx, comment.Attachments.Files)
	}
	return nil
}

func (s *commentService) List(ctx context.Context, userID int64, filter dto.CommentFilter) (*dto.PaginatedCommentResponse, error) {
	offset := filter.Normalize()
	comments, total, err := s.repo.FindByTarget(ctx, filter.ContentType, filter.ObjectID, filter.SortBy, filter.Limit, offset)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.ID)
	}
	votes, err := s.repo.UserVotes(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	data := make([]dto.CommentResponse, 0, len(comments))
	for i := range comments {
		var vote *bool
		if v, ok := votes[comments[i].ID]; ok {
			vote = &v
		}
		data = append(data, *toCommentResponse(&comments[i], vote))
	}
	return &dto.PaginatedCommentResponse{
		Data: data,
		Meta: commonDto.NewPaginationMeta(filter.PaginationQuery, total),
	}, nil
}

// Cast records the user's vote, replacing an earlier one.
func (s *commentService) Cast(ctx context.Context, userID, commentID int64, vote bool) error {
	if _, err := s.repo.FindByID(ctx, commentID); err != nil {
		return err
	}
	if err := s.repo.UpsertVote(ctx, &entity.CommentVote{CommentID: commentID, CreatedByID: userID, Vote: vote}); err != nil {
		return err
	}
	s.scores.Queue(ctx, commentID)
	return nil
}

// Retract removes the user's vote. Retracting a missing vote is a no-op.
func (s *commentService) Retract(ctx context.Context, userID, commentID int64) error {
	removed, err := s.repo.DeleteVote(ctx, commentID, userID)
	if err != nil {
		return err
	}
	if removed {
		s.scores.Queue(ctx, commentID)
	}
	return nil
}

func (s *commentService) Votes(ctx context.Context, commentID int64) (*dto.VoteCountResponse, error) {
	if _, err := s.repo.FindByID(ctx, commentID); err != nil {
		return nil, err
	}
	up, down, err := s.repo.CountVotes(ctx, commentID)
	if err != nil {
		return nil, err
	}
	return &dto.VoteCountResponse{Up: up, Down: down}, nil
}

func (s *commentService) CleanupOrphanFiles(ctx context.Context, olderThan time.Duration) (int, error) {
	orphans, err := s.repo.FindOrphanFiles(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, fc := range orphans {
		if err := s.repo.DeleteFiles(ctx, fc.ID); err != nil {
			s.log.Warn().Err(err).Int64("file_collection_id", fc.ID).Msg("failed to delete orphan files")
			continue
		}
		s.discard(ctx, fc.Files)
		removed++
	}
	return removed, nil
}

// StartOrphanCleanup runs CleanupOrphanFiles every interval until ctx is done.
func StartOrphanCleanup(ctx context.Context, svc CommentService, interval, olderThan time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.CleanupOrphanFiles(ctx, olderThan)
			if err != nil {
				log.Error().Err(err).Msg("orphan file cleanup failed")
				continue
			}
			log.Info().Int("removed", n).Msg("orphan file cleanup completed")
		}
	}
}

func (s *commentService) sanitize(message *string) *string {
	if message == nil {
		return nil
	}
	clean := strings.TrimSpace(s.sanitizer.Sanitize(*message))
	if clean == "" {
		return nil
	}
	return &clean
}

func (s *commentService) upload(ctx context.Context, files []dto.Attachment) ([]entity.File, error) {
	uploaded := make([]entity.File, 0, len(files))
	for _, f := range files {
		stored, err := s.storage.Upload(ctx, f.Body, s.folder, f.Name)
		if err != nil {
			s.discard(ctx, uploaded)
			return nil, fmt.Errorf("failed to upload %s: %w", f.Name, err)
		}
		size := stored.Size
		if size == 0 {
			size = f.Size
		}
		uploaded = append(uploaded, entity.File{
			URL:         stored.URL,
			PublicID:    stored.PublicID,
			Name:        f.Name,
			ContentType: f.ContentType,
			Size:        size,
		})
	}
	return uploaded, nil
}

func (s *commentService) discard(ctx context.Context, files []entity.File) {
	if s.storage == nil {
		return
	}
	for _, f := range files {
		if err := s.storage.Delete(ctx, f.PublicID); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn().Err(err).Str("public_id", f.PublicID).Msg("failed to delete stored file")
		}
	}
}

func toCommentResponse(c *entity.Comment, vote *bool) *dto.CommentResponse {
	resp := &dto.CommentResponse{
		ID:          c.ID,
		ContentType: c.ContentType,
		ObjectID:    c.ObjectID,
		ParentID:    c.ParentID,
		Message:     c.Message,
		Attachments: []dto.FileResponse{},
		Score:       c.Score,
		Edited:      c.Edited,
		UserVote:    vote,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	if c.Author != nil {
		resp.Author = commonDto.AuthorResponse{ID: c.Author.ID, Username: c.Author.Username}
	}
	if c.Attachments != nil {
		for _, f := range c.Attachments.Files {
			resp.Attachments = append(resp.Attachments, dto.FileResponse{
				URL:         f.URL,
				Name:        f.Name,
				ContentType: f.ContentType,
				Size:        f.Size,
			})
		}
	}
	return resp
}
