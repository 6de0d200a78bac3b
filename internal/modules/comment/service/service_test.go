package service_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Gofven/flowback-backend-sub001/internal/contenttype"
	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/comment/dto"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/comment/repository"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/comment/service"
	"github.com/Gofven/flowback-backend-sub001/internal/testutil"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"github.com/Gofven/flowback-backend-sub001/pkg/storage"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memStorage struct {
	mu      sync.Mutex
	stored  map[string]string
	deleted []string
}

func newMemStorage() *memStorage {
	return &memStorage{stored: make(map[string]string)}
}

func (m *memStorage) Upload(_ context.Context, r io.Reader, folder, fileName string) (*storage.UploadedFile, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("%s/%d-%s", folder, len(m.stored), fileName)
	m.stored[id] = string(body)
	return &storage.UploadedFile{URL: "https://files.example.com/" + id, PublicID: id, Size: int64(len(body))}, nil
}

func (m *memStorage) Delete(_ context.Context, publicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stored, publicID)
	m.deleted = append(m.deleted, publicID)
	return nil
}

type fixture struct {
	db      *gorm.DB
	repo    repository.CommentRepository
	svc     service.CommentService
	scores  service.ScoreWorker
	storage *memStorage
	group   int64
}

func setup(t *testing.T, redisClient *redis.Client) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	for _, name := range []string{"ann", "bob", "cid", "dan"} {
		require.NoError(t, db.Create(&entity.User{Username: name, Email: name + "@example.com", PasswordHash: "x", IsActive: true}).Error)
	}
	group := &entity.Group{Name: "Roads", CreatedByID: 1, Active: true}
	require.NoError(t, db.Create(group).Error)

	repo := repository.NewCommentRepository(db)
	scores := service.NewScoreWorker(repo, redisClient, zerolog.Nop())
	files := newMemStorage()
	return fixture{
		db:      db,
		repo:    repo,
		svc:     service.NewCommentService(db, repo, contenttype.Default(), files, scores, "comments", zerolog.Nop()),
		scores:  scores,
		storage: files,
		group:   group.ID,
	}
}

func (f fixture) comment(t *testing.T, userID int64, message string) *dto.CommentResponse {
	t.Helper()
	c, err := f.svc.Create(context.Background(), userID, dto.CreateCommentRequest{
		ContentType: contenttype.Group,
		ObjectID:    f.group,
		Message:     &message,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestCastIsUniquePerUser(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	c := f.comment(t, 1, "first")

	require.NoError(t, f.svc.Cast(ctx, 2, c.ID, true))
	first, err := f.repo.FindVote(ctx, c.ID, 2)
	require.NoError(t, err)
	assert.True(t, first.Vote)

	t.Run("same vote twice keeps one row", func(t *testing.T) {
		require.NoError(t, f.svc.Cast(ctx, 2, c.ID, true))
		var n int64
		require.NoError(t, f.db.Model(&entity.CommentVote{}).Where("comment_id = ?", c.ID).Count(&n).Error)
		assert.Equal(t, int64(1), n)
	})

	t.Run("changing the vote overwrites it", func(t *testing.T) {
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, f.svc.Cast(ctx, 2, c.ID, false))

		var votes []entity.CommentVote
		require.NoError(t, f.db.Where("comment_id = ?", c.ID).Find(&votes).Error)
		require.Len(t, votes, 1)
		assert.False(t, votes[0].Vote)
		assert.Equal(t, first.ID, votes[0].ID)
		assert.True(t, votes[0].UpdatedAt.After(first.UpdatedAt))
	})

	t.Run("store rejects duplicate rows", func(t *testing.T) {
		err := f.db.Create(&entity.CommentVote{CommentID: c.ID, CreatedByID: 2, Vote: true}).Error
		assert.ErrorIs(t, apperror.FromDB(err), apperror.ErrConstraintViolation)
	})

	t.Run("votes and retract", func(t *testing.T) {
		require.NoError(t, f.svc.Cast(ctx, 3, c.ID, true))
		votes, err := f.svc.Votes(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, &dto.VoteCountResponse{Up: 1, Down: 1}, votes)

		require.NoError(t, f.svc.Retract(ctx, 3, c.ID))
		require.NoError(t, f.svc.Retract(ctx, 3, c.ID))
		votes, err = f.svc.Votes(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, &dto.VoteCountResponse{Up: 0, Down: 1}, votes)
	})

	t.Run("missing comment", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.Cast(ctx, 2, 999, true), apperror.ErrNotFound)
	})
}

func TestCreateRequiresContent(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)

	tests := []struct {
		name    string
		message *string
	}{
		{name: "no message", message: nil},
		{name: "markup only", message: strPtr("<script>alert(1)</script>")},
		{name: "whitespace", message: strPtr("   ")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, 1, dto.CreateCommentRequest{
				ContentType: contenttype.Group,
				ObjectID:    f.group,
				Message:     tt.message,
			}, nil)
			require.Error(t, err)
			var ce *apperror.ConstraintError
			require.ErrorAs(t, err, &ce)
			assert.ErrorIs(t, err, apperror.ErrConstraintViolation)
		})
	}

	var n int64
	require.NoError(t, f.db.Model(&entity.Comment{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)

	t.Run("message is sanitized", func(t *testing.T) {
		c := f.comment(t, 1, `<b>hello</b><script>alert(1)</script>`)
		require.NotNil(t, c.Message)
		assert.Equal(t, "<b>hello</b>", *c.Message)
		assert.Equal(t, "ann", c.Author.Username)
		assert.True(t, c.Score.IsZero())
	})

	t.Run("attachments only", func(t *testing.T) {
		c, err := f.svc.Create(ctx, 2, dto.CreateCommentRequest{ContentType: contenttype.Group, ObjectID: f.group},
			[]dto.Attachment{{Name: "plan.pdf", ContentType: "application/pdf", Body: strings.NewReader("%PDF")}})
		require.NoError(t, err)
		assert.Nil(t, c.Message)
		require.Len(t, c.Attachments, 1)
		assert.Equal(t, "plan.pdf", c.Attachments[0].Name)
		assert.Equal(t, int64(4), c.Attachments[0].Size)

		require.NoError(t, f.svc.Delete(ctx, 2, c.ID))
		assert.Len(t, f.storage.deleted, 1)
		assert.Empty(t, f.storage.stored)
	})

	t.Run("reply must share the target", func(t *testing.T) {
		parent := f.comment(t, 1, "parent")
		reply, err := f.svc.Create(ctx, 2, dto.CreateCommentRequest{
			ContentType: contenttype.Group, ObjectID: f.group, ParentID: &parent.ID, Message: strPtr("reply"),
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, &parent.ID, reply.ParentID)

		other := &entity.Group{Name: "Parks", CreatedByID: 1, Active: true}
		require.NoError(t, f.db.Create(other).Error)
		_, err = f.svc.Create(ctx, 2, dto.CreateCommentRequest{
			ContentType: contenttype.Group, ObjectID: other.ID, ParentID: &parent.ID, Message: strPtr("reply"),
		}, nil)
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := f.svc.Create(ctx, 1, dto.CreateCommentRequest{ContentType: contenttype.Group, ObjectID: 999, Message: strPtr("x")}, nil)
		assert.ErrorIs(t, err, apperror.ErrNotFound)

		_, err = f.svc.Create(ctx, 1, dto.CreateCommentRequest{ContentType: "poll.poll", ObjectID: 1, Message: strPtr("x")}, nil)
		assert.ErrorIs(t, err, apperror.ErrInvalidInput)
	})
}

func TestDeleteCascadesVotes(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	c := f.comment(t, 1, "doomed")
	keep := f.comment(t, 1, "kept")

	for _, user := range []int64{2, 3, 4} {
		require.NoError(t, f.svc.Cast(ctx, user, c.ID, user%2 == 0))
	}
	require.NoError(t, f.svc.Cast(ctx, 2, keep.ID, true))

	assert.ErrorIs(t, f.svc.Delete(ctx, 2, c.ID), apperror.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, 1, c.ID))

	var n int64
	require.NoError(t, f.db.Model(&entity.CommentVote{}).Where("comment_id = ?", c.ID).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, f.db.Model(&entity.CommentVote{}).Where("comment_id = ?", keep.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestListIncludesOwnVote(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	older := f.comment(t, 1, "older")
	newer := f.comment(t, 2, "newer")
	require.NoError(t, f.svc.Cast(ctx, 3, older.ID, false))

	list, err := f.svc.List(ctx, 3, dto.CommentFilter{ContentType: contenttype.Group, ObjectID: f.group})
	require.NoError(t, err)
	require.Len(t, list.Data, 2)
	assert.Equal(t, int64(2), list.Meta.TotalItems)
	assert.Equal(t, newer.ID, list.Data[0].ID)
	assert.Nil(t, list.Data[0].UserVote)
	require.NotNil(t, list.Data[1].UserVote)
	assert.False(t, *list.Data[1].UserVote)
}

func TestScoreWorker(t *testing.T) {
	ctx := context.Background()

	t.Run("queued through redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		f := setup(t, client)
		c := f.comment(t, 1, "score me")
		for _, user := range []int64{1, 2, 3} {
			require.NoError(t, f.svc.Cast(ctx, user, c.ID, true))
		}
		require.NoError(t, f.svc.Cast(ctx, 4, c.ID, false))

		members, err := mr.Members("pending:comment_scores")
		require.NoError(t, err)
		assert.Equal(t, []string{fmt.Sprint(c.ID)}, members)

		stored, err := f.repo.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.True(t, stored.Score.IsZero(), "score is written by the worker")

		n, err := f.scores.Sync(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.False(t, mr.Exists("pending:comment_scores"))

		stored, err = f.repo.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.InDelta(t, service.WilsonScore(3, 1).InexactFloat64(), stored.Score.InexactFloat64(), 1e-9)
	})

	t.Run("inline without redis", func(t *testing.T) {
		f := setup(t, nil)
		c := f.comment(t, 1, "score me")
		require.NoError(t, f.svc.Cast(ctx, 2, c.ID, true))

		stored, err := f.repo.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.InDelta(t, service.WilsonScore(1, 0).InexactFloat64(), stored.Score.InexactFloat64(), 1e-9)

		n, err := f.scores.Sync(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestWilsonScore(t *testing.T) {
	assert.True(t, service.WilsonScore(0, 0).IsZero())
	assert.True(t, service.WilsonScore(0, 5).IsZero())

	one := service.WilsonScore(1, 0)
	assert.InDelta(t, 0.2065, one.InexactFloat64(), 1e-4)

	many := service.WilsonScore(100, 0)
	assert.True(t, many.GreaterThan(one))
	assert.True(t, many.LessThan(service.WilsonScore(1000, 0)))
	assert.LessOrEqual(t, service.WilsonScore(1000000, 0).InexactFloat64(), 1.0)

	assert.True(t, service.WilsonScore(60, 40).LessThan(service.WilsonScore(600, 400)))
}

func strPtr(s string) *string { return &s }

func TestCleanupOrphanFiles(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)

	resp, err := f.svc.Create(ctx, 1, dto.CreateCommentRequest{
		ContentType: contenttype.Group,
		ObjectID:    f.group,
	}, []dto.Attachment{{Name: "kept.txt", Body: strings.NewReader("kept")}})
	require.NoError(t, err)

	old := time.Now().UTC().Add(-48 * time.Hour)
	orphan := &entity.FileCollection{Files: []entity.File{{PublicID: "comments/orphan.txt", Name: "orphan.txt"}}}
	require.NoError(t, f.db.Create(orphan).Error)
	require.NoError(t, f.db.Model(orphan).UpdateColumn("created_at", old).Error)

	fresh := &entity.FileCollection{Files: []entity.File{{PublicID: "comments/fresh.txt", Name: "fresh.txt"}}}
	require.NoError(t, f.db.Create(fresh).Error)

	require.NoError(t, f.db.Model(&entity.FileCollection{}).Where("id <> ? AND id <> ?", orphan.ID, fresh.ID).UpdateColumn("created_at", old).Error)

	removed, err := f.svc.CleanupOrphanFiles(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"comments/orphan.txt"}, f.storage.deleted)

	var ids []int64
	require.NoError(t, f.db.Model(&entity.FileCollection{}).Order("id").Pluck("id", &ids).Error)
	assert.Len(t, ids, 2)
	assert.NotContains(t, ids, orphan.ID)

	listed, err := f.svc.List(ctx, 1, dto.CommentFilter{ContentType: contenttype.Group, ObjectID: f.group})
	require.NoError(t, err)
	require.Len(t, listed.Data, 1)
	assert.Equal(t, resp.ID, listed.Data[0].ID)
	assert.Len(t, listed.Data[0].Attachments, 1)
}
