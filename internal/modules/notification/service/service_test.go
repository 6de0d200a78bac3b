package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Gofven/flowback-backend-sub001/internal/contenttype"
	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/notification/dto"
	notifRepo "github.com/Gofven/flowback-backend-sub001/internal/modules/notification/repository"
	"github.com/Gofven/flowback-backend-sub001/internal/testutil"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	commonDto "github.com/Gofven/flowback-backend-sub001/pkg/dto"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setup(t *testing.T, redisClient *redis.Client) (*notificationService, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	require.NoError(t, db.Exec(`INSERT INTO users (username, email, password_hash) VALUES ('ann', 'ann@example.com', 'x')`).Error)
	require.NoError(t, db.Exec(`INSERT INTO groups (name, created_by_id) VALUES ('g', 1)`).Error)

	svc := NewNotificationService(db, notifRepo.NewNotificationRepository(db), contenttype.Default(), redisClient, zerolog.Nop()).(*notificationService)
	return svc, db
}

func groupRef(id int64) contenttype.Ref {
	return contenttype.Ref{ContentType: contenttype.Group, ObjectID: id}
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()
	svc, db := setup(t, nil)

	first, err := svc.GetOrCreate(ctx, nil, groupRef(1))
	require.NoError(t, err)
	second, err := svc.GetOrCreate(ctx, nil, groupRef(1))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var n int64
	require.NoError(t, db.Model(&entity.NotificationChannel{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	_, err = svc.GetOrCreate(ctx, nil, groupRef(99))
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.GetOrCreate(ctx, nil, contenttype.Ref{ContentType: "poll.poll", ObjectID: 1})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestNotify(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, db := setup(t, client)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	channel, err := svc.GetOrCreate(ctx, nil, groupRef(1))
	require.NoError(t, err)

	sub := client.Subscribe(ctx, RedisChannel(channel.ID))
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	t.Run("publishes without a transaction", func(t *testing.T) {
		note, err := svc.Notify(ctx, nil, groupRef(1), entity.ActionUpdate, "renamed", map[string]string{"name": "g2"})
		require.NoError(t, err)
		assert.Equal(t, channel.ID, note.ChannelID)
		assert.True(t, now.Equal(note.Timestamp))

		select {
		case msg := <-sub.Channel():
			var got dto.NotificationResponse
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
			assert.Equal(t, note.ID, got.ID)
			assert.Equal(t, "renamed", got.Message)
			assert.JSONEq(t, `{"name":"g2"}`, string(got.Data))
		case <-time.After(2 * time.Second):
			t.Fatal("notification not published")
		}
	})

	t.Run("waits for the caller inside a transaction", func(t *testing.T) {
		var note *entity.NotificationObject
		err := db.Transaction(func(tx *gorm.DB) error {
			var err error
			note, err = svc.Notify(ctx, tx, groupRef(1), entity.ActionCreate, "created", nil)
			return err
		})
		require.NoError(t, err)

		select {
		case <-sub.Channel():
			t.Fatal("published before commit")
		case <-time.After(100 * time.Millisecond):
		}

		svc.Publish(ctx, note)
		select {
		case msg := <-sub.Channel():
			assert.Contains(t, msg.Payload, `"created"`)
		case <-time.After(2 * time.Second):
			t.Fatal("notification not published")
		}
	})

	t.Run("rolled back with the transaction", func(t *testing.T) {
		var before int64
		require.NoError(t, db.Model(&entity.NotificationObject{}).Count(&before).Error)

		_ = db.Transaction(func(tx *gorm.DB) error {
			_, err := svc.Notify(ctx, tx, groupRef(1), entity.ActionDelete, "gone", nil)
			require.NoError(t, err)
			return apperror.ErrForbidden
		})

		var after int64
		require.NoError(t, db.Model(&entity.NotificationObject{}).Count(&after).Error)
		assert.Equal(t, before, after)
	})

	t.Run("unknown action", func(t *testing.T) {
		_, err := svc.Notify(ctx, nil, groupRef(1), "archive", "x", nil)
		assert.ErrorIs(t, err, apperror.ErrInvalidInput)
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, nil)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	var channelID int64
	for i := range 3 {
		svc.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		note, err := svc.Notify(ctx, nil, groupRef(1), entity.ActionUpdate, "n", map[string]int{"i": i})
		require.NoError(t, err)
		channelID = note.ChannelID
	}

	res, err := svc.List(ctx, dto.ListQuery{
		PaginationQuery: commonDto.PaginationQuery{Page: 1, Limit: 2},
		ChannelID:       channelID,
	})
	require.NoError(t, err)
	require.Len(t, res.Data, 2)
	assert.JSONEq(t, `{"i":2}`, string(res.Data[0].Data))
	assert.Equal(t, int64(3), res.Meta.TotalItems)
	assert.Equal(t, 2, res.Meta.TotalPages)

	_, err = svc.List(ctx, dto.ListQuery{ChannelID: 999})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
