package service_test

import (
	"context"
	"testing"

	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/chat/repository"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/chat/service"
	"github.com/Gofven/flowback-backend-sub001/internal/testutil"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelMembership(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	for _, name := range []string{"ann", "bob", "cid"} {
		require.NoError(t, db.Exec(`INSERT INTO users (username, email, password_hash) VALUES (?, ?, 'x')`, name, name+"@example.com").Error)
	}
	svc := service.NewChatService(repository.NewChatRepository(db))

	title := "planning"
	channel, err := svc.CreateChannel(ctx, nil, entity.OriginWorkGroup, &title)
	require.NoError(t, err)
	require.NotZero(t, channel.ID)

	first, err := svc.Join(ctx, nil, channel.ID, 1)
	require.NoError(t, err)
	again, err := svc.Join(ctx, nil, channel.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "joining twice keeps one participant")

	_, err = svc.Join(ctx, nil, channel.ID, 2)
	require.NoError(t, err)

	t.Run("participants are visible to members", func(t *testing.T) {
		rows, err := svc.Participants(ctx, 1, channel.ID)
		require.NoError(t, err)
		names := make([]string, 0, len(rows))
		for _, r := range rows {
			names = append(names, r.Username)
		}
		assert.ElementsMatch(t, []string{"ann", "bob"}, names)

		_, err = svc.Participants(ctx, 3, channel.ID)
		assert.ErrorIs(t, err, apperror.ErrForbidden)
	})

	t.Run("my channels", func(t *testing.T) {
		channels, err := svc.MyChannels(ctx, 2)
		require.NoError(t, err)
		require.Len(t, channels, 1)
		assert.Equal(t, "planning", *channels[0].Title)

		channels, err = svc.MyChannels(ctx, 3)
		require.NoError(t, err)
		assert.Empty(t, channels)
	})

	t.Run("rename", func(t *testing.T) {
		require.NoError(t, svc.RenameChannel(ctx, nil, channel.ID, "retro"))
		channels, err := svc.MyChannels(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "retro", *channels[0].Title)
	})

	t.Run("leave", func(t *testing.T) {
		require.NoError(t, svc.Leave(ctx, nil, channel.ID, 2))
		_, err := svc.Participants(ctx, 2, channel.ID)
		assert.ErrorIs(t, err, apperror.ErrForbidden)

		assert.ErrorIs(t, svc.Leave(ctx, nil, channel.ID, 2), apperror.ErrNotFound)
	})

	t.Run("delete removes participants", func(t *testing.T) {
		require.NoError(t, svc.DeleteChannel(ctx, nil, channel.ID))

		var n int64
		require.NoError(t, db.Model(&entity.MessageChannelParticipant{}).Where("channel_id = ?", channel.ID).Count(&n).Error)
		assert.Zero(t, n)
	})
}
