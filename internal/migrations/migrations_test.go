package migrations_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/Gofven/flowback-backend-sub001/internal/migration"
	"github.com/Gofven/flowback-backend-sub001/internal/migrations"
	"github.com/Gofven/flowback-backend-sub001/internal/testutil"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func key(s string) migration.Key {
	k, err := migration.ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

func migrateTo(t *testing.T, ex *migration.Executor, target string) {
	t.Helper()
	k := key(target)
	require.NoError(t, ex.Migrate(context.Background(), migration.Target{App: k.App, Name: k.Name}))
}

func exec(t *testing.T, db *gorm.DB, sql string, args ...any) {
	t.Helper()
	require.NoError(t, db.Exec(sql, args...).Error)
}

func count(t *testing.T, db *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := db.Table(table)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func constraintError(t *testing.T, err error) *apperror.ConstraintError {
	t.Helper()
	require.Error(t, err)
	var ce *apperror.ConstraintError
	require.True(t, errors.As(apperror.FromDB(err), &ce), "want constraint error, got %v", err)
	return ce
}

func TestGraph(t *testing.T) {
	g, err := migrations.Graph()
	require.NoError(t, err)

	order := g.Order()
	before := func(a, b string) {
		t.Helper()
		assert.Less(t, slices.Index(order, key(a)), slices.Index(order, key(b)), "%s must run before %s", a, b)
	}
	before("user/0001_initial", "group/0001_initial")
	before("chat/0001_initial", "group/0045_workgroup_chat")
	before("group/0044_workgroup", "group/0045_workgroup_chat")
	before("group/0045_workgroup_chat", "group/0046_workgroupuser_chat_participant")
	before("notification/0001_initial", "group/0047_seed_notification_channels")
	before("scheduler/0001_initial", "schedule/0004_scheduleevent_repeat_task")
	before("schedule/0004_scheduleevent_repeat_task", "schedule/0005_repeat_frequency_yearly")
	before("comment/0002_comment_has_content", "comment/0003_commentvote")
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	ex := testutil.Executor(t, db)

	require.NoError(t, ex.Migrate(ctx, migration.Target{}))
	first := testutil.Schema(t, db)
	require.NotEmpty(t, first)

	require.NoError(t, ex.RollbackAll(ctx))
	assert.Empty(t, testutil.Schema(t, db))
	status, err := ex.Status(ctx)
	require.NoError(t, err)
	for _, s := range status {
		assert.False(t, s.Applied, s.Key.String())
	}

	require.NoError(t, ex.Migrate(ctx, migration.Target{}))
	assert.Equal(t, first, testutil.Schema(t, db))
}

func seedUserAndGroup(t *testing.T, db *gorm.DB) {
	t.Helper()
	exec(t, db, `INSERT INTO users (id, username, email, password_hash) VALUES (1, 'ada', 'ada@example.com', 'x')`)
	exec(t, db, `INSERT INTO groups (id, name, created_by_id) VALUES (1, 'Parliament', 1)`)
}

func TestWorkGroupChatBackfill(t *testing.T) {
	db := testutil.OpenDB(t)
	ex := testutil.Executor(t, db)
	migrateTo(t, ex, "group/0044_workgroup")

	seedUserAndGroup(t, db)
	for _, name := range []string{"Budget", "Roads", "Schools"} {
		exec(t, db, `INSERT INTO work_groups (name, group_id) VALUES (?, 1)`, name)
	}
	assert.False(t, db.Migrator().HasColumn("work_groups", "chat_id"))

	migrateTo(t, ex, "group/0045_workgroup_chat")

	type linked struct {
		Name       string
		ChatID     int64
		OriginName string
		Title      string
	}
	var rows []linked
	require.NoError(t, db.Raw(`SELECT w.name, w.chat_id, c.origin_name, c.title
		FROM work_groups w JOIN message_channels c ON c.id = w.chat_id ORDER BY w.id`).Scan(&rows).Error)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, "workgroup", row.OriginName)
		assert.Equal(t, row.Name, row.Title)
	}
	assert.EqualValues(t, 3, count(t, db, "message_channels", ""))

	t.Run("ChatRequired", func(t *testing.T) {
		ce := constraintError(t, db.Exec(`INSERT INTO work_groups (name, group_id) VALUES ('Orphan', 1)`).Error)
		assert.Equal(t, apperror.ConstraintNotNull, ce.Kind)
	})

	t.Run("ChannelProtected", func(t *testing.T) {
		ce := constraintError(t, db.Exec(`DELETE FROM message_channels WHERE id = ?`, rows[0].ChatID).Error)
		assert.Equal(t, apperror.ConstraintForeignKey, ce.Kind)
	})

	t.Run("OneChannelPerWorkGroup", func(t *testing.T) {
		ce := constraintError(t, db.Exec(`UPDATE work_groups SET chat_id = ? WHERE name = 'Roads'`, rows[0].ChatID).Error)
		assert.Equal(t, apperror.ConstraintUnique, ce.Kind)
	})

	t.Run("Rollback", func(t *testing.T) {
		migrateTo(t, ex, "group/0044_workgroup")
		assert.False(t, db.Migrator().HasColumn("work_groups", "chat_id"))
		assert.Zero(t, count(t, db, "message_channels", "origin_name = ?", "workgroup"))
		assert.EqualValues(t, 3, count(t, db, "work_groups", ""))
	})
}

func TestWorkGroupParticipantBackfill(t *testing.T) {
	db := testutil.OpenDB(t)
	ex := testutil.Executor(t, db)
	migrateTo(t, ex, "group/0045_workgroup_chat")

	seedUserAndGroup(t, db)
	exec(t, db, `INSERT INTO users (id, username, email, password_hash) VALUES (2, 'grace', 'grace@example.com', 'x')`)
	exec(t, db, `INSERT INTO group_users (id, group_id, user_id) VALUES (1, 1, 1), (2, 1, 2)`)
	exec(t, db, `INSERT INTO message_channels (id, origin_name, title) VALUES (10, 'workgroup', 'Budget')`)
	exec(t, db, `INSERT INTO work_groups (id, name, group_id, chat_id) VALUES (1, 'Budget', 1, 10)`)
	exec(t, db, `INSERT INTO work_group_users (work_group_id, group_user_id) VALUES (1, 1), (1, 2)`)
	// ada is already in the channel and must not be joined twice.
	exec(t, db, `INSERT INTO message_channel_participants (id, channel_id, user_id) VALUES (7, 10, 1)`)

	migrateTo(t, ex, "group/0046_workgroupuser_chat_participant")

	type member struct {
		GroupUserID       int64
		ChatParticipantID int64
		ChannelID         int64
		UserID            int64
	}
	var members []member
	require.NoError(t, db.Raw(`SELECT wu.group_user_id, wu.chat_participant_id, p.channel_id, p.user_id
		FROM work_group_users wu JOIN message_channel_participants p ON p.id = wu.chat_participant_id
		ORDER BY wu.id`).Scan(&members).Error)
	require.Len(t, members, 2)
	assert.EqualValues(t, 7, members[0].ChatParticipantID)
	for i, m := range members {
		assert.EqualValues(t, 10, m.ChannelID)
		assert.EqualValues(t, i+1, m.UserID)
	}
	assert.EqualValues(t, 2, count(t, db, "message_channel_participants", ""))

	ce := constraintError(t, db.Exec(`DELETE FROM message_channel_participants WHERE id = 7`).Error)
	assert.Equal(t, apperror.ConstraintForeignKey, ce.Kind)
}

func TestNotificationChannelSeeding(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	ex := testutil.Executor(t, db)
	migrateTo(t, ex, "group/0046_workgroupuser_chat_participant")
	migrateTo(t, ex, "notification/0001_initial")

	exec(t, db, `INSERT INTO users (id, username, email, password_hash) VALUES (1, 'ada', 'ada@example.com', 'x')`)
	for i := 1; i <= 5; i++ {
		exec(t, db, `INSERT INTO groups (id, name, created_by_id) VALUES (?, ?, 1)`, i, fmt.Sprintf("group %d", i))
	}
	exec(t, db, `INSERT INTO notification_channels (content_type, object_id) VALUES ('group.group', 3)`)

	for run := 0; run < 2; run++ {
		require.NoError(t, ex.Migrate(ctx, migration.Target{}))
		assert.EqualValues(t, 5, count(t, db, "notification_channels", "content_type = ?", "group.group"), "run %d", run)

		var ids []int64
		require.NoError(t, db.Table("notification_channels").Order("object_id").Pluck("object_id", &ids).Error)
		assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)

		migrateTo(t, ex, "group/0046_workgroupuser_chat_participant")
	}

	ce := constraintError(t, db.Exec(`INSERT INTO notification_channels (content_type, object_id) VALUES ('group.group', 1)`).Error)
	assert.Equal(t, apperror.ConstraintUnique, ce.Kind)
}

func seedSchedule(t *testing.T, db *gorm.DB) {
	t.Helper()
	exec(t, db, `INSERT INTO schedules (id, name, origin_name, origin_id) VALUES (1, 'Group 1', 'group', 1)`)
}

func insertEvent(db *gorm.DB, set string, value any) error {
	return db.Exec(`INSERT INTO schedule_events (schedule_id, title, start_date, origin_name, origin_id, `+set+`)
		VALUES (1, 'Meeting', '2025-01-31 10:00:00', 'group', 1, ?)`, value).Error
}

func TestRepeatDurationBounds(t *testing.T) {
	db := testutil.NewDB(t)
	seedSchedule(t, db)

	require.NoError(t, insertEvent(db, "repeat_duration", 86400))
	require.NoError(t, insertEvent(db, "repeat_duration", 0))

	ce := constraintError(t, insertEvent(db, "repeat_duration", 86401))
	assert.Equal(t, apperror.ConstraintCheck, ce.Kind)
	assert.Equal(t, "schedule_events_repeat_duration_max", ce.Constraint)

	ce = constraintError(t, insertEvent(db, "repeat_duration", -1))
	assert.Equal(t, "schedule_events_repeat_duration_min", ce.Constraint)
}

func TestRepeatFrequencyYearly(t *testing.T) {
	db := testutil.OpenDB(t)
	ex := testutil.Executor(t, db)
	migrateTo(t, ex, "schedule/0004_scheduleevent_repeat_task")
	seedSchedule(t, db)

	for f := 1; f <= 3; f++ {
		require.NoError(t, insertEvent(db, "repeat_frequency", f))
	}
	ce := constraintError(t, insertEvent(db, "repeat_frequency", 4))
	assert.Equal(t, "scheduleevent_repeat_frequency_valid", ce.Constraint)

	migrateTo(t, ex, "schedule/0005_repeat_frequency_yearly")

	var stored []int
	require.NoError(t, db.Table("schedule_events").Order("id").Pluck("repeat_frequency", &stored).Error)
	assert.Equal(t, []int{1, 2, 3}, stored)

	require.NoError(t, insertEvent(db, "repeat_frequency", 4))
	constraintError(t, insertEvent(db, "repeat_frequency", 5))
}

func TestCommentConstraints(t *testing.T) {
	db := testutil.NewDB(t)
	exec(t, db, `INSERT INTO users (id, username, email, password_hash) VALUES (1, 'ada', 'ada@example.com', 'x')`)

	t.Run("HasContent", func(t *testing.T) {
		ce := constraintError(t, db.Exec(`INSERT INTO comments (content_type, object_id, author_id) VALUES ('group.group', 1, 1)`).Error)
		assert.Equal(t, apperror.ConstraintCheck, ce.Kind)
		assert.Equal(t, "comment_has_content", ce.Constraint)
		assert.Zero(t, count(t, db, "comments", ""))

		exec(t, db, `INSERT INTO file_collections (id, files) VALUES (1, '[]')`)
		exec(t, db, `INSERT INTO comments (id, content_type, object_id, author_id, attachments_id) VALUES (1, 'group.group', 1, 1, 1)`)
		exec(t, db, `INSERT INTO comments (id, content_type, object_id, author_id, message) VALUES (2, 'group.group', 1, 1, 'hi')`)
	})

	t.Run("OneVotePerUser", func(t *testing.T) {
		exec(t, db, `INSERT INTO comment_votes (comment_id, created_by_id, vote) VALUES (2, 1, TRUE)`)
		ce := constraintError(t, db.Exec(`INSERT INTO comment_votes (comment_id, created_by_id, vote) VALUES (2, 1, FALSE)`).Error)
		assert.Equal(t, apperror.ConstraintUnique, ce.Kind)
	})

	t.Run("VotesCascade", func(t *testing.T) {
		exec(t, db, `DELETE FROM comments WHERE id = 2`)
		assert.Zero(t, count(t, db, "comment_votes", ""))
	})
}
