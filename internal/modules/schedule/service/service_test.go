package service

import (
	"context"
	"testing"
	"time"

	"github.com/Gofven/flowback-backend-sub001/internal/contenttype"
	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	notifRepo "github.com/Gofven/flowback-backend-sub001/internal/modules/notification/repository"
	notifService "github.com/Gofven/flowback-backend-sub001/internal/modules/notification/service"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/schedule/dto"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/schedule/repository"
	"github.com/Gofven/flowback-backend-sub001/internal/recurrence"
	"github.com/Gofven/flowback-backend-sub001/internal/scheduler"
	"github.com/Gofven/flowback-backend-sub001/internal/testutil"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	svc      *eventService
	registry *scheduler.Registry
	schedule int64
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	for _, name := range []string{"ann", "bob"} {
		require.NoError(t, db.Create(&entity.User{Username: name, Email: name + "@example.com", PasswordHash: "x", IsActive: true}).Error)
	}

	registry := scheduler.NewRegistry(db, nil, zerolog.Nop())
	notifications := notifService.NewNotificationService(db, notifRepo.NewNotificationRepository(db), contenttype.Default(), nil, zerolog.Nop())
	svc := NewEventService(repository.NewScheduleRepository(db), registry, notifications, zerolog.Nop()).(*eventService)

	schedule, err := svc.CreateSchedule(context.Background(), 1, dto.CreateScheduleRequest{Name: "ann", OriginName: entity.ScheduleOriginUser})
	require.NoError(t, err)
	return fixture{db: db, svc: svc, registry: registry, schedule: schedule.ID}
}

func ptr[T any](v T) *T { return &v }

func monthly(start time.Time) dto.CreateEventRequest {
	return dto.CreateEventRequest{
		Title:           "Board meeting",
		StartDate:       start,
		EndDate:         ptr(start.Add(time.Hour)),
		RepeatFrequency: ptr(int(recurrence.Monthly)),
	}
}

func TestCreateRecurringEvent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	event, err := f.svc.Create(ctx, 1, f.schedule, monthly(time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	require.NotNil(t, event.RepeatTaskID)
	require.NotNil(t, event.RepeatNextRun)
	assert.True(t, time.Date(2025, 2, 28, 10, 0, 0, 0, time.UTC).Equal(*event.RepeatNextRun))
	assert.Equal(t, "UTC", event.TimeZone)

	task, err := f.registry.Get(ctx, nil, *event.RepeatTaskID)
	require.NoError(t, err)
	assert.Equal(t, TaskName(event.ID), task.Name)
	assert.Equal(t, TaskEventFire, task.Task)
	eventID, err := scheduler.KwargInt64(*task, "event_id")
	require.NoError(t, err)
	assert.Equal(t, event.ID, eventID)

	got, err := f.svc.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.RepeatTaskID, got.RepeatTaskID)

	var notes int64
	require.NoError(t, f.db.Model(&entity.NotificationObject{}).Count(&notes).Error)
	assert.Equal(t, int64(1), notes)
}

func TestCreateOneShotEvent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		duration int
		wantErr  error
	}{
		{name: "upper bound accepted", duration: 86400},
		{name: "zero accepted", duration: 0},
		{name: "above bound rejected", duration: 86401, wantErr: apperror.ErrConstraintViolation},
		{name: "negative rejected", duration: -1, wantErr: apperror.ErrConstraintViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := f.svc.Create(ctx, 1, f.schedule, dto.CreateEventRequest{
				Title:          "Walk",
				StartDate:      start,
				RepeatDuration: ptr(tt.duration),
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Nil(t, event.RepeatTaskID)
			assert.Nil(t, event.RepeatNextRun)
		})
	}

	t.Run("end before start", func(t *testing.T) {
		_, err := f.svc.Create(ctx, 1, f.schedule, dto.CreateEventRequest{
			Title:     "Walk",
			StartDate: start,
			EndDate:   ptr(start.Add(-time.Minute)),
		})
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("unknown time zone", func(t *testing.T) {
		_, err := f.svc.Create(ctx, 1, f.schedule, dto.CreateEventRequest{Title: "Walk", StartDate: start, TimeZone: "Mars/Olympus"})
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("other users cannot write", func(t *testing.T) {
		_, err := f.svc.Create(ctx, 2, f.schedule, dto.CreateEventRequest{Title: "Walk", StartDate: start})
		assert.ErrorIs(t, err, apperror.ErrForbidden)
	})
}

func TestOnFireAdvancesWithoutDrift(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	created, err := f.svc.Create(ctx, 1, f.schedule, monthly(time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	task, err := f.registry.Get(ctx, nil, *created.RepeatTaskID)
	require.NoError(t, err)

	want := []time.Time{
		time.Date(2025, 3, 31, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 30, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 5, 31, 10, 0, 0, 0, time.UTC),
	}
	fired := time.Date(2025, 2, 28, 10, 0, 0, 0, time.UTC)
	for _, next := range want {
		f.svc.now = func() time.Time { return fired }
		require.NoError(t, f.svc.OnFire(ctx, *task))

		event, err := f.svc.repo.FindEvent(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, event.RepeatNextRun)
		assert.True(t, next.Equal(*event.RepeatNextRun), "got %s want %s", event.RepeatNextRun, next)
		assert.True(t, created.StartDate.Equal(event.StartDate), "start_date stays the anchor")
		fired = next
	}

	var last entity.NotificationObject
	require.NoError(t, f.db.Order("id desc").First(&last).Error)
	assert.Equal(t, entity.ActionCreate, last.Action)
	assert.Contains(t, string(last.Data), `"start_date":"2025-04-30T10:00:00Z"`)
	assert.Contains(t, string(last.Data), `"end_date":"2025-04-30T11:00:00Z"`)

	t.Run("late firing skips to the future", func(t *testing.T) {
		f.svc.now = func() time.Time { return time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC) }
		require.NoError(t, f.svc.OnFire(ctx, *task))
		event, err := f.svc.repo.FindEvent(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, time.Date(2025, 8, 31, 10, 0, 0, 0, time.UTC).Equal(*event.RepeatNextRun))

		var note entity.NotificationObject
		require.NoError(t, f.db.Order("id desc").First(&note).Error)
		assert.Contains(t, string(note.Data), `"start_date":"2025-07-31T10:00:00Z"`)
		assert.Contains(t, string(note.Data), `"end_date":"2025-07-31T11:00:00Z"`)
	})
}

func TestOnFirePostsCurrentOccurrenceAfterDowntime(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	created, err := f.svc.Create(ctx, 1, f.schedule, monthly(time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	task, err := f.registry.Get(ctx, nil, *created.RepeatTaskID)
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Date(2026, 10, 31, 10, 0, 0, 0, time.UTC) }
	require.NoError(t, f.svc.OnFire(ctx, *task))

	var note entity.NotificationObject
	require.NoError(t, f.db.Order("id desc").First(&note).Error)
	assert.Contains(t, string(note.Data), `"start_date":"2026-10-31T10:00:00Z"`)
	assert.Contains(t, string(note.Data), `"end_date":"2026-10-31T11:00:00Z"`)
	assert.Contains(t, string(note.Data), `"next_run":"2026-11-30T10:00:00Z"`)

	event, err := f.svc.repo.FindEvent(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 11, 30, 10, 0, 0, 0, time.UTC).Equal(*event.RepeatNextRun))
}

func TestUpdateAndCancel(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	start := time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)
	created, err := f.svc.Create(ctx, 1, f.schedule, dto.CreateEventRequest{Title: "Standup", StartDate: start})
	require.NoError(t, err)
	require.Nil(t, created.RepeatTaskID)

	updated, err := f.svc.Update(ctx, 1, created.ID, dto.UpdateEventRequest{RepeatFrequency: ptr(int(recurrence.Weekly))})
	require.NoError(t, err)
	require.NotNil(t, updated.RepeatTaskID)
	assert.True(t, time.Date(2025, 2, 7, 10, 0, 0, 0, time.UTC).Equal(*updated.RepeatNextRun))

	renamed, err := f.svc.Update(ctx, 1, created.ID, dto.UpdateEventRequest{Title: ptr("Daily standup"), RepeatFrequency: ptr(int(recurrence.Daily))})
	require.NoError(t, err)
	assert.Equal(t, *updated.RepeatTaskID, *renamed.RepeatTaskID, "task is updated in place")
	assert.True(t, time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC).Equal(*renamed.RepeatNextRun))

	cancelled, err := f.svc.Cancel(ctx, 1, created.ID)
	require.NoError(t, err)
	assert.Nil(t, cancelled.RepeatFrequency)
	assert.Nil(t, cancelled.RepeatTaskID)
	assert.Nil(t, cancelled.RepeatNextRun)

	_, err = f.registry.Get(ctx, nil, *renamed.RepeatTaskID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	event, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Daily standup", event.Title)

	again, err := f.svc.Cancel(ctx, 1, created.ID)
	require.NoError(t, err)
	assert.Nil(t, again.RepeatTaskID)

	t.Run("fire after cancel drops the task", func(t *testing.T) {
		err := f.svc.OnFire(ctx, entity.PeriodicTask{Name: "stale", Kwargs: map[string]any{"event_id": created.ID}})
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})
}

func TestDeleteEvent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	created, err := f.svc.Create(ctx, 1, f.schedule, monthly(time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, 2, created.ID), apperror.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, 1, created.ID))

	_, err = f.svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = f.registry.Get(ctx, nil, *created.RepeatTaskID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	err = f.svc.OnFire(ctx, entity.PeriodicTask{Name: TaskName(created.ID), Kwargs: map[string]any{"event_id": created.ID}})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestTaskRemovalCascadesToEvent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	created, err := f.svc.Create(ctx, 1, f.schedule, monthly(time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	require.NoError(t, f.registry.Delete(ctx, nil, *created.RepeatTaskID))
	_, err = f.svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDesyncRepairOnRead(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	created, err := f.svc.Create(ctx, 1, f.schedule, monthly(time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	// Lose the task without the cascade.
	require.NoError(t, f.db.Exec("PRAGMA foreign_keys = OFF").Error)
	require.NoError(t, f.db.Exec("DELETE FROM periodic_tasks WHERE id = ?", *created.RepeatTaskID).Error)
	require.NoError(t, f.db.Exec("PRAGMA foreign_keys = ON").Error)

	list, err := f.svc.List(ctx, f.schedule, dto.EventFilter{})
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	assert.Nil(t, list.Data[0].RepeatTaskID)
	assert.Nil(t, list.Data[0].RepeatFrequency)
	assert.Nil(t, list.Data[0].RepeatNextRun)

	var stored entity.ScheduleEvent
	require.NoError(t, f.db.First(&stored, created.ID).Error)
	assert.Nil(t, stored.RepeatTaskID)
	assert.Nil(t, stored.RepeatFrequency)
}

func TestDesyncRepairDoesNotResurrectDeletedEvent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	created, err := f.svc.Create(ctx, 1, f.schedule, monthly(time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	event, err := f.svc.repo.FindEvent(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, f.registry.Delete(ctx, nil, *created.RepeatTaskID))

	err = f.svc.reconcile(ctx, event)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	var n int64
	require.NoError(t, f.db.Model(&entity.ScheduleEvent{}).Where("id = ?", created.ID).Count(&n).Error)
	assert.Zero(t, n)
}

func TestListWindow(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	jan := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	_, err := f.svc.Create(ctx, 1, f.schedule, dto.CreateEventRequest{Title: "January", StartDate: jan})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, 1, f.schedule, dto.CreateEventRequest{Title: "March", StartDate: mar})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, 1, f.schedule, monthly(jan.Add(time.Hour)))
	require.NoError(t, err)

	from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	list, err := f.svc.List(ctx, f.schedule, dto.EventFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, list.Data, 2)
	assert.Equal(t, "Board meeting", list.Data[0].Title)
	assert.Equal(t, "March", list.Data[1].Title)

	_, err = f.svc.List(ctx, 999, dto.EventFilter{})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
