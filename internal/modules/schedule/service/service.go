package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gofven/flowback-backend-sub001/internal/contenttype"
	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	notifService "github.com/Gofven/flowback-backend-sub001/internal/modules/notification/service"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/schedule/dto"
	"github.com/Gofven/flowback-backend-sub001/internal/modules/schedule/repository"
	"github.com/Gofven/flowback-backend-sub001/internal/recurrence"
	"github.com/Gofven/flowback-backend-sub001/internal/scheduler"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	commonDto "github.com/Gofven/flowback-backend-sub001/pkg/dto"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// TaskEventFire is the periodic task that materializes one occurrence of a
// recurring event.
const TaskEventFire = "schedule.event_fire"

// TaskName is the registry name of an event's periodic task.
func TaskName(eventID int64) string {
	return fmt.Sprintf("schedule_event_%d", eventID)
}

type EventService interface {
	CreateSchedule(ctx context.Context, userID int64, req dto.CreateScheduleRequest) (*dto.ScheduleResponse, error)
	GetSchedule(ctx context.Context, id int64) (*dto.ScheduleResponse, error)

	Create(ctx context.Context, userID, scheduleID int64, req dto.CreateEventRequest) (*dto.EventResponse, error)
	Update(ctx context.Context, userID, eventID int64, req dto.UpdateEventRequest) (*dto.EventResponse, error)
	Cancel(ctx context.Context, userID, eventID int64) (*dto.EventResponse, error)
	Delete(ctx context.Context, userID, eventID int64) error
	Get(ctx context.Context, eventID int64) (*dto.EventResponse, error)
	List(ctx context.Context, scheduleID int64, filter dto.EventFilter) (*dto.PaginatedEventResponse, error)

	// OnFire is the scheduler.Handler for TaskEventFire.
	OnFire(ctx context.Context, task entity.PeriodicTask) error
}

type eventService struct {
	repo          repository.ScheduleRepository
	registry      *scheduler.Registry
	notifications notifService.NotificationService
	log           zerolog.Logger
	now           func() time.Time
}

func NewEventService(repo repository.ScheduleRepository, registry *scheduler.Registry, notifications notifService.NotificationService, log zerolog.Logger) EventService {
	return &eventService{
		repo:          repo,
		registry:      registry,
		notifications: notifications,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func scheduleRef(id int64) contenttype.Ref {
	return contenttype.Ref{ContentType: contenttype.Schedule, ObjectID: id}
}

func (s *eventService) CreateSchedule(ctx context.Context, userID int64, req dto.CreateScheduleRequest) (*dto.ScheduleResponse, error) {
	schedule := &entity.Schedule{Name: req.Name, OriginName: req.OriginName, Active: true}
	switch req.OriginName {
	case entity.ScheduleOriginUser:
		schedule.OriginID = userID
	case entity.ScheduleOriginGroup:
		if req.OriginID <= 0 {
			return nil, fmt.Errorf("%w: origin_id is required for group schedules", apperror.ErrValidation)
		}
		schedule.OriginID = req.OriginID
	default:
		return nil, fmt.Errorf("%w: unknown schedule origin %q", apperror.ErrValidation, req.OriginName)
	}
	if err := s.authorize(ctx, schedule, userID); err != nil {
		return nil, err
	}

	if err := s.repo.CreateSchedule(ctx, schedule); err != nil {
		return nil, err
	}
	return toScheduleResponse(schedule), nil
}

func (s *eventService) GetSchedule(ctx context.Context, id int64) (*dto.ScheduleResponse, error) {
	schedule, err := s.repo.FindSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	return toScheduleResponse(schedule), nil
}

func (s *eventService) Create(ctx context.Context, userID, scheduleID int64, req dto.CreateEventRequest) (*dto.EventResponse, error) {
	schedule, err := s.repo.FindSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, schedule, userID); err != nil {
		return nil, err
	}

	event := &entity.ScheduleEvent{
		ScheduleID:      schedule.ID,
		Title:           req.Title,
		Description:     req.Description,
		StartDate:       req.StartDate.UTC(),
		EndDate:         utcPtr(req.EndDate),
		OriginName:      schedule.OriginName,
		OriginID:        schedule.OriginID,
		RepeatDuration:  req.RepeatDuration,
		MeetingLink:     req.MeetingLink,
		RepeatFrequency: req.RepeatFrequency,
		TimeZone:        req.TimeZone,
	}
	if event.TimeZone == "" {
		event.TimeZone = "UTC"
	}
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	var note *entity.NotificationObject
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateEvent(ctx, event); err != nil {
			return err
		}
		if event.RepeatFrequency != nil {
			if err := s.bind(ctx, tx, event); err != nil {
				return err
			}
			if err := repo.SaveEvent(ctx, event); err != nil {
				return err
			}
		}
		note, err = s.notifications.Notify(ctx, tx, scheduleRef(event.ScheduleID), entity.ActionCreate,
			fmt.Sprintf("Event %s was scheduled", event.Title), occurrenceOf(event, event.StartDate))
		return err
	})
	if err != nil {
		return nil, err
	}

	if event.RepeatTaskID != nil {
		s.registry.Notify(ctx)
	}
	s.notifications.Publish(ctx, note)
	return toEventResponse(event), nil
}

func (s *eventService) Update(ctx context.Context, userID, eventID int64, req dto.UpdateEventRequest) (*dto.EventResponse, error) {
	event, err := s.writableEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		event.Title = *req.Title
	}
	if req.Description != nil {
		event.Description = req.Description
	}
	if req.StartDate != nil {
		event.StartDate = req.StartDate.UTC()
	}
	if req.EndDate != nil {
		event.EndDate = utcPtr(req.EndDate)
	}
	if req.MeetingLink != nil {
		event.MeetingLink = req.MeetingLink
	}
	if req.TimeZone != nil {
		event.TimeZone = *req.TimeZone
	}
	if req.RepeatFrequency != nil {
		event.RepeatFrequency = req.RepeatFrequency
	}
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	var note *entity.NotificationObject
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if event.RepeatFrequency != nil {
			if err := s.bind(ctx, tx, event); err != nil {
				return err
			}
		}
		if err := s.repo.WithTx(tx).SaveEvent(ctx, event); err != nil {
			return err
		}
		note, err = s.notifications.Notify(ctx, tx, scheduleRef(event.ScheduleID), entity.ActionUpdate,
			fmt.Sprintf("Event %s was updated", event.Title), occurrenceOf(event, event.StartDate))
		return err
	})
	if err != nil {
		return nil, err
	}

	if event.RepeatTaskID != nil {
		s.registry.Notify(ctx)
	}
	s.notifications.Publish(ctx, note)
	return toEventResponse(event), nil
}

// Cancel turns a recurring event back into a one-shot event and removes its
// periodic task. Cancelling a one-shot event is a no-op.
func (s *eventService) Cancel(ctx context.Context, userID, eventID int64) (*dto.EventResponse, error) {
	event, err := s.writableEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if event.RepeatFrequency == nil && event.RepeatTaskID == nil {
		return toEventResponse(event), nil
	}

	taskID := event.RepeatTaskID
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		// The task cascades to the event, so unlink before deleting it.
		clearRecurrence(event)
		if err := s.repo.WithTx(tx).SaveEvent(ctx, event); err != nil {
			return err
		}
		if taskID != nil {
			return s.registry.Delete(ctx, tx, *taskID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.registry.Notify(ctx)
	return toEventResponse(event), nil
}

func (s *eventService) Delete(ctx context.Context, userID, eventID int64) error {
	event, err := s.writableEvent(ctx, userID, eventID)
	if err != nil {
		return err
	}

	var note *entity.NotificationObject
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).DeleteEvent(ctx, event.ID); err != nil {
			return err
		}
		if event.RepeatTaskID != nil {
			if err := s.registry.Delete(ctx, tx, *event.RepeatTaskID); err != nil {
				return err
			}
		}
		note, err = s.notifications.Notify(ctx, tx, scheduleRef(event.ScheduleID), entity.ActionDelete,
			fmt.Sprintf("Event %s was removed", event.Title), occurrenceOf(event, event.StartDate))
		return err
	})
	if err != nil {
		return err
	}

	if event.RepeatTaskID != nil {
		s.registry.Notify(ctx)
	}
	s.notifications.Publish(ctx, note)
	return nil
}

func (s *eventService) Get(ctx context.Context, eventID int64) (*dto.EventResponse, error) {
	event, err := s.repo.FindEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.reconcile(ctx, event); err != nil {
		return nil, err
	}
	return toEventResponse(event), nil
}

func (s *eventService) List(ctx context.Context, scheduleID int64, filter dto.EventFilter) (*dto.PaginatedEventResponse, error) {
	if _, err := s.repo.FindSchedule(ctx, scheduleID); err != nil {
		return nil, err
	}
	offset := filter.Normalize()

	events, total, err := s.repo.Events(ctx, scheduleID, filter.From, filter.To, filter.Limit, offset)
	if err != nil {
		return nil, err
	}

	data := make([]dto.EventResponse, 0, len(events))
	for i := range events {
		err := s.reconcile(ctx, &events[i])
		if errors.Is(err, apperror.ErrNotFound) {
			// Removed together with its task since the page was read.
			continue
		}
		if err != nil {
			return nil, err
		}
		data = append(data, *toEventResponse(&events[i]))
	}
	return &dto.PaginatedEventResponse{
		Data: data,
		Meta: commonDto.NewPaginationMeta(filter.PaginationQuery, total),
	}, nil
}

// OnFire posts the due occurrence on the schedule's channel and advances
// repeat_next_run past now. start_date stays the anchor of the series.
func (s *eventService) OnFire(ctx context.Context, task entity.PeriodicTask) error {
	eventID, err := scheduler.KwargInt64(task, "event_id")
	if err != nil {
		return err
	}
	event, err := s.repo.FindEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if event.RepeatFrequency == nil {
		return fmt.Errorf("event %d is no longer recurring: %w", eventID, apperror.ErrNotFound)
	}

	loc, err := recurrence.LoadLocation(event.TimeZone)
	if err != nil {
		return fmt.Errorf("%w: event %d: %v", apperror.ErrValidation, eventID, err)
	}
	freq := recurrence.Frequency(*event.RepeatFrequency)

	// The due occurrence is the latest one at or before now. A stored next
	// run only wins when it is not older, so downtime never posts a stale date.
	now := s.now()
	occurrence := recurrence.Prev(event.StartDate, now, freq, loc).UTC()
	if occurrence.IsZero() {
		occurrence = event.StartDate.UTC()
	}
	if event.RepeatNextRun != nil && !event.RepeatNextRun.Before(occurrence) {
		occurrence = event.RepeatNextRun.UTC()
	}
	after := now
	if occurrence.After(after) {
		after = occurrence
	}
	next := recurrence.Next(event.StartDate, after, freq, loc).UTC()
	event.RepeatNextRun = &next

	var note *entity.NotificationObject
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SaveEvent(ctx, event); err != nil {
			return err
		}
		payload := occurrenceOf(event, occurrence)
		payload.NextRun = &next
		note, err = s.notifications.Notify(ctx, tx, scheduleRef(event.ScheduleID), entity.ActionCreate,
			fmt.Sprintf("Event %s is starting", event.Title), payload)
		return err
	})
	if err != nil {
		return err
	}

	s.notifications.Publish(ctx, note)
	s.log.Debug().
		Int64("event_id", event.ID).
		Time("occurrence", occurrence).
		Time("next_run", next).
		Msg("recurring event fired")
	return nil
}

// bind creates or updates the event's periodic task and copies the task's
// handle and next run onto the event.
func (s *eventService) bind(ctx context.Context, tx *gorm.DB, event *entity.ScheduleEvent) error {
	task, err := s.registry.Upsert(ctx, tx, scheduler.TaskSpec{
		Name:      TaskName(event.ID),
		Task:      TaskEventFire,
		Kwargs:    map[string]any{"event_id": event.ID},
		Frequency: recurrence.Frequency(*event.RepeatFrequency),
		Anchor:    event.StartDate,
		TimeZone:  event.TimeZone,
		Enabled:   true,
	})
	if err != nil {
		return err
	}
	event.RepeatTaskID = &task.ID
	event.RepeatNextRun = task.NextRunAt
	return nil
}

// reconcile repairs an event whose periodic task is gone by turning it into
// a one-shot event. For a live task the task's next run wins.
func (s *eventService) reconcile(ctx context.Context, event *entity.ScheduleEvent) error {
	if event.RepeatFrequency == nil && event.RepeatTaskID == nil {
		return nil
	}
	if event.RepeatTaskID != nil {
		task, err := s.registry.Get(ctx, nil, *event.RepeatTaskID)
		if err == nil {
			if task.NextRunAt != nil {
				event.RepeatNextRun = task.NextRunAt
			}
			return nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return err
		}
	}

	s.log.Warn().
		Err(apperror.ErrSchedulerDesync).
		Int64("event_id", event.ID).
		Msg("recurring event lost its periodic task, reverting to one-shot")
	clearRecurrence(event)
	return s.repo.SaveEvent(ctx, event)
}

func (s *eventService) writableEvent(ctx context.Context, userID, eventID int64) (*entity.ScheduleEvent, error) {
	event, err := s.repo.FindEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	schedule, err := s.repo.FindSchedule(ctx, event.ScheduleID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, schedule, userID); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *eventService) authorize(ctx context.Context, schedule *entity.Schedule, userID int64) error {
	switch schedule.OriginName {
	case entity.ScheduleOriginUser:
		if schedule.OriginID == userID {
			return nil
		}
	case entity.ScheduleOriginGroup:
		ok, err := s.repo.IsGroupMember(ctx, schedule.OriginID, userID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("schedule %d: %w", schedule.ID, apperror.ErrForbidden)
}

func validateEvent(event *entity.ScheduleEvent) error {
	if event.EndDate != nil && event.EndDate.Before(event.StartDate) {
		return fmt.Errorf("%w: end_date is before start_date", apperror.ErrValidation)
	}
	if event.RepeatFrequency != nil && !recurrence.Frequency(*event.RepeatFrequency).Valid() {
		return fmt.Errorf("%w: unknown repeat frequency %d", apperror.ErrValidation, *event.RepeatFrequency)
	}
	if _, err := recurrence.LoadLocation(event.TimeZone); err != nil {
		return fmt.Errorf("%w: %v", apperror.ErrValidation, err)
	}
	return nil
}

func clearRecurrence(event *entity.ScheduleEvent) {
	event.RepeatFrequency = nil
	event.RepeatTaskID = nil
	event.RepeatNextRun = nil
}

func occurrenceOf(event *entity.ScheduleEvent, start time.Time) dto.Occurrence {
	occ := dto.Occurrence{EventID: event.ID, Title: event.Title, StartDate: start}
	if event.EndDate != nil {
		end := start.Add(event.EndDate.Sub(event.StartDate))
		occ.EndDate = &end
	}
	return occ
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func toScheduleResponse(s *entity.Schedule) *dto.ScheduleResponse {
	return &dto.ScheduleResponse{
		ID:         s.ID,
		Name:       s.Name,
		OriginName: s.OriginName,
		OriginID:   s.OriginID,
		Active:     s.Active,
		CreatedAt:  s.CreatedAt,
	}
}

func toEventResponse(e *entity.ScheduleEvent) *dto.EventResponse {
	return &dto.EventResponse{
		ID:              e.ID,
		ScheduleID:      e.ScheduleID,
		Title:           e.Title,
		Description:     e.Description,
		StartDate:       e.StartDate,
		EndDate:         e.EndDate,
		MeetingLink:     e.MeetingLink,
		RepeatFrequency: e.RepeatFrequency,
		RepeatDuration:  e.RepeatDuration,
		RepeatNextRun:   e.RepeatNextRun,
		RepeatTaskID:    e.RepeatTaskID,
		TimeZone:        e.TimeZone,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}
