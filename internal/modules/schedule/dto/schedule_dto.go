package dto

import (
	"time"

	commonDto "github.com/Gofven/flowback-backend-sub001/pkg/dto"
)

type CreateScheduleRequest struct {
	Name       string `json:"name" binding:"required,max=255"`
	OriginName string `json:"origin_name" binding:"required,oneof=user group"`
	OriginID   int64  `json:"origin_id" binding:"omitempty,min=1"`
}

type ScheduleResponse struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	OriginName string    `json:"origin_name"`
	OriginID   int64     `json:"origin_id"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type CreateEventRequest struct {
	Title           string     `json:"title" binding:"required,max=255"`
	Description     *string    `json:"description" binding:"omitempty,max=10000"`
	StartDate       time.Time  `json:"start_date" binding:"required"`
	EndDate         *time.Time `json:"end_date" binding:"omitempty,gtefield=StartDate"`
	MeetingLink     *string    `json:"meeting_link" binding:"omitempty,url,max=255"`
	RepeatFrequency *int       `json:"repeat_frequency" binding:"omitempty,oneof=1 2 3 4"`
	RepeatDuration  *int       `json:"repeat_duration" binding:"omitempty,min=0,max=86400"`
	TimeZone        string     `json:"time_zone" binding:"omitempty,timezone"`
}

// UpdateEventRequest changes only the fields that are present. A null
// repeat_frequency is treated as absent and leaves the recurrence as is;
// clearing it is done through POST /schedule/event/:id/cancel/.
type UpdateEventRequest struct {
	Title           *string    `json:"title" binding:"omitempty,max=255"`
	Description     *string    `json:"description" binding:"omitempty,max=10000"`
	StartDate       *time.Time `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
	MeetingLink     *string    `json:"meeting_link" binding:"omitempty,url,max=255"`
	RepeatFrequency *int       `json:"repeat_frequency" binding:"omitempty,oneof=1 2 3 4"`
	TimeZone        *string    `json:"time_zone" binding:"omitempty,timezone"`
}

type EventFilter struct {
	commonDto.PaginationQuery
	From *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To   *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

type EventResponse struct {
	ID              int64      `json:"id"`
	ScheduleID      int64      `json:"schedule_id"`
	Title           string     `json:"title"`
	Description     *string    `json:"description"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
	MeetingLink     *string    `json:"meeting_link"`
	RepeatFrequency *int       `json:"repeat_frequency"`
	RepeatDuration  *int       `json:"repeat_duration,omitempty"`
	RepeatNextRun   *time.Time `json:"repeat_next_run"`
	RepeatTaskID    *int64     `json:"repeat_task_id"`
	TimeZone        string     `json:"time_zone"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type PaginatedEventResponse struct {
	Data []EventResponse          `json:"data"`
	Meta commonDto.PaginationMeta `json:"meta"`
}

// Occurrence is the payload of the notification posted when a recurring
// event fires.
type Occurrence struct {
	EventID   int64      `json:"event_id"`
	Title     string     `json:"title"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}
