package entity

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ScheduleOriginUser  = "user"
	ScheduleOriginGroup = "group"
)

type Schedule struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	OriginName string    `gorm:"size:255;not null" json:"origin_name"`
	OriginID   int64     `gorm:"not null" json:"origin_id"`
	Active     bool      `gorm:"not null" json:"active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ScheduleEvent is one entry on a schedule's timeline. A non-nil
// RepeatFrequency always comes with RepeatTaskID and RepeatNextRun.
type ScheduleEvent struct {
	ID              int64         `gorm:"primaryKey" json:"id"`
	ScheduleID      int64         `gorm:"not null" json:"schedule_id"`
	Title           string        `gorm:"size:255;not null" json:"title"`
	Description     *string       `gorm:"type:text" json:"description,omitempty"`
	StartDate       time.Time     `gorm:"not null" json:"start_date"`
	EndDate         *time.Time    `json:"end_date,omitempty"`
	OriginName      string        `gorm:"size:255;not null" json:"origin_name"`
	OriginID        int64         `gorm:"not null" json:"origin_id"`
	RepeatDuration  *int          `json:"repeat_duration,omitempty"`
	MeetingLink     *string       `gorm:"size:255" json:"meeting_link,omitempty"`
	RepeatFrequency *int          `json:"repeat_frequency,omitempty"`
	RepeatNextRun   *time.Time    `json:"repeat_next_run,omitempty"`
	RepeatTaskID    *int64        `json:"repeat_task_id,omitempty"`
	RepeatTask      *PeriodicTask `gorm:"foreignKey:RepeatTaskID" json:"-"`
	TimeZone        string        `gorm:"size:63;not null" json:"time_zone"`
	CreatedAt       time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// PeriodicTask is a registry entry the scheduler runtime fires on its
// cadence.
type PeriodicTask struct {
	ID            int64             `gorm:"primaryKey" json:"id"`
	Name          string            `gorm:"size:200;uniqueIndex;not null" json:"name"`
	Task          string            `gorm:"size:200;not null" json:"task"`
	Kwargs        datatypes.JSONMap `gorm:"not null" json:"kwargs"`
	Frequency     int               `gorm:"not null" json:"frequency"`
	Anchor        time.Time         `gorm:"not null" json:"anchor"`
	TimeZone      string            `gorm:"size:63;not null" json:"time_zone"`
	Enabled       bool              `gorm:"not null" json:"enabled"`
	NextRunAt     *time.Time        `json:"next_run_at,omitempty"`
	LastRunAt     *time.Time        `json:"last_run_at,omitempty"`
	TotalRunCount int               `gorm:"not null" json:"total_run_count"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
