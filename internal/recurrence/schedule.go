package recurrence

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule adapts a series to cron.Schedule so a cron runner fires exactly on
// the computed occurrences.
type Schedule struct {
	Anchor    time.Time
	Frequency Frequency
	Location  *time.Location
}

var _ cron.Schedule = Schedule{}

// NewSchedule resolves the time zone by IANA name. An empty name means UTC.
func NewSchedule(anchor time.Time, f Frequency, timeZone string) (Schedule, error) {
	loc, err := LoadLocation(timeZone)
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{Anchor: anchor, Frequency: f, Location: loc}, nil
}

func (s Schedule) Next(t time.Time) time.Time {
	return Next(s.Anchor, t, s.Frequency, s.Location)
}

func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
