package migrations

import (
	m "github.com/Gofven/flowback-backend-sub001/internal/migration"
)

const repeatFrequencyCheck = "scheduleevent_repeat_frequency_valid"

func scheduleMigrations() []*m.Migration {
	return []*m.Migration{
		{
			App:  scheduleInitial.App,
			Name: scheduleInitial.Name,
			Operations: []m.Operation{
				m.CreateTable{
					Name: "schedules",
					Columns: columns(
						[]m.Column{
							m.ID(),
							m.Varchar("name", 255),
							m.Varchar("origin_name", 255),
							m.BigInt("origin_id"),
							m.Bool("active", true),
						},
						timestamps(),
					),
					Indexes: []m.Index{{Name: "schedules_origin_idx", Columns: []string{"origin_name", "origin_id"}}},
				},
				m.CreateTable{
					Name: "schedule_events",
					Columns: columns(
						[]m.Column{
							m.ID(),
							m.ForeignKey("schedule_id", "schedules", m.Cascade),
							m.Varchar("title", 255),
							m.Text("description").Nullable(),
							m.Timestamp("start_date"),
							m.Timestamp("end_date").Nullable(),
							m.Varchar("origin_name", 255),
							m.BigInt("origin_id"),
							m.Int("repeat_duration").Nullable().Min(0).Max(86400),
						},
						timestamps(),
					),
					Indexes: []m.Index{{Name: "schedule_events_start_date_idx", Columns: []string{"schedule_id", "start_date"}}},
				},
			},
		},
		{
			App:          scheduleMeetingLink.App,
			Name:         scheduleMeetingLink.Name,
			Dependencies: []m.Key{scheduleInitial},
			Operations: []m.Operation{
				m.AddColumn{Table: "schedule_events", Column: m.Varchar("meeting_link", 255).Nullable()},
			},
		},
		{
			App:          scheduleFrequency.App,
			Name:         scheduleFrequency.Name,
			Dependencies: []m.Key{scheduleMeetingLink},
			Operations: []m.Operation{
				m.AddColumn{Table: "schedule_events", Column: m.SmallInt("repeat_frequency").Nullable()},
				m.AddConstraint{Table: "schedule_events", Constraint: m.Check(repeatFrequencyCheck,
					m.Or(m.IsNull("repeat_frequency"), m.In("repeat_frequency", 1, 2, 3)))},
			},
		},
		{
			App:          scheduleRepeatTask.App,
			Name:         scheduleRepeatTask.Name,
			Dependencies: []m.Key{scheduleFrequency, schedulerInitial},
			Operations: []m.Operation{
				m.AddColumn{Table: "schedule_events", Column: m.Timestamp("repeat_next_run").Nullable()},
				m.AddColumn{Table: "schedule_events", Column: m.ForeignKey("repeat_task_id", "periodic_tasks", m.Cascade).Nullable().AsUnique()},
				m.AddColumn{Table: "schedule_events", Column: m.Varchar("time_zone", 63).WithDefault("UTC")},
			},
		},
		{
			// Yearly joins the enumeration. Stored values 1..3 stay valid.
			App:          "schedule",
			Name:         "0005_repeat_frequency_yearly",
			Dependencies: []m.Key{scheduleRepeatTask},
			Operations: []m.Operation{
				m.RemoveConstraint{Table: "schedule_events", Name: repeatFrequencyCheck},
				m.AddConstraint{Table: "schedule_events", Constraint: m.Check(repeatFrequencyCheck,
					m.Or(m.IsNull("repeat_frequency"), m.In("repeat_frequency", 1, 2, 3, 4)))},
			},
		},
	}
}
