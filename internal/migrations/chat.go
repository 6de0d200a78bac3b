package migrations

import (
	m "github.com/Gofven/flowback-backend-sub001/internal/migration"
)

func chatMigrations() []*m.Migration {
	return []*m.Migration{
		{
			App:          chatInitial.App,
			Name:         chatInitial.Name,
			Dependencies: []m.Key{userInitial},
			Operations: []m.Operation{
				m.CreateTable{
					Name: "message_channels",
					Columns: []m.Column{
						m.ID(),
						m.Varchar("origin_name", 255),
						m.Varchar("title", 255).Nullable(),
						m.Timestamp("created_at").WithDefault(m.Now),
					},
				},
				m.CreateTable{
					Name: "message_channel_participants",
					Columns: []m.Column{
						m.ID(),
						m.ForeignKey("channel_id", "message_channels", m.Cascade),
						m.ForeignKey("user_id", "users", m.Cascade),
						m.Timestamp("created_at").WithDefault(m.Now),
					},
					Constraints: []m.Constraint{
						m.Unique("message_channel_participant_unique", "channel_id", "user_id"),
					},
				},
			},
		},
	}
}

func notificationMigrations() []*m.Migration {
	return []*m.Migration{
		{
			App:  notificationInitial.App,
			Name: notificationInitial.Name,
			Operations: []m.Operation{
				m.CreateTable{
					Name: "notification_channels",
					Columns: []m.Column{
						m.ID(),
						m.Varchar("content_type", 100),
						m.BigInt("object_id"),
						m.Timestamp("created_at").WithDefault(m.Now),
					},
					Constraints: []m.Constraint{
						m.Unique("notification_channel_unique", "content_type", "object_id"),
					},
				},
			},
		},
		{
			App:          notificationObject.App,
			Name:         notificationObject.Name,
			Dependencies: []m.Key{notificationInitial},
			Operations: []m.Operation{
				m.CreateTable{
					Name: "notification_objects",
					Columns: []m.Column{
						m.ID(),
						m.ForeignKey("channel_id", "notification_channels", m.Cascade),
						m.Varchar("action", 20),
						m.Text("message"),
						m.JSON("data").WithDefault("{}"),
						m.Timestamp("timestamp").WithDefault(m.Now),
					},
					Constraints: []m.Constraint{
						m.Check("notification_object_action_valid", m.In("action", "create", "update", "delete")),
					},
					Indexes: []m.Index{
						{Name: "notification_objects_channel_timestamp_idx", Columns: []string{"channel_id", "timestamp"}},
					},
				},
			},
		},
	}
}

func schedulerMigrations() []*m.Migration {
	return []*m.Migration{
		{
			App:  schedulerInitial.App,
			Name: schedulerInitial.Name,
			Operations: []m.Operation{
				m.CreateTable{
					Name: "periodic_tasks",
					Columns: columns(
						[]m.Column{
							m.ID(),
							m.Varchar("name", 200).AsUnique(),
							m.Varchar("task", 200),
							m.JSON("kwargs").WithDefault("{}"),
							m.SmallInt("frequency"),
							m.Timestamp("anchor"),
							m.Varchar("time_zone", 63).WithDefault("UTC"),
							m.Bool("enabled", true),
							m.Timestamp("next_run_at").Nullable(),
							m.Timestamp("last_run_at").Nullable(),
							m.Int("total_run_count").WithDefault(0),
						},
						timestamps(),
					),
					Constraints: []m.Constraint{
						m.Check("periodic_task_frequency_valid", m.In("frequency", 1, 2, 3, 4)),
					},
				},
			},
		},
	}
}
