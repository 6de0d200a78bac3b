package migrations

import (
	m "github.com/Gofven/flowback-backend-sub001/internal/migration"
)

func userMigrations() []*m.Migration {
	return []*m.Migration{
		{
			App:  userInitial.App,
			Name: userInitial.Name,
			Operations: []m.Operation{
				m.CreateTable{
					Name: "users",
					Columns: columns(
						[]m.Column{
							m.ID(),
							m.Varchar("username", 150).AsUnique(),
							m.Varchar("email", 254).AsUnique(),
							m.Varchar("password_hash", 255),
							m.Bool("is_active", true),
						},
						timestamps(),
					),
				},
			},
		},
	}
}

func filesMigrations() []*m.Migration {
	return []*m.Migration{
		{
			App:          filesInitial.App,
			Name:         filesInitial.Name,
			Dependencies: []m.Key{userInitial},
			Operations: []m.Operation{
				m.CreateTable{
					Name: "file_collections",
					Columns: []m.Column{
						m.ID(),
						m.ForeignKey("created_by_id", "users", m.SetNull).Nullable(),
						m.JSON("files").WithDefault("[]"),
						m.Timestamp("created_at").WithDefault(m.Now),
					},
				},
			},
		},
	}
}

func todoMigrations() []*m.Migration {
	return []*m.Migration{
		{
			App:          "todo",
			Name:         "0001_initial",
			Dependencies: []m.Key{userInitial},
			Operations: []m.Operation{
				m.CreateTable{
					Name: "todo_items",
					Columns: columns(
						[]m.Column{
							m.ID(),
							m.ForeignKey("user_id", "users", m.Cascade),
							m.Varchar("title", 255),
							m.Text("description").Nullable(),
							m.Bool("done", false),
						},
						timestamps(),
					),
					Indexes: []m.Index{{Name: "todo_items_user_id_idx", Columns: []string{"user_id"}}},
				},
			},
		},
	}
}
