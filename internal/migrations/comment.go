package migrations

import (
	m "github.com/Gofven/flowback-backend-sub001/internal/migration"
)

func commentMigrations() []*m.Migration {
	return []*m.Migration{
		{
			App:          commentInitial.App,
			Name:         commentInitial.Name,
			Dependencies: []m.Key{userInitial, filesInitial},
			Operations: []m.Operation{
				m.CreateTable{
					Name: "comments",
					Columns: columns(
						[]m.Column{
							m.ID(),
							m.Varchar("content_type", 100),
							m.BigInt("object_id"),
							m.ForeignKey("author_id", "users", m.Cascade),
							m.ForeignKey("parent_id", "comments", m.Cascade).Nullable(),
							m.Text("message").Nullable(),
							m.ForeignKey("attachments_id", "file_collections", m.SetNull).Nullable(),
							m.Decimal("score", 11, 10).WithDefault(0),
							m.Bool("active", true),
							m.Bool("edited", false),
						},
						timestamps(),
					),
					Indexes: []m.Index{
						{Name: "comments_created_at_idx", Columns: []string{"created_at"}},
						{Name: "comments_target_idx", Columns: []string{"content_type", "object_id"}},
					},
				},
			},
		},
		{
			App:          commentHasContent.App,
			Name:         commentHasContent.Name,
			Dependencies: []m.Key{commentInitial},
			Operations: []m.Operation{
				m.AddConstraint{Table: "comments", Constraint: m.Check("comment_has_content",
					m.Or(m.NotNull("attachments_id"), m.NotNull("message")))},
			},
		},
		{
			App:          "comment",
			Name:         "0003_commentvote",
			Dependencies: []m.Key{commentHasContent},
			Operations: []m.Operation{
				m.CreateTable{
					Name: "comment_votes",
					Columns: columns(
						[]m.Column{
							m.ID(),
							m.ForeignKey("comment_id", "comments", m.Cascade),
							m.ForeignKey("created_by_id", "users", m.Cascade),
							m.Bool("vote", true),
						},
						timestamps(),
					),
					Constraints: []m.Constraint{
						m.Unique("comment_vote_unique", "comment_id", "created_by_id"),
					},
				},
			},
		},
	}
}
