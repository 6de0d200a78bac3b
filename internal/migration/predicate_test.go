package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicateSQL(t *testing.T) {
	tests := []struct {
		name string
		p    Predicate
		want string
	}{
		{"IsNull", IsNull("message"), `"message" IS NULL`},
		{"NotNull", NotNull("message"), `"message" IS NOT NULL`},
		{"Lte", Lte("repeat_duration", int64(86400)), `"repeat_duration" <= 86400`},
		{"StringLiteral", Eq("origin_name", "it's"), `"origin_name" = 'it''s'`},
		{"In", In("repeat_frequency", 1, 2, 3), `"repeat_frequency" IN (1, 2, 3)`},
		{
			"Or",
			Or(NotNull("attachments_id"), NotNull("message")),
			`("attachments_id" IS NOT NULL) OR ("message" IS NOT NULL)`,
		},
		{
			"Nested",
			And(Gte("a", 0), Not(Eq("b", true))),
			`("a" >= 0) AND (NOT ("b" = TRUE))`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.SQL())
		})
	}
}

func TestPredicateRename(t *testing.T) {
	p := Or(NotNull("attachments_id"), NotNull("message"))
	renamed := p.rename("message", "body")

	assert.Equal(t, []string{"attachments_id", "body"}, renamed.columns())
	assert.Equal(t, []string{"attachments_id", "message"}, p.columns(), "original predicate must not change")
}

func TestRenameColumnUpdatesConstraints(t *testing.T) {
	s := NewState()
	require.NoError(t, CreateTable{
		Name:    "comments",
		Columns: []Column{ID(), Text("message").Nullable(), BigInt("attachments_id").Nullable()},
		Constraints: []Constraint{
			Check("comment_has_content", Or(NotNull("attachments_id"), NotNull("message"))),
		},
		Indexes: []Index{{Name: "comments_message_idx", Columns: []string{"message"}}},
	}.StateForward(s))

	require.NoError(t, RenameColumn{Table: "comments", From: "message", To: "body"}.StateForward(s))

	table, ok := s.Table("comments")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "body", "attachments_id"}, table.ColumnNames())
	assert.True(t, table.Constraints[0].references("body"))
	assert.Equal(t, []string{"body"}, table.Indexes[0].Columns)
}

func TestRemoveColumnInUse(t *testing.T) {
	s := NewState()
	require.NoError(t, CreateTable{
		Name:        "votes",
		Columns:     []Column{ID(), BigInt("comment_id"), BigInt("created_by_id")},
		Constraints: []Constraint{Unique("votes_unique", "comment_id", "created_by_id")},
	}.StateForward(s))

	err := RemoveColumn{Table: "votes", Name: "comment_id"}.StateForward(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "votes_unique")
}
