// Package migrations holds the schema history of every app, in the order the
// tables were introduced. Migrations are never edited once released; changes
// go into a new migration.
package migrations

import (
	m "github.com/Gofven/flowback-backend-sub001/internal/migration"
)

var (
	userInitial         = m.Key{App: "user", Name: "0001_initial"}
	filesInitial        = m.Key{App: "files", Name: "0001_initial"}
	chatInitial         = m.Key{App: "chat", Name: "0001_initial"}
	notificationInitial = m.Key{App: "notification", Name: "0001_initial"}
	notificationObject  = m.Key{App: "notification", Name: "0002_notification_object"}
	schedulerInitial    = m.Key{App: "scheduler", Name: "0001_initial"}
	groupInitial        = m.Key{App: "group", Name: "0001_initial"}
	groupAttributes     = m.Key{App: "group", Name: "0002_group_attributes"}
	groupWorkGroup      = m.Key{App: "group", Name: "0044_workgroup"}
	groupWorkGroupChat  = m.Key{App: "group", Name: "0045_workgroup_chat"}
	groupParticipant    = m.Key{App: "group", Name: "0046_workgroupuser_chat_participant"}
	scheduleInitial     = m.Key{App: "schedule", Name: "0001_initial"}
	scheduleMeetingLink = m.Key{App: "schedule", Name: "0002_scheduleevent_meeting_link"}
	scheduleFrequency   = m.Key{App: "schedule", Name: "0003_scheduleevent_repeat_frequency"}
	scheduleRepeatTask  = m.Key{App: "schedule", Name: "0004_scheduleevent_repeat_task"}
	commentInitial      = m.Key{App: "comment", Name: "0001_initial"}
	commentHasContent   = m.Key{App: "comment", Name: "0002_comment_has_content"}
)

// All returns every migration of every app.
func All() []*m.Migration {
	var all []*m.Migration
	for _, app := range [][]*m.Migration{
		userMigrations(),
		filesMigrations(),
		chatMigrations(),
		notificationMigrations(),
		schedulerMigrations(),
		groupMigrations(),
		scheduleMigrations(),
		commentMigrations(),
		todoMigrations(),
	} {
		all = append(all, app...)
	}
	return all
}

// Graph validates All and returns its dependency graph.
func Graph() (*m.Graph, error) {
	return m.NewGraph(All())
}

func timestamps() []m.Column {
	return []m.Column{
		m.Timestamp("created_at").WithDefault(m.Now),
		m.Timestamp("updated_at").WithDefault(m.Now),
	}
}

func columns(cols ...[]m.Column) []m.Column {
	var out []m.Column
	for _, c := range cols {
		out = append(out, c...)
	}
	return out
}
