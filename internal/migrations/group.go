package migrations

import (
	"context"
	"fmt"

	m "github.com/Gofven/flowback-backend-sub001/internal/migration"
)

const workGroupOrigin = "workgroup"

func groupMigrations() []*m.Migration {
	return []*m.Migration{
		{
			App:          groupInitial.App,
			Name:         groupInitial.Name,
			Dependencies: []m.Key{userInitial},
			Operations: []m.Operation{
				m.CreateTable{
					Name: "groups",
					Columns: columns(
						[]m.Column{
							m.ID(),
							m.Varchar("name", 255),
							m.ForeignKey("created_by_id", "users", m.Protect),
						},
						timestamps(),
					),
				},
				m.CreateTable{
					Name: "group_users",
					Columns: []m.Column{
						m.ID(),
						m.ForeignKey("group_id", "groups", m.Cascade),
						m.ForeignKey("user_id", "users", m.Cascade),
						m.Bool("is_admin", false),
						m.Bool("active", true),
						m.Timestamp("created_at").WithDefault(m.Now),
					},
					Constraints: []m.Constraint{
						m.Unique("group_user_unique", "group_id", "user_id"),
					},
				},
			},
		},
		{
			App:          groupAttributes.App,
			Name:         groupAttributes.Name,
			Dependencies: []m.Key{groupInitial},
			Operations: []m.Operation{
				m.AddColumn{Table: "groups", Column: m.Bool("active", true)},
				m.AddColumn{Table: "groups", Column: m.Bool("deleted", false)},
				m.AddColumn{Table: "groups", Column: m.Text("description").Nullable()},
				m.AddColumn{Table: "groups", Column: m.Bool("direct_join", false)},
				m.AddColumn{Table: "groups", Column: m.Bool("needs_moderation", false)},
				m.AddColumn{Table: "groups", Column: m.Bool("private", false)},
				m.AddColumn{Table: "groups", Column: m.Bool("public", false)},
				m.AddColumn{Table: "groups", Column: m.JSON("tag").WithDefault("[]")},
				m.AddColumn{Table: "groups", Column: m.ForeignKey("updated_by_id", "users", m.SetNull).Nullable()},
			},
		},
		{
			App:          groupWorkGroup.App,
			Name:         groupWorkGroup.Name,
			Dependencies: []m.Key{groupAttributes},
			Operations: []m.Operation{
				m.CreateTable{
					Name: "work_groups",
					Columns: columns(
						[]m.Column{
							m.ID(),
							m.Varchar("name", 255),
							m.Bool("direct_join", false),
							m.ForeignKey("group_id", "groups", m.Cascade),
						},
						timestamps(),
					),
				},
				m.CreateTable{
					Name: "work_group_users",
					Columns: columns(
						[]m.Column{
							m.ID(),
							m.ForeignKey("work_group_id", "work_groups", m.Cascade),
							m.ForeignKey("group_user_id", "group_users", m.Cascade),
							m.Bool("is_moderator", false),
							m.Bool("active", true),
						},
						timestamps(),
					),
					Constraints: []m.Constraint{
						m.Unique("work_group_user_unique", "work_group_id", "group_user_id"),
					},
				},
			},
		},
		{
			App:          groupWorkGroupChat.App,
			Name:         groupWorkGroupChat.Name,
			Dependencies: []m.Key{groupWorkGroup, chatInitial},
			Operations: []m.Operation{
				m.AddColumn{Table: "work_groups", Column: workGroupChat().Nullable()},
				m.RunData{
					Description: "Create a chat channel for every work group",
					Forward:     createWorkGroupChannels,
					Backward:    deleteWorkGroupChannels,
				},
				m.AlterColumn{Table: "work_groups", Column: workGroupChat()},
			},
		},
		{
			App:          groupParticipant.App,
			Name:         groupParticipant.Name,
			Dependencies: []m.Key{groupWorkGroupChat},
			Operations: []m.Operation{
				m.AddColumn{Table: "work_group_users", Column: workGroupParticipant().Nullable()},
				m.RunData{
					Description: "Join every work group member to the work group chat",
					Forward:     createWorkGroupParticipants,
					Backward:    m.Noop,
				},
				m.AlterColumn{Table: "work_group_users", Column: workGroupParticipant()},
			},
		},
		{
			App:          "group",
			Name:         "0047_seed_notification_channels",
			Dependencies: []m.Key{groupParticipant, notificationInitial},
			Operations: []m.Operation{
				m.RunData{
					Description: "Ensure every group has a notification channel",
					Forward:     seedGroupNotificationChannels,
					Backward:    m.Noop,
				},
			},
		},
	}
}

func workGroupChat() m.Column {
	return m.ForeignKey("chat_id", "message_channels", m.Protect).AsUnique()
}

func workGroupParticipant() m.Column {
	return m.ForeignKey("chat_participant_id", "message_channel_participants", m.Protect).AsUnique()
}

func createWorkGroupChannels(ctx context.Context, apps *m.Apps) error {
	workGroups, err := apps.Model("work_groups")
	if err != nil {
		return err
	}
	channels, err := apps.Model("message_channels")
	if err != nil {
		return err
	}

	rows, err := workGroups.Find(ctx, m.Row{"chat_id": nil})
	if err != nil {
		return err
	}
	for _, row := range rows {
		channelID, err := channels.Create(ctx, m.Row{
			"origin_name": workGroupOrigin,
			"title":       row.Text("name"),
		})
		if err != nil {
			return fmt.Errorf("create channel for work group %d: %w", row.Int64("id"), err)
		}
		if err := workGroups.Update(ctx, row.Int64("id"), m.Row{"chat_id": channelID}); err != nil {
			return err
		}
	}
	return nil
}

// deleteWorkGroupChannels detaches the work groups and removes the channels
// created for them, participants first since cascades do not fire while a
// migration runs.
func deleteWorkGroupChannels(ctx context.Context, apps *m.Apps) error {
	workGroups, err := apps.Model("work_groups")
	if err != nil {
		return err
	}
	channels, err := apps.Model("message_channels")
	if err != nil {
		return err
	}
	participants, err := apps.Model("message_channel_participants")
	if err != nil {
		return err
	}

	rows, err := workGroups.All(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		channelID := row.Int64("chat_id")
		if err := workGroups.Update(ctx, row.Int64("id"), m.Row{"chat_id": nil}); err != nil {
			return err
		}
		if channelID == 0 {
			continue
		}
		if _, err := participants.Delete(ctx, m.Row{"channel_id": channelID}); err != nil {
			return err
		}
		if _, err := channels.Delete(ctx, m.Row{"id": channelID, "origin_name": workGroupOrigin}); err != nil {
			return err
		}
	}
	return nil
}

func createWorkGroupParticipants(ctx context.Context, apps *m.Apps) error {
	members, err := apps.Model("work_group_users")
	if err != nil {
		return err
	}
	workGroups, err := apps.Model("work_groups")
	if err != nil {
		return err
	}
	groupUsers, err := apps.Model("group_users")
	if err != nil {
		return err
	}
	participants, err := apps.Model("message_channel_participants")
	if err != nil {
		return err
	}

	rows, err := members.Find(ctx, m.Row{"chat_participant_id": nil})
	if err != nil {
		return err
	}
	for _, row := range rows {
		workGroup, err := workGroups.First(ctx, m.Row{"id": row.Int64("work_group_id")})
		if err != nil {
			return err
		}
		groupUser, err := groupUsers.First(ctx, m.Row{"id": row.Int64("group_user_id")})
		if err != nil {
			return err
		}
		participantID, _, err := participants.GetOrCreate(ctx, m.Row{
			"channel_id": workGroup.Int64("chat_id"),
			"user_id":    groupUser.Int64("user_id"),
		}, nil)
		if err != nil {
			return fmt.Errorf("participant for work group user %d: %w", row.Int64("id"), err)
		}
		if err := members.Update(ctx, row.Int64("id"), m.Row{"chat_participant_id": participantID}); err != nil {
			return err
		}
	}
	return nil
}

func seedGroupNotificationChannels(ctx context.Context, apps *m.Apps) error {
	groups, err := apps.Model("groups")
	if err != nil {
		return err
	}
	channels, err := apps.Model("notification_channels")
	if err != nil {
		return err
	}

	rows, err := groups.All(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		_, _, err := channels.GetOrCreate(ctx, m.Row{
			"content_type": "group.group",
			"object_id":    row.Int64("id"),
		}, nil)
		if err != nil {
			return fmt.Errorf("notification channel for group %d: %w", row.Int64("id"), err)
		}
	}
	return nil
}
