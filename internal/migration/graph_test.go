package migration

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mig(app, name string, deps ...Key) *Migration {
	return &Migration{App: app, Name: name, Dependencies: deps}
}

func TestKey(t *testing.T) {
	t.Run("Ordinal", func(t *testing.T) {
		assert.Equal(t, 45, Key{App: "group", Name: "0045_workgroup_chat"}.Ordinal())
		assert.Equal(t, 1, Key{App: "user", Name: "0001_initial"}.Ordinal())
		assert.Equal(t, 0, Key{App: "x", Name: "initial"}.Ordinal())
	})

	t.Run("Parse", func(t *testing.T) {
		k, err := ParseKey("schedule/0004_scheduleevent_repeat_task")
		require.NoError(t, err)
		assert.Equal(t, Key{App: "schedule", Name: "0004_scheduleevent_repeat_task"}, k)

		_, err = ParseKey("schedule")
		assert.Error(t, err)
		_, err = ParseKey("/0001")
		assert.Error(t, err)
	})
}

func TestGraph(t *testing.T) {
	userInit := Key{App: "user", Name: "0001_initial"}
	chatInit := Key{App: "chat", Name: "0001_initial"}
	groupInit := Key{App: "group", Name: "0001_initial"}
	groupWork := Key{App: "group", Name: "0044_workgroup"}

	t.Run("OrdersByDependencyThenOrdinal", func(t *testing.T) {
		g, err := NewGraph([]*Migration{
			mig("group", "0045_workgroup_chat", groupWork, chatInit),
			mig("group", "0044_workgroup", groupInit),
			mig("chat", "0001_initial", userInit),
			mig("group", "0001_initial", userInit),
			mig("user", "0001_initial"),
			mig("todo", "0001_initial", userInit),
		})
		require.NoError(t, err)

		assert.Equal(t, []Key{
			userInit,
			chatInit,
			groupInit,
			{App: "todo", Name: "0001_initial"},
			groupWork,
			{App: "group", Name: "0045_workgroup_chat"},
		}, g.Order())
	})

	t.Run("AncestorsAndDescendants", func(t *testing.T) {
		g, err := NewGraph([]*Migration{
			mig("user", "0001_initial"),
			mig("chat", "0001_initial", userInit),
			mig("group", "0001_initial", userInit),
			mig("group", "0044_workgroup", groupInit),
		})
		require.NoError(t, err)

		assert.Equal(t, []Key{userInit, groupInit}, g.Ancestors(groupWork))
		assert.Equal(t, []Key{chatInit, groupInit, groupWork}, g.Descendants(userInit))
		assert.Equal(t, []Key{groupInit, groupWork}, g.AppKeys("group"))
	})

	t.Run("MissingDependency", func(t *testing.T) {
		_, err := NewGraph([]*Migration{
			mig("group", "0001_initial", userInit),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidGraph))
		assert.Contains(t, err.Error(), "user/0001_initial")
	})

	t.Run("Cycle", func(t *testing.T) {
		_, err := NewGraph([]*Migration{
			mig("a", "0001_initial", Key{App: "b", Name: "0001_initial"}),
			mig("b", "0001_initial", Key{App: "a", Name: "0001_initial"}),
			mig("c", "0001_initial"),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidGraph))
		assert.Contains(t, err.Error(), "a/0001_initial, b/0001_initial")
	})

	t.Run("Duplicate", func(t *testing.T) {
		_, err := NewGraph([]*Migration{mig("a", "0001_initial"), mig("a", "0001_initial")})
		assert.ErrorIs(t, err, ErrInvalidGraph)
	})
}
