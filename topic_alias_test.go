package mqttd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicAliasInbound(t *testing.T) {
	table := NewTopicAliasTable(4, 0)

	require.NoError(t, table.SetInbound(1, "sensors/temp"))

	topic, err := table.ResolveInbound(1)
	require.NoError(t, err)
	assert.Equal(t, "sensors/temp", topic)

	t.Run("replace mapping", func(t *testing.T) {
		require.NoError(t, table.SetInbound(1, "sensors/humidity"))
		topic, err := table.ResolveInbound(1)
		require.NoError(t, err)
		assert.Equal(t, "sensors/humidity", topic)
	})

	t.Run("alias zero invalid", func(t *testing.T) {
		assert.ErrorIs(t, table.SetInbound(0, "x"), ErrTopicAliasInvalid)
	})

	t.Run("alias above maximum invalid", func(t *testing.T) {
		assert.ErrorIs(t, table.SetInbound(5, "x"), ErrTopicAliasInvalid)
	})

	t.Run("unknown alias", func(t *testing.T) {
		_, err := table.ResolveInbound(3)
		assert.ErrorIs(t, err, ErrTopicAliasUnknown)
	})
}

func TestTopicAliasOutbound(t *testing.T) {
	table := NewTopicAliasTable(0, 2)

	first := table.Outbound("a/b")
	assert.Equal(t, uint16(1), first)

	// The same topic keeps its alias.
	assert.Equal(t, uint16(1), table.Outbound("a/b"))

	second := table.Outbound("c/d")
	assert.Equal(t, uint16(2), second)

	// Capacity exhausted: further topics go without an alias.
	assert.Zero(t, table.Outbound("e/f"))
	assert.Equal(t, uint16(1), table.Outbound("a/b"))
}

func TestTopicAliasOutboundDisabled(t *testing.T) {
	table := NewTopicAliasTable(4, 0)
	assert.Zero(t, table.Outbound("a/b"))
}
