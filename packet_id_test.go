package mqttd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketIDAllocate(t *testing.T) {
	a := newPacketIDAllocator()

	first, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), first)

	second, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, uint16(2), second)

	assert.Equal(t, 2, a.InFlight())
}

func TestPacketIDRelease(t *testing.T) {
	a := newPacketIDAllocator()

	id, err := a.Allocate()
	require.NoError(t, err)

	assert.True(t, a.Release(id))
	assert.False(t, a.Release(id))
	assert.False(t, a.Release(9999))
	assert.Equal(t, 0, a.InFlight())
}

func TestPacketIDNoReuseWhileInFlight(t *testing.T) {
	a := newPacketIDAllocator()

	seen := make(map[uint16]bool)
	for i := 0; i < 100; i++ {
		id, err := a.Allocate()
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestPacketIDExhaustion(t *testing.T) {
	a := newPacketIDAllocator()

	for i := 0; i < maxUint16; i++ {
		_, err := a.Allocate()
		require.NoError(t, err)
	}

	_, err := a.Allocate()
	assert.ErrorIs(t, err, ErrPacketIdentifiersSpent)

	// Releasing one identifier makes it available again.
	require.True(t, a.Release(42))
	id, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, uint16(42), id)
}
