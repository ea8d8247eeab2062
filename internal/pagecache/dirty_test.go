package pagecache

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-uffs/internal/types"
)

func dirtyBuffer(parent, serial types.Serial, page types.PageID) *Buffer {
	b := newBuffer(16)
	b.Identity = Identity{Type: types.ObjectFile, Parent: parent, Serial: serial, PageID: page}
	b.Mark = MarkDirty
	return b
}

func TestDirtyGroups_LinkUnlink(t *testing.T) {
	g := newDirtyGroups(2)

	a1 := dirtyBuffer(0, 1, 3)
	a2 := dirtyBuffer(0, 1, 1)
	require.NoError(t, g.Link(0, a1))
	require.NoError(t, g.Link(0, a2))

	assert.Equal(t, 0, g.FindGroup(0, 1))
	assert.Equal(t, -1, g.FindGroup(0, 2))
	assert.Equal(t, 1, g.FindFreeSlot())
	assert.Equal(t, 2, g.Count(0))
	assert.Same(t, a2, g.minPage(0))
	assert.Same(t, a1, g.member(0, 3))
	assert.Nil(t, g.member(0, 2))

	owner, ok := g.Owner(0)
	require.True(t, ok)
	assert.Equal(t, types.Serial(1), owner.Serial)

	require.NoError(t, g.Unlink(a2))
	assert.Equal(t, 1, g.Count(0))
	assert.Equal(t, -1, a2.slot)
	assert.ElementsMatch(t, []*Buffer{a1}, g.Members(0))
}

func TestDirtyGroups_RejectsMisuse(t *testing.T) {
	g := newDirtyGroups(2)
	a := dirtyBuffer(0, 1, 0)
	require.NoError(t, g.Link(0, a))

	tests := []struct {
		name string
		run  func() error
	}{
		{name: "link twice", run: func() error { return g.Link(1, a) }},
		{name: "foreign object", run: func() error { return g.Link(0, dirtyBuffer(0, 2, 0)) }},
		{name: "link clean buffer", run: func() error {
			b := dirtyBuffer(0, 3, 0)
			b.Mark = MarkValid
			return g.Link(1, b)
		}},
		{name: "unlink clean buffer", run: func() error { return g.Unlink(newBuffer(16)) }},
		{name: "unlock unlocked slot", run: func() error { return g.Unlock(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.run(), types.ErrInvalidState))
		})
	}
}

func TestDirtyGroups_MostDirtySkipsLocked(t *testing.T) {
	g := newDirtyGroups(3)
	require.NoError(t, g.Link(0, dirtyBuffer(0, 1, 0)))
	for pg := types.PageID(0); pg < 3; pg++ {
		require.NoError(t, g.Link(1, dirtyBuffer(0, 2, pg)))
	}
	assert.Equal(t, 1, g.MostDirtySlot())

	g.Lock(1)
	assert.True(t, g.Locked(1))
	assert.Equal(t, 0, g.MostDirtySlot())
	require.NoError(t, g.Unlock(1))
	assert.False(t, g.Locked(1))

	assert.NotPanics(t, func() { g.check(1) })
	g.slots[1].count++
	assert.Panics(t, func() { g.check(1) })
}
