package pagecache

import (
	"github.com/cockroachdb/errors"

	"github.com/deploymenttheory/go-uffs/internal/types"
)

type dirtyGroup struct {
	head  *Buffer
	count int
	lock  int
}

// DirtyGroups partitions dirty buffers by object. Each slot holds the dirty
// pages of exactly one (parent, serial) object.
type DirtyGroups struct {
	slots []dirtyGroup
}

func newDirtyGroups(n int) *DirtyGroups {
	return &DirtyGroups{slots: make([]dirtyGroup, n)}
}

// Len returns the number of slots
func (g *DirtyGroups) Len() int {
	return len(g.slots)
}

// Count returns the number of dirty buffers in a slot
func (g *DirtyGroups) Count(slot int) int {
	return g.slots[slot].count
}

// Locked reports whether a slot is being flushed
func (g *DirtyGroups) Locked(slot int) bool {
	return g.slots[slot].lock > 0
}

// FindGroup returns the slot holding an object's dirty pages, or -1
func (g *DirtyGroups) FindGroup(parent, serial types.Serial) int {
	for i := range g.slots {
		h := g.slots[i].head
		if g.slots[i].count > 0 && h.Parent == parent && h.Serial == serial {
			return i
		}
	}
	return -1
}

// FindFreeSlot returns an empty slot, or -1
func (g *DirtyGroups) FindFreeSlot() int {
	for i := range g.slots {
		if g.slots[i].count == 0 && g.slots[i].lock == 0 {
			return i
		}
	}
	return -1
}

// MostDirtySlot returns the unlocked slot with the most dirty buffers, or -1
func (g *DirtyGroups) MostDirtySlot() int {
	best, most := -1, 0
	for i := range g.slots {
		if g.slots[i].lock == 0 && g.slots[i].count > most {
			best, most = i, g.slots[i].count
		}
	}
	return best
}

// Members returns the buffers of a slot
func (g *DirtyGroups) Members(slot int) []*Buffer {
	out := make([]*Buffer, 0, g.slots[slot].count)
	for b := g.slots[slot].head; b != nil; b = b.nextDirty {
		out = append(out, b)
	}
	return out
}

// Owner returns the identity shared by a slot's members
func (g *DirtyGroups) Owner(slot int) (Identity, bool) {
	h := g.slots[slot].head
	if h == nil {
		return Identity{}, false
	}
	return h.Identity, true
}

func (g *DirtyGroups) member(slot int, page types.PageID) *Buffer {
	for b := g.slots[slot].head; b != nil; b = b.nextDirty {
		if b.PageID == page {
			return b
		}
	}
	return nil
}

func (g *DirtyGroups) minPage(slot int) *Buffer {
	var lowest *Buffer
	for b := g.slots[slot].head; b != nil; b = b.nextDirty {
		if lowest == nil || b.PageID < lowest.PageID {
			lowest = b
		}
	}
	return lowest
}

// Link adds a dirty buffer to a slot
func (g *DirtyGroups) Link(slot int, b *Buffer) error {
	if b.Mark != MarkDirty {
		return errors.Wrapf(types.ErrInvalidState, "linking %s into dirty group", b)
	}
	if b.slot >= 0 {
		return errors.Wrapf(types.ErrInvalidState, "%s already in dirty group %d", b, b.slot)
	}
	grp := &g.slots[slot]
	if h := grp.head; h != nil && (h.Parent != b.Parent || h.Serial != b.Serial || h.Type != b.Type) {
		return errors.Wrapf(types.ErrInvalidState, "%s does not belong to group of %s", b, h.Identity)
	}
	b.slot = slot
	b.prevDirty, b.nextDirty = nil, grp.head
	if grp.head != nil {
		grp.head.prevDirty = b
	}
	grp.head = b
	grp.count++
	return nil
}

// Unlink removes a dirty buffer from its slot
func (g *DirtyGroups) Unlink(b *Buffer) error {
	if b.Mark != MarkDirty || b.slot < 0 {
		return errors.Wrapf(types.ErrInvalidState, "unlinking non-dirty %s", b)
	}
	grp := &g.slots[b.slot]
	if b.prevDirty != nil {
		b.prevDirty.nextDirty = b.nextDirty
	} else {
		grp.head = b.nextDirty
	}
	if b.nextDirty != nil {
		b.nextDirty.prevDirty = b.prevDirty
	}
	b.prevDirty, b.nextDirty = nil, nil
	b.slot = -1
	grp.count--
	return nil
}

// Lock marks a slot as being flushed
func (g *DirtyGroups) Lock(slot int) {
	g.slots[slot].lock++
}

// Unlock releases one Lock of a slot
func (g *DirtyGroups) Unlock(slot int) error {
	if g.slots[slot].lock == 0 {
		return errors.Wrapf(types.ErrInvalidState, "unlocking unlocked dirty group %d", slot)
	}
	g.slots[slot].lock--
	return nil
}

// check panics when a slot's members disagree on their owner. Such a slot
// means the dirty lists are corrupt.
func (g *DirtyGroups) check(slot int) {
	grp := &g.slots[slot]
	n := 0
	for b := grp.head; b != nil; b = b.nextDirty {
		if b.Mark != MarkDirty || b.slot != slot {
			panic(errors.AssertionFailedf("dirty group %d holds %s linked to slot %d", slot, b, b.slot))
		}
		if b.Parent != grp.head.Parent || b.Serial != grp.head.Serial || b.Type != grp.head.Type {
			panic(errors.AssertionFailedf("dirty group %d mixes %s and %s", slot, grp.head.Identity, b.Identity))
		}
		n++
	}
	if n != grp.count {
		panic(errors.AssertionFailedf("dirty group %d counts %d buffers, holds %d", slot, grp.count, n))
	}
}
