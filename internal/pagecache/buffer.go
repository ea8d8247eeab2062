package pagecache

import (
	"fmt"

	"github.com/deploymenttheory/go-uffs/internal/types"
)

// Mark is the cache state of a pooled buffer
type Mark uint8

const (
	// MarkEmpty buffers hold no page.
	MarkEmpty Mark = iota
	// MarkValid buffers hold the same content as flash.
	MarkValid
	// MarkDirty buffers hold content newer than flash.
	MarkDirty
)

// String returns the lower case name of the mark
func (m Mark) String() string {
	switch m {
	case MarkEmpty:
		return "empty"
	case MarkValid:
		return "valid"
	case MarkDirty:
		return "dirty"
	default:
		return fmt.Sprintf("mark(%d)", uint8(m))
	}
}

// Identity is the logical address of a page
type Identity struct {
	Type   types.ObjectType
	Parent types.Serial
	Serial types.Serial
	PageID types.PageID
}

func (id Identity) String() string {
	return fmt.Sprintf("%s %d/%d page %d", id.Type, id.Parent, id.Serial, id.PageID)
}

// PageBuffer is either a pooled *Buffer or a *ClonedBuffer. Pool.Release
// returns either kind to where it came from.
type PageBuffer interface {
	// ID returns the logical page address
	ID() Identity

	// Bytes returns the valid data of the page
	Bytes() []byte

	isPageBuffer()
}

// Buffer is a pooled, reference counted copy of one page
type Buffer struct {
	Identity

	// DataLen is the number of valid bytes in Data.
	DataLen int

	// Mark is the cache state.
	Mark Mark

	// Header is the mini header of the page when it was loaded from flash.
	Header types.MiniHeader

	// Data is the full page data area.
	Data []byte

	refCount int

	prev, next *Buffer // LRU list, head is most recently used

	slot                 int // dirty group, -1 when not dirty
	prevDirty, nextDirty *Buffer
}

func newBuffer(size int) *Buffer {
	b := &Buffer{Data: make([]byte, size), slot: -1}
	b.clear()
	return b
}

func (b *Buffer) clear() {
	for i := range b.Data {
		b.Data[i] = types.ErasedByte
	}
	b.DataLen = 0
}

// ID returns the logical page address
func (b *Buffer) ID() Identity {
	return b.Identity
}

// Bytes returns the valid data of the page
func (b *Buffer) Bytes() []byte {
	return b.Data[:b.DataLen]
}

// RefCount returns the number of outstanding references
func (b *Buffer) RefCount() int {
	return b.refCount
}

// live reports whether the buffer holds an identity that lookups may match
func (b *Buffer) live() bool {
	return b.Mark != MarkEmpty || b.refCount > 0
}

func (b *Buffer) matches(parent, serial types.Serial, page types.PageID) bool {
	return b.live() && b.Parent == parent && b.Serial == serial && b.PageID == page
}

func (*Buffer) isPageBuffer() {}

func (b *Buffer) String() string {
	return fmt.Sprintf("buffer{%s len=%d %s ref=%d}", b.Identity, b.DataLen, b.Mark, b.refCount)
}

// ClonedBuffer is a snapshot of a page held outside the LRU list, drawn
// from the pool's small clone side pool
type ClonedBuffer struct {
	Identity

	// DataLen is the number of valid bytes in Data.
	DataLen int

	// Header is the mini header of the source page.
	Header types.MiniHeader

	// Data is the full page data area.
	Data []byte

	inUse bool
}

// ID returns the logical page address
func (c *ClonedBuffer) ID() Identity {
	return c.Identity
}

// Bytes returns the valid data of the page
func (c *ClonedBuffer) Bytes() []byte {
	return c.Data[:c.DataLen]
}

func (*ClonedBuffer) isPageBuffer() {}

// LRU list surgery. Every operation keeps head and tail consistent,
// including when the buffer is the current head or tail.

func (p *Pool) breakFromList(b *Buffer) {
	if b.prev != nil {
		b.prev.next = b.next
	} else if p.head == b {
		p.head = b.next
	}
	if b.next != nil {
		b.next.prev = b.prev
	} else if p.tail == b {
		p.tail = b.prev
	}
	b.prev, b.next = nil, nil
}

func (p *Pool) linkToHead(b *Buffer) {
	b.prev, b.next = nil, p.head
	if p.head != nil {
		p.head.prev = b
	}
	p.head = b
	if p.tail == nil {
		p.tail = b
	}
}

func (p *Pool) linkToTail(b *Buffer) {
	b.prev, b.next = p.tail, nil
	if p.tail != nil {
		p.tail.next = b
	}
	p.tail = b
	if p.head == nil {
		p.head = b
	}
}

func (p *Pool) moveToHead(b *Buffer) {
	if p.head == b {
		return
	}
	p.breakFromList(b)
	p.linkToHead(b)
}
