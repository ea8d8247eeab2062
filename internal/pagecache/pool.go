package pagecache

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/deploymenttheory/go-uffs/internal/blockinfo"
	"github.com/deploymenttheory/go-uffs/internal/interfaces"
	"github.com/deploymenttheory/go-uffs/internal/tree"
	"github.com/deploymenttheory/go-uffs/internal/types"
)

// LoadFlags modify GetOrLoad
type LoadFlags uint8

const (
	// LoadFlushFirst flushes the object's dirty group before reading, so
	// the read sees the object's current block.
	LoadFlushFirst LoadFlags = 1 << iota

	// LoadNoRead allocates the buffer without reading flash, for a page
	// that does not exist yet.
	LoadNoRead
)

// Options size a Pool
type Options struct {
	MaxBuffers      int
	MaxDirtyBuffers int
	DirtyGroups     int
	CloneBuffers    int
	MaxIORetries    int
	Log             *logrus.Entry
}

// DefaultOptions returns a pool configuration suited to small devices
func DefaultOptions() Options {
	return Options{
		MaxBuffers:      40,
		MaxDirtyBuffers: 10,
		DirtyGroups:     3,
		CloneBuffers:    2,
		MaxIORetries:    3,
	}
}

// Stats reports the pool's state and activity
type Stats struct {
	Buffers      int `json:"buffers" yaml:"buffers"`
	Free         int `json:"free" yaml:"free"`
	Referenced   int `json:"referenced" yaml:"referenced"`
	Dirty        int `json:"dirty" yaml:"dirty"`
	ClonesInUse  int `json:"clones_in_use" yaml:"clones_in_use"`
	Hits         int `json:"hits" yaml:"hits"`
	Misses       int `json:"misses" yaml:"misses"`
	Appends      int `json:"appends" yaml:"appends"`
	Recoveries   int `json:"recoveries" yaml:"recoveries"`
	NewBlocks    int `json:"new_blocks" yaml:"new_blocks"`
	BadBlocks    int `json:"bad_blocks" yaml:"bad_blocks"`
	IORetries    int `json:"io_retries" yaml:"io_retries"`
	FlushedPages int `json:"flushed_pages" yaml:"flushed_pages"`
}

// Pool is a fixed set of page buffers kept in LRU order, with dirty
// tracking and the flush engine that makes dirty pages durable. It is not
// safe for concurrent use.
type Pool struct {
	geo    types.Geometry
	pgSize int
	dev    interfaces.FlashDevice
	tree   *tree.Tree
	blocks *blockinfo.Cache
	log    *logrus.Entry

	head, tail *Buffer
	buffers    []*Buffer
	clones     []*ClonedBuffer
	groups     *DirtyGroups

	maxDirty     int
	maxIORetries int

	stats        Stats
	lastRecovery RecoveryOutcome
}

// New creates a buffer pool over a device and its metadata tree
func New(dev interfaces.FlashDevice, tr *tree.Tree, blocks *blockinfo.Cache, opts Options) (*Pool, error) {
	if opts.MaxBuffers < 1 || opts.DirtyGroups < 1 || opts.CloneBuffers < 1 || opts.MaxIORetries < 1 {
		return nil, errors.Wrapf(types.ErrInvalidArgument, "invalid pool options %+v", opts)
	}
	if opts.MaxDirtyBuffers < 1 {
		return nil, errors.Wrapf(types.ErrInvalidArgument, "max dirty buffers %d", opts.MaxDirtyBuffers)
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	geo := dev.Geometry()
	p := &Pool{
		geo:          geo,
		pgSize:       geo.PgDataSize(),
		dev:          dev,
		tree:         tr,
		blocks:       blocks,
		log:          opts.Log.WithField("component", "pagecache"),
		groups:       newDirtyGroups(opts.DirtyGroups),
		maxDirty:     opts.MaxDirtyBuffers,
		maxIORetries: opts.MaxIORetries,
	}
	if p.maxDirty > int(geo.PagesPerBlock) {
		p.maxDirty = int(geo.PagesPerBlock)
	}

	for i := 0; i < opts.MaxBuffers; i++ {
		b := newBuffer(p.pgSize)
		p.buffers = append(p.buffers, b)
		p.linkToTail(b)
	}
	for i := 0; i < opts.CloneBuffers; i++ {
		p.clones = append(p.clones, &ClonedBuffer{Data: make([]byte, p.pgSize)})
	}
	return p, nil
}

// Groups exposes the dirty group tracker
func (p *Pool) Groups() *DirtyGroups {
	return p.groups
}

// PageSize returns the number of object bytes a buffer holds
func (p *Pool) PageSize() int {
	return p.pgSize
}

func (p *Pool) find(parent, serial types.Serial, page types.PageID) *Buffer {
	for b := p.head; b != nil; b = b.next {
		if b.matches(parent, serial, page) {
			return b
		}
	}
	return nil
}

// findFree scans from the LRU tail for a buffer nobody references that
// holds no unflushed data
func (p *Pool) findFree() *Buffer {
	for b := p.tail; b != nil; b = b.prev {
		if b.refCount == 0 && b.Mark != MarkDirty {
			return b
		}
	}
	return nil
}

// Get returns a referenced buffer holding a page, or nil when the page is
// not cached
func (p *Pool) Get(parent, serial types.Serial, page types.PageID) *Buffer {
	b := p.find(parent, serial, page)
	if b == nil {
		p.stats.Misses++
		return nil
	}
	p.stats.Hits++
	b.refCount++
	p.moveToHead(b)
	return b
}

// New returns a referenced buffer for a page the caller is about to write.
// A cached copy is reused and, when nobody else holds it, truncated. Any
// other buffer comes from the LRU tail, cleared to the erased pattern.
func (p *Pool) New(typ types.ObjectType, parent, serial types.Serial, page types.PageID) (*Buffer, error) {
	if b := p.find(parent, serial, page); b != nil {
		if b.refCount > 0 {
			p.log.WithField("page", b.Identity).Debug("new buffer requested for a referenced page")
		} else {
			b.DataLen = 0
		}
		b.refCount++
		p.moveToHead(b)
		return b, nil
	}

	b := p.findFree()
	if b == nil {
		flushErr := p.FlushMostDirty()
		b = p.findFree()
		if b == nil {
			err := errors.Wrapf(types.ErrOutOfBuffers, "allocating %s %d/%d page %d", typ, parent, serial, page)
			if flushErr != nil {
				err = errors.WithSecondaryError(err, flushErr)
			}
			p.log.WithError(err).Warn("page buffer pool starved")
			return nil, err
		}
	}

	b.Identity = Identity{Type: typ, Parent: parent, Serial: serial, PageID: page}
	b.Mark = MarkEmpty
	b.Header = types.MiniHeader{}
	b.clear()
	b.refCount = 1
	p.moveToHead(b)
	return b, nil
}

// GetOrLoad returns a referenced buffer holding a page of the object a node
// indexes, reading it from flash on a cache miss
func (p *Pool) GetOrLoad(node *tree.Node, page types.PageID, flags LoadFlags) (*Buffer, error) {
	typ := node.Kind.ObjectType()
	parent, serial := node.Parent, node.Serial

	if b := p.Get(parent, serial, page); b != nil {
		return b, nil
	}
	if flags&LoadFlushFirst != 0 {
		if err := p.FlushGroup(parent, serial); err != nil {
			return nil, err
		}
	}

	b, err := p.New(typ, parent, serial, page)
	if err != nil {
		return nil, err
	}
	if flags&LoadNoRead != 0 {
		return b, nil
	}

	// New may have flushed, which can move the object to another block
	block := node.Block
	slot := p.blocks.Get(block).FindPage(page)
	if slot < 0 {
		p.discard(b)
		return nil, errors.Wrapf(types.ErrObjectNotFound, "%s %d/%d page %d not in block %d", typ, parent, serial, page, block)
	}

	hdr, data, tag, status := p.dev.ReadPage(block, uint32(slot))
	if status.Failed() {
		p.discard(b)
		return nil, errors.Wrapf(status.Err(), "reading block %d slot %d", block, slot)
	}
	if int(tag.DataLen) > p.pgSize || tag.Serial != serial || tag.PageID != page {
		p.discard(b)
		return nil, errors.Wrapf(types.ErrIO, "block %d slot %d holds %s, want page %d of serial %d", block, slot, tag, page, serial)
	}
	if status == interfaces.FlashCorrected {
		p.log.WithFields(logrus.Fields{"block": block, "slot": slot}).Info("corrected read")
	}

	copy(b.Data, data)
	b.DataLen = int(tag.DataLen)
	b.Header = hdr
	b.Mark = MarkValid
	return b, nil
}

// discard drops a freshly allocated buffer that could not be filled
func (p *Pool) discard(b *Buffer) {
	b.refCount--
	if b.refCount == 0 && b.Mark != MarkDirty {
		b.Mark = MarkEmpty
		p.breakFromList(b)
		p.linkToTail(b)
	}
}

// Put releases one reference to a pooled buffer
func (p *Pool) Put(b *Buffer) error {
	if b.refCount == 0 {
		return errors.Wrapf(types.ErrInvalidState, "put of unreferenced %s", b)
	}
	b.refCount--
	return nil
}

// Release returns either kind of page buffer
func (p *Pool) Release(pb PageBuffer) error {
	switch b := pb.(type) {
	case *Buffer:
		return p.Put(b)
	case *ClonedBuffer:
		return p.FreeClone(b)
	default:
		return errors.Wrapf(types.ErrInvalidArgument, "unknown page buffer %T", pb)
	}
}

// Write copies data into a referenced buffer at ofs and marks it dirty.
// A nil data writes n zero bytes. When the object's dirty group reaches
// the dirty limit the group is flushed before Write returns.
func (p *Pool) Write(b *Buffer, ofs int, data []byte, n int) error {
	if data != nil {
		n = len(data)
	}
	if ofs < 0 || n < 0 || ofs+n > p.pgSize {
		return errors.Wrapf(types.ErrInvalidArgument, "write of %d bytes at %d exceeds page size %d", n, ofs, p.pgSize)
	}
	if b.refCount == 0 {
		return errors.Wrapf(types.ErrInvalidState, "write to unreferenced %s", b)
	}

	slot := b.slot
	if slot < 0 {
		slot = p.groups.FindGroup(b.Parent, b.Serial)
	}
	if slot < 0 {
		slot = p.groups.FindFreeSlot()
		if slot < 0 {
			if err := p.FlushMostDirty(); err != nil {
				return err
			}
			slot = p.groups.FindFreeSlot()
		}
		if slot < 0 {
			return errors.Wrapf(types.ErrOutOfBuffers, "no dirty group for %s", b.Identity)
		}
	}

	if data != nil {
		copy(b.Data[ofs:], data)
	} else {
		for i := ofs; i < ofs+n; i++ {
			b.Data[i] = 0
		}
	}
	if ofs+n > b.DataLen {
		b.DataLen = ofs + n
	}

	if b.Mark != MarkDirty {
		b.Mark = MarkDirty
		if err := p.groups.Link(slot, b); err != nil {
			return err
		}
	}

	if p.groups.Count(slot) >= p.maxDirty {
		return p.flushSlot(slot, false)
	}
	return nil
}

// Read copies the valid data at ofs into dst. Reading at or past DataLen
// yields nothing.
func (p *Pool) Read(b *Buffer, ofs int, dst []byte) int {
	if ofs < 0 || ofs >= b.DataLen {
		return 0
	}
	return copy(dst, b.Data[ofs:b.DataLen])
}

func (p *Pool) takeClone() (*ClonedBuffer, error) {
	for _, c := range p.clones {
		if !c.inUse {
			c.inUse = true
			return c, nil
		}
	}
	return nil, errors.Wrap(types.ErrOutOfBuffers, "clone pool exhausted")
}

// Clone snapshots a buffer into the clone side pool
func (p *Pool) Clone(b *Buffer) (*ClonedBuffer, error) {
	c, err := p.takeClone()
	if err != nil {
		return nil, err
	}
	c.Identity = b.Identity
	c.DataLen = b.DataLen
	c.Header = b.Header
	copy(c.Data, b.Data)
	return c, nil
}

// FreeClone returns a clone to the side pool
func (p *Pool) FreeClone(c *ClonedBuffer) error {
	if !c.inUse {
		return errors.Wrapf(types.ErrInvalidState, "freeing idle clone of %s", c.Identity)
	}
	c.inUse = false
	return nil
}

// MarkEmpty invalidates the cached copy of a page. Referenced or dirty
// buffers are left alone.
func (p *Pool) MarkEmpty(parent, serial types.Serial, page types.PageID) {
	b := p.find(parent, serial, page)
	if b == nil || b.refCount > 0 || b.Mark == MarkDirty {
		return
	}
	b.Mark = MarkEmpty
	p.breakFromList(b)
	p.linkToTail(b)
}

// Discard drops every cached page of an object, dirty pages included,
// without writing them. It fails if any of them is referenced.
func (p *Pool) Discard(parent, serial types.Serial) error {
	for b := p.head; b != nil; b = b.next {
		if b.live() && b.Parent == parent && b.Serial == serial && b.refCount > 0 {
			return errors.Wrapf(types.ErrInvalidState, "discarding referenced %s", b)
		}
	}
	if slot := p.groups.FindGroup(parent, serial); slot >= 0 {
		if p.groups.Locked(slot) {
			return errors.Wrapf(types.ErrInvalidState, "discarding locked dirty group %d", slot)
		}
		for _, b := range p.groups.Members(slot) {
			if err := p.groups.Unlink(b); err != nil {
				return err
			}
			b.Mark = MarkEmpty
		}
	}
	for b := p.head; b != nil; b = b.next {
		if b.live() && b.Parent == parent && b.Serial == serial {
			b.Mark = MarkEmpty
		}
	}
	return nil
}

// DiscardMatchParent drops the cached pages of every object under parent
func (p *Pool) DiscardMatchParent(parent types.Serial) error {
	serials := make(map[types.Serial]struct{})
	for b := p.head; b != nil; b = b.next {
		if b.live() && b.Parent == parent {
			serials[b.Serial] = struct{}{}
		}
	}
	for s := range serials {
		if err := p.Discard(parent, s); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseAll flushes every dirty group and empties the pool. It fails if
// any buffer is still referenced.
func (p *Pool) ReleaseAll() error {
	for _, b := range p.buffers {
		if b.refCount > 0 {
			return errors.Wrapf(types.ErrInvalidState, "releasing pool while %s is referenced", b)
		}
	}
	if err := p.FlushAll(); err != nil {
		return err
	}
	for _, b := range p.buffers {
		b.Mark = MarkEmpty
		b.clear()
	}
	return nil
}

// FlushAll flushes every dirty group. Every group is attempted; the
// failures are combined.
func (p *Pool) FlushAll() error {
	var err error
	for slot := 0; slot < p.groups.Len(); slot++ {
		if p.groups.Count(slot) > 0 {
			err = multierr.Append(err, p.flushSlot(slot, false))
		}
	}
	return err
}

// FlushGroup flushes the dirty pages of one object
func (p *Pool) FlushGroup(parent, serial types.Serial) error {
	return p.FlushGroupEx(parent, serial, false)
}

// FlushGroupEx flushes the dirty pages of one object. force skips the
// append path and always recovers the object into a fresh block.
func (p *Pool) FlushGroupEx(parent, serial types.Serial, force bool) error {
	slot := p.groups.FindGroup(parent, serial)
	if slot < 0 {
		return nil
	}
	return p.flushSlot(slot, force)
}

// FlushMostDirty flushes the unlocked group with the most dirty pages
func (p *Pool) FlushMostDirty() error {
	slot := p.groups.MostDirtySlot()
	if slot < 0 {
		return nil
	}
	return p.flushSlot(slot, false)
}

// FlushGroupMatchParent flushes every group whose object lives under parent
func (p *Pool) FlushGroupMatchParent(parent types.Serial) error {
	var err error
	for slot := 0; slot < p.groups.Len(); slot++ {
		if owner, ok := p.groups.Owner(slot); ok && owner.Parent == parent {
			err = multierr.Append(err, p.flushSlot(slot, false))
		}
	}
	return err
}

// HasDirty reports whether an object has unflushed pages
func (p *Pool) HasDirty(parent, serial types.Serial) bool {
	return p.groups.FindGroup(parent, serial) >= 0
}

// Stats returns the pool's state and activity counters
func (p *Pool) Stats() Stats {
	s := p.stats
	s.Buffers = len(p.buffers)
	s.Free, s.Referenced, s.Dirty = 0, 0, 0
	for _, b := range p.buffers {
		switch {
		case b.refCount > 0:
			s.Referenced++
		case b.Mark != MarkDirty:
			s.Free++
		}
		if b.Mark == MarkDirty {
			s.Dirty++
		}
	}
	s.ClonesInUse = 0
	for _, c := range p.clones {
		if c.inUse {
			s.ClonesInUse++
		}
	}
	return s
}

// CheckLRU verifies the LRU list links every buffer exactly once with
// consistent head, tail and back links
func (p *Pool) CheckLRU() error {
	seen := make(map[*Buffer]bool, len(p.buffers))
	var prev *Buffer
	for b := p.head; b != nil; b = b.next {
		if seen[b] {
			return errors.AssertionFailedf("LRU list cycles at %s", b)
		}
		if b.prev != prev {
			return errors.AssertionFailedf("LRU back link of %s broken", b)
		}
		seen[b] = true
		prev = b
	}
	if p.tail != prev {
		return errors.AssertionFailedf("LRU tail is not the last buffer")
	}
	if len(seen) != len(p.buffers) {
		return errors.AssertionFailedf("LRU list holds %d of %d buffers", len(seen), len(p.buffers))
	}
	return nil
}
