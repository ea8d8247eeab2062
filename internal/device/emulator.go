package device

import (
	"bytes"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/tchajed/goose/machine/disk"
	"go.uber.org/atomic"

	"github.com/deploymenttheory/go-uffs/internal/interfaces"
	"github.com/deploymenttheory/go-uffs/internal/parsers/pages"
	"github.com/deploymenttheory/go-uffs/internal/types"
)

var _ interfaces.FlashDevice = (*Emulator)(nil)

// Emulator is a NAND flash simulation backed by a goose disk. Each flash page
// occupies one disk block: the page main area (mini header and data) followed
// by the TagSize byte spare area.
//
// The emulator enforces program-once semantics: programming a page that has
// not been erased fails with FlashIOError.
type Emulator struct {
	geo  types.Geometry
	disk disk.Disk
	log  *logrus.Entry

	mu     sync.Mutex
	faults map[types.BlockNum]*FaultPlan
	stats  Stats
	closer func() error
}

// Stats counts the operations served by an emulator
type Stats struct {
	PageReads   atomic.Uint64
	PageWrites  atomic.Uint64
	BlockErases atomic.Uint64
	BadMarks    atomic.Uint64
	Failures    atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats
type StatsSnapshot struct {
	PageReads   uint64 `json:"page_reads" yaml:"page_reads"`
	PageWrites  uint64 `json:"page_writes" yaml:"page_writes"`
	BlockErases uint64 `json:"block_erases" yaml:"block_erases"`
	BadMarks    uint64 `json:"bad_marks" yaml:"bad_marks"`
	Failures    uint64 `json:"failures" yaml:"failures"`
}

func checkGeometry(geo types.Geometry) error {
	if err := geo.Validate(); err != nil {
		return err
	}
	if uint64(geo.PageDataSize)+types.TagSize > disk.BlockSize {
		return errors.Wrapf(types.ErrInvalidArgument,
			"page of %d bytes plus spare does not fit a %d byte disk block", geo.PageDataSize, disk.BlockSize)
	}
	return nil
}

func newEmulator(geo types.Geometry, d disk.Disk, log *logrus.Entry) *Emulator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Emulator{
		geo:    geo,
		disk:   d,
		log:    log.WithField("component", "flash"),
		faults: make(map[types.BlockNum]*FaultPlan),
	}
}

// NewMemEmulator creates a fully erased in-memory flash device
func NewMemEmulator(geo types.Geometry, log *logrus.Entry) (*Emulator, error) {
	if err := checkGeometry(geo); err != nil {
		return nil, err
	}
	e := newEmulator(geo, disk.NewMemDisk(geo.TotalPages()), log)
	e.eraseAll()
	return e, nil
}

func (e *Emulator) addr(block types.BlockNum, page uint32) uint64 {
	return uint64(block)*uint64(e.geo.PagesPerBlock) + uint64(page)
}

func (e *Emulator) inRange(block types.BlockNum, page uint32) bool {
	return uint32(block) < e.geo.TotalBlocks && page < e.geo.PagesPerBlock
}

func (e *Emulator) erasedImage() disk.Block {
	return bytes.Repeat([]byte{types.ErasedByte}, int(disk.BlockSize))
}

func (e *Emulator) eraseAll() {
	img := e.erasedImage()
	for a := uint64(0); a < e.geo.TotalPages(); a++ {
		e.disk.Write(a, img)
	}
	e.disk.Barrier()
}

// raw returns a private copy of the disk block holding a page
func (e *Emulator) raw(block types.BlockNum, page uint32) []byte {
	b := e.disk.Read(e.addr(block, page))
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (e *Emulator) spare(raw []byte) []byte {
	return raw[e.geo.PageDataSize : e.geo.PageDataSize+types.TagSize]
}

func (e *Emulator) fail(op string, block types.BlockNum, page uint32, status interfaces.FlashStatus) interfaces.FlashStatus {
	e.stats.Failures.Inc()
	e.log.WithFields(logrus.Fields{
		"op":     op,
		"block":  block,
		"page":   page,
		"status": status,
	}).Debug("flash operation failed")
	return status
}

// Geometry returns the emulated device layout
func (e *Emulator) Geometry() types.Geometry {
	return e.geo
}

// ReadPage reads one page. A page whose tag or data fails its integrity
// check is reported as FlashIOError.
func (e *Emulator) ReadPage(block types.BlockNum, page uint32) (types.MiniHeader, []byte, types.Tag, interfaces.FlashStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inRange(block, page) {
		return types.MiniHeader{}, nil, types.Tag{}, e.fail("read", block, page, interfaces.FlashIOError)
	}
	e.stats.PageReads.Inc()

	status := interfaces.FlashOK
	if plan := e.faults[block]; plan != nil && plan.ReadStatus != interfaces.FlashOK {
		status = plan.ReadStatus
		if status == interfaces.FlashIOError {
			return types.MiniHeader{}, nil, types.Tag{}, e.fail("read", block, page, status)
		}
	}

	raw := e.raw(block, page)
	hdr, _ := pages.DecodeMiniHeader(raw)
	data := raw[types.MiniHeaderSize:e.geo.PageDataSize]
	spare := e.spare(raw)

	if pages.IsErased(spare) {
		return hdr, data, types.Tag{}, status
	}

	tag, err := pages.DecodeTag(spare)
	if err != nil {
		return hdr, data, tag, e.fail("read", block, page, interfaces.FlashIOError)
	}
	if hdr.Status == types.HeaderStatusGood && pages.Sum16(data) != hdr.CRC {
		return hdr, data, tag, e.fail("read", block, page, interfaces.FlashIOError)
	}
	return hdr, data, tag, status
}

// ReadPageTag reads the spare area of one page
func (e *Emulator) ReadPageTag(block types.BlockNum, page uint32) (types.Tag, interfaces.FlashStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inRange(block, page) {
		return types.Tag{}, e.fail("read-tag", block, page, interfaces.FlashIOError)
	}
	e.stats.PageReads.Inc()

	if plan := e.faults[block]; plan != nil && plan.ReadStatus == interfaces.FlashIOError {
		return types.Tag{}, e.fail("read-tag", block, page, plan.ReadStatus)
	}

	spare := e.spare(e.raw(block, page))
	if pages.IsErased(spare) {
		return types.Tag{}, interfaces.FlashOK
	}
	tag, err := pages.DecodeTag(spare)
	if err != nil {
		return tag, e.fail("read-tag", block, page, interfaces.FlashIOError)
	}
	return tag, interfaces.FlashOK
}

// IsPageErased reports whether a page reads back entirely as erased flash
func (e *Emulator) IsPageErased(block types.BlockNum, page uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inRange(block, page) {
		return false
	}
	return pages.IsErased(e.raw(block, page)[:e.geo.PageDataSize+types.TagSize])
}

// IsBadBlock reports whether page 0 of a block carries a bad status byte
func (e *Emulator) IsBadBlock(block types.BlockNum) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inRange(block, 0) {
		return true
	}
	return e.raw(block, 0)[0] != types.HeaderStatusGood
}

// WritePage programs one erased page with a header, data and tag. data may be
// shorter than the page data area; the remainder is left erased.
func (e *Emulator) WritePage(block types.BlockNum, page uint32, hdr types.MiniHeader, data []byte, tag types.Tag) interfaces.FlashStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inRange(block, page) || len(data) > e.geo.PgDataSize() {
		return e.fail("write", block, page, interfaces.FlashIOError)
	}

	if plan := e.faults[block]; plan != nil {
		if status, fire := plan.onWrite(); fire {
			if plan.Once {
				delete(e.faults, block)
			}
			return e.fail("write", block, page, status)
		}
	}

	a := e.addr(block, page)
	cur := e.disk.Read(a)
	if !pages.IsErased(cur[:e.geo.PageDataSize+types.TagSize]) {
		return e.fail("write", block, page, interfaces.FlashIOError)
	}

	img := e.erasedImage()
	pages.EncodeMiniHeader(img, hdr)
	copy(img[types.MiniHeaderSize:], data)
	copy(img[e.geo.PageDataSize:], pages.EncodeTag(tag))
	e.disk.Write(a, img)
	e.stats.PageWrites.Inc()
	return interfaces.FlashOK
}

// EraseBlock returns every page of a block to the erased state
func (e *Emulator) EraseBlock(block types.BlockNum) interfaces.FlashStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inRange(block, 0) {
		return e.fail("erase", block, 0, interfaces.FlashIOError)
	}
	if plan := e.faults[block]; plan != nil {
		if plan.EraseStatus != interfaces.FlashOK {
			return e.fail("erase", block, 0, plan.EraseStatus)
		}
		plan.writes = 0
	}

	img := e.erasedImage()
	for p := uint32(0); p < e.geo.PagesPerBlock; p++ {
		e.disk.Write(e.addr(block, p), img)
	}
	e.disk.Barrier()
	e.stats.BlockErases.Inc()
	return interfaces.FlashOK
}

// MarkBadBlock overwrites the status byte of page 0
func (e *Emulator) MarkBadBlock(block types.BlockNum) interfaces.FlashStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inRange(block, 0) {
		return e.fail("mark-bad", block, 0, interfaces.FlashIOError)
	}
	a := e.addr(block, 0)
	img := e.raw(block, 0)
	img[0] = types.HeaderStatusBad
	e.disk.Write(a, img)
	e.disk.Barrier()
	e.stats.BadMarks.Inc()
	e.log.WithField("block", block).Warn("block marked bad")
	return interfaces.FlashOK
}

// Stats returns a snapshot of the operation counters
func (e *Emulator) Stats() StatsSnapshot {
	return StatsSnapshot{
		PageReads:   e.stats.PageReads.Load(),
		PageWrites:  e.stats.PageWrites.Load(),
		BlockErases: e.stats.BlockErases.Load(),
		BadMarks:    e.stats.BadMarks.Load(),
		Failures:    e.stats.Failures.Load(),
	}
}

// Sync flushes outstanding writes to the backing store
func (e *Emulator) Sync() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disk.Barrier()
}

// Close flushes and releases the backing store
func (e *Emulator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.disk.Barrier()
	if e.closer != nil {
		err := e.closer()
		e.closer = nil
		return err
	}
	return nil
}
