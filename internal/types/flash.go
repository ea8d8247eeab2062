package types

import "github.com/cockroachdb/errors"

// Flash geometry and on-flash layout constants.
// A block is the erase unit; a page is the program unit. Pages within a block
// must be programmed in increasing order and may only be programmed once
// between erases.

// BlockNum identifies a physical erase block.
type BlockNum uint32

// Serial identifies a directory, file or data extent. It is stable across
// block recovery.
type Serial uint16

// PageID is the logical page index of a page within its object block.
// It is distinct from the physical slot the page occupies.
type PageID uint16

const (
	// RootDirSerial is the serial of the root directory.
	RootDirSerial Serial = 0

	// ParentOfRoot is the parent serial recorded in the root directory's tags.
	ParentOfRoot Serial = 0xfffd

	// InvalidSerial marks an unset serial.
	InvalidSerial Serial = 0xffff

	// MaxFsnSerial is the highest serial usable by directories and files.
	MaxFsnSerial Serial = 0x3ff

	// MaxDataSerial is the highest data extent serial.
	MaxDataSerial Serial = 0xfffc

	// InvalidPage marks a page lookup miss.
	InvalidPage PageID = 0xfffe

	// InvalidBlock marks an unset block.
	InvalidBlock BlockNum = 0xffffffff
)

const (
	// ErasedByte is the value every byte of an erased page reads back as.
	ErasedByte byte = 0xff

	// MiniHeaderSize is the size of the header at the start of each page's
	// main area.
	MiniHeaderSize = 4

	// TagSize is the size of the tag record stored in the spare area.
	TagSize = 16

	// MaxPagesPerBlock is bounded by the 10 bit page id field of the tag.
	MaxPagesPerBlock = 1 << 10

	// MaxPageDataLen is bounded by the 12 bit data length field of the tag.
	MaxPageDataLen = 1<<12 - 1

	// MaxFileNameLength is the longest object name stored in FileInfo.
	MaxFileNameLength = 128
)

// Mini header status values.
const (
	// HeaderStatusGood is the status byte of a usable block's page 0.
	HeaderStatusGood byte = 0xff

	// HeaderStatusBad is written into page 0 when a block is marked bad.
	HeaderStatusBad byte = 0x00
)

// Geometry describes the physical layout of a flash device.
type Geometry struct {
	// TotalBlocks is the number of erase blocks on the device.
	TotalBlocks uint32 `json:"total_blocks" yaml:"total_blocks"`

	// PagesPerBlock is the number of pages in each erase block.
	PagesPerBlock uint32 `json:"pages_per_block" yaml:"pages_per_block"`

	// PageDataSize is the size of each page's main area, mini header included.
	PageDataSize uint32 `json:"page_data_size" yaml:"page_data_size"`
}

// PgDataSize returns the number of object bytes a page can hold.
func (g Geometry) PgDataSize() int {
	return int(g.PageDataSize) - MiniHeaderSize
}

// BlockDataSize returns the number of object bytes a whole block can hold.
func (g Geometry) BlockDataSize() int {
	return g.PgDataSize() * int(g.PagesPerBlock)
}

// TotalPages returns the number of physical pages on the device.
func (g Geometry) TotalPages() uint64 {
	return uint64(g.TotalBlocks) * uint64(g.PagesPerBlock)
}

// DefaultGeometry mirrors a small NAND part: 128 blocks of 32 pages of 512 bytes.
func DefaultGeometry() Geometry {
	return Geometry{
		TotalBlocks:   128,
		PagesPerBlock: 32,
		PageDataSize:  512,
	}
}

// MiniHeader is the small header at the start of each page's main area.
type MiniHeader struct {
	// Status is HeaderStatusGood unless the block was marked bad.
	Status byte

	// Reserved is unused and written as ErasedByte.
	Reserved byte

	// CRC is the crc16 of the page data area.
	CRC uint16
}

// Validate checks that the geometry can be addressed by the tag layout.
func (g Geometry) Validate() error {
	if g.TotalBlocks < 2 {
		return errors.Wrapf(ErrInvalidArgument, "total blocks %d, need at least 2", g.TotalBlocks)
	}
	if g.PagesPerBlock < 2 || g.PagesPerBlock > MaxPagesPerBlock {
		return errors.Wrapf(ErrInvalidArgument, "pages per block %d out of range [2, %d]", g.PagesPerBlock, MaxPagesPerBlock)
	}
	if g.PgDataSize() < FileInfoSize {
		return errors.Wrapf(ErrInvalidArgument, "page data size %d cannot hold a file info record", g.PageDataSize)
	}
	if g.PgDataSize() > MaxPageDataLen {
		return errors.Wrapf(ErrInvalidArgument, "page data size %d exceeds the tag length field", g.PageDataSize)
	}
	return nil
}
