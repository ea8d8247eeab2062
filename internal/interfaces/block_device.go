// File: internal/interfaces/block_device.go
package interfaces

import (
	"github.com/deploymenttheory/go-uffs/internal/types"
)

// FlashStatus classifies the outcome of a single flash operation.
type FlashStatus int

const (
	// FlashOK means the operation completed without error.
	FlashOK FlashStatus = iota
	// FlashCorrected means a read needed ECC correction but returned good data.
	FlashCorrected
	// FlashBadBlock means the block is defective and should be retired.
	FlashBadBlock
	// FlashIOError means the device failed the operation.
	FlashIOError
)

// String returns a short name for the status
func (s FlashStatus) String() string {
	switch s {
	case FlashOK:
		return "ok"
	case FlashCorrected:
		return "corrected"
	case FlashBadBlock:
		return "bad-block"
	case FlashIOError:
		return "io-error"
	default:
		return "unknown"
	}
}

// Failed reports whether the operation did not deliver usable data
func (s FlashStatus) Failed() bool {
	return s == FlashBadBlock || s == FlashIOError
}

// Err maps the status onto the engine error taxonomy
func (s FlashStatus) Err() error {
	switch s {
	case FlashBadBlock:
		return types.ErrBadBlock
	case FlashIOError:
		return types.ErrIO
	default:
		return nil
	}
}

// FlashReader provides methods for reading pages from a flash device
type FlashReader interface {
	// Geometry returns the physical layout of the device
	Geometry() types.Geometry

	// ReadPage reads the mini header, the page data area and the tag of one page
	ReadPage(block types.BlockNum, page uint32) (types.MiniHeader, []byte, types.Tag, FlashStatus)

	// ReadPageTag reads only the spare area of one page
	ReadPageTag(block types.BlockNum, page uint32) (types.Tag, FlashStatus)

	// IsPageErased reports whether a page has never been programmed since the last erase
	IsPageErased(block types.BlockNum, page uint32) bool

	// IsBadBlock reports whether a block carries the bad block mark
	IsBadBlock(block types.BlockNum) bool
}

// FlashWriter provides methods for programming and erasing a flash device
type FlashWriter interface {
	// WritePage programs one page. The page must be erased.
	WritePage(block types.BlockNum, page uint32, hdr types.MiniHeader, data []byte, tag types.Tag) FlashStatus

	// EraseBlock erases every page of a block
	EraseBlock(block types.BlockNum) FlashStatus

	// MarkBadBlock records the bad block mark in page 0 of a block
	MarkBadBlock(block types.BlockNum) FlashStatus
}

// FlashDevice is the page level protocol adapter consumed by the engine
type FlashDevice interface {
	FlashReader
	FlashWriter

	// Close releases the underlying storage
	Close() error
}
