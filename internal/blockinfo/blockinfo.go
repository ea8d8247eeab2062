package blockinfo

import (
	"github.com/deploymenttheory/go-uffs/internal/interfaces"
	"github.com/deploymenttheory/go-uffs/internal/types"
)

// PageInfo is the spare area state of one physical page slot
type PageInfo struct {
	Tag    types.Tag
	Erased bool
	Status interfaces.FlashStatus
}

// Live reports whether the slot holds a readable, in-use page
func (p PageInfo) Live() bool {
	return !p.Erased && !p.Status.Failed() && p.Tag.IsInUse()
}

// BlockInfo is a snapshot of every tag in one erase block, indexed by
// physical slot
type BlockInfo struct {
	Block types.BlockNum
	Pages []PageInfo
}

// Load reads the spare area of every page in a block. A tag that cannot be
// read leaves its slot neither free nor live.
func Load(dev interfaces.FlashReader, block types.BlockNum) *BlockInfo {
	ppb := dev.Geometry().PagesPerBlock
	bi := &BlockInfo{
		Block: block,
		Pages: make([]PageInfo, ppb),
	}
	for slot := uint32(0); slot < ppb; slot++ {
		if dev.IsPageErased(block, slot) {
			bi.Pages[slot] = PageInfo{Erased: true}
			continue
		}
		tag, status := dev.ReadPageTag(block, slot)
		bi.Pages[slot] = PageInfo{Tag: tag, Status: status}
	}
	return bi
}

// FreePages counts the erased slots at the end of the block. Pages are
// programmed in slot order, so only these can still be written.
func (bi *BlockInfo) FreePages() int {
	n := 0
	for slot := len(bi.Pages) - 1; slot >= 0 && bi.Pages[slot].Erased; slot-- {
		n++
	}
	return n
}

// NextFreeSlot returns the first writable slot, or -1 if the block is full
func (bi *BlockInfo) NextFreeSlot() int {
	free := bi.FreePages()
	if free == 0 {
		return -1
	}
	return len(bi.Pages) - free
}

// IsUsed reports whether any slot has been programmed
func (bi *BlockInfo) IsUsed() bool {
	return bi.FreePages() < len(bi.Pages)
}

// Head returns the tag of slot 0
func (bi *BlockInfo) Head() PageInfo {
	return bi.Pages[0]
}

// TimeStamp returns the block generation recorded in slot 0
func (bi *BlockInfo) TimeStamp() types.BlockTimeStamp {
	return bi.Pages[0].Tag.BlockTS
}

// FindPage returns the slot of the newest copy of a logical page, or -1.
// Later slots supersede earlier ones.
func (bi *BlockInfo) FindPage(id types.PageID) int {
	for slot := len(bi.Pages) - 1; slot >= 0; slot-- {
		p := bi.Pages[slot]
		if p.Live() && p.Tag.PageID == id {
			return slot
		}
	}
	return -1
}

// Unreadable reports whether any slot's tag could not be read, in which
// case a page missing from FindPage may still exist
func (bi *BlockInfo) Unreadable() bool {
	for _, p := range bi.Pages {
		if p.Status.Failed() {
			return true
		}
	}
	return false
}

// LivePages maps each logical page id to the slot of its newest copy
func (bi *BlockInfo) LivePages() map[types.PageID]int {
	out := make(map[types.PageID]int)
	for slot, p := range bi.Pages {
		if p.Live() {
			out[p.Tag.PageID] = slot
		}
	}
	return out
}

// DataLength returns the object bytes held by the block: the sum of the
// newest data length of every logical page
func (bi *BlockInfo) DataLength() int {
	total := 0
	for _, slot := range bi.LivePages() {
		total += int(bi.Pages[slot].Tag.DataLen)
	}
	return total
}
