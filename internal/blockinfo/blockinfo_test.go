package blockinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-uffs/internal/device"
	"github.com/deploymenttheory/go-uffs/internal/interfaces"
	"github.com/deploymenttheory/go-uffs/internal/parsers/pages"
	"github.com/deploymenttheory/go-uffs/internal/types"
)

func newDevice(t *testing.T) *device.Emulator {
	t.Helper()
	e, err := device.NewMemEmulator(types.Geometry{TotalBlocks: 4, PagesPerBlock: 8, PageDataSize: 512}, nil)
	require.NoError(t, err)
	return e
}

func program(t *testing.T, e *device.Emulator, block types.BlockNum, slot uint32, id types.PageID, dataLen int) {
	t.Helper()
	data := make([]byte, e.Geometry().PgDataSize())
	for i := range data {
		data[i] = types.ErasedByte
	}
	tag := types.Tag{
		Dirty:   true,
		Valid:   true,
		Type:    types.ObjectFile,
		BlockTS: 1,
		DataLen: uint16(dataLen),
		PageID:  id,
		Serial:  9,
	}
	pages.SealTag(&tag)
	require.Equal(t, interfaces.FlashOK, e.WritePage(block, slot, pages.NewMiniHeader(data), data, tag))
}

func TestLoad_EmptyBlock(t *testing.T) {
	e := newDevice(t)
	bi := Load(e, 1)

	assert.Equal(t, 8, bi.FreePages())
	assert.Equal(t, 0, bi.NextFreeSlot())
	assert.False(t, bi.IsUsed())
	assert.Equal(t, -1, bi.FindPage(0))
	assert.Empty(t, bi.LivePages())
}

func TestLoad_NewestCopyWins(t *testing.T) {
	e := newDevice(t)
	program(t, e, 2, 0, 0, 100)
	program(t, e, 2, 1, 1, 508)
	program(t, e, 2, 2, 1, 200)

	bi := Load(e, 2)
	assert.Equal(t, 5, bi.FreePages())
	assert.Equal(t, 3, bi.NextFreeSlot())
	assert.True(t, bi.IsUsed())
	assert.Equal(t, types.BlockTimeStamp(1), bi.TimeStamp())

	assert.Equal(t, 0, bi.FindPage(0))
	assert.Equal(t, 2, bi.FindPage(1))
	assert.Equal(t, -1, bi.FindPage(2))
	assert.Equal(t, map[types.PageID]int{0: 0, 1: 2}, bi.LivePages())
	assert.Equal(t, 300, bi.DataLength())
}

func TestLoad_FullBlock(t *testing.T) {
	e := newDevice(t)
	for slot := uint32(0); slot < 8; slot++ {
		program(t, e, 0, slot, types.PageID(slot), 10)
	}

	bi := Load(e, 0)
	assert.Equal(t, 0, bi.FreePages())
	assert.Equal(t, -1, bi.NextFreeSlot())
}

func TestCache_LRU(t *testing.T) {
	e := newDevice(t)
	c := NewCache(e, 2)

	first := c.Get(0)
	assert.Same(t, first, c.Get(0))
	c.Get(1)
	c.Get(2) // evicts block 0

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)
	assert.Equal(t, int64(1), stats.Evictions)
	assert.InDelta(t, 0.25, stats.HitRate, 0.0001)

	assert.NotSame(t, first, c.Get(0))
}

func TestCache_Invalidate(t *testing.T) {
	e := newDevice(t)
	c := NewCache(e, 4)

	assert.Equal(t, 8, c.Get(3).FreePages())
	program(t, e, 3, 0, 0, 10)
	assert.Equal(t, 8, c.Get(3).FreePages(), "stale until invalidated")

	c.Invalidate(3)
	assert.Equal(t, 7, c.Get(3).FreePages())

	c.Clear()
	assert.Equal(t, 0, c.Stats().Entries)
}
