package tree

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-uffs/internal/device"
	"github.com/deploymenttheory/go-uffs/internal/interfaces"
	"github.com/deploymenttheory/go-uffs/internal/parsers/pages"
	"github.com/deploymenttheory/go-uffs/internal/types"
)

type pageSpec struct {
	block   types.BlockNum
	slot    uint32
	typ     types.ObjectType
	parent  types.Serial
	serial  types.Serial
	page    types.PageID
	dataLen int
	ts      types.BlockTimeStamp
}

func writeSpec(t *testing.T, e *device.Emulator, ps pageSpec) {
	t.Helper()
	data := make([]byte, e.Geometry().PgDataSize())
	for i := range data {
		data[i] = types.ErasedByte
	}
	tag := types.Tag{
		Dirty:   true,
		Valid:   true,
		Type:    ps.typ,
		BlockTS: ps.ts,
		DataLen: uint16(ps.dataLen),
		PageID:  ps.page,
		Serial:  ps.serial,
		Parent:  ps.parent,
	}
	pages.SealTag(&tag)
	require.Equal(t, interfaces.FlashOK, e.WritePage(ps.block, ps.slot, pages.NewMiniHeader(data), data, tag))
}

func TestTree_Rebuild(t *testing.T) {
	e, err := device.NewMemEmulator(smallGeometry(), nil)
	require.NoError(t, err)

	specs := []pageSpec{
		// root directory
		{block: 0, slot: 0, typ: types.ObjectDir, parent: types.ParentOfRoot, serial: 0, dataLen: types.FileInfoSize},
		// file 1 with one data page, then a data extent
		{block: 1, slot: 0, typ: types.ObjectFile, parent: 0, serial: 1, page: 0, dataLen: types.FileInfoSize},
		{block: 1, slot: 1, typ: types.ObjectFile, parent: 0, serial: 1, page: 1, dataLen: 100},
		{block: 2, slot: 0, typ: types.ObjectData, parent: 1, serial: 1, page: 0, dataLen: 500},
		// stale copy of file 1, older generation than block 1
		{block: 3, slot: 0, typ: types.ObjectFile, parent: 0, serial: 1, dataLen: types.FileInfoSize, ts: 2},
		// directory 7 recovered from block 4 into block 5
		{block: 4, slot: 0, typ: types.ObjectDir, parent: 0, serial: 7, dataLen: types.FileInfoSize, ts: 0},
		{block: 5, slot: 0, typ: types.ObjectDir, parent: 0, serial: 7, dataLen: types.FileInfoSize, ts: 1},
		// interrupted write: page 0 never programmed
		{block: 6, slot: 1, typ: types.ObjectFile, parent: 0, serial: 9, page: 1, dataLen: 10},
		// data extent of a file that does not exist
		{block: 8, slot: 0, typ: types.ObjectData, parent: 99, serial: 1, dataLen: 10},
	}
	for _, ps := range specs {
		writeSpec(t, e, ps)
	}
	require.Equal(t, interfaces.FlashOK, e.MarkBadBlock(7))

	tr := New(smallGeometry(), nil)
	require.NoError(t, tr.Rebuild(context.Background(), e))

	root := tr.FindDir(types.RootDirSerial)
	require.NotNil(t, root)
	assert.Equal(t, types.BlockNum(0), root.Block)
	assert.Equal(t, types.ParentOfRoot, root.Parent)

	file := tr.FindFile(1)
	require.NotNil(t, file)
	assert.Equal(t, types.BlockNum(1), file.Block)
	assert.Equal(t, uint32(600), file.Len)

	ext := tr.FindData(1, 1)
	require.NotNil(t, ext)
	assert.Equal(t, types.BlockNum(2), ext.Block)
	assert.Equal(t, uint32(500), ext.Len)

	dir := tr.FindDir(7)
	require.NotNil(t, dir)
	assert.Equal(t, types.BlockNum(5), dir.Block)

	assert.Nil(t, tr.FindFile(9))
	assert.Nil(t, tr.FindData(99, 1))
	assert.Equal(t, []types.BlockNum{7}, tr.BadBlocks())
	assert.Equal(t, 11, tr.ErasedCount())

	for _, b := range []types.BlockNum{3, 4, 6, 8} {
		assert.Contains(t, tr.ErasedBlocks(), b)
		for slot := uint32(0); slot < 8; slot++ {
			assert.True(t, e.IsPageErased(b, slot), "block %d slot %d", b, slot)
		}
	}
	assert.Equal(t, types.Serial(7), tr.Stats().MaxSerial)
}

func TestTree_Rebuild_EraseFailureRetiresBlock(t *testing.T) {
	e, err := device.NewMemEmulator(smallGeometry(), nil)
	require.NoError(t, err)

	writeSpec(t, e, pageSpec{block: 2, slot: 3, typ: types.ObjectFile, serial: 4, page: 3, dataLen: 1})
	e.InjectFault(2, device.FaultPlan{FailWriteAfter: -1, EraseStatus: interfaces.FlashIOError})

	tr := New(smallGeometry(), nil)
	require.NoError(t, tr.Rebuild(context.Background(), e))

	assert.Equal(t, []types.BlockNum{2}, tr.BadBlocks())
	assert.True(t, e.IsBadBlock(2))
	assert.Equal(t, 15, tr.ErasedCount())
}

func TestTree_Rebuild_GeometryMismatch(t *testing.T) {
	e, err := device.NewMemEmulator(smallGeometry(), nil)
	require.NoError(t, err)

	tr := New(types.Geometry{TotalBlocks: 32, PagesPerBlock: 8, PageDataSize: 512}, nil)
	err = tr.Rebuild(context.Background(), e)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))
}

func TestTree_Rebuild_Cancelled(t *testing.T) {
	e, err := device.NewMemEmulator(smallGeometry(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := New(smallGeometry(), nil)
	assert.ErrorIs(t, tr.Rebuild(ctx, e), context.Canceled)
}
