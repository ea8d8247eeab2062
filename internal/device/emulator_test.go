package device

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-uffs/internal/interfaces"
	"github.com/deploymenttheory/go-uffs/internal/parsers/pages"
	"github.com/deploymenttheory/go-uffs/internal/types"
)

func testGeometry() types.Geometry {
	return types.Geometry{TotalBlocks: 8, PagesPerBlock: 8, PageDataSize: 512}
}

func sealedTag(serial types.Serial, page types.PageID, data []byte) types.Tag {
	tag := types.Tag{
		Dirty:   true,
		Valid:   true,
		Type:    types.ObjectFile,
		DataLen: uint16(len(data)),
		PageID:  page,
		Serial:  serial,
		DataSum: pages.Sum16(data),
	}
	pages.SealTag(&tag)
	return tag
}

func writeTestPage(t *testing.T, e *Emulator, block types.BlockNum, page uint32, data []byte) interfaces.FlashStatus {
	t.Helper()
	area := bytes.Repeat([]byte{types.ErasedByte}, e.Geometry().PgDataSize())
	copy(area, data)
	return e.WritePage(block, page, pages.NewMiniHeader(area), data, sealedTag(3, types.PageID(page), data))
}

func TestNewMemEmulator_StartsErased(t *testing.T) {
	e, err := NewMemEmulator(testGeometry(), nil)
	require.NoError(t, err)

	for b := types.BlockNum(0); b < 8; b++ {
		assert.False(t, e.IsBadBlock(b))
		for p := uint32(0); p < 8; p++ {
			assert.True(t, e.IsPageErased(b, p))
		}
	}
}

func TestNewMemEmulator_RejectsBadGeometry(t *testing.T) {
	tests := []struct {
		name string
		geo  types.Geometry
	}{
		{name: "too few blocks", geo: types.Geometry{TotalBlocks: 1, PagesPerBlock: 8, PageDataSize: 512}},
		{name: "too many pages", geo: types.Geometry{TotalBlocks: 8, PagesPerBlock: 2048, PageDataSize: 512}},
		{name: "page too small", geo: types.Geometry{TotalBlocks: 8, PagesPerBlock: 8, PageDataSize: 64}},
		{name: "page larger than disk block", geo: types.Geometry{TotalBlocks: 8, PagesPerBlock: 8, PageDataSize: 4096}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMemEmulator(tt.geo, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrInvalidArgument))
		})
	}
}

func TestEmulator_WriteReadPage(t *testing.T) {
	e, err := NewMemEmulator(testGeometry(), nil)
	require.NoError(t, err)

	data := []byte("page payload")
	require.Equal(t, interfaces.FlashOK, writeTestPage(t, e, 2, 0, data))

	hdr, got, tag, status := e.ReadPage(2, 0)
	require.Equal(t, interfaces.FlashOK, status)
	assert.Equal(t, types.HeaderStatusGood, hdr.Status)
	assert.Equal(t, data, got[:len(data)])
	assert.True(t, tag.IsInUse())
	assert.Equal(t, types.Serial(3), tag.Serial)
	assert.Equal(t, uint16(len(data)), tag.DataLen)

	onlyTag, status := e.ReadPageTag(2, 0)
	require.Equal(t, interfaces.FlashOK, status)
	assert.Equal(t, tag, onlyTag)
	assert.False(t, e.IsPageErased(2, 0))
	assert.True(t, e.IsPageErased(2, 1))
}

func TestEmulator_ProgramOnce(t *testing.T) {
	e, err := NewMemEmulator(testGeometry(), nil)
	require.NoError(t, err)

	require.Equal(t, interfaces.FlashOK, writeTestPage(t, e, 1, 3, []byte("a")))
	assert.Equal(t, interfaces.FlashIOError, writeTestPage(t, e, 1, 3, []byte("b")))

	require.Equal(t, interfaces.FlashOK, e.EraseBlock(1))
	assert.True(t, e.IsPageErased(1, 3))
	assert.Equal(t, interfaces.FlashOK, writeTestPage(t, e, 1, 3, []byte("b")))
}

func TestEmulator_MarkBadBlock(t *testing.T) {
	e, err := NewMemEmulator(testGeometry(), nil)
	require.NoError(t, err)

	require.Equal(t, interfaces.FlashOK, e.MarkBadBlock(4))
	assert.True(t, e.IsBadBlock(4))
	assert.False(t, e.IsBadBlock(5))
	assert.Equal(t, uint64(1), e.Stats().BadMarks)
}

func TestEmulator_WriteFault(t *testing.T) {
	tests := []struct {
		name   string
		plan   FaultPlan
		accept int
		status interfaces.FlashStatus
	}{
		{name: "bad block on fourth write", plan: WriteFault(3, interfaces.FlashBadBlock), accept: 3, status: interfaces.FlashBadBlock},
		{name: "io error on first write", plan: WriteFault(0, interfaces.FlashIOError), accept: 0, status: interfaces.FlashIOError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewMemEmulator(testGeometry(), nil)
			require.NoError(t, err)
			e.InjectFault(6, tt.plan)

			for p := 0; p < tt.accept; p++ {
				require.Equal(t, interfaces.FlashOK, writeTestPage(t, e, 6, uint32(p), []byte{byte(p)}))
			}
			assert.Equal(t, tt.status, writeTestPage(t, e, 6, uint32(tt.accept), []byte("x")))
			assert.True(t, e.IsPageErased(6, uint32(tt.accept)))

			e.ClearFault(6)
			assert.Equal(t, interfaces.FlashOK, writeTestPage(t, e, 6, uint32(tt.accept), []byte("x")))
		})
	}
}

func TestEmulator_OnceFault(t *testing.T) {
	e, err := NewMemEmulator(testGeometry(), nil)
	require.NoError(t, err)

	plan := WriteFault(0, interfaces.FlashIOError)
	plan.Once = true
	e.InjectFault(1, plan)

	assert.Equal(t, interfaces.FlashIOError, writeTestPage(t, e, 1, 0, []byte("x")))
	assert.Equal(t, interfaces.FlashOK, writeTestPage(t, e, 1, 0, []byte("x")))
}

func TestEmulator_ReadFault(t *testing.T) {
	e, err := NewMemEmulator(testGeometry(), nil)
	require.NoError(t, err)
	require.Equal(t, interfaces.FlashOK, writeTestPage(t, e, 3, 0, []byte("keep")))

	e.InjectFault(3, ReadFault(interfaces.FlashBadBlock))
	_, data, _, status := e.ReadPage(3, 0)
	assert.Equal(t, interfaces.FlashBadBlock, status)
	assert.Equal(t, []byte("keep"), data[:4])

	e.InjectFault(3, ReadFault(interfaces.FlashIOError))
	_, data, _, status = e.ReadPage(3, 0)
	assert.Equal(t, interfaces.FlashIOError, status)
	assert.Nil(t, data)
}

func TestOpenFileEmulator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.img")

	e, err := OpenFileEmulator(path, testGeometry(), nil)
	require.NoError(t, err)
	require.Equal(t, interfaces.FlashOK, writeTestPage(t, e, 0, 0, []byte("persist")))

	_, err = OpenFileEmulator(path, testGeometry(), nil)
	assert.True(t, errors.Is(err, ErrImageLocked))

	require.NoError(t, e.Close())

	reopened, err := OpenFileEmulator(path, testGeometry(), nil)
	require.NoError(t, err)
	defer reopened.Close()

	_, data, tag, status := reopened.ReadPage(0, 0)
	require.Equal(t, interfaces.FlashOK, status)
	assert.Equal(t, []byte("persist"), data[:7])
	assert.True(t, tag.IsInUse())
	assert.True(t, reopened.IsPageErased(0, 1))
}
