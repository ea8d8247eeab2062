package pages

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-uffs/internal/types"
)

func TestEncodeTag_PreservesFields(t *testing.T) {
	tag := types.Tag{
		Dirty:   true,
		Valid:   true,
		Type:    types.ObjectData,
		BlockTS: 2,
		DataLen: 508,
		PageID:  1023,
		Serial:  0xfffc,
		Parent:  0x3ff,
		NameSum: 0xbeef,
		DataSum: 0x1234,
	}
	SealTag(&tag)

	raw := EncodeTag(tag)
	require.Len(t, raw, types.TagSize)

	got, err := DecodeTag(raw)
	require.NoError(t, err)
	assert.Equal(t, tag, got)
}

func TestDecodeTag_ErasedSpareIsFree(t *testing.T) {
	raw := bytes.Repeat([]byte{types.ErasedByte}, types.TagSize)

	tag, err := DecodeTag(raw)
	require.NoError(t, err)
	assert.False(t, tag.Dirty)
	assert.False(t, tag.Valid)
	assert.False(t, tag.IsInUse())
	assert.True(t, IsErased(raw))
}

func TestDecodeTag_DetectsCorruption(t *testing.T) {
	tag := types.Tag{Dirty: true, Valid: true, Type: types.ObjectFile, Serial: 7, Parent: 0}
	SealTag(&tag)
	raw := EncodeTag(tag)

	// flip a bit inside the serial field
	raw[4] ^= 0x01

	_, err := DecodeTag(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTagChecksum))
}

func TestDecodeTag_ShortInput(t *testing.T) {
	_, err := DecodeTag(make([]byte, 4))
	assert.Error(t, err)
}

func TestMiniHeader(t *testing.T) {
	data := []byte("hello flash")
	hdr := NewMiniHeader(data)
	assert.Equal(t, types.HeaderStatusGood, hdr.Status)

	buf := make([]byte, types.MiniHeaderSize)
	EncodeMiniHeader(buf, hdr)
	got, err := DecodeMiniHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, hdr, got)
	assert.Equal(t, Sum16(data), got.CRC)
}

func TestFileInfo(t *testing.T) {
	tests := []struct {
		name    string
		info    types.FileInfo
		wantErr bool
	}{
		{
			name: "directory",
			info: types.FileInfo{Attr: types.FileAttrDir, CreateTime: 100, LastModify: 200, Access: 300, Name: "etc"},
		},
		{
			name: "empty name for root",
			info: types.FileInfo{Attr: types.FileAttrDir},
		},
		{
			name:    "name too long",
			info:    types.FileInfo{Name: string(bytes.Repeat([]byte{'a'}, types.MaxFileNameLength+1))},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodeFileInfo(tt.info)
			if tt.wantErr {
				assert.True(t, errors.Is(err, types.ErrInvalidArgument))
				return
			}
			require.NoError(t, err)
			require.Len(t, raw, types.FileInfoSize)

			got, err := DecodeFileInfo(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.info, got)
			assert.Equal(t, tt.info.Attr&types.FileAttrDir != 0, got.IsDir())
		})
	}
}

func TestNameSum(t *testing.T) {
	assert.Equal(t, NameSum("abc"), NameSum("abc"))
	assert.NotEqual(t, NameSum("abc"), NameSum("abd"))
}
