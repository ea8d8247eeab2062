package pages

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/deploymenttheory/go-uffs/internal/types"
)

// NewMiniHeader returns a good-status header sealing the given page data area
func NewMiniHeader(data []byte) types.MiniHeader {
	return types.MiniHeader{
		Status:   types.HeaderStatusGood,
		Reserved: types.ErasedByte,
		CRC:      Sum16(data),
	}
}

// EncodeMiniHeader writes hdr into the first MiniHeaderSize bytes of dst
func EncodeMiniHeader(dst []byte, hdr types.MiniHeader) {
	dst[0] = hdr.Status
	dst[1] = hdr.Reserved
	binary.LittleEndian.PutUint16(dst[2:4], hdr.CRC)
}

// DecodeMiniHeader reads a mini header from the start of a page main area
func DecodeMiniHeader(src []byte) (types.MiniHeader, error) {
	if len(src) < types.MiniHeaderSize {
		return types.MiniHeader{}, errors.Newf("mini header too short: %d bytes", len(src))
	}
	return types.MiniHeader{
		Status:   src[0],
		Reserved: src[1],
		CRC:      binary.LittleEndian.Uint16(src[2:4]),
	}, nil
}
