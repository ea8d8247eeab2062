package pages

import (
	"github.com/cockroachdb/errors"
	"github.com/tchajed/marshal"

	"github.com/deploymenttheory/go-uffs/internal/types"
)

func pair(lo, hi uint32) uint64 {
	return uint64(lo) | uint64(hi)<<32
}

func split(w uint64) (uint32, uint32) {
	return uint32(w), uint32(w >> 32)
}

// EncodeFileInfo serialises fi into its FileInfoSize byte on-flash form
func EncodeFileInfo(fi types.FileInfo) ([]byte, error) {
	if len(fi.Name) > types.MaxFileNameLength {
		return nil, errors.Wrapf(types.ErrInvalidArgument, "name is %d bytes, max %d", len(fi.Name), types.MaxFileNameLength)
	}

	enc := marshal.NewEnc(3 * 8)
	enc.PutInt(pair(fi.Attr, fi.CreateTime))
	enc.PutInt(pair(fi.LastModify, fi.Access))
	enc.PutInt(pair(fi.Reserved, uint32(len(fi.Name))))

	out := make([]byte, types.FileInfoSize)
	copy(out, enc.Finish())
	copy(out[3*8:], fi.Name)
	return out, nil
}

// DecodeFileInfo parses the record at the start of a dir or file page 0
func DecodeFileInfo(raw []byte) (types.FileInfo, error) {
	if len(raw) < types.FileInfoSize {
		return types.FileInfo{}, errors.Newf("file info too short: %d bytes", len(raw))
	}

	dec := marshal.NewDec(raw[:3*8])
	var fi types.FileInfo
	fi.Attr, fi.CreateTime = split(dec.GetInt())
	fi.LastModify, fi.Access = split(dec.GetInt())
	var nameLen uint32
	fi.Reserved, nameLen = split(dec.GetInt())

	if nameLen > types.MaxFileNameLength {
		return types.FileInfo{}, errors.Newf("corrupt file info: name length %d", nameLen)
	}
	fi.Name = string(raw[3*8 : 3*8+int(nameLen)])
	return fi, nil
}
