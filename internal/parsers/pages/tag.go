package pages

import (
	"github.com/cockroachdb/errors"
	"github.com/tchajed/marshal"

	"github.com/deploymenttheory/go-uffs/internal/types"
)

// ErrTagChecksum is returned when a programmed tag fails its integrity check.
var ErrTagChecksum = errors.New("tag checksum mismatch")

// Word 0 bit layout, from bit 0 up. The dirty and valid bits are stored
// inverted so that an erased spare area decodes as a free page.
const (
	shiftDirtyFree = 0
	shiftValidFree = 1
	shiftType      = 2
	shiftBlockTS   = 4
	shiftDataLen   = 6
	shiftPageID    = 18
	shiftSerial    = 28
	shiftParent    = 44
	shiftPad       = 60

	maskType    = 0x3
	maskBlockTS = 0x3
	maskDataLen = 0xfff
	maskPageID  = 0x3ff
	mask16      = 0xffff
	maskPad     = 0xf
)

// Word 1 bit layout.
const (
	shiftTagSum  = 0
	shiftNameSum = 16
	shiftDataSum = 32
	shiftPad1    = 48
)

func packIdentity(t types.Tag) uint64 {
	var w uint64
	if !t.Dirty {
		w |= 1 << shiftDirtyFree
	}
	if !t.Valid {
		w |= 1 << shiftValidFree
	}
	w |= uint64(t.Type&maskType) << shiftType
	w |= uint64(t.BlockTS&maskBlockTS) << shiftBlockTS
	w |= uint64(t.DataLen&maskDataLen) << shiftDataLen
	w |= uint64(t.PageID&maskPageID) << shiftPageID
	w |= uint64(t.Serial) << shiftSerial
	w |= uint64(t.Parent) << shiftParent
	w |= uint64(maskPad) << shiftPad
	return w
}

func identitySum(w uint64) uint16 {
	enc := marshal.NewEnc(8)
	enc.PutInt(w)
	return Sum16(enc.Finish())
}

// SealTag computes the tag integrity code. It must be called after every
// other field has been set.
func SealTag(t *types.Tag) {
	t.TagSum = identitySum(packIdentity(*t))
}

// EncodeTag packs a tag into its TagSize byte spare area record
func EncodeTag(t types.Tag) []byte {
	w0 := packIdentity(t)

	var w1 uint64
	w1 |= uint64(t.TagSum) << shiftTagSum
	w1 |= uint64(t.NameSum) << shiftNameSum
	w1 |= uint64(t.DataSum) << shiftDataSum
	w1 |= uint64(mask16) << shiftPad1

	enc := marshal.NewEnc(types.TagSize)
	enc.PutInt(w0)
	enc.PutInt(w1)
	return enc.Finish()
}

// DecodeTag unpacks a spare area record. An erased record decodes to a tag
// with Dirty and Valid cleared and is never reported as corrupt.
func DecodeTag(raw []byte) (types.Tag, error) {
	if len(raw) < types.TagSize {
		return types.Tag{}, errors.Newf("tag record too short: %d bytes", len(raw))
	}

	dec := marshal.NewDec(raw[:types.TagSize])
	w0 := dec.GetInt()
	w1 := dec.GetInt()

	t := types.Tag{
		Dirty:   w0&(1<<shiftDirtyFree) == 0,
		Valid:   w0&(1<<shiftValidFree) == 0,
		Type:    types.ObjectType((w0 >> shiftType) & maskType),
		BlockTS: types.BlockTimeStamp((w0 >> shiftBlockTS) & maskBlockTS),
		DataLen: uint16((w0 >> shiftDataLen) & maskDataLen),
		PageID:  types.PageID((w0 >> shiftPageID) & maskPageID),
		Serial:  types.Serial((w0 >> shiftSerial) & mask16),
		Parent:  types.Serial((w0 >> shiftParent) & mask16),
		TagSum:  uint16((w1 >> shiftTagSum) & mask16),
		NameSum: uint16((w1 >> shiftNameSum) & mask16),
		DataSum: uint16((w1 >> shiftDataSum) & mask16),
	}

	if t.Dirty && identitySum(w0) != t.TagSum {
		return t, errors.Wrapf(ErrTagChecksum, "serial %d page %d", t.Serial, t.PageID)
	}
	return t, nil
}

// IsErased reports whether every byte of buf reads as erased flash
func IsErased(buf []byte) bool {
	for _, b := range buf {
		if b != types.ErasedByte {
			return false
		}
	}
	return true
}
