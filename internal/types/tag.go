package types

import "fmt"

// ObjectType is the 2 bit object type recorded in every tag.
type ObjectType uint8

const (
	// ObjectDir is a directory block.
	ObjectDir ObjectType = 0
	// ObjectFile is a file block; page 0 carries the FileInfo record.
	ObjectFile ObjectType = 1
	// ObjectData is a file data extent block.
	ObjectData ObjectType = 2
	// ObjectReserved is never written.
	ObjectReserved ObjectType = 3
)

// String returns the lower case name of the object type.
func (t ObjectType) String() string {
	switch t {
	case ObjectDir:
		return "dir"
	case ObjectFile:
		return "file"
	case ObjectData:
		return "data"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// BlockTimeStamp is the 2 bit cyclic generation counter of a block.
// Each recovery writes the new block with the successor of the old stamp, so
// of two blocks carrying the same serial the newer one can be told apart.
type BlockTimeStamp uint8

// Next returns the successor generation.
func (ts BlockTimeStamp) Next() BlockTimeStamp {
	return (ts + 1) % 3
}

// IsNewerThan reports whether ts was produced after other.
func (ts BlockTimeStamp) IsNewerThan(other BlockTimeStamp) bool {
	return other.Next() == ts
}

// Tag is the per-page record stored in the spare area.
type Tag struct {
	// Dirty is set once the page has been programmed.
	Dirty bool

	// Valid is set when the page holds live data.
	Valid bool

	// Type is the type of the owning object.
	Type ObjectType

	// BlockTS is the owning block's generation.
	BlockTS BlockTimeStamp

	// DataLen is the number of valid data bytes in the page.
	DataLen uint16

	// PageID is the logical page index.
	PageID PageID

	// Serial is the owning object's serial.
	Serial Serial

	// Parent is the serial of the owning object's parent.
	Parent Serial

	// TagSum is an integrity code over the fields above.
	TagSum uint16

	// NameSum is the name checksum, carried by page 0 of dirs and files.
	NameSum uint16

	// DataSum is an integrity code over the page data.
	DataSum uint16
}

// IsInUse reports whether the tag belongs to a programmed, live page.
func (t Tag) IsInUse() bool {
	return t.Dirty && t.Valid
}

// String renders the identity part of the tag for logging.
func (t Tag) String() string {
	return fmt.Sprintf("%s parent=%d serial=%d page=%d len=%d ts=%d",
		t.Type, t.Parent, t.Serial, t.PageID, t.DataLen, t.BlockTS)
}
