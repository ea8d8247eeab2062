package types

// File attribute bits stored in FileInfo.Attr.
const (
	// FileAttrWrite marks a writable object.
	FileAttrWrite uint32 = 1 << 0
	// FileAttrDir marks a directory.
	FileAttrDir uint32 = 1 << 7
)

// FileInfoSize is the encoded size of FileInfo.
const FileInfoSize = 6*4 + MaxFileNameLength

// FileInfo is the name and attribute record held in page 0 of every directory
// and file block.
type FileInfo struct {
	// Attr holds FileAttr bits.
	Attr uint32

	// CreateTime is the creation time, seconds since the epoch.
	CreateTime uint32

	// LastModify is the last modification time, seconds since the epoch.
	LastModify uint32

	// Access is the last access time, seconds since the epoch.
	Access uint32

	// Reserved is unused.
	Reserved uint32

	// Name is the object's name; at most MaxFileNameLength bytes.
	Name string
}

// IsDir reports whether the record describes a directory.
func (fi FileInfo) IsDir() bool {
	return fi.Attr&FileAttrDir != 0
}

// OpenFlags select the behaviour of an object open.
type OpenFlags uint32

const (
	// OpenCreate creates the object when it does not exist.
	OpenCreate OpenFlags = 1 << iota
	// OpenExcl fails an OpenCreate when the object already exists.
	OpenExcl
)
