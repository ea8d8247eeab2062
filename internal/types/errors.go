package types

import "github.com/cockroachdb/errors"

// Engine error taxonomy. Callers match with errors.Is.
var (
	// ErrOutOfBuffers is returned when the page buffer pool is starved even
	// after flushing a dirty group.
	ErrOutOfBuffers = errors.New("no free page buffer")

	// ErrOutOfSpace is returned when no erased block is available.
	ErrOutOfSpace = errors.New("no erased block available")

	// ErrObjectNotFound is returned when an object's metadata cannot be located.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidState reports API misuse, such as putting an unreferenced
	// buffer or unlocking an unlocked dirty group.
	ErrInvalidState = errors.New("invalid state")

	// ErrBadBlock is returned when the device reports a defective block.
	ErrBadBlock = errors.New("bad block")

	// ErrIO is returned on a device level failure.
	ErrIO = errors.New("flash I/O error")

	// ErrExists is returned by an exclusive create of an existing object.
	ErrExists = errors.New("object already exists")

	// ErrInvalidArgument reports a malformed request.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoFreeSerial is returned when every serial is taken.
	ErrNoFreeSerial = errors.New("no free serial")

	// ErrDirNotEmpty is returned when deleting a directory with children.
	ErrDirNotEmpty = errors.New("directory not empty")
)
