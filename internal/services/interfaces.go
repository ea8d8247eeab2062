package services

import (
	"context"

	"github.com/deploymenttheory/go-uffs/internal/types"
)

// ObjectService provides handle based access to directories and files
type ObjectService interface {
	Root() *Object
	OpenOrCreate(parent types.Serial, name string, typ types.ObjectType, flags types.OpenFlags) (*Object, error)
	Read(obj *Object, ofs int64, n int) ([]byte, error)
	Write(obj *Object, ofs int64, data []byte) (int, error)
	Flush(obj *Object) error
	FlushAll() error
	Delete(obj *Object) error
	ListDir(dir *Object) ([]FileEntry, error)
	Stat(obj *Object) (FileEntry, error)
}

// FileSystemService provides path based operations on top of ObjectService
type FileSystemService interface {
	Lookup(path string) (*Object, error)
	Mkdir(path string) (*Object, error)
	ListDirectory(path string) ([]FileEntry, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Remove(path string) error
}

// VolumeService provides volume level operations
type VolumeService interface {
	Info() VolumeInfo
	Format(ctx context.Context) error
	Close() error
}

var (
	_ ObjectService     = (*Volume)(nil)
	_ FileSystemService = (*Volume)(nil)
	_ VolumeService     = (*Volume)(nil)
)
