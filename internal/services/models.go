package services

import (
	"time"

	"github.com/deploymenttheory/go-uffs/internal/blockinfo"
	"github.com/deploymenttheory/go-uffs/internal/device"
	"github.com/deploymenttheory/go-uffs/internal/pagecache"
	"github.com/deploymenttheory/go-uffs/internal/tree"
	"github.com/deploymenttheory/go-uffs/internal/types"
)

// Object is an open directory or file. A handle stays usable across
// flushes and block recovery; it fails with ErrObjectNotFound once the
// object is deleted.
type Object struct {
	Type   types.ObjectType
	Parent types.Serial
	Serial types.Serial
	Name   string
}

// IsDir reports whether the handle refers to a directory
func (o *Object) IsDir() bool {
	return o.Type == types.ObjectDir
}

// FileEntry represents a file or directory in a listing
type FileEntry struct {
	Name        string       `json:"name" yaml:"name"`
	Path        string       `json:"path,omitempty" yaml:"path,omitempty"`
	Serial      types.Serial `json:"serial" yaml:"serial"`
	Parent      types.Serial `json:"parent" yaml:"parent"`
	IsDirectory bool         `json:"is_directory" yaml:"is_directory"`
	Size        uint32       `json:"size" yaml:"size"`
	Block       uint32       `json:"block" yaml:"block"`
	Extents     int          `json:"extents" yaml:"extents"`
	Attr        uint32       `json:"attr" yaml:"attr"`
	CreatedTime time.Time    `json:"created_time" yaml:"created_time"`
}

// VolumeInfo summarises a mounted volume
type VolumeInfo struct {
	Session  string                    `json:"session" yaml:"session"`
	Geometry types.Geometry            `json:"geometry" yaml:"geometry"`
	Tree     tree.Stats                `json:"tree" yaml:"tree"`
	Pool     pagecache.Stats           `json:"pool" yaml:"pool"`
	Cache    blockinfo.CacheStats      `json:"cache" yaml:"cache"`
	Device   *device.StatsSnapshot     `json:"device,omitempty" yaml:"device,omitempty"`
	Recovery pagecache.RecoveryOutcome `json:"last_recovery" yaml:"last_recovery"`
}
