package fileops

import (
	"time"

	"github.com/deploymenttheory/go-uffs/pkg/app"
)

// Action names the operation a Result reports
type Action string

const (
	ActionFormat Action = "format"
	ActionMkdir  Action = "mkdir"
	ActionPut    Action = "put"
	ActionGet    Action = "get"
	ActionRemove Action = "remove"
)

// FormatRequest erases every usable block of an image
type FormatRequest struct {
	Target app.ImageTarget
}

// MkdirRequest creates a directory on the volume
type MkdirRequest struct {
	Target app.ImageTarget
	Path   string
}

// PutRequest copies a host file onto the volume
type PutRequest struct {
	Target    app.ImageTarget
	Source    string
	Dest      string
	Overwrite bool
}

// GetRequest copies a volume file to the host
type GetRequest struct {
	Target app.ImageTarget
	Source string
	Dest   string
}

// RemoveRequest deletes a file or an empty directory
type RemoveRequest struct {
	Target app.ImageTarget
	Path   string
}

// Result reports a completed file operation
type Result struct {
	Action  Action        `json:"action" yaml:"action"`
	Path    string        `json:"path,omitempty" yaml:"path,omitempty"`
	Host    string        `json:"host_path,omitempty" yaml:"host_path,omitempty"`
	Bytes   int           `json:"bytes" yaml:"bytes"`
	Erased  int           `json:"erased_blocks,omitempty" yaml:"erased_blocks,omitempty"`
	Bad     int           `json:"bad_blocks,omitempty" yaml:"bad_blocks,omitempty"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}
