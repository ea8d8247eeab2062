package inspect

import (
	"fmt"
	"time"

	"github.com/deploymenttheory/go-uffs/internal/services"
	"github.com/deploymenttheory/go-uffs/pkg/app"
)

// Request represents a volume inspection request. With Path empty only
// the volume summary is produced.
type Request struct {
	Target    app.ImageTarget
	Path      string
	Recursive bool
}

// Response contains the volume summary and, for a listing, its entries
type Response struct {
	Volume     services.VolumeInfo  `json:"volume" yaml:"volume"`
	Path       string               `json:"path,omitempty" yaml:"path,omitempty"`
	Entries    []services.FileEntry `json:"entries,omitempty" yaml:"entries,omitempty"`
	TotalBytes uint64               `json:"total_bytes" yaml:"total_bytes"`
	Elapsed    time.Duration        `json:"elapsed" yaml:"elapsed"`
}

// IsListing reports whether the response carries a directory listing
func (r *Response) IsListing() bool {
	return r.Path != ""
}

// FormatSize returns a human-readable byte count
func FormatSize(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
