package inspect

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/deploymenttheory/go-uffs/internal/services"
	"github.com/deploymenttheory/go-uffs/pkg/app"
)

// Handle processes an inspection request
func Handle(ctx *app.Context, req *Request) (resp *Response, err error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx.Log("Inspecting " + req.Target.String())
	ctx.Progress("Mounting image...", 10)

	v, err := app.OpenVolume(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := v.Close(); cerr != nil {
			err = multierr.Append(err, app.WrapError("failed to close image", cerr))
		}
	}()

	resp = &Response{Path: req.Path}
	if req.Path != "" {
		ctx.Progress("Listing "+req.Path, 40)
		resp.Entries, err = list(ctx, v, req.Path, req.Recursive)
		if err != nil {
			return nil, app.WrapError("failed to list "+req.Path, err)
		}
		for _, e := range resp.Entries {
			if !e.IsDirectory {
				resp.TotalBytes += uint64(e.Size)
			}
		}
	}

	resp.Volume = v.Info()
	resp.Elapsed = time.Since(start)

	ctx.Progress("Complete", 100)
	ctx.Log(fmt.Sprintf("Inspection completed: %d entries in %v", len(resp.Entries), resp.Elapsed))
	return resp, nil
}

// list walks a directory breadth first when recursive
func list(ctx *app.Context, fs services.FileSystemService, path string, recursive bool) ([]services.FileEntry, error) {
	var out []services.FileEntry
	queue := []string{path}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := queue[0]
		queue = queue[1:]

		entries, err := fs.ListDirectory(dir)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
		if !recursive {
			break
		}
		for _, e := range entries {
			if e.IsDirectory {
				queue = append(queue, e.Path)
			}
		}
	}
	return out, nil
}
