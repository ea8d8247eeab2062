package fileops

import (
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/deploymenttheory/go-uffs/internal/services"
	"github.com/deploymenttheory/go-uffs/internal/types"
	"github.com/deploymenttheory/go-uffs/pkg/app"
)

// withVolume mounts the target, runs fn and closes the volume, which
// flushes everything fn left dirty
func withVolume(ctx *app.Context, target app.ImageTarget, fn func(v *services.Volume) error) (err error) {
	v, err := app.OpenVolume(ctx, target)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := v.Close(); cerr != nil {
			err = multierr.Append(err, app.WrapError("failed to close image", cerr))
		}
	}()
	return fn(v)
}

// HandleFormat erases the image and creates an empty root directory
func HandleFormat(ctx *app.Context, req *FormatRequest) (*Result, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	res := &Result{Action: ActionFormat, Path: "/"}
	err := withVolume(ctx, req.Target, func(v *services.Volume) error {
		ctx.Progress("Erasing blocks...", 20)
		if err := v.Format(ctx); err != nil {
			return app.WrapError("failed to format image", err)
		}
		stats := v.Info().Tree
		res.Erased, res.Bad = stats.Erased, stats.Bad
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Elapsed = time.Since(start)
	ctx.Progress("Complete", 100)
	ctx.Log(fmt.Sprintf("Formatted %s: %d erased, %d bad", req.Target.String(), res.Erased, res.Bad))
	return res, nil
}

// HandleMkdir creates one directory
func HandleMkdir(ctx *app.Context, req *MkdirRequest) (*Result, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	err := withVolume(ctx, req.Target, func(v *services.Volume) error {
		_, err := v.Mkdir(req.Path)
		return app.WrapError("failed to create "+req.Path, err)
	})
	if err != nil {
		return nil, err
	}
	ctx.Log("Created directory " + req.Path)
	return &Result{Action: ActionMkdir, Path: req.Path, Elapsed: time.Since(start)}, nil
}

// HandlePut copies a host file onto the volume. An existing file is
// replaced only when Overwrite is set.
func HandlePut(ctx *app.Context, req *PutRequest) (*Result, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(ctx.Fs, req.Source)
	if err != nil {
		return nil, app.NewError(app.ErrCodeHostFile, "failed to read "+req.Source, err)
	}

	err = withVolume(ctx, req.Target, func(v *services.Volume) error {
		if err := replaceExisting(v, req.Dest, req.Overwrite); err != nil {
			return err
		}
		ctx.Progress(fmt.Sprintf("Writing %d bytes...", len(data)), 50)
		return app.WrapError("failed to write "+req.Dest, v.WriteFile(req.Dest, data))
	})
	if err != nil {
		return nil, err
	}

	ctx.Log(fmt.Sprintf("Copied %s to %s (%d bytes)", req.Source, req.Dest, len(data)))
	return &Result{
		Action:  ActionPut,
		Path:    req.Dest,
		Host:    req.Source,
		Bytes:   len(data),
		Elapsed: time.Since(start),
	}, nil
}

// replaceExisting clears the way for a put to p
func replaceExisting(v *services.Volume, p string, overwrite bool) error {
	obj, err := v.Lookup(p)
	if errors.Is(err, types.ErrObjectNotFound) {
		return nil
	}
	if err != nil {
		return app.WrapError("failed to resolve "+p, err)
	}
	if obj.IsDir() {
		return app.NewError(app.ErrCodeInvalidInput, p+" is a directory", nil)
	}
	if !overwrite {
		return app.NewError(app.ErrCodeExists, p+" already exists", nil)
	}
	return app.WrapError("failed to replace "+p, v.Remove(p))
}

// HandleGet copies a volume file to the host. A host directory as the
// destination receives the file under its volume name.
func HandleGet(ctx *app.Context, req *GetRequest) (*Result, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var data []byte
	err := withVolume(ctx, req.Target, func(v *services.Volume) error {
		var err error
		data, err = v.ReadFile(req.Source)
		return app.WrapError("failed to read "+req.Source, err)
	})
	if err != nil {
		return nil, err
	}

	dest := req.Dest
	if isDir, _ := afero.IsDir(ctx.Fs, dest); isDir {
		dest = filepath.Join(dest, path.Base(req.Source))
	}
	if err := afero.WriteFile(ctx.Fs, dest, data, 0o644); err != nil {
		return nil, app.NewError(app.ErrCodeHostFile, "failed to write "+dest, err)
	}

	ctx.Log(fmt.Sprintf("Copied %s to %s (%d bytes)", req.Source, dest, len(data)))
	return &Result{
		Action:  ActionGet,
		Path:    req.Source,
		Host:    dest,
		Bytes:   len(data),
		Elapsed: time.Since(start),
	}, nil
}

// HandleRemove deletes a file or an empty directory
func HandleRemove(ctx *app.Context, req *RemoveRequest) (*Result, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	err := withVolume(ctx, req.Target, func(v *services.Volume) error {
		return app.WrapError("failed to remove "+req.Path, v.Remove(req.Path))
	})
	if err != nil {
		return nil, err
	}
	ctx.Log("Removed " + req.Path)
	return &Result{Action: ActionRemove, Path: req.Path, Elapsed: time.Since(start)}, nil
}
