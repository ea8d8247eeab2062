package fileops

import (
	"path"

	"github.com/deploymenttheory/go-uffs/pkg/app"
)

func validateTarget(t *app.ImageTarget) error {
	if err := t.Validate(); err != nil {
		return app.NewError(app.ErrCodeInvalidInput, "invalid image target", err)
	}
	return nil
}

// validateVolumePath rejects empty paths and paths naming the root
func validateVolumePath(p, what string) error {
	if p == "" {
		return app.NewError(app.ErrCodeInvalidInput, what+" is required", nil)
	}
	if path.Clean("/"+p) == "/" {
		return app.NewError(app.ErrCodeInvalidInput, what+" cannot be the root directory", nil)
	}
	return nil
}

// Validate validates a format request
func (r *FormatRequest) Validate() error {
	return validateTarget(&r.Target)
}

// Validate validates a mkdir request
func (r *MkdirRequest) Validate() error {
	if err := validateTarget(&r.Target); err != nil {
		return err
	}
	return validateVolumePath(r.Path, "directory path")
}

// Validate validates a put request
func (r *PutRequest) Validate() error {
	if err := validateTarget(&r.Target); err != nil {
		return err
	}
	if r.Source == "" {
		return app.NewError(app.ErrCodeInvalidInput, "source file is required", nil)
	}
	return validateVolumePath(r.Dest, "destination path")
}

// Validate validates a get request
func (r *GetRequest) Validate() error {
	if err := validateTarget(&r.Target); err != nil {
		return err
	}
	if err := validateVolumePath(r.Source, "source path"); err != nil {
		return err
	}
	if r.Dest == "" {
		return app.NewError(app.ErrCodeInvalidInput, "destination file is required", nil)
	}
	return nil
}

// Validate validates a remove request
func (r *RemoveRequest) Validate() error {
	if err := validateTarget(&r.Target); err != nil {
		return err
	}
	return validateVolumePath(r.Path, "path")
}
