package inspect

import (
	"strings"

	"github.com/deploymenttheory/go-uffs/pkg/app"
)

// Validate validates an inspection request
func (r *Request) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return app.NewError(app.ErrCodeInvalidInput, "invalid image target", err)
	}
	if r.Recursive && r.Path == "" {
		return app.NewError(app.ErrCodeInvalidInput, "recursive listing requires a path", nil)
	}
	if strings.ContainsRune(r.Path, 0) {
		return app.NewError(app.ErrCodeInvalidInput, "path contains a NUL byte", nil)
	}
	return nil
}
