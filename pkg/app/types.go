package app

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/deploymenttheory/go-uffs/internal/types"
)

// ImageTarget selects the flash image and the configuration used to open it
type ImageTarget struct {
	ImagePath  string
	ConfigPath string
}

// Validate ensures the target names an image, directly or through a config
// file
func (t *ImageTarget) Validate() error {
	if t.ImagePath == "" && t.ConfigPath == "" {
		return errors.New("an image path or a config file is required")
	}
	return nil
}

// String returns a string representation of the image target
func (t *ImageTarget) String() string {
	switch {
	case t.ImagePath != "" && t.ConfigPath != "":
		return fmt.Sprintf("Image: %s (Config: %s)", t.ImagePath, t.ConfigPath)
	case t.ImagePath != "":
		return "Image: " + t.ImagePath
	default:
		return "Config: " + t.ConfigPath
	}
}

// CommonError represents application-level errors
type CommonError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CommonError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CommonError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeImageAccess    = "IMAGE_ACCESS"
	ErrCodeObjectNotFound = "OBJECT_NOT_FOUND"
	ErrCodeExists         = "ALREADY_EXISTS"
	ErrCodeNoSpace        = "NO_SPACE"
	ErrCodeIO             = "IO_FAILURE"
	ErrCodeHostFile       = "HOST_FILE"
	ErrCodeInternal       = "INTERNAL"
)

// NewError creates a new CommonError
func NewError(code, message string, cause error) *CommonError {
	return &CommonError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapError classifies an engine error into a CommonError. Errors that
// already carry a code are returned unchanged.
func WrapError(message string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CommonError
	if errors.As(err, &ce) {
		return err
	}
	return NewError(CodeOf(err), message, err)
}

// CodeOf maps an error to the code reported to the user
func CodeOf(err error) string {
	var ce *CommonError
	switch {
	case errors.As(err, &ce):
		return ce.Code
	case errors.Is(err, types.ErrObjectNotFound):
		return ErrCodeObjectNotFound
	case errors.Is(err, types.ErrExists):
		return ErrCodeExists
	case errors.Is(err, types.ErrInvalidArgument), errors.Is(err, types.ErrDirNotEmpty):
		return ErrCodeInvalidInput
	case errors.Is(err, types.ErrOutOfSpace), errors.Is(err, types.ErrNoFreeSerial):
		return ErrCodeNoSpace
	case errors.Is(err, types.ErrIO), errors.Is(err, types.ErrBadBlock):
		return ErrCodeIO
	default:
		return ErrCodeInternal
	}
}
