package app

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-uffs/internal/types"
)

func TestImageTarget(t *testing.T) {
	tests := []struct {
		name    string
		target  ImageTarget
		wantErr bool
		want    string
	}{
		{"empty", ImageTarget{}, true, ""},
		{"image only", ImageTarget{ImagePath: "a.img"}, false, "Image: a.img"},
		{"config only", ImageTarget{ConfigPath: "c.yaml"}, false, "Config: c.yaml"},
		{"both", ImageTarget{ImagePath: "a.img", ConfigPath: "c.yaml"}, false, "Image: a.img (Config: c.yaml)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tt.target.String())
		})
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{errors.Wrap(types.ErrObjectNotFound, "x"), ErrCodeObjectNotFound},
		{errors.Wrap(types.ErrExists, "x"), ErrCodeExists},
		{types.ErrDirNotEmpty, ErrCodeInvalidInput},
		{types.ErrOutOfSpace, ErrCodeNoSpace},
		{types.ErrNoFreeSerial, ErrCodeNoSpace},
		{types.ErrIO, ErrCodeIO},
		{errors.New("boom"), ErrCodeInternal},
		{NewError(ErrCodeHostFile, "read", nil), ErrCodeHostFile},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, CodeOf(tt.err), "%v", tt.err)
	}
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError("nothing", nil))

	err := WrapError("failed to read /x", errors.Wrap(types.ErrObjectNotFound, "/x"))
	var ce *CommonError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeObjectNotFound, ce.Code)
	assert.True(t, errors.Is(err, types.ErrObjectNotFound))

	coded := NewError(ErrCodeExists, "dup", nil)
	assert.Same(t, coded, WrapError("outer", coded))
}
