package fileops

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-uffs/pkg/app"
)

const testConfig = `device:
  image_path: %s
  total_blocks: 32
  pages_per_block: 8
  page_data_size: 256
buffers:
  max_buffers: 24
  max_dirty_buffers: 6
`

func newTarget(t *testing.T) app.ImageTarget {
	t.Helper()
	dir := t.TempDir()
	target := app.ImageTarget{
		ImagePath:  filepath.Join(dir, "flash.img"),
		ConfigPath: filepath.Join(dir, "uffs-config.yaml"),
	}
	cfg := fmt.Sprintf(testConfig, target.ImagePath)
	require.NoError(t, os.WriteFile(target.ConfigPath, []byte(cfg), 0o644))
	return target
}

// newContext returns a context whose host filesystem is in memory
func newContext() *app.Context {
	ctx := app.NewContext()
	ctx.Fs = afero.NewMemMapFs()
	return ctx
}

func TestHandleFormat(t *testing.T) {
	target := newTarget(t)
	ctx := newContext()

	res, err := HandleFormat(ctx, &FormatRequest{Target: target})
	require.NoError(t, err)
	assert.Equal(t, ActionFormat, res.Action)
	assert.Equal(t, 31, res.Erased)
	assert.Equal(t, 0, res.Bad)
}

func TestPutGetRoundTrip(t *testing.T) {
	target := newTarget(t)
	ctx := newContext()
	content := bytes.Repeat([]byte("0123456789abcdef"), 200)
	require.NoError(t, afero.WriteFile(ctx.Fs, "/host/in.bin", content, 0o644))

	_, err := HandleMkdir(ctx, &MkdirRequest{Target: target, Path: "/data"})
	require.NoError(t, err)

	res, err := HandlePut(ctx, &PutRequest{Target: target, Source: "/host/in.bin", Dest: "/data/blob"})
	require.NoError(t, err)
	assert.Equal(t, len(content), res.Bytes)

	require.NoError(t, ctx.Fs.MkdirAll("/out", 0o755))
	res, err = HandleGet(ctx, &GetRequest{Target: target, Source: "/data/blob", Dest: "/out"})
	require.NoError(t, err)
	assert.Equal(t, "/out/blob", res.Host)

	got, err := afero.ReadFile(ctx.Fs, "/out/blob")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestHandlePut_Overwrite(t *testing.T) {
	target := newTarget(t)
	ctx := newContext()
	require.NoError(t, afero.WriteFile(ctx.Fs, "/long", bytes.Repeat([]byte("L"), 900), 0o644))
	require.NoError(t, afero.WriteFile(ctx.Fs, "/short", []byte("short"), 0o644))

	_, err := HandlePut(ctx, &PutRequest{Target: target, Source: "/long", Dest: "/f"})
	require.NoError(t, err)

	_, err = HandlePut(ctx, &PutRequest{Target: target, Source: "/short", Dest: "/f"})
	require.Error(t, err)
	assert.Equal(t, app.ErrCodeExists, app.CodeOf(err))

	_, err = HandlePut(ctx, &PutRequest{Target: target, Source: "/short", Dest: "/f", Overwrite: true})
	require.NoError(t, err)

	_, err = HandleGet(ctx, &GetRequest{Target: target, Source: "/f", Dest: "/back"})
	require.NoError(t, err)
	got, err := afero.ReadFile(ctx.Fs, "/back")
	require.NoError(t, err)
	assert.Equal(t, []byte("short"), got)
}

func TestHandleRemove(t *testing.T) {
	target := newTarget(t)
	ctx := newContext()
	require.NoError(t, afero.WriteFile(ctx.Fs, "/in", []byte("x"), 0o644))

	_, err := HandleMkdir(ctx, &MkdirRequest{Target: target, Path: "/d"})
	require.NoError(t, err)
	_, err = HandlePut(ctx, &PutRequest{Target: target, Source: "/in", Dest: "/d/x"})
	require.NoError(t, err)

	_, err = HandleRemove(ctx, &RemoveRequest{Target: target, Path: "/d"})
	require.Error(t, err)
	assert.Equal(t, app.ErrCodeInvalidInput, app.CodeOf(err))

	_, err = HandleRemove(ctx, &RemoveRequest{Target: target, Path: "/d/x"})
	require.NoError(t, err)
	_, err = HandleRemove(ctx, &RemoveRequest{Target: target, Path: "/d"})
	require.NoError(t, err)

	_, err = HandleGet(ctx, &GetRequest{Target: target, Source: "/d/x", Dest: "/out"})
	require.Error(t, err)
	assert.Equal(t, app.ErrCodeObjectNotFound, app.CodeOf(err))
}

func TestHandlers_Errors(t *testing.T) {
	target := newTarget(t)
	ctx := newContext()

	tests := []struct {
		name string
		run  func() error
		code string
	}{
		{"mkdir root", func() error {
			_, err := HandleMkdir(ctx, &MkdirRequest{Target: target, Path: "/"})
			return err
		}, app.ErrCodeInvalidInput},
		{"mkdir twice", func() error {
			if _, err := HandleMkdir(ctx, &MkdirRequest{Target: target, Path: "/twice"}); err != nil {
				return err
			}
			_, err := HandleMkdir(ctx, &MkdirRequest{Target: target, Path: "/twice"})
			return err
		}, app.ErrCodeExists},
		{"mkdir missing parent", func() error {
			_, err := HandleMkdir(ctx, &MkdirRequest{Target: target, Path: "/a/b"})
			return err
		}, app.ErrCodeObjectNotFound},
		{"put missing host file", func() error {
			_, err := HandlePut(ctx, &PutRequest{Target: target, Source: "/nope", Dest: "/x"})
			return err
		}, app.ErrCodeHostFile},
		{"put without target", func() error {
			_, err := HandlePut(ctx, &PutRequest{Source: "/in", Dest: "/x"})
			return err
		}, app.ErrCodeInvalidInput},
		{"get without destination", func() error {
			_, err := HandleGet(ctx, &GetRequest{Target: target, Source: "/x"})
			return err
		}, app.ErrCodeInvalidInput},
		{"remove root", func() error {
			_, err := HandleRemove(ctx, &RemoveRequest{Target: target, Path: "//"})
			return err
		}, app.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.Equal(t, tt.code, app.CodeOf(err))
		})
	}
}

func TestFormatOutput(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		format string
		want   string
	}{
		{"format", &Result{Action: ActionFormat, Erased: 31, Bad: 1}, "table", "Formatted: 31 erased blocks, 1 bad blocks\n"},
		{"put", &Result{Action: ActionPut, Host: "in", Path: "/f", Bytes: 3}, "table", "in -> /f (3 bytes)\n"},
		{"remove", &Result{Action: ActionRemove, Path: "/f"}, "table", "Removed /f\n"},
		{"json", &Result{Action: ActionMkdir, Path: "/d"}, "json", "\"action\": \"mkdir\""},
		{"yaml", &Result{Action: ActionGet, Path: "/f"}, "yaml", "action: get"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, FormatOutput(&buf, tt.result, tt.format))
			assert.Contains(t, buf.String(), tt.want)
		})
	}

	assert.Error(t, FormatOutput(&bytes.Buffer{}, &Result{}, "csv"))
}
