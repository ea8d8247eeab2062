package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `device:
  image_path: %s
  total_blocks: 32
  pages_per_block: 8
  page_data_size: 256
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "flash.img")
	config := filepath.Join(dir, "uffs-config.yaml")
	require.NoError(t, os.WriteFile(config, []byte(fmt.Sprintf(testConfig, image)), 0o644))
	host := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(host, []byte("hello from the host"), 0o644))

	common := []string{"--config", config, "-o", "table"}
	run := func(args ...string) string {
		out, err := execute(t, append(args, common...)...)
		require.NoError(t, err, "uffs %v", args)
		return out
	}

	out := run("format")
	assert.Contains(t, out, "31 erased blocks")

	run("mkdir", "/docs")
	out = run("put", host, "/docs/hello.txt")
	assert.Contains(t, out, "19 bytes")

	out = run("ls", "/", "-r")
	assert.Contains(t, out, "/docs/hello.txt")

	back := filepath.Join(dir, "back.txt")
	run("get", "/docs/hello.txt", back)
	got, err := os.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, "hello from the host", string(got))

	out, err = execute(t, append([]string{"info", "-o", "json"}, "--config", config)...)
	require.NoError(t, err)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "volume")

	run("rm", "/docs/hello.txt")
	_, err = execute(t, append([]string{"get", "/docs/hello.txt", back}, common...)...)
	assert.Error(t, err)
}
