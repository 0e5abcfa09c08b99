package sebastian_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/adnsv/rttools/sebastian"
	"github.com/adnsv/rttools/sebastian/sebastiantest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelperProcess(t *testing.T) {
	sebastiantest.HelperProcess()
}

func writeFile(t *testing.T, fn, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(fn), 0755))
	require.NoError(t, os.WriteFile(fn, []byte(content), 0644))
}

func TestCompile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "lib.glsl"), "// lib\n")
	in := filepath.Join(dir, "rt.json")
	writeFile(t, in, `{"depends": ["lib.glsl"]}`)
	out := filepath.Join(dir, "build", "rt.meat")

	tool := sebastiantest.NewTool(sebastiantest.OK, dir)
	require.NoError(t, tool.Compile(context.Background(), in, out))

	buf, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, `{"depends": ["lib.glsl"]}// lib`+"\n", string(buf))
}

func TestCompileFailure(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "rt.json")
	writeFile(t, in, `{}`)
	out := filepath.Join(dir, "build", "rt.meat")

	tool := sebastiantest.NewTool(sebastiantest.Fail, dir)
	err := tool.Compile(context.Background(), in, out)
	require.Error(t, err)

	var serr *sebastian.Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, sebastiantest.ExitFail, serr.ExitCode)
	assert.Contains(t, serr.Stderr, "cannot compile")
	assert.Contains(t, err.Error(), "cannot compile")

	// the partial artifact does not make the task succeed
	assert.FileExists(t, out)
}

func TestCompileWithoutOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "rt.json")
	writeFile(t, in, `{}`)

	tool := sebastiantest.NewTool(sebastiantest.Silent, dir)
	err := tool.Compile(context.Background(), in, filepath.Join(dir, "rt.meat"))
	assert.ErrorIs(t, err, sebastian.ErrNoOutput)
}

func TestCompileIgnoresStaleOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "rt.json")
	writeFile(t, in, `{}`)
	out := filepath.Join(dir, "build", "rt.meat")
	writeFile(t, out, "left over from an earlier build")

	tool := sebastiantest.NewTool(sebastiantest.Silent, dir)
	err := tool.Compile(context.Background(), in, out)
	assert.ErrorIs(t, err, sebastian.ErrNoOutput)
	assert.NoFileExists(t, out)
}

func TestDepends(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "rt.json")
	writeFile(t, in, `{"depends": ["foo.json", "bar.meat"]}`)

	tool := sebastiantest.NewTool(sebastiantest.OK, dir)
	deps, err := tool.Depends(context.Background(), in, filepath.Join(dir, "build"))
	require.NoError(t, err)
	assert.Equal(t, []string{"foo.json", "bar.meat"}, deps)
}

func TestDependsFailures(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "rt.json")
	writeFile(t, in, `{}`)

	t.Run("tool exits non-zero", func(t *testing.T) {
		tool := sebastiantest.NewTool(sebastiantest.Fail, dir)
		_, err := tool.Depends(context.Background(), in, dir)
		var serr *sebastian.Error
		assert.True(t, errors.As(err, &serr))
	})

	t.Run("no output", func(t *testing.T) {
		tool := sebastiantest.NewTool(sebastiantest.Silent, dir)
		_, err := tool.Depends(context.Background(), in, dir)
		var perr *sebastian.ParseError
		assert.True(t, errors.As(err, &perr))
	})

	t.Run("object instead of array", func(t *testing.T) {
		tool := sebastiantest.NewTool(sebastiantest.Garbage, dir)
		_, err := tool.Depends(context.Background(), in, dir)
		var perr *sebastian.ParseError
		assert.True(t, errors.As(err, &perr))
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		tool := sebastiantest.NewTool(sebastiantest.OK, dir)
		_, err := tool.Depends(ctx, in, dir)
		assert.Error(t, err)
	})
}

func TestParseCommand(t *testing.T) {
	cmd, err := sebastian.ParseCommand(`python "my tools/sebastian.py"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "my tools/sebastian.py"}, cmd)

	_, err = sebastian.ParseCommand("   ")
	assert.Error(t, err)
}

func TestFind(t *testing.T) {
	t.Setenv(sebastian.EnvVar, "")

	dir := t.TempDir()
	script := filepath.Join(dir, "sebastian.py")
	writeFile(t, script, "#!/usr/bin/env python3\n")

	tool, err := sebastian.Find("sebastian", []string{t.TempDir(), dir}, []string{".py"})
	require.NoError(t, err)
	if runtime.GOOS == "windows" {
		assert.Equal(t, []string{"python", script}, tool.Command)
	} else {
		assert.Equal(t, []string{script}, tool.Command)
	}

	_, err = sebastian.Find("no-such-sebastian-tool", []string{dir}, []string{".py"})
	assert.ErrorIs(t, err, sebastian.ErrNotFound)
}

func TestFindFromEnv(t *testing.T) {
	t.Setenv(sebastian.EnvVar, "python3 /opt/sebastian.py -v")

	tool, err := sebastian.Find("sebastian", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"python3", "/opt/sebastian.py", "-v"}, tool.Command)
}
