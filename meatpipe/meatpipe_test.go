package meatpipe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adnsv/rttools/build"
	"github.com/adnsv/rttools/buildcache"
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

type fixture struct {
	bld  *build.Context
	tool *sebastian.Tool
}

func newFixture(t *testing.T, mode sebastiantest.Mode) *fixture {
	t.Helper()
	bld, err := build.NewContext(t.TempDir(), "")
	require.NoError(t, err)
	bld.Cache = buildcache.NewMemory()
	return &fixture{bld: bld, tool: sebastiantest.NewTool(mode, bld.SrcDir)}
}

func (f *fixture) task(t *testing.T, rel string) *Task {
	t.Helper()
	src, err := f.bld.SourceNode(rel)
	require.NoError(t, err)
	return Process(f.bld, f.tool, src, "")
}

func TestProcess(t *testing.T) {
	f := newFixture(t, sebastiantest.OK)
	task := f.task(t, "shaders/rt.json")

	assert.Equal(t, "Compiling meatpipe", task.Keyword())
	require.Len(t, task.Outputs(), 1)
	assert.Equal(t, filepath.Join(f.bld.BldDir, "shaders", "rt.meat"), task.Outputs()[0].Abs())
	assert.Nil(t, task.Install())

	inst := Process(f.bld, f.tool, task.input, "/opt/valve/pipelines")
	require.NotNil(t, inst.Install())
	assert.Equal(t, build.DefaultInstallMode, inst.Install().Mode)
}

func TestScan(t *testing.T) {
	f := newFixture(t, sebastiantest.OK)
	writeFile(t, filepath.Join(f.bld.SrcDir, "rt.json"), `{"depends": ["foo.json", "bar.meat"]}`)
	writeFile(t, filepath.Join(f.bld.SrcDir, "foo.json"), `{}`)
	writeFile(t, filepath.Join(f.bld.BldDir, "bar.meat"), `meat`)

	deps, raw, err := f.task(t, "rt.json").Scan(context.Background())
	require.NoError(t, err)
	assert.Nil(t, raw)
	require.Len(t, deps, 2)
	assert.Equal(t, filepath.Join(f.bld.SrcDir, "foo.json"), deps[0].Abs())
	assert.Equal(t, filepath.Join(f.bld.BldDir, "bar.meat"), deps[1].Abs())
}

func TestScanFailures(t *testing.T) {
	t.Run("unresolved path", func(t *testing.T) {
		f := newFixture(t, sebastiantest.OK)
		writeFile(t, filepath.Join(f.bld.SrcDir, "rt.json"), `{"depends": ["foo.json", "nope.glsl"]}`)
		writeFile(t, filepath.Join(f.bld.SrcDir, "foo.json"), `{}`)

		_, _, err := f.task(t, "rt.json").Scan(context.Background())
		assert.ErrorIs(t, err, build.ErrNotFound)
		assert.ErrorContains(t, err, "nope.glsl")
	})

	t.Run("path outside the project", func(t *testing.T) {
		f := newFixture(t, sebastiantest.OK)
		writeFile(t, filepath.Join(f.bld.SrcDir, "rt.json"), `{"depends": ["../../etc/passwd"]}`)

		_, _, err := f.task(t, "rt.json").Scan(context.Background())
		assert.ErrorIs(t, err, build.ErrOutsideTree)
	})

	t.Run("not an array", func(t *testing.T) {
		f := newFixture(t, sebastiantest.Garbage)
		writeFile(t, filepath.Join(f.bld.SrcDir, "rt.json"), `{}`)

		_, _, err := f.task(t, "rt.json").Scan(context.Background())
		var perr *sebastian.ParseError
		assert.True(t, errors.As(err, &perr))
	})
}

func TestBuild(t *testing.T) {
	f := newFixture(t, sebastiantest.OK)
	writeFile(t, filepath.Join(f.bld.SrcDir, "a.json"), `{"depends": ["inc/common.json"]}`)
	writeFile(t, filepath.Join(f.bld.SrcDir, "sub", "b.json"), `{}`)
	writeFile(t, filepath.Join(f.bld.SrcDir, "inc", "common.json"), `[1]`)

	p := NewProject(f.bld.SrcDir)
	p.Exclude = []string{"inc/*"}
	tasks, err := p.Tasks(f.bld, f.tool)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	stats, err := f.bld.Run(context.Background(), BuildTasks(tasks))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Built)

	buf, err := os.ReadFile(filepath.Join(f.bld.BldDir, "a.meat"))
	require.NoError(t, err)
	assert.Equal(t, `{"depends": ["inc/common.json"]}[1]`, string(buf))
	assert.FileExists(t, filepath.Join(f.bld.BldDir, "sub", "b.meat"))

	stats, err = f.bld.Run(context.Background(), BuildTasks(tasks))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.UpToDate)

	// touching a dependency rebuilds only its dependent
	writeFile(t, filepath.Join(f.bld.SrcDir, "inc", "common.json"), `[2]`)
	stats, err = f.bld.Run(context.Background(), BuildTasks(tasks))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Built)
	assert.Equal(t, 1, stats.UpToDate)
}

func TestBuildFailsOnToolError(t *testing.T) {
	f := newFixture(t, sebastiantest.OK)
	writeFile(t, filepath.Join(f.bld.SrcDir, "a.json"), `{}`)
	failing := sebastiantest.NewTool(sebastiantest.Fail, f.bld.SrcDir)

	// the fake fails the dependency scan too, so compile through Run directly
	task := f.task(t, "a.json")
	task.tool = failing
	err := task.Run(context.Background())
	var serr *sebastian.Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, sebastiantest.ExitFail, serr.ExitCode)

	_, err = f.bld.Run(context.Background(), []build.Task{task})
	require.Error(t, err)
	var terr *build.TaskError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "scan", terr.Op)
}

func TestBuildFailsOnCompileExit(t *testing.T) {
	f := newFixture(t, sebastiantest.BrokenCompile)
	writeFile(t, filepath.Join(f.bld.SrcDir, "a.json"), `{"depends": ["lib.json"]}`)
	writeFile(t, filepath.Join(f.bld.SrcDir, "lib.json"), `{}`)
	task := f.task(t, "a.json")

	deps, _, err := task.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, deps, 1)

	stats, err := f.bld.Run(context.Background(), []build.Task{task})
	require.Error(t, err)
	assert.Zero(t, stats.Built)

	var terr *build.TaskError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "run", terr.Op)
	var serr *sebastian.Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, sebastiantest.ExitFail, serr.ExitCode)

	_, ok, err := f.bld.Cache.Signature(task.Outputs()[0].Abs())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWatchRebuildsOnChange(t *testing.T) {
	f := newFixture(t, sebastiantest.OK)
	writeFile(t, filepath.Join(f.bld.SrcDir, "a.json"), `{"depends": ["lib/common.json"]}`)
	dep := filepath.Join(f.bld.SrcDir, "lib", "common.json")
	writeFile(t, dep, `1`)

	tasks, err := NewProject(f.bld.SrcDir).Tasks(f.bld, f.tool)
	require.NoError(t, err)

	builds := make(chan build.Stats, 8)
	w := &Watcher{
		Bld:      f.bld,
		Tasks:    tasks[:1],
		Debounce: 20 * time.Millisecond,
		OnBuild: func(s build.Stats, err error) {
			assert.NoError(t, err)
			builds <- s
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	wait := func() build.Stats {
		select {
		case s := <-builds:
			return s
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for build")
		}
		return build.Stats{}
	}

	assert.Equal(t, 1, wait().Built)

	writeFile(t, dep, `2`)
	assert.Equal(t, 1, wait().Built)

	cancel()
	require.NoError(t, <-done)

	buf, err := os.ReadFile(filepath.Join(f.bld.BldDir, "a.meat"))
	require.NoError(t, err)
	assert.Equal(t, `{"depends": ["lib/common.json"]}2`, string(buf))
}
