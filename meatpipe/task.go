// Package meatpipe compiles JSON pipeline descriptions into .meat files with
// the sebastian tool.
package meatpipe

import (
	"context"
	"fmt"
	"strings"

	"github.com/adnsv/rttools/build"
	"github.com/adnsv/rttools/sebastian"
)

const (
	SourceExt = ".json"
	OutputExt = ".meat"
)

// Task compiles one source into one .meat file.
type Task struct {
	bld     *build.Context
	tool    *sebastian.Tool
	input   *build.Node
	output  *build.Node
	install *build.Install
}

// Process creates the compile task for src. The output mirrors src in the
// build tree with the .meat extension. With installTo set, the output is
// copied there after every successful build.
func Process(bld *build.Context, tool *sebastian.Tool, src *build.Node, installTo string) *Task {
	t := &Task{
		bld:    bld,
		tool:   tool,
		input:  src,
		output: bld.BuildNode(src).ChangeExt(OutputExt),
	}
	if installTo != "" {
		t.install = &build.Install{Dest: installTo, Mode: build.DefaultInstallMode}
	}
	return t
}

func (t *Task) Keyword() string {
	return "Compiling meatpipe"
}

func (t *Task) Inputs() []*build.Node {
	return []*build.Node{t.input}
}

func (t *Task) Outputs() []*build.Node {
	return []*build.Node{t.output}
}

func (t *Task) Vars() []string {
	return []string{strings.Join(t.tool.Command, " ")}
}

func (t *Task) Install() *build.Install {
	return t.install
}

// Run invokes the tool to produce the output.
func (t *Task) Run(ctx context.Context) error {
	return t.tool.Compile(ctx, t.input.Abs(), t.output.Abs())
}

// Depends returns the dependency list exactly as the tool reports it.
func (t *Task) Depends(ctx context.Context) ([]string, error) {
	return t.tool.Depends(ctx, t.input.Abs(), t.output.Parent().Abs())
}

// Scan resolves every dependency reported by the tool to a node. A path the
// project tree does not contain fails the scan.
func (t *Task) Scan(ctx context.Context) ([]*build.Node, []string, error) {
	deps, err := t.Depends(ctx)
	if err != nil {
		return nil, nil, err
	}

	nodes := make([]*build.Node, 0, len(deps))
	for _, dep := range deps {
		n, err := t.bld.FindResource(dep)
		if err != nil {
			return nil, nil, fmt.Errorf("dependency %q of %s: %w", dep, t.input, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil, nil
}
