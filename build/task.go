package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adnsv/go-utils/fs"
)

// Task is one build step producing Outputs from Inputs.
type Task interface {
	// Keyword describes the action in progress lines, e.g. "Compiling".
	Keyword() string
	Inputs() []*Node
	Outputs() []*Node

	// Vars lists settings that change the result without being files, such
	// as the command line of the tool.
	Vars() []string

	// Scan reports the implicit dependencies of the task. raw holds names
	// of non-file dependencies.
	Scan(ctx context.Context) (deps []*Node, raw []string, err error)

	Run(ctx context.Context) error

	// Install returns where outputs are copied after a build, or nil.
	Install() *Install
}

// DefaultInstallMode is the permission of installed files.
const DefaultInstallMode = os.FileMode(0755)

// Install copies task outputs into Dest.
type Install struct {
	Dest string
	Mode os.FileMode
}

// Files returns the destination path for each output.
func (in *Install) Files(outputs []*Node) []string {
	ret := make([]string, 0, len(outputs))
	for _, o := range outputs {
		ret = append(ret, filepath.Join(in.Dest, o.Name()))
	}
	return ret
}

// Apply copies outputs into place. Files with unchanged content are left
// alone apart from their permissions.
func (in *Install) Apply(outputs []*Node) ([]string, error) {
	mode := in.Mode
	if mode == 0 {
		mode = DefaultInstallMode
	}
	if err := os.MkdirAll(in.Dest, 0755); err != nil {
		return nil, err
	}
	dsts := in.Files(outputs)
	for i, o := range outputs {
		buf, err := os.ReadFile(o.Abs())
		if err != nil {
			return nil, err
		}
		if err := fs.WriteFileIfChanged(dsts[i], buf); err != nil {
			return nil, fmt.Errorf("installing %s: %w", o, err)
		}
		if err := os.Chmod(dsts[i], mode); err != nil {
			return nil, err
		}
	}
	return dsts, nil
}

func describe(t Task) string {
	s := ""
	for i, n := range t.Inputs() {
		if i > 0 {
			s += " "
		}
		s += n.Rel()
	}
	outs := t.Outputs()
	if len(outs) > 0 {
		s += " ->"
		for _, n := range outs {
			s += " " + n.Rel()
		}
	}
	return s
}
