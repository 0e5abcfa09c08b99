package meatpipe

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/adnsv/go-utils/fs"
	"github.com/adnsv/rttools/build"
	"github.com/adnsv/rttools/sebastian"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// DefaultProjectFile is looked up in the project directory when no project
// file is named explicitly.
const DefaultProjectFile = "meatpipe.yml"

// Project is the build description of a directory of pipeline sources.
type Project struct {
	dir string

	Tool        string   `yaml:"tool"`      // explicit command line, overrides discovery
	ToolDirs    []string `yaml:"tool-dirs"` // searched before $PATH
	Sources     []string `yaml:"sources"`   // directories or globs, default "."
	Exclude     []string `yaml:"exclude"`
	BuildDir    string   `yaml:"build-dir"`
	InstallPath string   `yaml:"install-path"`
	Jobs        int      `yaml:"jobs"`
	Cache       string   `yaml:"cache"`
}

// NewProject returns the defaults for a project rooted at dir.
func NewProject(dir string) *Project {
	return &Project{
		dir:      dir,
		ToolDirs: []string{"."},
		BuildDir: "build",
		Jobs:     runtime.NumCPU(),
	}
}

// OpenProject loads a project file. The project root is the directory of fn.
func OpenProject(fn string) (*Project, error) {
	buf, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(filepath.Dir(fn))
	if err != nil {
		return nil, err
	}
	p := NewProject(dir)
	if err := yaml.Unmarshal(buf, p); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	if p.Jobs < 1 {
		p.Jobs = runtime.NumCPU()
	}
	return p, nil
}

// LoadProject opens dir/meatpipe.yml when present, or returns the defaults.
func LoadProject(dir string) (*Project, error) {
	fn := filepath.Join(dir, DefaultProjectFile)
	if fs.FileExists(fn) {
		return OpenProject(fn)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return NewProject(abs), nil
}

// Dir returns the project root.
func (p *Project) Dir() string {
	return p.dir
}

func (p *Project) resolve(fn string) (string, error) {
	fn, err := homedir.Expand(fn)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(fn) {
		fn = filepath.Join(p.dir, fn)
	}
	return filepath.Clean(fn), nil
}

// Context creates the build context for the project.
func (p *Project) Context() (*build.Context, error) {
	bldDir, err := p.resolve(p.BuildDir)
	if err != nil {
		return nil, err
	}
	c, err := build.NewContext(p.dir, bldDir)
	if err != nil {
		return nil, err
	}
	c.Jobs = p.Jobs
	return c, nil
}

// CachePath returns the signature database location.
func (p *Project) CachePath(bld *build.Context) (string, error) {
	if p.Cache == "" {
		return filepath.Join(bld.BldDir, ".meatpipe.db"), nil
	}
	return p.resolve(p.Cache)
}

// FindTool locates sebastian for this project. The tool runs in the project
// root so that the dependency paths it prints resolve against the source tree.
func (p *Project) FindTool() (*sebastian.Tool, error) {
	var tool *sebastian.Tool
	if p.Tool != "" {
		cmd, err := sebastian.ParseCommand(p.Tool)
		if err != nil {
			return nil, err
		}
		tool = &sebastian.Tool{Command: cmd}
	} else {
		dirs := []string{}
		for _, d := range p.ToolDirs {
			d, err := p.resolve(d)
			if err != nil {
				return nil, err
			}
			dirs = append(dirs, d)
		}
		var err error
		tool, err = sebastian.Find("sebastian", dirs, []string{".py"})
		if err != nil {
			return nil, err
		}
	}
	tool.Dir = p.dir
	return tool, nil
}

// InstallDir returns the absolute install destination, or "" when outputs
// are not installed.
func (p *Project) InstallDir() (string, error) {
	if p.InstallPath == "" {
		return "", nil
	}
	return p.resolve(p.InstallPath)
}

// Tasks creates one compile task per source file.
func (p *Project) Tasks(bld *build.Context, tool *sebastian.Tool) ([]*Task, error) {
	srcs, err := bld.FindSources(p.Sources, SourceExt, p.Exclude)
	if err != nil {
		return nil, err
	}
	inst, err := p.InstallDir()
	if err != nil {
		return nil, err
	}

	ret := make([]*Task, 0, len(srcs))
	for _, src := range srcs {
		ret = append(ret, Process(bld, tool, src, inst))
	}
	return ret, nil
}

// BuildTasks converts compile tasks for the build runner.
func BuildTasks(tasks []*Task) []build.Task {
	ret := make([]build.Task, len(tasks))
	for i, t := range tasks {
		ret[i] = t
	}
	return ret
}
