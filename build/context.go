// Package build is a small file-based build runner. Tasks declare their
// inputs and outputs as nodes, report extra dependencies through Scan, and are
// re-run only when the signature over all of those changes.
package build

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gobwas/glob"
	"go.uber.org/zap"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrOutsideTree = errors.New("path is outside the project tree")
)

// Context holds the trees and settings shared by all tasks of a build.
type Context struct {
	SrcDir string
	BldDir string
	Jobs   int
	Cache  Cache
	Log    *zap.SugaredLogger
}

// NewContext creates a context for the project in srcDir. A relative bldDir
// is taken relative to srcDir.
func NewContext(srcDir, bldDir string) (*Context, error) {
	src, err := filepath.Abs(srcDir)
	if err != nil {
		return nil, err
	}
	if bldDir == "" {
		bldDir = "build"
	}
	if !filepath.IsAbs(bldDir) {
		bldDir = filepath.Join(src, bldDir)
	}
	return &Context{
		SrcDir: src,
		BldDir: filepath.Clean(bldDir),
		Jobs:   runtime.NumCPU(),
		Log:    zap.NewNop().Sugar(),
	}, nil
}

func within(root, fn string) (string, bool) {
	rel, err := filepath.Rel(root, fn)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", false
	}
	return rel, true
}

func existingFile(fn string) error {
	st, err := os.Stat(fn)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, fn)
	} else if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("path '%s' points to a directory instead of a file", fn)
	}
	return nil
}

// FindResource resolves p to an existing file node. Relative paths are
// looked up in the build tree first and then in the source tree; absolute
// paths must lie inside one of the two.
func (c *Context) FindResource(p string) (*Node, error) {
	if p == "" {
		return nil, fmt.Errorf("%w: empty path", ErrNotFound)
	}
	fn := filepath.FromSlash(p)

	if filepath.IsAbs(fn) {
		fn = filepath.Clean(fn)
		for _, root := range []string{c.BldDir, c.SrcDir} {
			if rel, ok := within(root, fn); ok {
				if err := existingFile(fn); err != nil {
					return nil, err
				}
				return NewNode(root, rel), nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrOutsideTree, p)
	}

	var lastErr error
	for _, root := range []string{c.BldDir, c.SrcDir} {
		abs := filepath.Join(root, fn)
		rel, ok := within(root, abs)
		if !ok {
			continue
		}
		if err := existingFile(abs); err != nil {
			lastErr = err
			continue
		}
		return NewNode(root, rel), nil
	}
	if lastErr == nil {
		return nil, fmt.Errorf("%w: %s", ErrOutsideTree, p)
	}
	return nil, lastErr
}

// SourceNode returns the source tree node for fn without checking that it
// exists.
func (c *Context) SourceNode(fn string) (*Node, error) {
	if !filepath.IsAbs(fn) {
		fn = filepath.Join(c.SrcDir, fn)
	}
	rel, ok := within(c.SrcDir, filepath.Clean(fn))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutsideTree, fn)
	}
	return NewNode(c.SrcDir, rel), nil
}

// BuildNode mirrors a source node into the build tree.
func (c *Context) BuildNode(src *Node) *Node {
	return NewNode(c.BldDir, src.Rel())
}

// isPattern reports whether a sources entry is a glob rather than a
// directory.
func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// sourceRoot is one sources entry: a directory to walk and, for glob
// entries, the patterns a file's relative path must match.
type sourceRoot struct {
	dir      string
	patterns []glob.Glob
}

func (c *Context) sourceRoot(entry string) (*sourceRoot, error) {
	entry = path.Clean(filepath.ToSlash(entry))
	base := entry
	var patterns []glob.Glob
	if isPattern(entry) {
		// walk from the directory part in front of the first wildcard
		segs := strings.Split(entry, "/")
		fixed := []string{}
		for _, seg := range segs {
			if isPattern(seg) {
				break
			}
			fixed = append(fixed, seg)
		}
		base = path.Join(fixed...)
		if base == "" {
			base = "."
		}

		// "**/" also matches no directory at all
		alts := []string{entry}
		if strings.Contains(entry, "**/") {
			alts = append(alts, strings.ReplaceAll(entry, "**/", ""))
		}
		for _, alt := range alts {
			g, err := glob.Compile(alt, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid source pattern %q: %w", entry, err)
			}
			patterns = append(patterns, g)
		}
	}

	dir := filepath.Join(c.SrcDir, filepath.FromSlash(base))
	if _, ok := within(c.SrcDir, dir); !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutsideTree, entry)
	}
	return &sourceRoot{dir: dir, patterns: patterns}, nil
}

func (r *sourceRoot) accepts(rel string) bool {
	if len(r.patterns) == 0 {
		return true
	}
	for _, g := range r.patterns {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// FindSources walks the source tree for files with extension ext. Each of
// dirs is either a directory or a glob over paths relative to the source
// tree, where ** crosses directories, e.g. "shaders/**/*.json". The build
// tree and hidden directories are skipped, as are files whose relative path
// or base name matches one of the exclude patterns.
func (c *Context) FindSources(dirs []string, ext string, exclude []string) ([]*Node, error) {
	if len(dirs) == 0 {
		dirs = []string{"."}
	}

	excluded := func(rel string) bool {
		for _, pat := range exclude {
			if ok, _ := path.Match(pat, rel); ok {
				return true
			}
			if ok, _ := path.Match(pat, path.Base(rel)); ok {
				return true
			}
		}
		return false
	}

	seen := map[string]struct{}{}
	ret := []*Node{}
	for _, entry := range dirs {
		src, err := c.sourceRoot(entry)
		if err != nil {
			return nil, err
		}
		root := src.dir
		err = filepath.WalkDir(root, func(fn string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if fn == c.BldDir || (fn != root && strings.HasPrefix(d.Name(), ".")) {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.EqualFold(filepath.Ext(fn), ext) {
				return nil
			}
			rel, _ := within(c.SrcDir, fn)
			rel = filepath.ToSlash(rel)
			if !src.accepts(rel) || excluded(rel) {
				return nil
			}
			if _, dup := seen[rel]; dup {
				return nil
			}
			seen[rel] = struct{}{}
			ret = append(ret, NewNode(c.SrcDir, rel))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return ret, nil
}
