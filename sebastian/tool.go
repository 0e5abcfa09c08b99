// Package sebastian drives the external meatpipe compiler. The tool turns a
// JSON pipeline description into a .meat file and, in dependency mode, lists
// every file the output was built from.
package sebastian

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/adnsv/go-utils/fs"
	"github.com/mattn/go-shellwords"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// EnvVar overrides tool discovery with an explicit command line.
const EnvVar = "SEBASTIAN"

var (
	ErrNotFound = errors.New("sebastian not found")
	ErrNoOutput = errors.New("sebastian produced no output")
)

// Tool is a located sebastian executable. Command may hold more than one
// word, e.g. an interpreter followed by the script.
type Tool struct {
	Command []string
	Dir     string   // working directory, defaults to the current one
	Env     []string // appended to the inherited environment

	Log *zap.SugaredLogger
}

// Error reports a failed tool invocation.
type Error struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Err)
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		if i := strings.IndexByte(msg, '\n'); i >= 0 {
			msg = msg[:i]
		}
		s += ": " + msg
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ParseCommand splits a command line such as "python ~/tools/sebastian.py".
func ParseCommand(s string) ([]string, error) {
	args, err := shellwords.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid tool command %q: %w", s, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty tool command")
	}
	for i, a := range args {
		if args[i], err = homedir.Expand(a); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// Find locates the tool. Each of dirs is searched for name with every one of
// exts appended before falling back to $PATH. Python scripts are run through
// the interpreter on Windows, where they are not directly executable.
func Find(name string, dirs []string, exts []string) (*Tool, error) {
	if s := os.Getenv(EnvVar); s != "" {
		cmd, err := ParseCommand(s)
		if err != nil {
			return nil, err
		}
		return &Tool{Command: cmd}, nil
	}

	candidates := []string{name}
	for _, ext := range exts {
		candidates = append(candidates, name+ext)
	}

	found := ""
	for _, dir := range dirs {
		dir, err := homedir.Expand(dir)
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			fn := filepath.Join(dir, c)
			if fs.FileExists(fn) {
				found = fn
				break
			}
		}
		if found != "" {
			break
		}
	}
	if found == "" {
		for _, c := range candidates {
			if fn, err := exec.LookPath(c); err == nil {
				found = fn
				break
			}
		}
	}
	if found == "" {
		return nil, fmt.Errorf("%w: looked for %s in %s and $PATH", ErrNotFound,
			strings.Join(candidates, ", "), strings.Join(dirs, ", "))
	}

	found, err := filepath.Abs(found)
	if err != nil {
		return nil, err
	}
	if runtime.GOOS == "windows" && strings.EqualFold(filepath.Ext(found), ".py") {
		return &Tool{Command: []string{"python", found}}, nil
	}
	return &Tool{Command: []string{found}}, nil
}

func (t *Tool) logger() *zap.SugaredLogger {
	if t.Log == nil {
		return zap.NewNop().Sugar()
	}
	return t.Log
}

func (t *Tool) run(ctx context.Context, args ...string) ([]byte, error) {
	if len(t.Command) == 0 {
		return nil, ErrNotFound
	}
	argv := append(append([]string{}, t.Command[1:]...), args...)
	x := exec.CommandContext(ctx, t.Command[0], argv...)
	x.Dir = t.Dir
	if len(t.Env) > 0 {
		x.Env = append(os.Environ(), t.Env...)
	}

	stdout, stderr := bytes.Buffer{}, bytes.Buffer{}
	x.Stdout = &stdout
	x.Stderr = &stderr

	t.logger().Debugf("running %s", x.String())
	err := x.Run()
	if err != nil {
		e := &Error{
			Args:     append([]string{filepath.Base(t.Command[0])}, argv...),
			ExitCode: -1,
			Stderr:   stderr.String(),
			Err:      err,
		}
		var xerr *exec.ExitError
		if errors.As(err, &xerr) {
			e.ExitCode = xerr.ExitCode()
		}
		return nil, e
	}
	if stderr.Len() > 0 {
		t.logger().Warnf("%s", strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Compile converts input into output. The tool writes the artifact itself;
// a zero exit status without the artifact on disk is still a failure. Any
// previous output is removed first so that only a fresh artifact counts.
func (t *Tool) Compile(ctx context.Context, input, output string) error {
	outDir := filepath.Dir(output)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	if err := os.Remove(output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale %s: %w", output, err)
	}

	if _, err := t.run(ctx, "-o", output, input, "--path", outDir); err != nil {
		return err
	}

	if _, err := os.Stat(output); os.IsNotExist(err) {
		return fmt.Errorf("%w: missing %s", ErrNoOutput, output)
	} else if err != nil {
		return fmt.Errorf("%w: %v", ErrNoOutput, err)
	}
	return nil
}

// Depends asks the tool which files the output compiled from input would
// depend on. Paths are returned as printed by the tool.
func (t *Tool) Depends(ctx context.Context, input, outDir string) ([]string, error) {
	buf, err := t.run(ctx, input, "--path", outDir, "--depend", "-")
	if err != nil {
		return nil, err
	}
	return ParseDepends(buf)
}
