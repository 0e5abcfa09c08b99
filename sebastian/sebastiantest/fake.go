// Package sebastiantest provides a stand-in for the sebastian executable.
//
// The test binary itself plays the tool: NewTool returns a command that
// re-runs the current test binary, and HelperProcess, called from a test
// named TestHelperProcess, takes over when it detects that it was started
// that way.
//
//	func TestHelperProcess(t *testing.T) {
//		sebastiantest.HelperProcess()
//	}
package sebastiantest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adnsv/rttools/sebastian"
)

type Mode string

const (
	// OK compiles by concatenating the input with its dependencies. Inputs
	// are JSON objects; their "depends" array lists the dependencies.
	OK = Mode("ok")

	// Fail writes a partial output, complains on stderr and exits with 3.
	Fail = Mode("fail")

	// BrokenCompile scans like OK but fails every compilation like Fail.
	BrokenCompile = Mode("broken-compile")

	// Silent exits successfully without writing anything.
	Silent = Mode("silent")

	// Garbage succeeds but prints a JSON object as the dependency list.
	Garbage = Mode("garbage")
)

const ExitFail = 3

const envMode = "SEBASTIANTEST_MODE"

// NewTool returns a tool backed by the test binary running in mode. Relative
// dependency paths are resolved against dir.
func NewTool(mode Mode, dir string) *sebastian.Tool {
	self, err := os.Executable()
	if err != nil {
		self = os.Args[0]
	}
	return &sebastian.Tool{
		Command: []string{self, "-test.run=^TestHelperProcess$", "--"},
		Dir:     dir,
		Env:     []string{envMode + "=" + string(mode)},
	}
}

// HelperProcess acts as the tool and exits when the binary was started by
// NewTool. It returns immediately otherwise.
func HelperProcess() {
	mode := Mode(os.Getenv(envMode))
	if mode == "" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	os.Exit(run(mode, args))
}

type invocation struct {
	output string
	input  string
	path   string
	depend string
}

func parseArgs(args []string) (*invocation, error) {
	inv := &invocation{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		next := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s needs a value", a)
			}
			i++
			return args[i], nil
		}
		var err error
		switch a {
		case "-o":
			inv.output, err = next()
		case "--path":
			inv.path, err = next()
		case "--depend":
			inv.depend, err = next()
		default:
			if inv.input != "" {
				return nil, fmt.Errorf("unexpected argument %s", a)
			}
			inv.input = a
		}
		if err != nil {
			return nil, err
		}
	}
	if inv.input == "" {
		return nil, fmt.Errorf("missing input")
	}
	if inv.path == "" {
		return nil, fmt.Errorf("missing --path")
	}
	return inv, nil
}

type source struct {
	Depends []string `json:"depends"`
}

func run(mode Mode, args []string) int {
	inv, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "usage: %v\n", err)
		return 2
	}

	if mode == BrokenCompile {
		if inv.depend == "" {
			mode = Fail
		} else {
			mode = OK
		}
	}

	switch mode {
	case Fail:
		if inv.output != "" {
			os.WriteFile(inv.output, []byte("partial"), 0644)
		}
		fmt.Fprintf(os.Stderr, "sebastian: cannot compile %s\n", inv.input)
		return ExitFail
	case Silent:
		return 0
	case Garbage:
		if inv.depend != "" {
			fmt.Print(`{"not": "a list"}`)
		}
		return 0
	}

	buf, err := os.ReadFile(inv.input)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	src := source{}
	if err := json.Unmarshal(buf, &src); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", inv.input, err)
		return 1
	}

	if inv.depend != "" {
		if src.Depends == nil {
			src.Depends = []string{}
		}
		out, _ := json.Marshal(src.Depends)
		fmt.Println(string(out))
		return 0
	}

	out := append([]byte{}, buf...)
	for _, dep := range src.Depends {
		b, err := os.ReadFile(dep)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		out = append(out, b...)
	}
	if err := os.MkdirAll(filepath.Dir(inv.output), 0755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := os.WriteFile(inv.output, out, 0644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
