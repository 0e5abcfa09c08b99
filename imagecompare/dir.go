package imagecompare

import (
	"os"
	"path/filepath"
)

func mkdirFor(fn string) error {
	return os.MkdirAll(filepath.Dir(fn), 0755)
}

// Entry is the outcome of comparing one screenshot.
type Entry struct {
	Name   string
	Result *Result
	Err    error
}

// CompareDirs compares every named image under baseDir with its counterpart
// under newDir. Difference images go under diffDir when it is not empty,
// keeping the relative name.
func CompareDirs(baseDir, newDir, diffDir string, names []string) []Entry {
	ret := make([]Entry, 0, len(names))
	for _, name := range names {
		rel := filepath.FromSlash(name)
		out := ""
		if diffDir != "" {
			out = filepath.Join(diffDir, rel)
			if err := mkdirFor(out); err != nil {
				ret = append(ret, Entry{Name: name, Err: err})
				continue
			}
		}
		r, err := CompareFiles(filepath.Join(baseDir, rel), filepath.Join(newDir, rel), out)
		ret = append(ret, Entry{Name: name, Result: r, Err: err})
	}
	return ret
}

// Failed counts entries that errored or exceed threshold.
func Failed(entries []Entry, threshold float64) int {
	n := 0
	for _, e := range entries {
		if e.Err != nil || e.Result.Over(threshold) {
			n++
		}
	}
	return n
}
