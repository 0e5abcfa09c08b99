package build

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrMissingOutput is returned when a task ran successfully but one of its
// declared outputs is not on disk.
var ErrMissingOutput = errors.New("task did not produce its output")

// Cache stores task signatures between builds. Implementations must be safe
// for concurrent use.
type Cache interface {
	Signature(key string) (sig string, ok bool, err error)
	Store(key, sig string) error
	Forget(key string) error
}

// Stats summarizes a Run.
type Stats struct {
	Total     int
	Built     int
	UpToDate  int
	Installed int
}

type counters struct {
	done, built, upToDate, installed atomic.Int32
}

// TaskError wraps the failure of a single task.
type TaskError struct {
	Task Task
	Op   string // "scan", "run" or "install"
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s %s: %s failed: %v", e.Task.Keyword(), describe(e.Task), e.Op, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Run executes tasks in parallel, at most Jobs at a time. Tasks whose
// signature matches the cached one and whose outputs exist are skipped. The
// first failure cancels the remaining tasks and is returned.
func (c *Context) Run(ctx context.Context, tasks []Task) (Stats, error) {
	cnt := &counters{}
	g, gctx := errgroup.WithContext(ctx)
	jobs := c.Jobs
	if jobs < 1 {
		jobs = 1
	}
	g.SetLimit(jobs)

	for _, t := range tasks {
		t := t
		g.Go(func() error {
			return c.runTask(gctx, t, len(tasks), cnt)
		})
	}
	err := g.Wait()

	return Stats{
		Total:     len(tasks),
		Built:     int(cnt.built.Load()),
		UpToDate:  int(cnt.upToDate.Load()),
		Installed: int(cnt.installed.Load()),
	}, err
}

func cacheKey(t Task) string {
	outs := t.Outputs()
	if len(outs) == 0 {
		return describe(t)
	}
	return outs[0].Abs()
}

func (c *Context) runTask(ctx context.Context, t Task, total int, cnt *counters) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deps, raw, err := t.Scan(ctx)
	if err != nil {
		return &TaskError{Task: t, Op: "scan", Err: err}
	}
	c.Log.Debugf("%s: %d dependencies", describe(t), len(deps))

	sig, err := Signature(t, deps, raw)
	if err != nil {
		return &TaskError{Task: t, Op: "scan", Err: err}
	}

	key := cacheKey(t)
	n := cnt.done.Add(1)
	if c.upToDate(key, sig, t) {
		c.Log.Debugf("[%2d/%d] up to date %s", n, total, describe(t))
		cnt.upToDate.Add(1)
	} else {
		c.Log.Infof("[%2d/%d] %s %s", n, total, t.Keyword(), describe(t))
		if err := t.Run(ctx); err != nil {
			c.forget(key)
			return &TaskError{Task: t, Op: "run", Err: err}
		}
		for _, o := range t.Outputs() {
			if _, err := os.Stat(o.Abs()); err != nil {
				c.forget(key)
				return &TaskError{Task: t, Op: "run", Err: fmt.Errorf("%w: %s", ErrMissingOutput, o)}
			}
		}
		if c.Cache != nil {
			if err := c.Cache.Store(key, sig); err != nil {
				c.Log.Warnf("cannot store signature for %s: %v", describe(t), err)
			}
		}
		cnt.built.Add(1)
	}

	if in := t.Install(); in != nil {
		dsts, err := in.Apply(t.Outputs())
		if err != nil {
			return &TaskError{Task: t, Op: "install", Err: err}
		}
		for _, d := range dsts {
			c.Log.Debugf("+ install %s", d)
		}
		cnt.installed.Add(int32(len(dsts)))
	}
	return nil
}

func (c *Context) upToDate(key, sig string, t Task) bool {
	if c.Cache == nil {
		return false
	}
	prev, ok, err := c.Cache.Signature(key)
	if err != nil {
		c.Log.Warnf("cannot read signature for %s: %v", describe(t), err)
		return false
	}
	if !ok || prev != sig {
		return false
	}
	for _, o := range t.Outputs() {
		if _, err := os.Stat(o.Abs()); err != nil {
			return false
		}
	}
	return true
}

func (c *Context) forget(key string) {
	if c.Cache == nil {
		return
	}
	if err := c.Cache.Forget(key); err != nil {
		c.Log.Warnf("cannot drop signature %s: %v", key, err)
	}
}

func hashFile(h hash.Hash, fn string) error {
	f, err := os.Open(fn)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(h, f)
	return err
}

// Signature hashes everything that determines a task's outputs: the
// keyword, vars, the contents of inputs and scanned dependencies, and the raw
// dependency names.
func Signature(t Task, deps []*Node, raw []string) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00", t.Keyword())
	for _, v := range t.Vars() {
		fmt.Fprintf(h, "var %s\x00", v)
	}
	for _, group := range [][]*Node{t.Inputs(), deps} {
		for _, n := range group {
			fmt.Fprintf(h, "node %s\x00", n.Abs())
			if err := hashFile(h, n.Abs()); err != nil {
				return "", err
			}
		}
		h.Write([]byte{0})
	}
	for _, r := range raw {
		fmt.Fprintf(h, "raw %s\x00", r)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
