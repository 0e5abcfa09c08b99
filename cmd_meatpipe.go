package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adnsv/rttools/build"
	"github.com/adnsv/rttools/buildcache"
	"github.com/adnsv/rttools/meatpipe"
	"github.com/adnsv/rttools/sebastian"
	cli "github.com/jawher/mow.cli"
)

type projectOpts struct {
	dir     *string
	file    *string
	jobs    *int
	noCache *bool
}

func addProjectOpts(cmd *cli.Cmd) *projectOpts {
	return &projectOpts{
		dir:     cmd.StringOpt("C directory", ".", "project directory"),
		file:    cmd.StringOpt("f file", "", "project file, "+meatpipe.DefaultProjectFile+" in the project directory by default"),
		jobs:    cmd.IntOpt("j jobs", 0, "parallel compilations, number of CPUs by default"),
		noCache: cmd.BoolOpt("no-cache", false, "keep signatures in memory only, rebuilding everything"),
	}
}

// session is an opened project ready to build.
type session struct {
	proj  *meatpipe.Project
	bld   *build.Context
	tool  *sebastian.Tool
	close func() error
}

func (o *projectOpts) open() (*session, error) {
	var proj *meatpipe.Project
	var err error
	if *o.file != "" {
		fn := *o.file
		if !filepath.IsAbs(fn) {
			fn = filepath.Join(*o.dir, fn)
		}
		proj, err = meatpipe.OpenProject(fn)
	} else {
		proj, err = meatpipe.LoadProject(*o.dir)
	}
	if err != nil {
		return nil, err
	}
	if *o.jobs > 0 {
		proj.Jobs = *o.jobs
	}

	bld, err := proj.Context()
	if err != nil {
		return nil, err
	}
	bld.Log = log

	tool, err := proj.FindTool()
	if err != nil {
		return nil, err
	}
	tool.Log = log
	log.Debugf("using %v", tool.Command)

	s := &session{proj: proj, bld: bld, tool: tool, close: func() error { return nil }}
	if *o.noCache {
		bld.Cache = buildcache.NewMemory()
		return s, nil
	}
	fn, err := proj.CachePath(bld)
	if err != nil {
		return nil, err
	}
	db, err := buildcache.Open(fn)
	if err != nil {
		return nil, err
	}
	bld.Cache = db
	s.close = db.Close
	return s, nil
}

func (s *session) tasks() ([]*meatpipe.Task, error) {
	tasks, err := s.proj.Tasks(s.bld, s.tool)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		log.Warnf("no %s sources in %s", meatpipe.SourceExt, s.proj.Dir())
	}
	return tasks, nil
}

func cmdMeatpipeBuild(cmd *cli.Cmd) {
	opts := addProjectOpts(cmd)

	cmd.Action = func() {
		s, err := opts.open()
		if err != nil {
			fatal(err)
		}
		defer s.close()

		tasks, err := s.tasks()
		if err != nil {
			fatal(err)
		}
		stats, err := s.bld.Run(context.Background(), meatpipe.BuildTasks(tasks))
		if err != nil {
			fatal(err)
		}
		log.Infof("%d built, %d up to date, %d installed", stats.Built, stats.UpToDate, stats.Installed)
	}
}

func cmdMeatpipeDeps(cmd *cli.Cmd) {
	opts := addProjectOpts(cmd)
	input := cmd.StringArg("INPUT", "", "pipeline source")

	cmd.Action = func() {
		*opts.noCache = true
		s, err := opts.open()
		if err != nil {
			fatal(err)
		}
		defer s.close()

		abs, err := filepath.Abs(*input)
		if err != nil {
			fatal(err)
		}
		src, err := s.bld.SourceNode(abs)
		if err != nil {
			fatal(err)
		}
		t := meatpipe.Process(s.bld, s.tool, src, "")
		nodes, _, err := t.Scan(context.Background())
		if err != nil {
			fatal(err)
		}
		for _, n := range nodes {
			fmt.Fprintln(os.Stdout, n.Abs())
		}
	}
}

func cmdMeatpipeWatch(cmd *cli.Cmd) {
	opts := addProjectOpts(cmd)
	debounce := cmd.IntOpt("debounce", 200, "milliseconds to wait for more changes before rebuilding")

	cmd.Action = func() {
		s, err := opts.open()
		if err != nil {
			fatal(err)
		}
		defer s.close()

		tasks, err := s.tasks()
		if err != nil {
			fatal(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Infof("watching %s, press Ctrl+C to stop", s.proj.Dir())
		err = meatpipe.Watch(ctx, s.bld, tasks, time.Duration(*debounce)*time.Millisecond)
		if err != nil {
			fatal(err)
		}
	}
}
