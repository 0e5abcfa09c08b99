package main

import (
	"fmt"
	"os"

	"github.com/adnsv/rttools/imagecompare"
	"github.com/adnsv/rttools/rendertest"
	cli "github.com/jawher/mow.cli"
	"github.com/muesli/termenv"
)

func cmdImagecompare(cmd *cli.Cmd) {
	cmd.Spec = "[-t=<PERCENT>] ((A B DIFF) | (--base=<DIR> --new=<DIR> [--diff=<DIR>] [-c=<CONFIG-FILE>]))"
	limit := cmd.Float64Opt("t threshold", imagecompare.DefaultThreshold, "difference percentage above which a comparison fails")
	a := cmd.StringArg("A", "", "first image")
	b := cmd.StringArg("B", "", "second image")
	diff := cmd.StringArg("DIFF", "", "difference image to write, format by extension")
	baseDir := cmd.StringOpt("base", "", "directory with reference screenshots")
	newDir := cmd.StringOpt("new", "", "directory with fresh screenshots")
	diffDir := cmd.StringOpt("diff", "", "directory for difference images")
	cfgFN := cmd.StringOpt("c config", "", "rendertest config listing the screenshots")

	cmd.Action = func() {
		profile := termenv.EnvColorProfile()

		if *baseDir == "" {
			r, err := imagecompare.CompareFiles(*a, *b, *diff)
			if err != nil {
				fatal(err)
			}
			fmt.Fprintln(os.Stderr, imagecompare.Report(profile, *a, *b, r, *limit))
			fmt.Fprintln(os.Stderr, r.Timings)
			if r.Over(*limit) {
				cli.Exit(1)
			}
			return
		}

		cfg, err := loadRendertestConfig(*cfgFN)
		if err != nil {
			fatal(err)
		}
		entries := imagecompare.CompareDirs(*baseDir, *newDir, *diffDir, rendertest.Screenshots(cfg))
		for _, e := range entries {
			if e.Err != nil {
				log.Errorf("%v", e.Err)
				continue
			}
			fmt.Fprintln(os.Stderr, imagecompare.Report(profile, e.Name, e.Name, e.Result, *limit))
			log.Debugf("%s: %v", e.Name, e.Result.Timings)
		}
		if n := imagecompare.Failed(entries, *limit); n > 0 {
			log.Errorf("%d of %d screenshots differ", n, len(entries))
			cli.Exit(1)
		}
		log.Infof("%d screenshots match", len(entries))
	}
}
