package main

import (
	"strings"

	"github.com/adnsv/rttools/rendertest"
	cli "github.com/jawher/mow.cli"
)

// loadRendertestConfig returns the defaults, or the defaults overridden by
// the yaml file fn.
func loadRendertestConfig(fn string) (*rendertest.Config, error) {
	if fn == "" {
		return rendertest.DefaultConfig(), nil
	}
	log.Debugf("loading %s", fn)
	return rendertest.LoadConfig(fn)
}

func cmdRendertest(cmd *cli.Cmd) {
	cmd.Spec = "[-o=<OUTPUT-FILE>] [-c=<CONFIG-FILE>] [--seed=<N>]"
	outFN := cmd.StringOpt("o output", "", "write the script to a file instead of stdout")
	cfgFN := cmd.StringOpt("c config", "", "yaml file overriding the built-in saves and displays")
	seedSet := false
	seed := cmd.Int(cli.IntOpt{
		Name:      "seed",
		Desc:      "emit a fixed random seed for reproducible screenshots",
		SetByUser: &seedSet,
	})

	cmd.Action = func() {
		cfg, err := loadRendertestConfig(*cfgFN)
		if err != nil {
			fatal(err)
		}

		// allow overriding config values with cli args
		if seedSet {
			cfg.Seed = seed
		}

		if unk := cfg.UnknownModes(); len(unk) > 0 {
			log.Warnf("unknown display modes: %s", strings.Join(unk, ", "))
		}

		if err := rendertest.Generate(cfg, *outFN); err != nil {
			fatal(err)
		}
		if *outFN != "" {
			log.Infof("wrote %s: %d saves, %d displays", *outFN, len(cfg.Saves), len(cfg.Displays))
		}
	}
}
