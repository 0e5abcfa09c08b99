package main

import (
	"os"

	cli "github.com/jawher/mow.cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log = zap.NewNop().Sugar()

func newLogger(verbose bool) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = ""
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l.Sugar()
}

// fatal logs err and exits with status 1.
func fatal(err error) {
	log.Errorf("%v", err)
	log.Sync()
	cli.Exit(1)
}

func main() {
	app := cli.App("rttools", "renderer test tooling: test scripts, pipeline builds, screenshot diffs")
	app.Version("version", app_version())
	verbose := app.BoolOpt("v verbose", false, "log debug messages")

	app.Before = func() {
		log = newLogger(*verbose)
	}
	app.After = func() {
		log.Sync()
	}

	app.Command("rendertest", "generate the renderer test script", cmdRendertest)
	app.Command("meatpipe", "compile pipeline descriptions with sebastian", func(cmd *cli.Cmd) {
		cmd.Command("build", "compile every pipeline source of the project", cmdMeatpipeBuild)
		cmd.Command("deps", "print the dependencies of a pipeline source", cmdMeatpipeDeps)
		cmd.Command("watch", "rebuild whenever a source or dependency changes", cmdMeatpipeWatch)
	})
	app.Command("imagecompare", "compare screenshots against reference images", cmdImagecompare)

	app.Run(os.Args)
}
