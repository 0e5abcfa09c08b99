// Package rendertest generates console scripts that walk the renderer through
// a set of saved games and debug display modes, taking a screenshot of each.
package rendertest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/adnsv/go-utils/fs"
)

// Lines returns the script for cfg, one console command line per entry.
// Blank entries separate the per-save blocks.
func Lines(cfg *Config) []string {
	ret := make([]string, 0, len(cfg.Header)+2+len(cfg.Saves)*(2+len(cfg.Displays)))
	ret = append(ret, cfg.Header...)
	if cfg.Seed != nil {
		ret = append(ret, fmt.Sprintf("rt_debug_fixed_random_seed %d", *cfg.Seed))
	}

	for _, save := range cfg.Saves {
		ret = append(ret, "")
		ret = append(ret, fmt.Sprintf("load %s%s; wait %d", cfg.SavePrefix, save, cfg.LoadWait))
		for _, d := range cfg.Displays {
			ret = append(ret, fmt.Sprintf("rt_debug_display_only \"%s\"; screenshot %s; wait %d",
				d.Mode, screenshotName(cfg, save, d), cfg.ShotWait))
		}
	}

	ret = append(ret, "quit")
	return ret
}

func screenshotName(cfg *Config, save string, d Display) string {
	return cfg.ScreenshotDir + save + "_" + d.Name + ".png"
}

// Screenshots lists the image paths a run of the script leaves behind,
// relative to the game directory, in capture order.
func Screenshots(cfg *Config) []string {
	ret := make([]string, 0, len(cfg.Saves)*len(cfg.Displays))
	for _, save := range cfg.Saves {
		for _, d := range cfg.Displays {
			ret = append(ret, screenshotName(cfg, save, d))
		}
	}
	return ret
}

// Write validates cfg and writes the script to w.
func Write(w io.Writer, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, l := range Lines(cfg) {
		if _, err := io.WriteString(w, l+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// Generate writes the script to stdout when outFN is empty, or to outFN
// otherwise. An unchanged file is left untouched.
func Generate(cfg *Config, outFN string) error {
	if outFN == "" {
		return Write(os.Stdout, cfg)
	}

	buf := bytes.Buffer{}
	if err := Write(&buf, cfg); err != nil {
		return err
	}
	if dir := filepath.Dir(outFN); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return fs.WriteFileIfChanged(outFN, buf.Bytes())
}
