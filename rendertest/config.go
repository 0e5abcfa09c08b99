package rendertest

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Display pairs a screenshot label with the rt_debug_display_only mode that
// produces it. An empty Mode renders the full, unfiltered image.
type Display struct {
	Name string
	Mode string
}

// Config describes a render test run. The generator never mutates it.
type Config struct {
	Header   []string
	Saves    []string
	Displays []Display

	ScreenshotDir string
	SavePrefix    string
	LoadWait      int
	ShotWait      int

	// Seed, when set, pins rt_debug_fixed_random_seed so that consecutive runs
	// produce comparable images.
	Seed *int
}

// KnownModes lists the display modes accepted by the renderer.
var KnownModes = []string{
	"basecolor", "basealpha", "emissive", "nshade", "ngeom", "lighting",
	"surfhash", "direct", "direct_diff", "direct_spec", "indirect",
	"indirect_diff", "indirect_spec", "trihash", "material", "diffuse",
	"specular",
}

// DefaultConfig returns the stock render test: every regression save
// captured in every display mode.
func DefaultConfig() *Config {
	return &Config{
		Header: []string{
			"m_ignore 1",
			"scr_conspeed 100000",
			"con_notifytime 0",
			"hud_draw 0",
			"r_speeds 0",
			"developer 0",
		},
		Saves: []string{
			"brush2_01",
			"brush_01",
			"brush_02",
			"c0a0d_emissive",
			"light_01",
		},
		Displays: []Display{
			{"full", ""},
			{"basecolor", "basecolor"},
			{"emissive", "emissive"},
			{"nshade", "nshade"},
			{"ngeom", "ngeom"},
			{"lighting", "lighting"},
			{"direct", "direct"},
			{"indirect", "indirect"},
			{"indirect_spec", "indirect_spec"},
			{"indirect_diff", "indirect_diff"},
		},
		ScreenshotDir: "rendertest/",
		SavePrefix:    "rendertest_",
		LoadWait:      20,
		ShotWait:      1,
	}
}

var (
	ErrNoSaves    = errors.New("save list is empty")
	ErrNoDisplays = errors.New("display table is empty")
)

func isKnownMode(m string) bool {
	if m == "" {
		return true
	}
	for _, k := range KnownModes {
		if strings.EqualFold(k, m) {
			return true
		}
	}
	return false
}

// UnknownModes returns the display modes the renderer will reject. The
// renderer falls back to full rendering for those, so they are reported rather
// than refused.
func (c *Config) UnknownModes() []string {
	ret := []string{}
	for _, d := range c.Displays {
		if !isKnownMode(d.Mode) {
			ret = append(ret, d.Mode)
		}
	}
	return ret
}

// Validate checks that the tables are usable for script generation.
func (c *Config) Validate() error {
	if len(c.Saves) == 0 {
		return ErrNoSaves
	}
	if len(c.Displays) == 0 {
		return ErrNoDisplays
	}
	for _, s := range c.Saves {
		if s == "" || strings.ContainsAny(s, " \t;\"") {
			return fmt.Errorf("invalid save name %q", s)
		}
	}
	seen := map[string]struct{}{}
	for _, d := range c.Displays {
		if d.Name == "" {
			return errors.New("display with empty name")
		}
		if _, ok := seen[d.Name]; ok {
			return fmt.Errorf("duplicate display name %q", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	if c.LoadWait < 0 || c.ShotWait < 0 {
		return errors.New("wait counts must not be negative")
	}
	return nil
}

// displayTable keeps the key order of a yaml mapping, which a Go map would lose.
type displayTable []Display

func (t *displayTable) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: displays must be a mapping of name: mode", n.Line)
	}
	out := displayTable{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: display %q must map to a string", v.Line, k.Value)
		}
		mode := v.Value
		if v.Tag == "!!null" {
			mode = ""
		}
		out = append(out, Display{Name: k.Value, Mode: mode})
	}
	*t = out
	return nil
}

type configLoader struct {
	Header        []string     `yaml:"header"`
	Saves         []string     `yaml:"saves"`
	Displays      displayTable `yaml:"displays"`
	ScreenshotDir *string      `yaml:"screenshot-dir"`
	SavePrefix    *string      `yaml:"save-prefix"`
	LoadWait      *int         `yaml:"load-wait"`
	ShotWait      *int         `yaml:"shot-wait"`
	Seed          *int         `yaml:"seed"`
}

// ParseConfig overlays yaml content on top of DefaultConfig.
func ParseConfig(buf []byte) (*Config, error) {
	l := configLoader{}
	if err := yaml.Unmarshal(buf, &l); err != nil {
		return nil, err
	}

	c := DefaultConfig()
	if l.Header != nil {
		c.Header = l.Header
	}
	if l.Saves != nil {
		c.Saves = l.Saves
	}
	if l.Displays != nil {
		c.Displays = l.Displays
	}
	if l.ScreenshotDir != nil {
		c.ScreenshotDir = *l.ScreenshotDir
	}
	if l.SavePrefix != nil {
		c.SavePrefix = *l.SavePrefix
	}
	if l.LoadWait != nil {
		c.LoadWait = *l.LoadWait
	}
	if l.ShotWait != nil {
		c.ShotWait = *l.ShotWait
	}
	c.Seed = l.Seed
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadConfig reads a yaml override file.
func LoadConfig(fn string) (*Config, error) {
	buf, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	c, err := ParseConfig(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return c, nil
}
