package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "epubbuild.yaml"

const envPrefix = "EPUBBUILD_"

// Config holds the build settings. Flags override environment variables,
// which override the config file, which overrides Default.
type Config struct {
	Paths    Paths  `yaml:"paths"`
	Manifest string `yaml:"manifest"`
	Nav      Nav    `yaml:"nav"`
	Guide    Guide  `yaml:"guide"`
	Tools    Tools  `yaml:"tools"`
	Images   Images `yaml:"images"`
	Strict   bool   `yaml:"strict"`
}

type Paths struct {
	Source        string `yaml:"source"`
	Template      string `yaml:"template"`
	Build         string `yaml:"build"`
	Dist          string `yaml:"dist"`
	KindlegenTemp string `yaml:"kindlegen_temp"`
}

type Nav struct {
	Placeholder    string `yaml:"placeholder"`
	AnchorSelector string `yaml:"anchor_selector"`
}

type Guide struct {
	CoverTitle string `yaml:"cover_title"`
	TocTitle   string `yaml:"toc_title"`
}

type Tools struct {
	FontSubsetter   []string `yaml:"font_subsetter"`
	MobiConverter   string   `yaml:"mobi_converter"`
	MobiArgs        []string `yaml:"mobi_args"`
	MobiOKExitCodes []int    `yaml:"mobi_ok_exit_codes"`
}

type Images struct {
	MaxWidth    int `yaml:"max_width"`
	JPEGQuality int `yaml:"jpeg_quality"`
}

// Default returns the settings used when nothing else is configured.
func Default() *Config {
	return &Config{
		Paths: Paths{
			Source:        "src",
			Template:      "epub-template",
			Build:         "build",
			Dist:          "dist",
			KindlegenTemp: "kindlegen-temp",
		},
		Manifest: "manifest.json",
		Nav: Nav{
			Placeholder:    "${toc}",
			AnchorSelector: "a",
		},
		Guide: Guide{
			CoverTitle: "Cover",
			TocTitle:   "Table of Contents",
		},
		Tools: Tools{
			FontSubsetter:   []string{"npx", "font-spider"},
			MobiConverter:   "kindlegen",
			MobiArgs:        []string{"-c1", "-dont_append_source"},
			MobiOKExitCodes: []int{1},
		},
		Images: Images{
			MaxWidth:    1200,
			JPEGQuality: 85,
		},
	}
}

// Load reads a YAML config file over Default. A missing file is not an error
// when path is DefaultFile.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultFile {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overlays EPUBBUILD_* environment variables.
func (c *Config) ApplyEnv() error {
	str := map[string]*string{
		"SOURCE":         &c.Paths.Source,
		"TEMPLATE":       &c.Paths.Template,
		"BUILD":          &c.Paths.Build,
		"DIST":           &c.Paths.Dist,
		"KINDLEGEN_TEMP": &c.Paths.KindlegenTemp,
		"MANIFEST":       &c.Manifest,
		"MOBI_CONVERTER": &c.Tools.MobiConverter,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "FONT_SUBSETTER"); ok && v != "" {
		c.Tools.FontSubsetter = strings.Fields(v)
	}

	var errs []error
	if v, ok := os.LookupEnv(envPrefix + "STRICT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %sSTRICT: %w", envPrefix, err))
		} else {
			c.Strict = b
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "MAX_IMAGE_WIDTH"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %sMAX_IMAGE_WIDTH: %w", envPrefix, err))
		} else {
			c.Images.MaxWidth = n
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return c.Validate()
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Paths.Source == "" || c.Paths.Build == "" || c.Paths.Dist == "" {
		errs = append(errs, errors.New("paths.source, paths.build and paths.dist must be set"))
	}
	if c.Images.MaxWidth < 0 {
		errs = append(errs, fmt.Errorf("images.max_width must be >= 0, got %d", c.Images.MaxWidth))
	}
	if c.Images.JPEGQuality < 1 || c.Images.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("images.jpeg_quality must be in 1..100, got %d", c.Images.JPEGQuality))
	}
	return errors.Join(errs...)
}
