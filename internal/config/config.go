package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ConfigFile = "config.yaml"
	EnvFile    = ".env"
	envPrefix  = "S2V_"
)

type contextKey struct{}

var configKey = contextKey{}

type Config struct {
	DataDir       string `yaml:"data_dir"`
	DBPath        string `yaml:"db_path"`
	StoryboardDir string `yaml:"storyboard_dir"`
	VideoDir      string `yaml:"video_dir"`
	TelemetryPath string `yaml:"telemetry_path"`
	MaxSentences  int    `yaml:"max_sentences_per_scene"`
	LogLevel      string `yaml:"log_level"`

	Render RenderConfig `yaml:"render"`
}

type RenderConfig struct {
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	FPS            int     `yaml:"fps"`
	FadeDuration   float64 `yaml:"fade"`
	TransitionType string  `yaml:"transition"`
	ZoomSpeed      float64 `yaml:"zoom_speed"`
	FontSize       float64 `yaml:"font_size"`
	Workers        int     `yaml:"workers"`
	VideoEncoder   string  `yaml:"encoder"`
	Quality        int     `yaml:"quality"`
	QRLink         string  `yaml:"qr_link"`
	ShowStats      bool    `yaml:"show_stats"`
}

// SegmentParams are the encode parameters of one scene segment.
type SegmentParams struct {
	Width, Height int
	FPS           int
	Duration      float64
	ZoomSpeed     float64
	FadeDuration  float64
	SceneIndex    int
	SceneType     string
	Filter        string
}

func Default() *Config {
	return &Config{
		DataDir:      "data",
		MaxSentences: 2,
		LogLevel:     "info",
		Render: RenderConfig{
			Width:          1280,
			Height:         720,
			FPS:            24,
			FadeDuration:   0.5,
			TransitionType: "fade",
			ZoomSpeed:      0.0006,
			FontSize:       36,
			VideoEncoder:   "",
			Quality:        0,
		},
	}
}

// Load reads path (or the nearest config.yaml above the working directory
// when path is empty) over the defaults, then applies .env and S2V_*
// environment overrides. A missing config file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	base := ""
	if path == "" {
		base = BasePath()
		if base != "" {
			path = filepath.Join(base, ConfigFile)
		}
	} else {
		base = filepath.Dir(path)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	// .env never overrides variables already present in the environment
	_ = godotenv.Load(filepath.Join(base, EnvFile))

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillPaths()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"DATA_DIR":       &c.DataDir,
		"DB_PATH":        &c.DBPath,
		"STORYBOARD_DIR": &c.StoryboardDir,
		"VIDEO_DIR":      &c.VideoDir,
		"TELEMETRY_PATH": &c.TelemetryPath,
		"LOG_LEVEL":      &c.LogLevel,
		"TRANSITION":     &c.Render.TransitionType,
		"ENCODER":        &c.Render.VideoEncoder,
		"QR_LINK":        &c.Render.QRLink,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAX_SENTENCES": &c.MaxSentences,
		"WIDTH":         &c.Render.Width,
		"HEIGHT":        &c.Render.Height,
		"FPS":           &c.Render.FPS,
		"WORKERS":       &c.Render.Workers,
		"QUALITY":       &c.Render.Quality,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = n
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "FADE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sFADE: %w", envPrefix, err)
		}
		c.Render.FadeDuration = f
	}
	return nil
}

// fillPaths derives the data layout from DataDir for unset paths.
func (c *Config) fillPaths() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "meta.db")
	}
	if c.StoryboardDir == "" {
		c.StoryboardDir = filepath.Join(c.DataDir, "storyboards")
	}
	if c.VideoDir == "" {
		c.VideoDir = filepath.Join(c.DataDir, "videos")
	}
	if c.TelemetryPath == "" {
		c.TelemetryPath = filepath.Join(c.DataDir, "weights.json")
	}
}

func (c *Config) Validate() error {
	r := c.Render
	switch {
	case c.MaxSentences < 1:
		return fmt.Errorf("max_sentences_per_scene must be >= 1, got %d", c.MaxSentences)
	case r.Width <= 0 || r.Height <= 0:
		return fmt.Errorf("render size must be positive, got %dx%d", r.Width, r.Height)
	case r.Width%2 != 0 || r.Height%2 != 0:
		return fmt.Errorf("render size must be even for yuv420p, got %dx%d", r.Width, r.Height)
	case r.FPS <= 0:
		return fmt.Errorf("fps must be positive, got %d", r.FPS)
	case r.FadeDuration < 0:
		return fmt.Errorf("fade must not be negative, got %v", r.FadeDuration)
	case r.FontSize <= 0:
		return fmt.Errorf("font_size must be positive, got %v", r.FontSize)
	}
	return nil
}

// BasePath walks up from the working directory to the first directory
// holding config.yaml, or returns "".
func BasePath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		cfgPath := filepath.Join(dir, ConfigFile)
		if info, err := os.Stat(cfgPath); err == nil && !info.IsDir() {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// WithConfig stores cfg in ctx.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext returns the config stored by WithConfig, or the defaults.
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	cfg := Default()
	cfg.fillPaths()
	return cfg
}
