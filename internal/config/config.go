package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// SettingsEnv names the environment variable pointing at an optional YAML
// settings file.
const SettingsEnv = "SWATCH_SETTINGS"

type Config struct {
	Swatches     SwatchConfig       `yaml:"swatches"`
	Matching     MatchingConfig     `yaml:"matching"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Database     DatabaseConfig     `yaml:"database"`
	Web          WebConfig          `yaml:"web"`
	Log          LogConfig          `yaml:"log"`
	ArtifactsDir string             `yaml:"artifacts_dir"` // empty disables artifact saving
}

type SwatchConfig struct {
	Path       string `yaml:"path"`
	LabelsPath string `yaml:"labels_path"` // JSON {filename: description}, optional
	CachePath  string `yaml:"cache_path"`  // JSON embedding cache, optional
}

type MatchingConfig struct {
	Threshold   float64 `yaml:"threshold"`
	PatchWidth  int     `yaml:"patch_width"`
	PatchHeight int     `yaml:"patch_height"`
	StrideX     int     `yaml:"stride_x"` // 0 means patch width
	StrideY     int     `yaml:"stride_y"` // 0 means patch height
	Workers     int     `yaml:"workers"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	URL       string `yaml:"url"`
	Model     string `yaml:"model"`
	InputSize int    `yaml:"input_size"`
}

type SegmentationConfig struct {
	Provider        string  `yaml:"provider"`
	URL             string  `yaml:"url"`
	Cutoff          float64 `yaml:"cutoff"`
	KeepTopFraction float64 `yaml:"keep_top_fraction"`
	Tolerance       int     `yaml:"tolerance"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`            // PostgreSQL URL, enables the shared embedding cache
	MaxOpenConns int    `yaml:"max_open_conns"` // default 25
	MaxIdleConns int    `yaml:"max_idle_conns"` // default 5
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS, localhost is always allowed
	MaxUploadMB    int      `yaml:"max_upload_mb"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envList reads a comma-separated environment variable.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for v := range strings.SplitSeq(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// Embedded file, only a broken build gets here.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load builds the configuration from the built-in defaults, the optional
// settings file and then environment variables, each overriding the previous.
// An empty settingsPath falls back to $SWATCH_SETTINGS.
func Load(settingsPath string) (*Config, error) {
	cfg := Defaults()

	if settingsPath == "" {
		settingsPath = os.Getenv(SettingsEnv)
	}
	if settingsPath != "" {
		if err := cfg.mergeFile(settingsPath); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse settings %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Swatches = SwatchConfig{
		Path:       envString("SWATCH_PATH", c.Swatches.Path),
		LabelsPath: envString("SWATCH_LABELS", c.Swatches.LabelsPath),
		CachePath:  envString("SWATCH_CACHE_PATH", c.Swatches.CachePath),
	}
	c.Matching = MatchingConfig{
		Threshold:   envFloat("SWATCH_THRESHOLD", c.Matching.Threshold),
		PatchWidth:  envInt("PATCH_WIDTH", c.Matching.PatchWidth),
		PatchHeight: envInt("PATCH_HEIGHT", c.Matching.PatchHeight),
		StrideX:     envInt("STRIDE_X", c.Matching.StrideX),
		StrideY:     envInt("STRIDE_Y", c.Matching.StrideY),
		Workers:     envInt("MATCH_WORKERS", c.Matching.Workers),
	}
	c.Embedding = EmbeddingConfig{
		Provider:  envString("EMBEDDING_PROVIDER", c.Embedding.Provider),
		URL:       envString("EMBEDDING_URL", c.Embedding.URL),
		Model:     envString("EMBEDDING_MODEL", c.Embedding.Model),
		InputSize: envInt("EMBEDDING_INPUT_SIZE", c.Embedding.InputSize),
	}
	c.Segmentation.Provider = envString("SEGMENTATION_PROVIDER", c.Segmentation.Provider)
	c.Segmentation.URL = envString("SEGMENTATION_URL", c.Segmentation.URL)
	c.Database = DatabaseConfig{
		URL:          envString("DATABASE_URL", c.Database.URL),
		MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns),
		MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns),
	}
	c.Web = WebConfig{
		Host:           envString("WEB_HOST", c.Web.Host),
		Port:           envInt("WEB_PORT", c.Web.Port),
		AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", c.Web.AllowedOrigins),
		MaxUploadMB:    envInt("WEB_MAX_UPLOAD_MB", c.Web.MaxUploadMB),
	}
	c.Log = LogConfig{
		Level:  envString("LOG_LEVEL", c.Log.Level),
		Format: envString("LOG_FORMAT", c.Log.Format),
	}
	c.ArtifactsDir = envString("ARTIFACTS_DIR", c.ArtifactsDir)
}

// Validate reports every setting that would make matching impossible.
func (c *Config) Validate() error {
	var errs []error
	if c.Swatches.Path == "" {
		errs = append(errs, errors.New("swatch path is required"))
	}
	if c.Matching.PatchWidth <= 0 || c.Matching.PatchHeight <= 0 {
		errs = append(errs, fmt.Errorf("patch size must be positive, got %dx%d", c.Matching.PatchWidth, c.Matching.PatchHeight))
	}
	if c.Matching.StrideX < 0 || c.Matching.StrideY < 0 {
		errs = append(errs, fmt.Errorf("stride must not be negative, got %dx%d", c.Matching.StrideX, c.Matching.StrideY))
	}
	if c.Matching.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Matching.Workers))
	}
	if c.Embedding.Provider == "" {
		errs = append(errs, errors.New("embedding provider is required"))
	}
	if c.Segmentation.Cutoff <= 0 || c.Segmentation.Cutoff > 1 {
		errs = append(errs, fmt.Errorf("segmentation cutoff must be within (0, 1], got %v", c.Segmentation.Cutoff))
	}
	if c.Segmentation.KeepTopFraction <= 0 || c.Segmentation.KeepTopFraction > 1 {
		errs = append(errs, fmt.Errorf("segmentation keep_top_fraction must be within (0, 1], got %v", c.Segmentation.KeepTopFraction))
	}
	return errors.Join(errs...)
}

// Addr returns the web listen address.
func (c *WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
