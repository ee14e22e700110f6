package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all run settings, populated from environment variables.
type Config struct {
	BasePath         string
	OutputDir        string
	RadianceGlob     string
	RadianceVariable string
	LabelFiles       []string
	OutputFormat     string

	Normalization      string
	SanitizeNonFinite  bool
	ZeroVariancePolicy string
	SkipUnlabeled      bool
	Workers            int

	CatalogEnabled  bool
	CatalogPath     string
	QuicklookDir    string
	MetricsTextfile string

	LogLevel  string
	LogFormat string
}

// Output formats.
const (
	FormatNPY    = "npy"
	FormatNetCDF = "netcdf"
)

const maxWorkers = 64

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	sanitize, err := parseBool("SANITIZE_NONFINITE", true)
	if err != nil {
		return nil, err
	}
	skipUnlabeled, err := parseBool("SKIP_UNLABELED", false)
	if err != nil {
		return nil, err
	}
	catalogEnabled, err := parseBool("CATALOG_ENABLED", true)
	if err != nil {
		return nil, err
	}
	workers, err := parseWorkers()
	if err != nil {
		return nil, err
	}

	outputDir := sharedcfg.EnvOrDefault("OUTPUT_DIR", "processed_data")

	cfg := &Config{
		BasePath:           sharedcfg.EnvOrDefault("BASE_PATH", "../images"),
		OutputDir:          outputDir,
		RadianceGlob:       sharedcfg.EnvOrDefault("RADIANCE_GLOB", "S*_radiance_in.nc"),
		RadianceVariable:   sharedcfg.EnvOrDefault("RADIANCE_VARIABLE", "radiance_in"),
		LabelFiles:         sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("LABEL_FILES", "ice_labels.nc,clear_labels.nc,cloud_labels.nc")),
		OutputFormat:       sharedcfg.EnvOrDefault("OUTPUT_FORMAT", FormatNPY),
		Normalization:      sharedcfg.EnvOrDefault("NORMALIZATION", "minmax"),
		SanitizeNonFinite:  sanitize,
		ZeroVariancePolicy: sharedcfg.EnvOrDefault("ZERO_VARIANCE_POLICY", "fail"),
		SkipUnlabeled:      skipUnlabeled,
		Workers:            workers,
		CatalogEnabled:     catalogEnabled,
		CatalogPath:        sharedcfg.EnvOrDefault("CATALOG_PATH", filepath.Join(outputDir, "catalog.db")),
		QuicklookDir:       os.Getenv("QUICKLOOK_DIR"),
		MetricsTextfile:    os.Getenv("METRICS_TEXTFILE"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.LabelFiles) == 0 {
		return errors.New("LABEL_FILES is required")
	}
	if _, err := filepath.Match(c.RadianceGlob, ""); err != nil {
		return fmt.Errorf("invalid RADIANCE_GLOB: %w", err)
	}
	switch c.OutputFormat {
	case FormatNPY, FormatNetCDF:
	default:
		return fmt.Errorf("invalid OUTPUT_FORMAT %q: must be npy or netcdf", c.OutputFormat)
	}
	switch c.Normalization {
	case "minmax", "standardize":
	default:
		return fmt.Errorf("invalid NORMALIZATION %q: must be minmax or standardize", c.Normalization)
	}
	switch c.ZeroVariancePolicy {
	case "fail", "zero":
	default:
		return fmt.Errorf("invalid ZERO_VARIANCE_POLICY %q: must be fail or zero", c.ZeroVariancePolicy)
	}
	return nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", key)
	}
	return v, nil
}

func parseWorkers() (int, error) {
	s := os.Getenv("WORKERS")
	if s == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxWorkers {
		return 0, fmt.Errorf("invalid WORKERS: must be 1-%d", maxWorkers)
	}
	return n, nil
}
