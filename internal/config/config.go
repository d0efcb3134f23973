package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// AppName names the XDG subdirectories used for config and data.
const AppName = "profile-ml"

// ErrConfigNotFound is returned when an explicitly requested config file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// Config is the complete service configuration.
type Config struct {
	Env         string            `yaml:"env"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Detector    DetectorConfig    `yaml:"detector"`
	Audit       AuditConfig       `yaml:"audit"`

	// Source is the file the config was read from, empty when only defaults and env apply.
	Source string `yaml:"-"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type ScoringConfig struct {
	ArchetypesPath string `yaml:"archetypes_path"`
	WeightsPath    string `yaml:"weights_path"`
}

type RecognitionConfig struct {
	TaxonomyPath    string        `yaml:"taxonomy_path"`
	Threshold       float64       `yaml:"confidence_threshold"`
	MaxImageBytes   int           `yaml:"max_image_bytes"`
	MinDimension    int           `yaml:"min_image_dimension"`
	BulkLimit       int           `yaml:"bulk_limit"`
	BulkConcurrency int           `yaml:"bulk_concurrency"`
	DetectorTimeout time.Duration `yaml:"detector_timeout"`
}

// DetectorConfig selects the detector backends. The fixture detector is the fallback
// whenever the remote backends are unset or unavailable.
type DetectorConfig struct {
	URL            string        `yaml:"url"`
	APIKey         string        `yaml:"api_key"`
	Timeout        time.Duration `yaml:"timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	MQTTBroker     string        `yaml:"mqtt_broker"`
	MQTTUsername   string        `yaml:"mqtt_username"`
	MQTTPassword   string        `yaml:"mqtt_password"`
	MQTTTopic      string        `yaml:"mqtt_topic_prefix"`
	DisableFixture bool          `yaml:"disable_fixture"`
}

type AuditConfig struct {
	Disabled bool   `yaml:"disabled"`
	DBPath   string `yaml:"db_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Env:    "development",
		Server: ServerConfig{Port: 3002},
		Log:    LogConfig{Level: "info", Format: "text"},
		Recognition: RecognitionConfig{
			Threshold:       0.7,
			MaxImageBytes:   10 << 20,
			MinDimension:    200,
			BulkLimit:       20,
			BulkConcurrency: 4,
			DetectorTimeout: 15 * time.Second,
		},
		Detector: DetectorConfig{
			Timeout:   10 * time.Second,
			CacheTTL:  15 * time.Minute,
			MQTTTopic: "/profile-ml",
		},
		Audit: AuditConfig{DBPath: filepath.Join(xdg.DataHome, AppName, "audit.db")},
	}
}

// Load builds the configuration from defaults, then the YAML file, then the environment.
// An empty path falls back to PROFILE_ML_CONFIG and then the XDG config directory; a
// missing discovered file is not an error, a missing explicit one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := strings.TrimSpace(path)
	if explicit == "" {
		explicit = strings.TrimSpace(os.Getenv("PROFILE_ML_CONFIG"))
	}
	source := explicit
	if source == "" {
		if found, err := xdg.SearchConfigFile(filepath.Join(AppName, "config.yaml")); err == nil {
			source = found
		}
	}

	if source != "" {
		if err := cfg.loadFile(source); err != nil {
			if errors.Is(err, ErrConfigNotFound) && explicit == "" {
				source = ""
			} else {
				return nil, err
			}
		}
	}
	cfg.Source = source

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides file values with environment variables. Unparseable values are ignored.
func (c *Config) applyEnv() {
	if v := envString("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := envString("ENV"); v != "" {
		c.Env = v
	}
	if v := envString("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := envString("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := envString("LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := envString("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v := envString("ARCHETYPES_PATH"); v != "" {
		c.Scoring.ArchetypesPath = v
	}
	if v := envString("DECISION_WEIGHTS_PATH"); v != "" {
		c.Scoring.WeightsPath = v
	}
	if v := envString("TAXONOMY_PATH"); v != "" {
		c.Recognition.TaxonomyPath = v
	}
	if v := envString("CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Recognition.Threshold = f
		}
	}
	if v := envString("MAX_IMAGE_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Recognition.MaxImageBytes = n
		}
	}
	if v := envString("MIN_IMAGE_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Recognition.MinDimension = n
		}
	}
	if v := envString("DETECTOR_URL"); v != "" {
		c.Detector.URL = v
	}
	if v := envString("DETECTOR_API_KEY"); v != "" {
		c.Detector.APIKey = v
	}
	if v := envString("DETECTOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Detector.Timeout = d
		}
	}
	if v := envString("DETECTOR_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Detector.CacheTTL = d
		}
	}
	if v := envString("MQTT_BROKER"); v != "" {
		c.Detector.MQTTBroker = v
	}
	if v := envString("MQTT_TOPIC_PREFIX"); v != "" {
		c.Detector.MQTTTopic = v
	}
	if v := envString("PROFILE_ML_DB_PATH"); v != "" {
		c.Audit.DBPath = v
	}
	if v := envString("DISABLE_AUDIT"); v != "" {
		c.Audit.Disabled = strings.EqualFold(v, "true") || v == "1"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Recognition.Threshold < 0 || c.Recognition.Threshold > 1 {
		return fmt.Errorf("confidence threshold %v outside [0,1]", c.Recognition.Threshold)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if !c.Audit.Disabled && strings.TrimSpace(c.Audit.DBPath) == "" {
		return errors.New("audit db path required unless audit is disabled")
	}
	return nil
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
