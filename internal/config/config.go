package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for linerelay.
type Config struct {
	General    GeneralConfig    `json:"general" yaml:"general"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	LINE       LINEConfig       `json:"line" yaml:"line"`
	Records    RecordsConfig    `json:"records" yaml:"records"`
	Objects    ObjectsConfig    `json:"objects" yaml:"objects"`
	Classifier ClassifierConfig `json:"classifier" yaml:"classifier"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
	AWS        AWSConfig        `json:"aws" yaml:"aws"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel" validate:"oneof=debug info warn error"`
	Timezone string `json:"timezone" yaml:"timezone" validate:"required"` // IANA name or "Local"; used for blob names
	// BatchMode is "first" (stop after the first answered event) or "all".
	BatchMode string `json:"batchMode" yaml:"batchMode" validate:"oneof=first all"`
}

type ServerConfig struct {
	Host                  string `json:"host" yaml:"host"`
	Port                  int    `json:"port" yaml:"port" validate:"min=0,max=65535"`
	Path                  string `json:"path" yaml:"path" validate:"required,startswith=/"`
	MaxBodyBytes          int64  `json:"maxBodyBytes" yaml:"maxBodyBytes" validate:"min=1"`
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds" yaml:"requestTimeoutSeconds" validate:"min=1"`
}

type LINEConfig struct {
	ChannelAccessToken string `json:"channelAccessToken" yaml:"channelAccessToken" validate:"required"`
	ChannelSecret      string `json:"channelSecret,omitempty" yaml:"channelSecret,omitempty"` // enables X-Line-Signature checks
	APIBase            string `json:"apiBase" yaml:"apiBase" validate:"required,url"`
	DataAPIBase        string `json:"dataApiBase" yaml:"dataApiBase" validate:"required,url"`
	TimeoutSeconds     int    `json:"timeoutSeconds" yaml:"timeoutSeconds" validate:"min=1"`
	MaxContentBytes    int64  `json:"maxContentBytes" yaml:"maxContentBytes" validate:"min=1"`
}

type RecordsConfig struct {
	Backend   string `json:"backend" yaml:"backend" validate:"oneof=sqlite dynamodb"`
	TableName string `json:"tableName" yaml:"tableName" validate:"required"`
	DBPath    string `json:"dbPath,omitempty" yaml:"dbPath,omitempty" validate:"required_if=Backend sqlite"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" validate:"omitempty,url"` // DynamoDB Local etc.
}

type ObjectsConfig struct {
	Backend       string `json:"backend" yaml:"backend" validate:"oneof=s3 filesystem"`
	BucketName    string `json:"bucketName" yaml:"bucketName" validate:"required"`
	PublicBaseURL string `json:"publicBaseUrl,omitempty" yaml:"publicBaseUrl,omitempty" validate:"omitempty,url"`
	Endpoint      string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" validate:"omitempty,url"` // MinIO etc.
	RootDir       string `json:"rootDir,omitempty" yaml:"rootDir,omitempty" validate:"required_if=Backend filesystem"`
}

type ClassifierConfig struct {
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	ModelID       string  `json:"modelId,omitempty" yaml:"modelId,omitempty"` // custom-labels project version ARN
	MinConfidence float64 `json:"minConfidence" yaml:"minConfidence" validate:"min=0,max=100"`
	MaxLabels     int     `json:"maxLabels" yaml:"maxLabels" validate:"min=1"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path" validate:"required,startswith=/"`
}

type AWSConfig struct {
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
}

// Location resolves the configured timezone.
func (g GeneralConfig) Location() (*time.Location, error) {
	if g.Timezone == "" || g.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return nil, fmt.Errorf("general.timezone %q: %w", g.Timezone, err)
	}
	return loc, nil
}

// Active reports whether images should be classified.
func (c ClassifierConfig) Active() bool {
	return c.Enabled || c.ModelID != ""
}

// CheckClassifier rejects an active classifier without an S3 object store.
// Rekognition reads images straight from the bucket.
func (c *Config) CheckClassifier() error {
	if c.Classifier.Active() && c.Objects.Backend != "s3" {
		return fmt.Errorf("classifier requires objects.backend=s3, got %q", c.Objects.Backend)
	}
	return nil
}

// DefaultConfigDir returns the default config directory (~/.linerelay).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".linerelay"
	}
	return filepath.Join(home, ".linerelay")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load builds the configuration from defaults, the file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	return LoadWithDefaults(path, Defaults())
}

// LoadWithDefaults is Load starting from cfg instead of Defaults. The file
// and environment are applied on top of it.
func LoadWithDefaults(path string, cfg *Config) (*Config, error) {

	if path != "" {
		path = ExpandPath(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}

		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))

		if isYAML(path) {
			err = yaml.Unmarshal(data, cfg)
		} else {
			err = json.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.Records.DBPath = ExpandPath(cfg.Records.DBPath)
	cfg.Objects.RootDir = ExpandPath(cfg.Objects.RootDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} falls back to "default" when VAR is unset or empty; an
// unset ${VAR} without default is left as is.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if val := os.Getenv(groups[1]); val != "" {
			return val
		}
		if groups[2] != "" {
			return groups[2]
		}
		return match
	})
}

// Save writes cfg to path, as YAML when the extension says so and JSON otherwise.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
