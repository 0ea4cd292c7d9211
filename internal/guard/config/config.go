package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "NAV_"

// ConfigFileEnv names the environment variable holding an optional TOML config file.
const ConfigFileEnv = envPrefix + "CONFIG_FILE"

// AppConfig holds configuration values from defaults, an optional TOML file
// and NAV_* environment variables, in increasing precedence.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// LogFile, when set, additionally writes JSON logs to a rotated file.
	LogFile string `koanf:"log_file"`

	// Store selects the list store backend.
	Store  string `koanf:"store" validate:"required,oneof=bolt memory"`
	DBPath string `koanf:"db_path" validate:"required_if=Store bolt"`

	// Listen is the HTTP API bind address; PublicURL is how browsers reach it.
	Listen    string `koanf:"listen" validate:"required,host_port"`
	PublicURL string `koanf:"public_url" validate:"required,http_url"`

	// DevToolsURL is the browser's remote debugging endpoint.
	DevToolsURL     string `koanf:"devtools_url" validate:"required,http_url"`
	BrowserPollMS   int    `koanf:"browser_poll_ms" validate:"gte=100"`
	BrowserDisabled bool   `koanf:"browser_disabled"`

	ClassifierEndpoint  string `koanf:"classifier_endpoint" validate:"required,http_url"`
	ClassifierModel     string `koanf:"classifier_model" validate:"required"`
	ClassifierToken     string `koanf:"classifier_token"`
	ClassifierTimeoutMS int    `koanf:"classifier_timeout_ms" validate:"gte=100,lte=120000"`
	ClassifierDisabled  bool   `koanf:"classifier_disabled"`

	TabCacheSize int     `koanf:"tab_cache_size" validate:"gte=1"`
	BloomFPRate  float64 `koanf:"bloom_fp_rate" validate:"gt=0,lt=1"`

	// ExtraSafe and ExtraBlock extend the built-in default-safe and must-block sets.
	ExtraSafe  []string `koanf:"extra_safe" validate:"dive,required"`
	ExtraBlock []string `koanf:"extra_block" validate:"dive,required"`

	ConfigFile string `koanf:"config_file"`
}

// DEFAULT_APP_CONFIG defines the default application configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:                 "prod",
	LogLevel:            "info",
	Store:               "bolt",
	DBPath:              "/var/lib/navguard/lists.db",
	Listen:              "127.0.0.1:8787",
	PublicURL:           "http://127.0.0.1:8787",
	DevToolsURL:         "http://127.0.0.1:9222",
	BrowserPollMS:       1000,
	ClassifierEndpoint:  "https://api-inference.huggingface.co",
	ClassifierModel:     "facebook/bart-large-mnli",
	ClassifierTimeoutMS: 8000,
	TabCacheSize:        1024,
	BloomFPRate:         0.01,
}

// listKeys are split on spaces and commas when read from the environment.
var listKeys = map[string]bool{"extra_safe": true, "extra_block": true}

// ClassifierTimeout returns the classifier request bound.
func (c *AppConfig) ClassifierTimeout() time.Duration {
	return time.Duration(c.ClassifierTimeoutMS) * time.Millisecond
}

// BrowserPollInterval returns how often browser targets are re-listed.
func (c *AppConfig) BrowserPollInterval() time.Duration {
	return time.Duration(c.BrowserPollMS) * time.Millisecond
}

// BlockPageURL is the interstitial address handed to blocked tabs.
func (c *AppConfig) BlockPageURL() string {
	return strings.TrimRight(c.PublicURL, "/") + "/blocked"
}

// validHostPort accepts "host:port" and ":port" with a port in 1-65535.
func validHostPort(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0
}

// envLoader loads NAV_* variables, lower-casing keys and splitting list values.
// It is a variable so tests can replace it.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			value = strings.TrimSpace(value)

			if listKeys[key] {
				return key, strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
			}
			return key, value
		},
	}), nil)
}

// fileLoader merges a TOML config file when path is non-empty.
var fileLoader = func(k *koanf.Koanf, path string) error {
	if path == "" {
		return nil
	}
	return k.Load(file.Provider(path), TOMLParser())
}

var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("host_port", validHostPort)
}

// Load builds the configuration and validates it.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if err := fileLoader(k, os.Getenv(ConfigFileEnv)); err != nil {
		return nil, fmt.Errorf("error loading config file: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &cfg, nil
}
