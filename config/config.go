// Package config loads the settings of a coverage run from a YAML file, an
// optional .env file and the environment, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Defaults
const (
	DefaultTokenURL       = "https://aai.openaire.eu/oidc/token"
	DefaultIDColumn       = "ROR_LINK"
	DefaultNamespace      = "openorgs"
	DefaultOutputSuffix   = "nl-stats"
	DefaultScheme         = "extended"
	DefaultMaxAttempts    = 3
	DefaultRetryInterval  = time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultPageSize       = 100
)

// Schemes lists the supported output column schemes.
var Schemes = []string{"extended", "legacy"}

// Config holds everything a run needs.
type Config struct {
	APIBaseURL     string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	DataFile       string
	IDColumn       string
	Dedupe         bool
	Namespace      string
	OutputDir      string
	OutputSuffix   string
	ColumnScheme   string
	MaxAttempts    int
	RetryInterval  time.Duration
	RequestTimeout time.Duration
	PageSize       int
}

// fileConfig mirrors config.yaml. Credential keys have two spellings because
// both have been used in deployed config files.
type fileConfig struct {
	APIBaseURL      string `yaml:"OpenAIRE_API"`
	TokenURL        string `yaml:"Token_URL"`
	ClientID        string `yaml:"CLIENT_ID"`
	ClientIDAlt     string `yaml:"OpenAIRE_Client_ID"`
	ClientSecret    string `yaml:"CLIENT_SECRET"`
	ClientSecretAlt string `yaml:"OpenAIRE_Client_Secret"`
	DataFile        string `yaml:"Org_data_file"`
	IDColumn        string `yaml:"Id_column"`
	Dedupe          *bool  `yaml:"Dedupe"`
	Namespace       string `yaml:"Namespace_prefix"`
	OutputDir       string `yaml:"Output_dir"`
	OutputSuffix    string `yaml:"Output_suffix"`
	ColumnScheme    string `yaml:"Column_scheme"`
	MaxAttempts     *int   `yaml:"Max_attempts"`
	RetryInterval   string `yaml:"Retry_interval"`
	RequestTimeout  string `yaml:"Request_timeout"`
	PageSize        int    `yaml:"Page_size"`
}

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist and optional is true), merges variables from envFile into the
// process environment without overriding existing ones, then applies
// environment overrides and defaults.
func Load(path, envFile string, optional bool) (*Config, error) {
	if envFile != "" {
		if envMap, err := godotenv.Read(envFile); err == nil {
			for k, v := range envMap {
				if _, exists := os.LookupEnv(k); !exists {
					_ = os.Setenv(k, v)
				}
			}
		}
	}

	var fc fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case optional && errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return fromFile(fc)
}

// Parse builds a Config from YAML bytes, applying environment overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return fromFile(fc)
}

func fromFile(fc fileConfig) (*Config, error) {
	cfg := &Config{
		APIBaseURL:   firstSet(os.Getenv("OPENAIRE_API"), fc.APIBaseURL),
		TokenURL:     firstSet(os.Getenv("OPENAIRE_TOKEN_URL"), fc.TokenURL, DefaultTokenURL),
		ClientID:     firstSet(os.Getenv("OPENAIRE_CLIENT_ID"), fc.ClientID, fc.ClientIDAlt),
		ClientSecret: firstSet(os.Getenv("OPENAIRE_CLIENT_SECRET"), fc.ClientSecret, fc.ClientSecretAlt),
		DataFile:     firstSet(os.Getenv("ORG_DATA_FILE"), fc.DataFile),
		IDColumn:     firstSet(fc.IDColumn, DefaultIDColumn),
		Dedupe:       true,
		Namespace:    firstSet(fc.Namespace, DefaultNamespace),
		OutputDir:    firstSet(os.Getenv("NLSTATS_OUTPUT_DIR"), fc.OutputDir, "."),
		OutputSuffix: firstSet(fc.OutputSuffix, DefaultOutputSuffix),
		ColumnScheme: strings.ToLower(firstSet(fc.ColumnScheme, DefaultScheme)),
		MaxAttempts:  DefaultMaxAttempts,
		PageSize:     DefaultPageSize,
	}

	if cfg.APIBaseURL != "" && !strings.HasSuffix(cfg.APIBaseURL, "/") {
		cfg.APIBaseURL += "/"
	}
	if fc.Dedupe != nil {
		cfg.Dedupe = *fc.Dedupe
	}
	if fc.MaxAttempts != nil {
		cfg.MaxAttempts = *fc.MaxAttempts
	}
	if fc.PageSize > 0 {
		cfg.PageSize = fc.PageSize
	}

	var err error
	if cfg.RetryInterval, err = parseDuration("Retry_interval", fc.RetryInterval, DefaultRetryInterval); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = parseDuration("Request_timeout", fc.RequestTimeout, DefaultRequestTimeout); err != nil {
		return nil, err
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("%w: Max_attempts must be at least 1, got %d", ErrInvalid, cfg.MaxAttempts)
	}
	if !validScheme(cfg.ColumnScheme) {
		return nil, fmt.Errorf("%w: unknown Column_scheme %q (want one of %s)", ErrInvalid, cfg.ColumnScheme, strings.Join(Schemes, ", "))
	}

	return cfg, nil
}

// Validate checks the settings required to execute a run.
func (c *Config) Validate() error {
	var missing []string
	if c.APIBaseURL == "" {
		missing = append(missing, "OpenAIRE_API")
	}
	if c.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "CLIENT_SECRET")
	}
	if c.DataFile == "" {
		missing = append(missing, "Org_data_file")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	if !validScheme(c.ColumnScheme) {
		return fmt.Errorf("%w: unknown Column_scheme %q (want one of %s)", ErrInvalid, c.ColumnScheme, strings.Join(Schemes, ", "))
	}
	return nil
}

func parseDuration(key, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalid, key)
	}
	return d, nil
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func validScheme(s string) bool {
	for _, known := range Schemes {
		if s == known {
			return true
		}
	}
	return false
}
