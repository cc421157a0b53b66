// Package config loads and validates client configuration. The file format
// is YAML; the schema, including defaults and value constraints, lives in
// an embedded CUE definition so misconfigurations fail at load time with a
// positioned error rather than deep inside a flush.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Config is a validated client configuration.
type Config struct {
	StorageURI       string `json:"storage_uri"`
	UserID           string `json:"user_id"`
	KeystoreDir      string `json:"keystore_dir"`
	LogLevel         string `json:"log_level"`
	FlushIntervalRaw string `json:"flush_interval"`
	MaxBuffered      int    `json:"max_buffered"`
	MergeConcurrency int    `json:"merge_concurrency"`
	NotifyURL        string `json:"notify_url"`
}

// Load reads, validates and defaults a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse validates YAML config bytes against the embedded schema.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config: schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("config: schema: %w", err)
	}

	unified := def.Unify(ctx.Encode(raw))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if _, err := time.ParseDuration(cfg.FlushIntervalRaw); err != nil {
		return nil, fmt.Errorf("config: flush_interval: %w", err)
	}
	return &cfg, nil
}

// FlushInterval returns the parsed flush interval. Parse already
// validated the string.
func (c *Config) FlushInterval() time.Duration {
	d, err := time.ParseDuration(c.FlushIntervalRaw)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// Level maps the configured log level onto zerolog's.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Keystore returns the configured keystore directory, falling back to
// driftlog/keys under the user config dir.
func (c *Config) Keystore() (string, error) {
	if c.KeystoreDir != "" {
		return c.KeystoreDir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve keystore dir: %w", err)
	}
	return filepath.Join(base, "driftlog", "keys"), nil
}

// DefaultPath returns the conventional config file location.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: %w", err)
	}
	return filepath.Join(base, "driftlog", "config.yaml"), nil
}
