// Package config loads storekit configuration.
//
// Values come from an optional YAML file, then from STOREKIT_*
// environment variables, and the merged result is validated against an
// embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is the process configuration.
type Config struct {
	File       string   `yaml:"file" json:"file" env:"STOREKIT_FILE"`
	Namespaces []string `yaml:"namespaces" json:"namespaces" env:"STOREKIT_NAMESPACES" envSeparator:","`
	Listen     string   `yaml:"listen" json:"listen" env:"STOREKIT_LISTEN"`
}

// Default returns the configuration used when nothing overrides it.
// Namespaces have no default.
func Default() Config {
	return Config{
		File:   "storekit.db",
		Listen: "127.0.0.1:8080",
	}
}

// Load reads path (skipped when empty), applies environment overrides
// from the process environment and validates the result.
func Load(path string) (Config, error) {
	return load(path, env.Options{})
}

// LoadWithEnv is like Load but reads overrides from environ instead of
// the process environment.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	return load(path, env.Options{Environment: environ})
}

func load(path string, opts env.Options) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration against the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	val := ctx.Encode(c)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
