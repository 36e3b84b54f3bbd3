package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "TICKETDESK_"

// Sources selects where Load reads from. Zero values skip a source.
type Sources struct {
	// DotEnv is a .env file loaded into the process environment. A missing
	// file is not an error.
	DotEnv string

	// File is a YAML (or JSON) config file. A missing file is an error.
	File string

	// EnvPrefix defaults to DefaultEnvPrefix.
	EnvPrefix string

	// Overrides holds flag values keyed like the file, e.g. "log.level".
	Overrides map[string]any
}

// Load builds a Config from defaults, then the file, then the environment,
// then Overrides. Later sources win.
func Load(src Sources) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if src.DotEnv != "" {
		if err := godotenv.Load(src.DotEnv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", src.DotEnv, err)
		}
	}

	k := koanf.New(".")

	if src.File != "" {
		if err := k.Load(file.Provider(src.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", src.File, err)
		}
	}

	prefix := src.EnvPrefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	if err := k.Load(env.Provider(prefix, ".", envKey(prefix)), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if len(src.Overrides) > 0 {
		if err := k.Load(mapProvider(maps.Unflatten(src.Overrides, ".")), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envKey maps TICKETDESK_LOG__LEVEL to log.level: a double underscore
// separates sections, a single one stays part of the key.
func envKey(prefix string) func(string) string {
	return func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}
}

// mapProvider feeds an already nested map to koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("config: map provider has no byte form")
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
