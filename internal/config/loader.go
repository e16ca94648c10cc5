package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, an optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if SIMSURVEY_CONFIG is set
//  3. env (prefix SIMSURVEY_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("SIMSURVEY_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// SIMSURVEY_WORKERS -> workers, SIMSURVEY_PLAN_ZP stays flat with
	// underscores so nested keys come from the file only.
	envProvider := env.Provider("SIMSURVEY_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "simsurvey_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if cfg.OutputPath == "" {
		return nil, errors.New("output_path must not be empty")
	}
	if len(cfg.Instruments) == 0 {
		return nil, errors.New("at least one instrument band must be configured")
	}
	if cfg.Plan.FieldWidth <= 0 || cfg.Plan.FieldHeight <= 0 {
		return nil, errors.New("field dimensions must be positive")
	}
	return &cfg, nil
}
