package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	domainerrors "crossmod/internal/core/errors"
)

const (
	DefaultFileName = "crossmod.toml"
	DefaultProject  = "default"
)

// Load reads path, applies defaults and CROSSMOD_* overrides and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domainerrors.AddContext(
			domainerrors.Wrap(err, domainerrors.CodeNotFound, "read config"),
			domainerrors.CtxOperation, "load "+path)
	}
	return Parse(string(data))
}

// Parse decodes TOML text the same way Load does.
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeValidationError, "decode config")
	}

	applyDefaults(&cfg)
	ApplyEnvOverrides(&cfg)
	normalize(&cfg)

	if errs := Validate(&cfg); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return nil, domainerrors.New(domainerrors.CodeValidationError, strings.Join(msgs, "; "))
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	ApplyEnvOverrides(cfg)
	normalize(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if len(cfg.Projects) == 0 {
		cfg.Projects = []Project{{Name: DefaultProject, Roots: []string{"."}}}
	}

	if len(cfg.Languages.ASN1.Extensions) == 0 {
		cfg.Languages.ASN1.Extensions = []string{".asn", ".asn1"}
	}
	if len(cfg.Languages.TTCN.Extensions) == 0 {
		cfg.Languages.TTCN.Extensions = []string{".ttcn", ".ttcn3", ".ttcnpp"}
	}

	if len(cfg.Exclude.Dirs) == 0 {
		cfg.Exclude.Dirs = []string{".git", "bin", "build"}
	}

	// Default debounce if not set.
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 300 * time.Millisecond
	}

	if cfg.Analysis.ParseCacheSize == 0 {
		cfg.Analysis.ParseCacheSize = 512
	}
	if cfg.Analysis.MaxCyclesPerSecond == 0 {
		cfg.Analysis.MaxCyclesPerSecond = 4
	}
	if cfg.Analysis.CycleBurst == 0 {
		cfg.Analysis.CycleBurst = 1
	}

	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = ".crossmod/history.db"
	}

	if strings.TrimSpace(cfg.Observability.Address) == "" {
		cfg.Observability.Address = "127.0.0.1:9464"
	}
	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "crossmod"
	}

	if strings.TrimSpace(cfg.Output.Format) == "" {
		cfg.Output.Format = "text"
	}
}

func normalize(cfg *Config) {
	for i := range cfg.Projects {
		p := &cfg.Projects[i]
		p.Name = strings.TrimSpace(p.Name)
		for j := range p.Roots {
			p.Roots[j] = strings.TrimSpace(p.Roots[j])
		}
		for j := range p.DependsOn {
			p.DependsOn[j] = strings.TrimSpace(p.DependsOn[j])
		}
	}
	cfg.Languages.ASN1.Extensions = normalizeExtensions(cfg.Languages.ASN1.Extensions)
	cfg.Languages.TTCN.Extensions = normalizeExtensions(cfg.Languages.TTCN.Extensions)
	cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

func (c *Config) String() string {
	return fmt.Sprintf("config v%d (%d projects)", c.Version, len(c.Projects))
}
