package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: CROSSMOD_[SECTION]_[KEY] (e.g., CROSSMOD_ANALYSIS_WORKERS).
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.ProjectRoot, "CROSSMOD_PATHS_PROJECT_ROOT")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "CROSSMOD_WATCH_DEBOUNCE")

	// Analysis
	setEnvInt(&cfg.Analysis.Workers, "CROSSMOD_ANALYSIS_WORKERS")
	setEnvBoolPtr(&cfg.Analysis.ReportCircularImports, "CROSSMOD_ANALYSIS_REPORT_CIRCULAR_IMPORTS")
	setEnvBool(&cfg.Analysis.WarnUnusedImports, "CROSSMOD_ANALYSIS_WARN_UNUSED_IMPORTS")
	setEnvInt(&cfg.Analysis.ParseCacheSize, "CROSSMOD_ANALYSIS_PARSE_CACHE_SIZE")
	setEnvFloat64(&cfg.Analysis.MaxCyclesPerSecond, "CROSSMOD_ANALYSIS_MAX_CYCLES_PER_SECOND")
	setEnvInt(&cfg.Analysis.CycleBurst, "CROSSMOD_ANALYSIS_CYCLE_BURST")

	// History
	setEnvBool(&cfg.History.Enabled, "CROSSMOD_HISTORY_ENABLED")
	setEnvString(&cfg.History.Path, "CROSSMOD_HISTORY_PATH")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "CROSSMOD_OBSERVABILITY_ENABLED")
	setEnvString(&cfg.Observability.Address, "CROSSMOD_OBSERVABILITY_ADDRESS")
	setEnvString(&cfg.Observability.OTLPEndpoint, "CROSSMOD_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.OTLPInsecure, "CROSSMOD_OBSERVABILITY_OTLP_INSECURE")

	// Output
	setEnvString(&cfg.Output.Format, "CROSSMOD_OUTPUT_FORMAT")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		log.Printf("Applying env override: %s=%s", key, val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = b
		}
	}
}

func setEnvBoolPtr(target **bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = &b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = d
		}
	}
}
