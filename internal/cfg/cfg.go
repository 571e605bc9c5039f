// Package cfg loads runtime settings from a YAML file (CONFIG_FILE) with
// environment-variable overrides, or from the environment alone when no
// file is given.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"binsift/internal/ml"
)

type Settings struct {
	DataPath        string
	MaxFileBytes    int64
	Extensions      []string
	NGramSize       int
	Workers         int
	CacheSize       int
	TaskType        string
	HeldOutFraction float64
	PrimaryMetric   string
	ModelPanel      []string
	Seed            int64
	MetricsPort     int
	IntelAPIKey     string
	IntelBaseURL    string
	IntelTimeout    time.Duration
}

type ConfigFile struct {
	Corpus struct {
		DataPath     string   `yaml:"dataPath"`
		MaxFileBytes int64    `yaml:"maxFileBytes"`
		Extensions   []string `yaml:"extensions"`
	} `yaml:"corpus"`

	Features struct {
		NGramSize int `yaml:"ngramSize"`
		Workers   int `yaml:"workers"`
		CacheSize int `yaml:"cacheSize"`
	} `yaml:"features"`

	Training struct {
		TaskType        string   `yaml:"taskType"`
		HeldOutFraction float64  `yaml:"heldOutFraction"`
		PrimaryMetric   string   `yaml:"primaryMetric"`
		ModelPanel      []string `yaml:"modelPanel"`
		Seed            int64    `yaml:"seed"`
	} `yaml:"training"`

	Intel struct {
		APIKey  string `yaml:"apiKey"`
		BaseURL string `yaml:"baseURL"`
		Timeout string `yaml:"timeout"`
	} `yaml:"intel"`

	System struct {
		MetricsPort int `yaml:"metricsPort"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	intelTimeout, err := time.ParseDuration(config.Intel.Timeout)
	if err != nil {
		intelTimeout = 10 * time.Second
	}

	settings := Settings{
		DataPath:        getEnvOrDefault("DATA_PATH", defaultString(config.Corpus.DataPath, "data")),
		MaxFileBytes:    getInt64FromEnvOrConfig("MAX_FILE_BYTES", config.Corpus.MaxFileBytes, 10*1024*1024),
		Extensions:      getExtensionsFromEnvOrConfig(config.Corpus.Extensions),
		NGramSize:       getIntFromEnvOrConfig("NGRAM_SIZE", config.Features.NGramSize, 2),
		Workers:         getIntFromEnvOrConfig("WORKERS", config.Features.Workers, 4),
		CacheSize:       getIntFromEnvOrConfig("CACHE_SIZE", config.Features.CacheSize, 1024),
		TaskType:        getEnvOrDefault("TASK_TYPE", defaultString(config.Training.TaskType, ml.TaskClassification)),
		HeldOutFraction: getFloatFromEnvOrConfig("HELD_OUT_FRACTION", config.Training.HeldOutFraction, 0.2),
		PrimaryMetric:   getEnvOrDefault("PRIMARY_METRIC", defaultString(config.Training.PrimaryMetric, "accuracy")),
		ModelPanel:      getPanelFromEnvOrConfig(config.Training.ModelPanel),
		Seed:            getInt64FromEnvOrConfig("TRAIN_SEED", config.Training.Seed, 42),
		MetricsPort:     getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort, 8080),
		IntelAPIKey:     getEnvOrDefault("INTEL_API_KEY", config.Intel.APIKey),
		IntelBaseURL:    getEnvOrDefault("INTEL_BASE_URL", config.Intel.BaseURL),
		IntelTimeout:    intelTimeout,
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		DataPath:        getEnvOrDefault("DATA_PATH", "data"),
		MaxFileBytes:    getInt64OrDefault("MAX_FILE_BYTES", 10*1024*1024),
		Extensions:      splitOrDefault(os.Getenv("EXTENSIONS"), nil),
		NGramSize:       getIntOrDefault("NGRAM_SIZE", 2),
		Workers:         getIntOrDefault("WORKERS", 4),
		CacheSize:       getIntOrDefault("CACHE_SIZE", 1024),
		TaskType:        getEnvOrDefault("TASK_TYPE", ml.TaskClassification),
		HeldOutFraction: getFloatOrDefault("HELD_OUT_FRACTION", 0.2),
		PrimaryMetric:   getEnvOrDefault("PRIMARY_METRIC", "accuracy"),
		ModelPanel:      splitOrDefault(os.Getenv("MODEL_PANEL"), nil),
		Seed:            getInt64OrDefault("TRAIN_SEED", 42),
		MetricsPort:     getIntOrDefault("METRICS_PORT", 8080),
		IntelAPIKey:     os.Getenv("INTEL_API_KEY"), // optional
		IntelBaseURL:    os.Getenv("INTEL_BASE_URL"),
		IntelTimeout:    getDurationOrDefault("INTEL_TIMEOUT", 10*time.Second),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func defaultString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func getExtensionsFromEnvOrConfig(configValue []string) []string {
	if env := os.Getenv("EXTENSIONS"); env != "" {
		return splitOrDefault(env, nil)
	}
	return configValue
}

func getPanelFromEnvOrConfig(configValue []string) []string {
	if env := os.Getenv("MODEL_PANEL"); env != "" {
		return splitOrDefault(env, nil)
	}
	return configValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getInt64FromEnvOrConfig(key string, configValue, defaultValue int64) int64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.DataPath == "" {
		return fmt.Errorf("data path cannot be empty")
	}
	if settings.MaxFileBytes <= 0 || settings.MaxFileBytes > 1<<31 {
		return fmt.Errorf("max file bytes must be between 1 and 2GiB, got %d", settings.MaxFileBytes)
	}

	for _, ext := range settings.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}

	if settings.NGramSize < 1 || settings.NGramSize > 4 {
		return fmt.Errorf("ngram size must be between 1 and 4, got %d", settings.NGramSize)
	}
	if settings.Workers < 1 || settings.Workers > 64 {
		return fmt.Errorf("workers must be between 1 and 64, got %d", settings.Workers)
	}
	if settings.CacheSize < 1 || settings.CacheSize > 1<<20 {
		return fmt.Errorf("cache size must be between 1 and 1048576, got %d", settings.CacheSize)
	}

	if settings.TaskType != ml.TaskClassification {
		return fmt.Errorf("task type must be %q, got %q", ml.TaskClassification, settings.TaskType)
	}
	if settings.HeldOutFraction <= 0 || settings.HeldOutFraction >= 0.5 {
		return fmt.Errorf("held-out fraction must be in (0, 0.5), got %f", settings.HeldOutFraction)
	}
	switch settings.PrimaryMetric {
	case "accuracy", "precision", "recall", "f1":
	default:
		return fmt.Errorf("primary metric must be one of accuracy, precision, recall, f1; got %q", settings.PrimaryMetric)
	}
	if len(settings.ModelPanel) > 0 {
		if _, err := ml.PanelSubset(settings.ModelPanel); err != nil {
			return fmt.Errorf("model panel: %w", err)
		}
	}

	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}

	// Intel lookups are optional; when enabled they need an endpoint and a
	// sane timeout.
	if settings.IntelAPIKey != "" {
		if settings.IntelBaseURL == "" {
			return fmt.Errorf("intel base URL is required when an intel API key is set")
		}
		if settings.IntelTimeout < time.Second || settings.IntelTimeout > time.Minute {
			return fmt.Errorf("intel timeout must be between 1s and 1m, got %v", settings.IntelTimeout)
		}
	}

	return nil
}
