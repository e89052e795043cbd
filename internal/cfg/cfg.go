// Package cfg loads pipeline configuration from a YAML file (selected by
// CONFIG_FILE) with environment-variable override, or from the environment
// alone when no file is given.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	DataPath   string
	DatasetURL string

	Masks          []string
	Threshold      float64
	Method         string
	ClassWeight    string
	Regularization string
	CrossVal       string
	Scoring        string
	Output         string
	Features       []string

	DecodeMethod string
	DecodeImages []string

	MetricsPort  int
	FetchTimeout time.Duration
}

type ConfigFile struct {
	Dataset struct {
		Path         string `yaml:"path"`
		URL          string `yaml:"url"`
		FetchTimeout string `yaml:"fetchTimeout"`
	} `yaml:"dataset"`

	Classify struct {
		Masks          []string `yaml:"masks"`
		Threshold      float64  `yaml:"threshold"`
		Method         string   `yaml:"method"`
		ClassWeight    string   `yaml:"classWeight"`
		Regularization string   `yaml:"regularization"`
		CrossVal       string   `yaml:"crossVal"`
		Scoring        string   `yaml:"scoring"`
		Output         string   `yaml:"output"`
		Features       []string `yaml:"features"`
	} `yaml:"classify"`

	Decode struct {
		Method string   `yaml:"method"`
		Images []string `yaml:"images"`
	} `yaml:"decode"`

	System struct {
		MetricsPort int `yaml:"metricsPort"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
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

	fetchTimeout, err := time.ParseDuration(config.Dataset.FetchTimeout)
	if err != nil {
		fetchTimeout = 30 * time.Second
	}

	settings := Settings{
		DataPath:       getEnvOrDefault("DATA_PATH", config.Dataset.Path),
		DatasetURL:     getEnvOrDefault("DATASET_URL", config.Dataset.URL),
		Masks:          splitOrDefault(os.Getenv("MASKS"), config.Classify.Masks),
		Threshold:      getFloatFromEnvOrConfig("THRESHOLD", config.Classify.Threshold),
		Method:         getEnvOrDefault("CLF_METHOD", config.Classify.Method),
		ClassWeight:    getEnvOrDefault("CLASS_WEIGHT", config.Classify.ClassWeight),
		Regularization: getEnvOrDefault("REGULARIZATION", config.Classify.Regularization),
		CrossVal:       getEnvOrDefault("CROSS_VAL", config.Classify.CrossVal),
		Scoring:        getEnvOrDefault("SCORING", config.Classify.Scoring),
		Output:         getEnvOrDefault("OUTPUT", config.Classify.Output),
		Features:       splitOrDefault(os.Getenv("FEATURES"), config.Classify.Features),
		DecodeMethod:   getEnvOrDefault("DECODE_METHOD", config.Decode.Method),
		DecodeImages:   splitOrDefault(os.Getenv("DECODE_IMAGES"), config.Decode.Images),
		MetricsPort:    getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort),
		FetchTimeout:   fetchTimeout,
	}
	applyDefaults(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	dataPath, err := getEnvRequired("DATA_PATH")
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		DataPath:       dataPath,
		DatasetURL:     os.Getenv("DATASET_URL"), // optional
		Masks:          splitOrDefault(os.Getenv("MASKS"), nil),
		Threshold:      getFloatOrDefault("THRESHOLD", 0.08),
		Method:         getEnvOrDefault("CLF_METHOD", "SVM"),
		ClassWeight:    getEnvOrDefault("CLASS_WEIGHT", "auto"),
		Regularization: getEnvOrDefault("REGULARIZATION", "scale"),
		CrossVal:       getEnvOrDefault("CROSS_VAL", "4-Fold"),
		Scoring:        getEnvOrDefault("SCORING", "accuracy"),
		Output:         getEnvOrDefault("OUTPUT", "summary"),
		Features:       splitOrDefault(os.Getenv("FEATURES"), nil),
		DecodeMethod:   getEnvOrDefault("DECODE_METHOD", "pearson"),
		DecodeImages:   splitOrDefault(os.Getenv("DECODE_IMAGES"), nil),
		MetricsPort:    getIntOrDefault("METRICS_PORT", 0),
		FetchTimeout:   getDurationOrDefault("FETCH_TIMEOUT", 30*time.Second),
	}
	applyDefaults(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func applyDefaults(s *Settings) {
	if s.Threshold == 0 {
		s.Threshold = 0.08
	}
	if s.Method == "" {
		s.Method = "SVM"
	}
	if s.ClassWeight == "" {
		s.ClassWeight = "auto"
	}
	if s.Regularization == "" {
		s.Regularization = "scale"
	}
	if s.CrossVal == "" {
		s.CrossVal = "4-Fold"
	}
	if s.Scoring == "" {
		s.Scoring = "accuracy"
	}
	if s.Output == "" {
		s.Output = "summary"
	}
	if s.DecodeMethod == "" {
		s.DecodeMethod = "pearson"
	}
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
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
	return strings.Split(v, ",")
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	return configValue
}

func getFloatFromEnvOrConfig(key string, configValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs validation of configuration values. Method,
// regularization and cross-validation names are validated downstream by the
// pipeline itself so unrecognized names fail there with precise errors.
func validateSettings(settings *Settings) error {
	if settings.DataPath == "" {
		return fmt.Errorf("dataset path is required")
	}
	if settings.Threshold < 0 || settings.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0,1], got %f", settings.Threshold)
	}
	if settings.MetricsPort != 0 && (settings.MetricsPort < 1024 || settings.MetricsPort > 65535) {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.FetchTimeout < time.Second || settings.FetchTimeout > 10*time.Minute {
		return fmt.Errorf("fetch timeout must be between 1s and 10m, got %v", settings.FetchTimeout)
	}
	return nil
}
