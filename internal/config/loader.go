package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// envPrefix namespaces recalld environment variables.
	envPrefix = "RECALLD_"

	// maxConfigFileSize rejects oversized config files.
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load loads configuration with the following precedence (highest wins):
//
//  1. Environment variables (RECALLD_MATCH_THRESHOLD, RECALLD_LOGGING_LEVEL, ...)
//  2. YAML config file at configPath (skipped when configPath is empty or
//     the file does not exist)
//  3. Defaults
//
// Environment variables map to config keys by stripping the prefix,
// lowercasing, and replacing the first underscore with a dot:
//
//	RECALLD_MATCH_THRESHOLD     -> match.threshold
//	RECALLD_EMBEDDING_BASE_URL  -> embedding.base_url
//	RECALLD_DATASETS_INCIDENTS  -> datasets.incidents
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		data, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if data != nil {
			if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
			}
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.Replace(key, "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// readConfigFile reads a config file, returning nil bytes when it does not
// exist.
func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stating config file %s: %w", path, err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return data, nil
}
