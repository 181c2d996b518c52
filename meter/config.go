// Copyright 2025 ScriptFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package meter

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration. Values come from environment
// variables, optionally overridden by a YAML file named in
// METER_CONFIG_FILE.
type Config struct {
	Port        string `yaml:"port"`
	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`
	MaxWords    int    `yaml:"max_words"`
}

// LoadConfig resolves configuration from the environment and the optional
// config file. An absent Redis URL is not an error; the store degrades to
// in-memory mode, which is the documented local-development behavior.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		RedisURL:    os.Getenv("STORAGE_REDIS_URL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		MaxWords:    defaultMaxWords,
	}

	if raw := os.Getenv("MAX_WORDS_PER_MONTH"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_WORDS_PER_MONTH %q: %w", raw, err)
		}
		cfg.MaxWords = n
	}

	if path := os.Getenv("METER_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadFile merges settings from a YAML file. Environment references like
// ${STORAGE_REDIS_URL} or ${PORT:-8080} are expanded before parsing so
// config files can stay free of secrets.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &fileCfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fileCfg.Port != "" {
		c.Port = fileCfg.Port
	}
	if fileCfg.RedisURL != "" {
		c.RedisURL = fileCfg.RedisURL
	}
	if fileCfg.DatabaseURL != "" {
		c.DatabaseURL = fileCfg.DatabaseURL
	}
	if fileCfg.MaxWords > 0 {
		c.MaxWords = fileCfg.MaxWords
	}
	return nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		// Handle default values: ${VAR_NAME:-default}
		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}

// getEnv returns an environment variable or a default when unset.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
