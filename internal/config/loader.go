package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"rpmirror/pkg/logging"

	"gopkg.in/yaml.v3"
)

const configFileName = "rpmirror.yaml"

// LoadConfig loads rpmirror.yaml from configPath, then applies RP_*
// environment overrides. A missing file yields the defaults.
func LoadConfig(configPath string) (Config, error) {
	cfg, err := LoadFile(filepath.Join(configPath, configFileName))
	if err != nil {
		return Config{}, err
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile loads a single configuration file on top of the defaults.
func LoadFile(path string) (Config, error) {
	config := GetDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("Config", "No %s found at %s, using defaults", filepath.Base(path), path)
			return config, nil
		}
		return Config{}, ConfigurationError{
			FilePath:  path,
			FileName:  filepath.Base(path),
			ErrorType: "io",
			Message:   err.Error(),
		}
	}

	if err := ValidateDocument(data); err != nil {
		return Config{}, ConfigurationError{
			FilePath:  path,
			FileName:  filepath.Base(path),
			ErrorType: "schema",
			Message:   "configuration does not match the schema",
			Details:   err.Error(),
			Suggestions: []string{
				"check option names and types against the documented options",
			},
		}
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, ConfigurationError{
			FilePath:  path,
			FileName:  filepath.Base(path),
			ErrorType: "parse",
			Message:   fmt.Sprintf("error loading config: %v", err),
		}
	}
	logging.Info("Config", "Loaded configuration from %s", path)
	return config, nil
}
