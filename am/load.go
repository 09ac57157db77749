package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/metagnosis/errors"
)

var globalConfig *Config
var viperInstance *viper.Viper
var explicitConfigFile string

// ConfigFileName is the file searched for in system, user and project locations.
const ConfigFileName = "am.toml"

// SetConfigFile adds an explicit config file (the --config flag). It merges
// above every discovered file and below environment variables. Clears any
// cached configuration.
func SetConfigFile(path string) {
	explicitConfigFile = path
	Reset()
}

// Load reads the metagnosis configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v, err := initViper()
	if err != nil {
		return nil, err
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() (*viper.Viper, error) {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path, ignoring
// every other source except defaults.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	return LoadWithViper(v)
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() (*viper.Viper, error) {
	if viperInstance != nil {
		return viperInstance, nil
	}

	v := viper.New()

	// METAGNOSIS_CRAWLER_USER_AGENT -> crawler.user_agent
	v.SetEnvPrefix("METAGNOSIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)
	SetDefaults(v)

	if err := mergeConfigFiles(v, ConfigPaths()); err != nil {
		return nil, err
	}

	viperInstance = v
	return v, nil
}

// ConfigPaths lists candidate config files in precedence order, lowest first:
// system, user, nearest project file, explicit --config.
func ConfigPaths() []string {
	paths := []string{filepath.Join("/etc/metagnosis", ConfigFileName)}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".metagnosis", ConfigFileName))
	}
	if projectConfig := findProjectConfig(); projectConfig != "" {
		paths = append(paths, projectConfig)
	}
	if explicitConfigFile != "" {
		paths = append(paths, explicitConfigFile)
	}
	return paths
}

// findProjectConfig searches for am.toml by walking up the directory tree.
// Returns the path to the first config file found, or empty string if none found
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		amPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(amPath); err == nil {
			return amPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// mergeConfigFiles merges existing files in order, so later files win.
// MergeConfigMap keeps file values below environment variables. A missing
// file is skipped; an unreadable explicit file is an error.
func mergeConfigFiles(v *viper.Viper, configPaths []string) error {
	for _, configPath := range configPaths {
		if _, err := os.Stat(configPath); err != nil {
			if configPath == explicitConfigFile {
				return errors.Wrapf(err, "config file %s", configPath)
			}
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(configPath)
		tempViper.SetConfigType("toml")

		if err := tempViper.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "failed to read config file %s", configPath)
		}
		if err := v.MergeConfigMap(tempViper.AllSettings()); err != nil {
			return errors.Wrapf(err, "failed to merge config file %s", configPath)
		}
	}
	return nil
}

// Get returns a configuration value using dot notation
func Get(key string) (interface{}, error) {
	v, err := initViper()
	if err != nil {
		return nil, err
	}
	if !v.IsSet(key) {
		return nil, errors.NewNotFoundError("config key %q", key)
	}
	return v.Get(key), nil
}
