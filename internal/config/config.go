// Package config loads dogma's layered configuration: a project-local
// config.yaml (found by walking up from the working directory), falling
// back to a user config directory and finally the home directory, with
// environment variables and then explicit Set calls able to override
// anything read from a file. Adapted from the teacher's internal/config,
// retargeted from bd's issue-tracker settings to dogma's server/mirror/
// cache knobs.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton. Should be
// called once at process startup, before any Get* call.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false

	// 1. Walk up from cwd looking for a project .dogma/config.yaml, so
	// commands work the same from any subdirectory of a workspace.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".dogma", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// 2. User config directory (~/.config/dogma/config.yaml).
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "dogma", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// 3. Home directory (~/.dogma/config.yaml).
	if !configFileSet {
		if homeDir, err := os.UserHomeDir(); err == nil {
			configPath := filepath.Join(homeDir, ".dogma", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix("DOGMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("json", false)
	v.SetDefault("no-daemon", false)
	v.SetDefault("db", "")
	v.SetDefault("actor", "")
	v.SetDefault("lock-timeout", "30s")

	// Server status keys. internal/command does not read these: its
	// persisted status defaults to writable and replicating on first boot.
	v.SetDefault("server.writable", true)
	v.SetDefault("server.replicating", true)
	v.SetDefault("server.max-connections", 64)

	// Cache sizing (C5).
	v.SetDefault("cache.max-entries", 4096)
	v.SetDefault("cache.max-weight-bytes", 64<<20)

	// Mirror engine bounds (C9), matching the spec's
	// maxNumFilesPerMirror/maxNumBytesPerMirror/numMirroringThreads.
	v.SetDefault("mirror.num-threads", 4)
	v.SetDefault("mirror.max-files-per-mirror", 0)
	v.SetDefault("mirror.max-bytes-per-mirror", int64(0))

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
	}

	return nil
}

// ConfigSource represents where a configuration value came from.
type ConfigSource string

const (
	SourceDefault    ConfigSource = "default"
	SourceConfigFile ConfigSource = "config_file"
	SourceEnvVar     ConfigSource = "env_var"
	SourceFlag       ConfigSource = "flag"
)

// ConfigOverride represents a detected configuration override.
type ConfigOverride struct {
	Key            string
	EffectiveValue interface{}
	OverriddenBy   ConfigSource
	OriginalSource ConfigSource
	OriginalValue  interface{}
}

// GetValueSource returns the source of a configuration value. Priority
// (highest to lowest): env var > config file > default.
func GetValueSource(key string) ConfigSource {
	if v == nil {
		return SourceDefault
	}
	envKey := "DOGMA_" + strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(key, "-", "_"), ".", "_"))
	if os.Getenv(envKey) != "" {
		return SourceEnvVar
	}
	if v.InConfig(key) {
		return SourceConfigFile
	}
	return SourceDefault
}

// CheckOverrides reports flags that silently override a config-file or
// env-var value, so a CLI command can warn the caller in verbose mode.
// flagOverrides maps key -> (flagValue, flagWasSet) for flags the caller
// explicitly set.
func CheckOverrides(flagOverrides map[string]struct {
	Value  interface{}
	WasSet bool
}) []ConfigOverride {
	var overrides []ConfigOverride
	for key, flagInfo := range flagOverrides {
		if !flagInfo.WasSet {
			continue
		}
		source := GetValueSource(key)
		if source != SourceConfigFile && source != SourceEnvVar {
			continue
		}
		var originalValue interface{}
		switch fv := flagInfo.Value.(type) {
		case bool:
			originalValue = GetBool(key)
		case string:
			originalValue = GetString(key)
		case int:
			originalValue = GetInt(key)
		default:
			originalValue = fv
		}
		overrides = append(overrides, ConfigOverride{
			Key:            key,
			EffectiveValue: flagInfo.Value,
			OverriddenBy:   SourceFlag,
			OriginalSource: source,
			OriginalValue:  originalValue,
		})
	}
	return overrides
}

// LogOverride prints a message about a configuration override; callers
// gate this on their own verbose flag.
func LogOverride(override ConfigOverride) {
	var sourceDesc string
	switch override.OriginalSource {
	case SourceConfigFile:
		sourceDesc = "config file"
	case SourceEnvVar:
		sourceDesc = "environment variable"
	default:
		sourceDesc = string(override.OriginalSource)
	}
	fmt.Fprintf(os.Stderr, "config: %s overridden by command-line flag (was: %v from %s, now: %v)\n",
		override.Key, override.OriginalValue, sourceDesc, override.EffectiveValue)
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetInt64 retrieves a 64-bit integer configuration value.
func GetInt64(key string) int64 {
	if v == nil {
		return 0
	}
	return v.GetInt64(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set sets a configuration value, overriding whatever file or
// environment variable produced it.
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns every configuration setting as a nested map.
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// GetIdentity resolves the actor name attached to commits made through
// the CLI. Priority chain: explicit --actor flag, DOGMA_ACTOR env var
// or config.yaml's actor field, git config user.name, hostname.
func GetIdentity(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if actor := GetString("actor"); actor != "" {
		return actor
	}
	if output, err := exec.Command("git", "config", "user.name").Output(); err == nil {
		if name := strings.TrimSpace(string(output)); name != "" {
			return name
		}
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "unknown"
}
