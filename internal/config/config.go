package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/s0up4200/go-udfvol/internal/settings"
)

const (
	// AppName is the application name used for config files and directories
	AppName = "udfvol"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "UDFVOL"
)

// flagKeys maps command-line flags to settings keys.
var flagKeys = map[string]string{
	"block-size":  "block_size",
	"free-blocks": "free_blocks",
	"label":       "label",
	"compliance":  "compliance",
	"debug":       "debug",
	"log-format":  "log_format",
}

// Loaded is the outcome of Load.
type Loaded struct {
	Settings settings.Settings
	// File is the config file that was read, empty when none was found.
	File string
}

// Load reads settings from defaults, the config file, UDFVOL_* environment
// variables and the flags in fs, later sources overriding earlier ones.
// cfgFile names an explicit config file; when empty udfvol.yaml is
// searched in the working directory and the user config directory.
func Load(cfgFile string, fs *pflag.FlagSet) (Loaded, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		addSearchPaths(v)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Loaded{}, fmt.Errorf("error binding flag %s: %w", name, err)
				}
			}
		}
	}

	var loaded Loaded
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return Loaded{}, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		loaded.File = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&loaded.Settings); err != nil {
		return Loaded{}, fmt.Errorf("error parsing config: %w", err)
	}
	if err := loaded.Settings.Validate(); err != nil {
		return Loaded{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return loaded, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	d := settings.Default()
	v.SetDefault("block_size", d.BlockSize)
	v.SetDefault("free_blocks", d.FreeBlocks)
	v.SetDefault("label", d.Label)
	v.SetDefault("volume_set_id", d.VolumeSetID)
	v.SetDefault("max_directory_blocks", d.MaxDirectoryBlocks)
	v.SetDefault("max_path_length", d.MaxPathLength)
	v.SetDefault("compliance", d.Compliance)
	v.SetDefault("timestamp_retries", d.TimestampRetries)
	v.SetDefault("timestamp_backoff", d.TimestampBackoff)
	v.SetDefault("ignore_timestamp_errors", d.IgnoreTimestampErrors)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("log_format", d.LogFormat)
}

// addSearchPaths adds config search paths
func addSearchPaths(v *viper.Viper) {
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, AppName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", AppName))
	}
}
