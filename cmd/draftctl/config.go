package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emlanis/secret-ai-writer/internal/models"
	"github.com/spf13/viper"
)

const (
	configName = ".draftctl"
	envPrefix  = "DRAFTCTL"
)

// cliConfig is the resolved client configuration.
type cliConfig struct {
	ServerURL   string        `mapstructure:"server_url"`
	UserAddress string        `mapstructure:"user_address"`
	MirrorDir   string        `mapstructure:"mirror_dir"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("user_address", models.DefaultUserAddress)
	v.SetDefault("mirror_dir", defaultMirrorDir())
	v.SetDefault("timeout", 150*time.Second)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func defaultMirrorDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".draftctl", "mirror")
	}
	return filepath.Join(home, ".draftctl", "mirror")
}

// readConfigFile loads path, or ~/.draftctl.yaml when path is empty. A
// missing default file is not an error.
func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

func loadConfig(v *viper.Viper) (cliConfig, error) {
	var cfg cliConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	if err := models.ValidateUserKey(cfg.UserAddress); err != nil {
		return cfg, err
	}
	if cfg.Timeout <= 0 {
		return cfg, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}
	return cfg, nil
}
