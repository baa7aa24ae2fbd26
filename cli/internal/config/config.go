// Package config loads the dashing CLI configuration from .dashing.yaml,
// DASHING_* environment variables and .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// AppFs is the filesystem configuration, .env and mapping files are read
// from.
var AppFs = afero.NewOsFs()

// FileName is the configuration file name without extension.
const FileName = ".dashing"

// Config holds the application configuration
type Config struct {
	Provider             string
	DatabaseURL          string
	MappingPath          string
	Debug                bool
	AsyncMultiCollection bool
	MinVersion           string
	// File is the configuration file that was read, empty when none was.
	File string
}

// LoadConfig loads configuration from the first .dashing.yaml found in the
// working directory, the home directory or ~/.config/dashing, overridden by
// DASHING_* environment variables.
func LoadConfig() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetFs(AppFs)
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(home)
	v.AddConfigPath(filepath.Join(home, ".config", "dashing"))

	v.SetEnvPrefix("DASHING")
	v.AutomaticEnv()

	v.SetDefault("provider", "sqlite")
	v.SetDefault("mapping_path", "mapping.yaml")
	v.SetDefault("debug", false)
	v.SetDefault("async_multi_collection", true)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Provider:             v.GetString("provider"),
		DatabaseURL:          v.GetString("database_url"),
		MappingPath:          v.GetString("mapping_path"),
		Debug:                v.GetBool("debug"),
		AsyncMultiCollection: v.GetBool("async_multi_collection"),
		MinVersion:           v.GetString("min_version"),
		File:                 v.ConfigFileUsed(),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	return cfg, nil
}

// loadEnvFiles applies .env without overriding the environment, then
// .env.local with overriding.
func loadEnvFiles() error {
	for _, f := range []struct {
		name     string
		override bool
	}{
		{".env", false},
		{".env.local", true},
	} {
		data, err := afero.ReadFile(AppFs, f.name)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to read %s: %w", f.name, err)
		}
		vars, err := godotenv.Unmarshal(string(data))
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", f.name, err)
		}
		for k, val := range vars {
			if _, set := os.LookupEnv(k); set && !f.override {
				continue
			}
			if err := os.Setenv(k, val); err != nil {
				return err
			}
		}
	}
	return nil
}

// SaveConfig writes cfg to .dashing.yaml in dir and returns the file path.
func SaveConfig(cfg *Config, dir string) (string, error) {
	v := viper.New()
	v.SetFs(AppFs)
	v.Set("provider", cfg.Provider)
	v.Set("database_url", cfg.DatabaseURL)
	v.Set("mapping_path", cfg.MappingPath)
	v.Set("debug", cfg.Debug)
	v.Set("async_multi_collection", cfg.AsyncMultiCollection)
	if cfg.MinVersion != "" {
		v.Set("min_version", cfg.MinVersion)
	}

	if err := AppFs.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName+".yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}
