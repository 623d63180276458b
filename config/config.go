// Package config loads runtime settings from defaults, an optional YAML
// file and the environment (including a .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the CLI and the import tool.
type Config struct {
	BooksFile     string `yaml:"books_file"`
	UsersFile     string `yaml:"users_file"`
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"` // only used to bootstrap the reserved account
	SnapshotFile  string `yaml:"snapshot_file"`
	PageSize      int    `yaml:"page_size"`
	LogLevel      string `yaml:"log_level"`
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.BooksFile = "data/books.csv"
	c.UsersFile = "data/users.csv"
	c.AdminUsername = "admin"
	c.AdminPassword = "admin123"
	c.SnapshotFile = "data/library.db"
	c.PageSize = 5
	c.LogLevel = "info"
}

// Load applies defaults, then the YAML file at path (skipped when path is
// empty), then a .env file in the working directory if present, then
// LIBRARY_* environment variables.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LIBRARY_BOOKS_FILE":     &c.BooksFile,
		"LIBRARY_USERS_FILE":     &c.UsersFile,
		"LIBRARY_ADMIN_USERNAME": &c.AdminUsername,
		"LIBRARY_ADMIN_PASSWORD": &c.AdminPassword,
		"LIBRARY_SNAPSHOT_FILE":  &c.SnapshotFile,
		"LIBRARY_LOG_LEVEL":      &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("LIBRARY_PAGE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LIBRARY_PAGE_SIZE %q: %w", v, err)
		}
		c.PageSize = n
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.BooksFile == "":
		return errors.New("books_file must be set")
	case c.UsersFile == "":
		return errors.New("users_file must be set")
	case c.AdminUsername == "":
		return errors.New("admin_username must be set")
	case c.PageSize < 1:
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	return nil
}
