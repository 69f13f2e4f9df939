// Package config gathers every setting the commands need. It is built
// once at start-up from the environment and the optional config file; flags
// are applied on top by the command layer.
package config

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

const (
	appName = "cobra"

	// DefaultBaseURL is the docker endpoint used when DOCKER_HOST is unset.
	DefaultBaseURL = "unix:///var/run/docker.sock"

	// DefaultBasename prefixes archive names.
	DefaultBasename = "backup"

	// DefaultStorage is the remote used by push, pull and remote listing.
	DefaultStorage = "drive"

	// FileName is the config file looked up in ConfigDir.
	FileName = "config.yaml"
)

// Docker holds the engine endpoint settings.
type Docker struct {
	BaseURL string
	TLS     bool
	CertDir string
}

// Config holds directory defaults, remote settings and engine settings.
type Config struct {
	BackupDir string
	CacheDir  string
	HooksDir  string
	ConfigDir string

	Basename    string
	Storage     string
	Credentials string
	FolderID    string
	HookOff     []string
	Password    string

	Docker Docker
}

// File is the on-disk form of the config file. Empty fields keep the
// environment defaults.
type File struct {
	BackupDir   string   `yaml:"backup_dir,omitempty"`
	CacheDir    string   `yaml:"cache_dir,omitempty"`
	HooksDir    string   `yaml:"hooks_dir,omitempty"`
	Basename    string   `yaml:"basename,omitempty"`
	Storage     string   `yaml:"storage,omitempty"`
	Credentials string   `yaml:"creds,omitempty"`
	FolderID    string   `yaml:"folder_id,omitempty"`
	HookOff     []string `yaml:"hook_off,omitempty"`
}

// FromEnv derives the defaults from getenv. XDG base directories are used
// when set, with $HOME relative fallbacks.
func FromEnv(getenv func(string) string) *Config {
	home := getenv("HOME")
	data := xdg(getenv, "XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	conf := xdg(getenv, "XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	cache := xdg(getenv, "XDG_CACHE_HOME", filepath.Join(home, ".cache"))

	baseURL := getenv("DOCKER_HOST")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Config{
		BackupDir: filepath.Join(data, appName, "backup"),
		CacheDir:  filepath.Join(cache, appName),
		HooksDir:  filepath.Join(data, appName, "hooks"),
		ConfigDir: filepath.Join(conf, appName),
		Basename:  DefaultBasename,
		Storage:   DefaultStorage,
		Password:  getenv("COBRA_PASSWORD"),
		Docker: Docker{
			BaseURL: baseURL,
			TLS:     getenv("DOCKER_TLS_VERIFY") != "",
			CertDir: getenv("DOCKER_CERT_PATH"),
		},
	}
}

func xdg(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

// Load builds the config from the process environment and overlays the
// config file in its ConfigDir when present.
func Load() (*Config, error) {
	cfg := FromEnv(os.Getenv)
	if err := cfg.Overlay(filepath.Join(cfg.ConfigDir, FileName)); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

// Overlay applies the settings of the YAML file at path. A missing file is
// not an error.
func (c *Config) Overlay(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 - user config file
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Annotatef(err, "reading config %q", path)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return errors.NotValidf("config %q: %v", path, err)
	}

	set(&c.BackupDir, f.BackupDir)
	set(&c.CacheDir, f.CacheDir)
	set(&c.HooksDir, f.HooksDir)
	set(&c.Basename, f.Basename)
	set(&c.Storage, f.Storage)
	set(&c.Credentials, f.Credentials)
	set(&c.FolderID, f.FolderID)
	if len(f.HookOff) > 0 {
		c.HookOff = f.HookOff
	}
	return nil
}

func set(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Dirs returns the backup, cache and hooks directories in that order.
func (c *Config) Dirs() []string {
	return []string{c.BackupDir, c.CacheDir, c.HooksDir}
}
