// Package config loads the upnpcat configuration from config.toml.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/mikey-austin/upnpcat/internal/core"
)

// Config holds CLI configuration from config.toml.
type Config struct {
	Browse  BrowseConfig  `toml:"browse"`
	Network NetworkConfig `toml:"network"`
	Cache   CacheConfig   `toml:"cache"`
	Servers []ServerEntry `toml:"servers"`
}

// BrowseConfig tunes directory listing behavior.
type BrowseConfig struct {
	MaxEntries       int  `toml:"max_entries"`
	ShowEmptyFiles   bool `toml:"show_empty_files"`
	StrictParentID   bool `toml:"strict_parent_id"`
	AssumeSearchable bool `toml:"assume_searchable"`
}

// NetworkConfig tunes wire timeouts.
type NetworkConfig struct {
	ResponseTimeoutMS int64 `toml:"response_timeout_ms"`
	ReadTimeoutMS     int64 `toml:"read_timeout_ms"`
	DiscoveryWaitMS   int64 `toml:"discovery_wait_ms"`
}

// CacheConfig tunes the browse result cache.
type CacheConfig struct {
	Size     int   `toml:"size"`
	TTLMS    int64 `toml:"ttl_ms"`
	Compress bool  `toml:"compress"`
}

// ServerEntry preregisters a media server, bypassing discovery.
type ServerEntry struct {
	IP         string `toml:"ip"`
	Port       uint16 `toml:"port"`
	ControlURL string `toml:"control_url"`
	Name       string `toml:"name"`
}

// Load loads config.toml if present. Missing file returns an empty config.
func Load(path string) (Config, error) {
	if path == "" {
		var err error
		path, err = defaultPath()
		if err != nil {
			return Config{}, err
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Engine maps the file configuration onto engine knobs. Zero values
// defer to the engine defaults.
func (c Config) Engine() core.Config {
	return core.Config{
		MaxBrowseEntries: c.Browse.MaxEntries,
		ShowEmptyFiles:   c.Browse.ShowEmptyFiles,
		StrictParentID:   c.Browse.StrictParentID,
		AssumeSearchable: c.Browse.AssumeSearchable,
		ResponseTimeout:  time.Duration(c.Network.ResponseTimeoutMS) * time.Millisecond,
		ReadTimeout:      time.Duration(c.Network.ReadTimeoutMS) * time.Millisecond,
		DiscoveryWait:    time.Duration(c.Network.DiscoveryWaitMS) * time.Millisecond,
		CacheTTL:         time.Duration(c.Cache.TTLMS) * time.Millisecond,
		CacheSize:        c.Cache.Size,
		CacheCompress:    c.Cache.Compress,
	}
}

func defaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "upnpcat", "config.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "upnpcat", "config.toml"), nil
}
