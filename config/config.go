// Package config reads the YAML configuration of the deltabundle CLI.
//
//	source:
//	  url: https://cdn.example/app/bundle.json
//	  diff_url: https://cdn.example/app/diff/%v.json
//	storage:
//	  backend: file        # memory, file, redis or sqlite
//	  key: __bundle
//	  dir: ~/.cache/deltabundle
//	sandbox:
//	  wasm: ./qjs.wasm
//	  timeout: 30s
//	log:
//	  mode: dev
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/caffeineduck/deltabundle/loader"
	"github.com/caffeineduck/deltabundle/store"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config is the whole configuration file.
type Config struct {
	Source  Source  `yaml:"source"`
	Storage Storage `yaml:"storage"`
	Sandbox Sandbox `yaml:"sandbox"`
	Log     Log     `yaml:"log"`
}

// Source names where bundles are fetched from. See loader.Config.
type Source struct {
	URL     string `yaml:"url"`
	DiffURL string `yaml:"diff_url"`
	Root    string `yaml:"root"`
}

// Storage selects and configures the cache backend. A leading "~" in Dir
// is expanded to the home directory.
type Storage struct {
	Backend      string `yaml:"backend"`
	Key          string `yaml:"key"`
	Dir          string `yaml:"dir"`
	RedisAddr    string `yaml:"redis_addr"`
	RedisPrefix  string `yaml:"redis_prefix"`
	DSN          string `yaml:"dsn"`
	MaxValueSize int    `yaml:"max_value_size"`
}

// Sandbox configures WASM execution for "run --sandbox-wasm".
type Sandbox struct {
	// WASM is the path of a QuickJS WASI build. Empty runs bundles
	// in-process.
	WASM         string        `yaml:"wasm"`
	Timeout      time.Duration `yaml:"timeout"`
	MemoryMB     uint32        `yaml:"memory_mb"`
	AllowedHosts []string      `yaml:"allowed_hosts"`
}

// Log configures the logger. Mode is "dev" or "prod".
type Log struct {
	Mode string `yaml:"mode"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Storage: Storage{Backend: BackendMemory, Key: loader.DefaultStorageKey},
		Sandbox: Sandbox{Timeout: 30 * time.Second, MemoryMB: 256},
		Log:     Log{Mode: "dev"},
	}
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the storage backend and its required settings.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case "", BackendMemory:
	case BackendFile:
		if c.Storage.Dir == "" {
			return errors.New("config: storage.dir is required for the file backend")
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("config: storage.redis_addr is required for the redis backend")
		}
	case BackendSQLite:
		if c.Storage.DSN == "" {
			return errors.New("config: storage.dsn is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// LoaderConfig returns the loader settings.
func (c Config) LoaderConfig() loader.Config {
	return loader.Config{
		SourceURL:  c.Source.URL,
		DiffURL:    c.Source.DiffURL,
		StorageKey: c.Storage.Key,
		SourceRoot: c.Source.Root,
	}
}

// OpenStore builds the configured store. The returned close function
// releases its connections and is never nil.
func (c Config) OpenStore(ctx context.Context) (store.Store, func() error, error) {
	noop := func() error { return nil }
	if err := c.Validate(); err != nil {
		return nil, noop, err
	}

	switch c.Storage.Backend {
	case BackendFile:
		dir, err := expandHome(c.Storage.Dir)
		if err != nil {
			return nil, noop, err
		}
		s, err := store.NewFile(dir)
		return s, noop, err
	case BackendRedis:
		s, err := store.DialRedis(ctx, c.Storage.RedisAddr, store.WithPrefix(c.Storage.RedisPrefix))
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case BackendSQLite:
		s, err := store.OpenSQLite(c.Storage.DSN)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		return store.NewMemory(store.WithMaxValueSize(c.Storage.MaxValueSize)), noop, nil
	}
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Join(home, path[1:]), nil
}
