package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeineduck/deltabundle/loader"
	"github.com/caffeineduck/deltabundle/store"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deltabundle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
source:
  url: https://cdn.example/app/bundle.json
  diff_url: https://cdn.example/app/diff/%v.json
storage:
  backend: file
  dir: /tmp/cache
sandbox:
  wasm: ./qjs.wasm
  timeout: 5s
  allowed_hosts: [api.example.com]
log:
  mode: prod
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Source = Source{
		URL:     "https://cdn.example/app/bundle.json",
		DiffURL: "https://cdn.example/app/diff/%v.json",
	}
	want.Storage.Backend = BackendFile
	want.Storage.Dir = "/tmp/cache"
	want.Sandbox.WASM = "./qjs.wasm"
	want.Sandbox.Timeout = 5 * time.Second
	want.Sandbox.AllowedHosts = []string{"api.example.com"}
	want.Log.Mode = "prod"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, loader.Config{
		SourceURL:  "https://cdn.example/app/bundle.json",
		DiffURL:    "https://cdn.example/app/diff/%v.json",
		StorageKey: loader.DefaultStorageKey,
	}, cfg.LoaderConfig())
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, "source:\n  uri: x\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		storage Storage
		ok      bool
	}{
		"memory":           {Storage{Backend: BackendMemory}, true},
		"empty backend":    {Storage{}, true},
		"file needs dir":   {Storage{Backend: BackendFile}, false},
		"redis needs addr": {Storage{Backend: BackendRedis}, false},
		"sqlite needs dsn": {Storage{Backend: BackendSQLite}, false},
		"unknown":          {Storage{Backend: "etcd"}, false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := Config{Storage: tt.storage}.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, storage := range []Storage{
		{Backend: BackendMemory},
		{Backend: BackendFile, Dir: filepath.Join(dir, "files")},
		{Backend: BackendSQLite, DSN: filepath.Join(dir, "cache.db")},
	} {
		t.Run(storage.Backend, func(t *testing.T) {
			s, closeFn, err := Config{Storage: storage}.OpenStore(ctx)
			require.NoError(t, err)
			defer closeFn()

			require.NoError(t, s.Write(ctx, "k", "v"))
			v, ok, err := s.Read(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v", v)
		})
	}
}

func TestOpenStoreMemoryLimit(t *testing.T) {
	s, _, err := Config{Storage: Storage{Backend: BackendMemory, MaxValueSize: 2}}.OpenStore(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, s.Write(context.Background(), "k", "too big"), store.ErrValueTooLarge)
}

func TestOpenStoreExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	s, _, err := Config{Storage: Storage{Backend: BackendFile, Dir: "~/.cache/deltabundle"}}.OpenStore(context.Background())
	require.NoError(t, err)

	want := filepath.Join(home, ".cache", "deltabundle")
	assert.Equal(t, want, s.(*store.File).Dir())
	assert.DirExists(t, want)
	assert.NoDirExists(t, "~")
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := map[string]string{
		"~":           home,
		"~/cache":     filepath.Join(home, "cache"),
		"/var/cache":  "/var/cache",
		"rel/dir":     "rel/dir",
		"~user/cache": "~user/cache",
	}
	for in, want := range tests {
		got, err := expandHome(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}
