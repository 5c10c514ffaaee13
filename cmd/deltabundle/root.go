package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/deltabundle/config"
	"github.com/caffeineduck/deltabundle/internal/tracing"
	"github.com/caffeineduck/deltabundle/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "deltabundle",
		Short: "Incremental CommonJS bundle loader",
		Long: `deltabundle - Boot a CommonJS bundle from a cache, fetching only what changed.

The last bundle is kept in a key-value store (memory, file, redis or sqlite).
On later runs only the diff since the cached version is fetched, applied,
persisted and executed. Bundles run in-process, or inside a WebAssembly
JavaScript interpreter with --sandbox-wasm.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "Path to a YAML config file")
	root.PersistentFlags().String("log-mode", "", "Log mode: dev or prod")
	root.PersistentFlags().Bool("trace", false, "Print OpenTelemetry spans to stderr")

	// Source and storage overrides
	root.PersistentFlags().String("source-url", "", "URL of the full bundle")
	root.PersistentFlags().String("diff-url", "", "Diff URL template; %v is replaced with the cached version")
	root.PersistentFlags().String("source-root", "", "Root for module locators (default: directory of --source-url)")
	root.PersistentFlags().String("storage-key", "", "Key the bundle is cached under")
	root.PersistentFlags().String("backend", "", "Storage backend: memory, file, redis, sqlite")
	root.PersistentFlags().String("cache-dir", "", "Directory for the file backend")
	root.PersistentFlags().String("redis-addr", "", "Address for the redis backend")
	root.PersistentFlags().String("redis-prefix", "", "Key prefix for the redis backend")
	root.PersistentFlags().String("dsn", "", "Database file for the sqlite backend")

	root.AddCommand(newRunCmd(), newInspectCmd(), newInvalidateCmd(), newApplyCmd())
	return root
}

// loadConfig reads --config and applies every flag the user set on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	overrides := map[string]*string{
		"log-mode":     &cfg.Log.Mode,
		"source-url":   &cfg.Source.URL,
		"diff-url":     &cfg.Source.DiffURL,
		"source-root":  &cfg.Source.Root,
		"storage-key":  &cfg.Storage.Key,
		"backend":      &cfg.Storage.Backend,
		"cache-dir":    &cfg.Storage.Dir,
		"redis-addr":   &cfg.Storage.RedisAddr,
		"redis-prefix": &cfg.Storage.RedisPrefix,
		"dsn":          &cfg.Storage.DSN,
	}
	for name, dst := range overrides {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	return cfg, cfg.Validate()
}

// setup builds the logger and, with --trace, the span exporter. The returned
// function flushes both.
func setup(cmd *cobra.Command, cfg config.Config) (*logger.Logger, func(), error) {
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	done := func() { log.Sync() }

	if trace, _ := cmd.Flags().GetBool("trace"); trace {
		shutdown, err := tracing.Init(cmd.ErrOrStderr())
		if err != nil {
			return nil, nil, fmt.Errorf("init tracing: %w", err)
		}
		done = func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("tracer shutdown failed", "error", err)
			}
			log.Sync()
		}
	}
	return log, done, nil
}
