package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/deltabundle/config"
	"github.com/caffeineduck/deltabundle/executor"
	"github.com/caffeineduck/deltabundle/hostfunc"
	"github.com/caffeineduck/deltabundle/language/javascript"
	"github.com/caffeineduck/deltabundle/loader"
	"github.com/caffeineduck/deltabundle/logger"
	"github.com/caffeineduck/deltabundle/resolver"
	"github.com/caffeineduck/deltabundle/script"
	"github.com/caffeineduck/deltabundle/store"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Bring the cached bundle up to date and run it",
		Long: `Load the bundle from the configured store, fetch the full bundle or the
diff since the cached version, persist the result and execute the entry
modules. Module console output is written to stdout.

By default modules run in-process. With --sandbox-wasm the whole bundle runs
inside a QuickJS WASI build, with no host access beyond what is enabled by
--kv and --allow-host.`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}

	cmd.Flags().String("sandbox-wasm", "", "Path to a QuickJS WASI binary; runs the bundle in a WASM sandbox")
	cmd.Flags().Duration("timeout", 0, "Sandbox execution timeout (default from config)")
	cmd.Flags().Uint32("memory", 0, "Sandbox memory limit in MB (default from config)")
	cmd.Flags().StringSlice("allow-host", nil, "Allow sandbox HTTP to host (repeatable)")
	cmd.Flags().Bool("kv", false, "Give the sandbox a key-value store backed by the bundle store")
	cmd.Flags().Bool("no-cache", false, "Disable the sandbox compilation cache")

	// Security limits
	cmd.Flags().Int("http-max-url", 8192, "Max sandbox HTTP URL length")
	cmd.Flags().Int64("http-max-body", 1024*1024, "Max sandbox HTTP response body size")
	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applySandboxFlags(cmd, &cfg)

	log, done, err := setup(cmd, cfg)
	if err != nil {
		return err
	}
	defer done()

	ctx := commandContext(cmd)

	st, closeStore, err := cfg.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	vm := script.NewVM(script.WithConsole(cmd.OutOrStdout()), script.WithLogger(log))
	l, err := loader.New(cfg.LoaderConfig(), vm,
		loader.WithStore(st),
		loader.WithLogger(log),
		loader.WithSlot(&resolver.Slot{}),
	)
	if err != nil {
		return err
	}

	if cfg.Sandbox.WASM == "" {
		_, err := l.Initialize(ctx)
		return err
	}
	return runSandboxed(ctx, cmd, cfg, l, st, log)
}

func applySandboxFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("sandbox-wasm") {
		cfg.Sandbox.WASM, _ = flags.GetString("sandbox-wasm")
	}
	if flags.Changed("timeout") {
		cfg.Sandbox.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("memory") {
		cfg.Sandbox.MemoryMB, _ = flags.GetUint32("memory")
	}
	if hosts, _ := flags.GetStringSlice("allow-host"); len(hosts) > 0 {
		cfg.Sandbox.AllowedHosts = append(cfg.Sandbox.AllowedHosts, hosts...)
	}
}

func runSandboxed(ctx context.Context, cmd *cobra.Command, cfg config.Config, l *loader.Loader, st store.Store, log *logger.Logger) error {
	b, err := l.Load(ctx)
	if err != nil {
		return err
	}

	lang, err := javascript.Load(cfg.Sandbox.WASM)
	if err != nil {
		return err
	}

	var execOpts []executor.ExecutorOption
	execOpts = append(execOpts, executor.WithLogger(log))
	if noCache, _ := cmd.Flags().GetBool("no-cache"); !noCache {
		execOpts = append(execOpts, executor.WithDiskCache())
	}
	if cfg.Sandbox.MemoryMB > 0 {
		execOpts = append(execOpts, executor.WithMemoryLimit(executor.MemoryLimitMB(cfg.Sandbox.MemoryMB)))
	}

	exec, err := executor.New(hostfunc.NewRegistry(), execOpts...)
	if err != nil {
		return fmt.Errorf("create executor: %w", err)
	}
	defer exec.Close()

	runOpts := buildRunOpts(cmd, cfg, st)
	result := exec.RunBundle(ctx, lang, b, runOpts...)
	fmt.Fprint(cmd.OutOrStdout(), result.Output)
	log.Info("sandbox run finished", "version", b.Version, "duration", result.Duration.Round(time.Millisecond))
	return result.Error
}

func buildRunOpts(cmd *cobra.Command, cfg config.Config, st store.Store) []executor.Option {
	enableKV, _ := cmd.Flags().GetBool("kv")
	httpMaxURL, _ := cmd.Flags().GetInt("http-max-url")
	httpMaxBody, _ := cmd.Flags().GetInt64("http-max-body")

	var opts []executor.Option
	opts = append(opts, executor.WithTimeout(cfg.Sandbox.Timeout))

	if enableKV {
		opts = append(opts, executor.WithStore(st, "kv"))
	}
	if len(cfg.Sandbox.AllowedHosts) > 0 {
		opts = append(opts, executor.WithAllowedHosts(cfg.Sandbox.AllowedHosts))
		opts = append(opts, executor.WithHTTPMaxURLLength(httpMaxURL))
		opts = append(opts, executor.WithHTTPMaxBodySize(httpMaxBody))
	}
	return opts
}
