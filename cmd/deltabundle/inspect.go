package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/deltabundle/bundle"
	"github.com/caffeineduck/deltabundle/codec"
	"github.com/caffeineduck/deltabundle/config"
	"github.com/caffeineduck/deltabundle/logger"
	"github.com/caffeineduck/deltabundle/script"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the cached bundle",
		Long: `Print the version, entry list and modules of the bundle held in the
configured store. Nothing is fetched.`,
		Args: cobra.NoArgs,
		RunE: runInspect,
	}
	cmd.Flags().Bool("json", false, "Print the cached bundle in its stored format")
	return cmd
}

func newInvalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate",
		Short: "Clear the cached bundle",
		Long:  `Empty the cached bundle so the next run fetches the full source.`,
		Args:  cobra.NoArgs,
		RunE:  runInvalidate,
	}
}

func runInspect(cmd *cobra.Command, _ []string) error {
	cfg, log, done, err := offlineSetup(cmd)
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

	text, ok, err := st.Read(ctx, cfg.Storage.Key)
	if err != nil {
		return fmt.Errorf("read cache: %w", err)
	}
	out := cmd.OutOrStdout()
	if !ok || strings.TrimSpace(text) == "" {
		fmt.Fprintln(out, "no cached bundle")
		return nil
	}

	c := codec.New(script.NewVM(), codec.WithRoot(cfg.Source.Root), codec.WithLogger(log))
	p, err := c.Deserialize(text)
	if err != nil {
		return fmt.Errorf("decode cached bundle: %w", err)
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		fmt.Fprintln(out, text)
		return nil
	}
	printBundle(out, p.Bundle())
	return nil
}

func runInvalidate(cmd *cobra.Command, _ []string) error {
	cfg, log, done, err := offlineSetup(cmd)
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

	if err := st.Write(ctx, cfg.Storage.Key, ""); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	log.Info("cache invalidated", "key", cfg.Storage.Key)
	fmt.Fprintf(cmd.OutOrStdout(), "invalidated %s\n", cfg.Storage.Key)
	return nil
}

func printBundle(w io.Writer, b *bundle.Bundle) {
	fmt.Fprintf(w, "version: %s\n", b.Version)
	fmt.Fprintf(w, "entry:   %s\n", strings.Join(b.Entry, ", "))
	fmt.Fprintf(w, "modules: %d\n", len(b.Modules))

	names := make([]string, 0, len(b.Modules))
	for name := range b.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		deps := b.Modules[name].Deps
		if len(deps) == 0 {
			fmt.Fprintf(w, "  %s\n", name)
			continue
		}
		specs := make([]string, 0, len(deps))
		for spec, target := range deps {
			specs = append(specs, spec+" -> "+target)
		}
		sort.Strings(specs)
		fmt.Fprintf(w, "  %s (%s)\n", name, strings.Join(specs, ", "))
	}
}

func offlineSetup(cmd *cobra.Command) (config.Config, *logger.Logger, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return cfg, nil, nil, err
	}
	log, done, err := setup(cmd, cfg)
	return cfg, log, done, err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
