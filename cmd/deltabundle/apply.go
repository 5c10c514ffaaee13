package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/deltabundle/bundle"
	"github.com/caffeineduck/deltabundle/codec"
	"github.com/caffeineduck/deltabundle/script"
)

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <bundle.json> <diff.json>",
		Short: "Apply a diff to a bundle file",
		Long: `Apply a diff payload to a full bundle offline and print the reconciled
bundle. Every module is compiled on the way in, so a bundle that applies
cleanly here also loads.`,
		Args: cobra.ExactArgs(2),
		RunE: runApply,
	}
	cmd.Flags().StringP("output", "o", "", "Write the result to a file instead of stdout")
	return cmd
}

func runApply(cmd *cobra.Command, args []string) error {
	c := codec.New(script.NewVM())

	base, err := decodeFile(c, args[0])
	if err != nil {
		return err
	}
	if base == nil || !base.IsFull() {
		return fmt.Errorf("%s: not a full bundle", args[0])
	}
	diff, err := decodeFile(c, args[1])
	if err != nil {
		return err
	}

	result, err := bundle.Apply(base.Bundle(), diff)
	if err != nil {
		return fmt.Errorf("%s does not apply to %s: %w", args[1], args[0], err)
	}

	text, err := c.Serialize(result)
	if err != nil {
		return err
	}
	if output, _ := cmd.Flags().GetString("output"); output != "" {
		return os.WriteFile(output, []byte(text+"\n"), 0o644)
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func decodeFile(c *codec.Codec, path string) (*bundle.Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := c.Deserialize(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
