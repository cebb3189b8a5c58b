package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"rebalanceadvisor/cmd"
	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/logger"
	"rebalanceadvisor/internal/renderer"

	"github.com/spf13/cobra"
)

type outputFlags struct {
	json     bool
	plain    bool
	wordWrap int
}

var output outputFlags

func main() {
	root := &cobra.Command{
		Use:           "rebalance",
		Short:         "Match a risk profile to expert strategies and size the trades to get there",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&output.json, "json", false, "print JSON instead of a report")
	root.PersistentFlags().BoolVar(&output.plain, "plain", false, "print the report as raw markdown")
	root.PersistentFlags().IntVar(&output.wordWrap, "wrap", 100, "report word wrap")

	root.AddCommand(
		newRecommendCmd(),
		newSimulateCmd(),
		newStrategiesCmd(),
		newIngestCmd(),
		newImportCmd(),
		newServeCmd(),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		logger.FromContext(context.Background()).Errorf("%v", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// withDependencies initializes the stack for one command and closes it
// afterwards.
func withDependencies(c *cobra.Command, fn func(ctx context.Context, deps *cmd.Dependencies) error) error {
	ctx, _ := domain.NewCtxWithProfile(c.Context())
	deps, err := cmd.InitializeDependencies(ctx)
	if err != nil {
		return err
	}
	defer cmd.CloseDependencies(deps)
	return fn(ctx, deps)
}

// printReport writes v as JSON, or markdown styled for the terminal.
func printReport(c *cobra.Command, v any, markdown func() string) error {
	out := c.OutOrStdout()
	if output.json {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		_, err = fmt.Fprintln(out, string(b))
		return err
	}

	md := markdown()
	if output.plain {
		_, err := fmt.Fprint(out, md)
		return err
	}
	styled, err := renderer.RenderTerminal(md, output.wordWrap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(out, styled)
	return err
}
