package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"finbot/internal/cli"
	"finbot/internal/log"
)

type rootOptions struct {
	envFile string
	json    bool
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "finbot",
		Short: "Finance assistant over a Google Sheets workbook",
		Long: `finbot answers finance questions from a spreadsheet.

It understands periods written in free text ("março 2024", "2024/03"),
fetches the best chart it can find for that month, falling back to a
rendered page or a CSV export, and keeps a cached copy of the balances tab.

Configuration comes from the environment and an optional .env file.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load (ignored when missing)")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print JSON instead of text")

	root.AddCommand(
		newServeCmd(opts),
		newPeriodCmd(opts),
		newArtifactCmd(opts),
		newBalancesCmd(opts),
		newHistoryCmd(opts),
		newEventsCmd(opts),
	)
	return root
}

// bootstrap loads the config, sets up logging on stderr and wires the app.
func (o *rootOptions) bootstrap(cmd *cobra.Command, appOpts cli.AppOptions) (*cli.App, error) {
	cfg, err := cli.LoadAndValidateConfig(o.envFile)
	if err != nil {
		return nil, err
	}
	logger := cli.SetupLogger(cfg, cmd.ErrOrStderr())
	app, err := cli.NewApp(cmd.Context(), cfg, logger, appOpts)
	if err != nil {
		logger.Error("Failed to start", log.FieldError, err)
		return nil, err
	}
	return app, nil
}
