package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"finbot/internal/amqp"
	"finbot/internal/cli"
	"finbot/internal/core"
	"finbot/internal/log"
	"finbot/internal/period"
	"finbot/internal/worker"
)

const stampLayout = "02/01/2006 15:04:05"

func newPeriodCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "period <text...>",
		Short: "Show which month a piece of text names",
		Example: `  finbot period março 2024
  finbot period "relatório 2024/03"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			p, res, err := period.ParsePeriod(text)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%v\nTry one of: %s\n", err, strings.Join(period.Examples(), ", "))
				return err
			}
			if opts.json {
				return writeJSON(out, map[string]any{
					"year": p.Year, "month": p.Month, "rule": res.Rule.String(), "period": p.String(),
				})
			}
			fmt.Fprintf(out, "%s (%s %d, rule %s)\n", p, period.MonthName(p.Month), p.Year, res.Rule)
			return nil
		},
	}
}

func newArtifactCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "artifact <text...>",
		Short: "Fetch the chart (or best fallback) for a month",
		Long: `Resolves the month named in the text and saves the best artifact found:
a chart image, a rendered page (PNG or PDF) or a CSV export.`,
		Example: `  finbot artifact março 2024
  finbot artifact 2024-03 -o marco.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.bootstrap(cmd, cli.AppOptions{})
			if err != nil {
				return err
			}
			defer app.Close()

			text := strings.Join(args, " ")
			res, err := app.Assistant.ResolveText(cmd.Context(), text)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%v\nTry one of: %s\n", err, strings.Join(period.Examples(), ", "))
				return err
			}
			if !res.Found() {
				fmt.Fprintln(cmd.ErrOrStderr(), res.Diagnostic)
				return fmt.Errorf("no artifact found for %s", res.Period)
			}

			path := output
			if path == "" {
				path = res.Period.Key() + extensionFor(res.ContentType)
			}
			if err := os.WriteFile(path, res.Artifact, 0o644); err != nil {
				return fmt.Errorf("write artifact: %w", err)
			}

			if opts.json {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"file": path, "period": res.Period.String(), "quality": res.Quality.String(),
					"strategy": res.Strategy, "diagnostic": res.Diagnostic, "bytes": len(res.Artifact),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s via %s, %d bytes -> %s\n%s\n",
				res.Period, res.Quality, res.Strategy, len(res.Artifact), path, res.Diagnostic)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default <YYYY-MM>.<ext>)")
	return cmd
}

func extensionFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "application/pdf"):
		return ".pdf"
	case strings.HasPrefix(contentType, "text/csv"):
		return ".csv"
	default:
		return ".bin"
	}
}

func newBalancesCmd(opts *rootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Print account balances from the balances tab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.bootstrap(cmd, cli.AppOptions{})
			if err != nil {
				return err
			}
			defer app.Close()

			var snap core.Snapshot
			if refresh {
				snap, err = app.Assistant.RefreshBalances(cmd.Context())
			} else {
				snap, err = app.Assistant.Balances(cmd.Context())
			}
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), snapshotJSON(snap))
			}
			printSnapshot(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch from the spreadsheet even when cached")
	return cmd
}

func snapshotJSON(snap core.Snapshot) map[string]any {
	records := make([]map[string]any, 0, snap.Len())
	for _, r := range snap.Records {
		records = append(records, map[string]any{
			"account":           r.Account,
			"balance":           r.Balance.Reais(),
			"formatted":         r.Balance.FormatBRL(),
			"conversion_failed": r.ConversionFailed,
		})
	}
	return map[string]any{
		"records":    records,
		"total":      snap.Total().Reais(),
		"fetched_at": snap.FetchedAt,
	}
}

func printSnapshot(out io.Writer, snap core.Snapshot) {
	if snap.Len() == 0 {
		fmt.Fprintln(out, "No balances found.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, r := range snap.Records {
		flag := ""
		if r.ConversionFailed {
			flag = fmt.Sprintf("(unreadable: %q)", r.Raw)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Account, r.Balance.FormatBRL(), flag)
	}
	fmt.Fprintf(tw, "TOTAL\t%s\t\n", snap.Total().FormatBRL())
	tw.Flush()
	fmt.Fprintf(out, "\nCache from %s\n", snap.FetchedAt.Local().Format(stampLayout))
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit     int
		snapshots bool
		snapshot  int64
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past resolutions and archived balance snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.bootstrap(cmd, cli.AppOptions{SkipEvents: true})
			if err != nil {
				return err
			}
			defer app.Close()
			if app.Journal == nil {
				return errors.New("journal disabled (SQLITE_DB_PATH=off)")
			}

			ctx, out := cmd.Context(), cmd.OutOrStdout()
			switch {
			case snapshot > 0:
				snap, err := app.Journal.Snapshot(ctx, snapshot)
				if err != nil {
					return err
				}
				if opts.json {
					return writeJSON(out, snapshotJSON(snap))
				}
				printSnapshot(out, snap)
				return nil

			case snapshots:
				list, err := app.Journal.RecentSnapshots(ctx, limit)
				if err != nil {
					return err
				}
				if opts.json {
					return writeJSON(out, list)
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tFETCHED\tRECORDS\tTOTAL\tFAILURES")
				for _, s := range list {
					fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%d\n", s.ID, s.FetchedAt.Local().Format(stampLayout),
						s.Records, s.Total.FormatBRL(), s.ConversionFailures)
				}
				return tw.Flush()
			}

			entries, err := app.Assistant.History(ctx, limit)
			if err != nil {
				return err
			}
			counts, err := app.Journal.QualityCounts(ctx)
			if err != nil {
				return err
			}
			if opts.json {
				byQuality := make(map[string]int, len(counts))
				for q, n := range counts {
					byQuality[q.String()] = n
				}
				return writeJSON(out, map[string]any{"resolutions": entries, "by_quality": byQuality})
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tPERIOD\tQUALITY\tSTRATEGY\tTEXT")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format(stampLayout),
					e.Period, e.Quality, e.Strategy, e.Text)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%s\n", formatCounts(counts))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	cmd.Flags().BoolVar(&snapshots, "snapshots", false, "list archived balance snapshots instead")
	cmd.Flags().Int64Var(&snapshot, "snapshot", 0, "print the archived snapshot with this id")
	return cmd
}

func formatCounts(counts map[core.Quality]int) string {
	parts := make([]string, 0, 4)
	for _, q := range []core.Quality{core.QualityChart, core.QualityRenderedPage, core.QualityTabular, core.QualityNoneFound} {
		parts = append(parts, q.String()+"="+strconv.Itoa(counts[q]))
	}
	return strings.Join(parts, " ")
}

func newEventsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Tail resolution and balances events from RabbitMQ",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadAndValidateConfig(opts.envFile)
			if err != nil {
				return err
			}
			if !cfg.EventsEnabled() {
				return errors.New("AMQP_URL is not set")
			}
			logger := cli.SetupLogger(cfg, cmd.ErrOrStderr())

			client, err := amqp.NewClient(cmd.Context(), cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, done := cli.GracefulShutdown(logger, 5*time.Second, nil)
			w := worker.NewEventWorker(cmd.OutOrStdout(), opts.json, logger.WithComponent(log.ComponentAMQP))

			err = client.Consume(ctx, w.HandleEvent)
			if ctx.Err() != nil {
				<-done
				stats := w.Stats()
				logger.Info("Event tail stopped",
					"resolutions", stats.Resolutions, "refreshes", stats.Refreshes, "dropped", stats.Dropped)
				return nil
			}
			return err
		},
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
