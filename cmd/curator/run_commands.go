package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"curator/internal/api"
	"curator/internal/daemonrun"
	"curator/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var rebuild bool
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the curator daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(commandCtx(cmd), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
				Rebuild:     rebuild,
			})
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Rebuild the link tree from persisted mappings and exit")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log records")
	return cmd
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one reconciliation cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.remote()
			if err != nil {
				return err
			}
			if client != nil {
				if err := client.post(commandCtx(cmd), "/trigger", nil, nil); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is running; scan triggered")
				return nil
			}
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				report, err := rt.Manager.RunCycle(commandCtx(cmd))
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, report)
				}
				printCycleReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newRebuildCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Recreate the link tree from persisted mappings (no provider calls)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var report api.LinkReport
			client, err := ctx.remote()
			if err != nil {
				return err
			}
			if client != nil {
				if err := client.post(commandCtx(cmd), "/api/rebuild", nil, &report); err != nil {
					return err
				}
			} else {
				err := ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
					links, err := rt.Manager.Rebuild(commandCtx(cmd))
					report = api.FromLinkReport(links)
					return err
				})
				if err != nil {
					return err
				}
			}
			if jsonOutput {
				return writeJSON(cmd, report)
			}
			printLinkReport(cmd.OutOrStdout(), "Rebuild complete", report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printCycleReport(out io.Writer, report workflow.CycleReport) {
	fmt.Fprintf(out, "Cycle %s finished in %s\n", report.CycleID, report.Duration.Round(time.Millisecond))
	rows := [][]string{
		{"Listed", fmt.Sprint(report.Listed)},
		{"Added", fmt.Sprint(report.Added)},
		{"Archived", fmt.Sprint(report.Archived)},
		{"Attempted", fmt.Sprint(report.Attempted)},
		{"Mapped", fmt.Sprint(report.Mapped)},
		{"Reused", fmt.Sprint(report.Reused)},
		{"Failed", fmt.Sprint(report.Failed)},
		{"Manual", fmt.Sprint(report.Manual)},
		{"Collisions", fmt.Sprint(report.Collisions)},
		{"Links created", fmt.Sprint(report.LinksCreated)},
		{"Links removed", fmt.Sprint(report.LinksRemoved)},
		{"Dangling links", fmt.Sprint(report.LinksDangling)},
	}
	if report.ArchivalSuppressed {
		rows = append(rows, []string{"Archival", "suppressed (empty listing)"})
	}
	fmt.Fprintln(out, renderTable([]string{"Metric", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func printLinkReport(out io.Writer, title string, report api.LinkReport) {
	fmt.Fprintf(out, "%s: %d created, %d replaced, %d removed, %d unchanged\n",
		title, report.Created, report.Replaced, report.Removed, report.Unchanged)
	for _, path := range report.Dangling {
		fmt.Fprintf(out, "  dangling: %s\n", path)
	}
	for _, path := range report.Conflicts {
		fmt.Fprintf(out, "  conflict: %s (not a symlink; left untouched)\n", path)
	}
	for _, path := range report.Failed {
		fmt.Fprintf(out, "  failed:   %s\n", path)
	}
}
