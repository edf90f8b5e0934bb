package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"curator/internal/api"
	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/daemon"
	"curator/internal/preflight"
	"curator/internal/workflow"
)

type statusReport struct {
	ConfigPath   string                 `json:"configPath"`
	DaemonActive bool                   `json:"daemonActive"`
	LockFilePath string                 `json:"lockFilePath"`
	DatabasePath string                 `json:"databasePath"`
	DatabaseSize int64                  `json:"databaseSize"`
	Health       catalog.DatabaseHealth `json:"health"`
	Stats        api.Stats              `json:"stats"`
	Checks       []checkResult          `json:"checks"`
	LastCycle    *workflow.CycleReport  `json:"lastCycle,omitempty"`
}

type checkResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var skipChecks bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show catalog, daemon, and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				report, err := collectStatus(commandCtx(cmd), ctx, cfg, store, !skipChecks)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, report)
				}
				renderStatus(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&skipChecks, "no-checks", false, "Skip network and filesystem readiness checks")
	return cmd
}

func collectStatus(ctx context.Context, cmdCtx *commandContext, cfg *config.Config, store *catalog.Store, runChecks bool) (statusReport, error) {
	report := statusReport{
		ConfigPath:   cmdCtx.configPath,
		LockFilePath: cfg.LockPath(),
		DatabasePath: store.Path(),
	}
	held, err := daemon.LockHeld(cfg.LockPath())
	if err != nil {
		return report, fmt.Errorf("check daemon lock: %w", err)
	}
	report.DaemonActive = held

	if info, err := os.Stat(store.Path()); err == nil {
		report.DatabaseSize = info.Size()
	}
	health, err := store.CheckHealth(ctx)
	if err != nil {
		return report, err
	}
	report.Health = health
	stats, err := store.Stats(ctx)
	if err != nil {
		return report, err
	}
	report.Stats = api.FromStats(stats)

	if runChecks {
		for _, result := range preflight.RunAll(ctx, cfg) {
			report.Checks = append(report.Checks, checkResult{Name: result.Name, Passed: result.Passed, Detail: result.Detail})
		}
	}

	if held {
		if client, err := newDaemonClient(cfg.API.Bind); err == nil {
			var remote api.DaemonStatus
			remoteCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := client.get(remoteCtx, "/api/status", &remote); err == nil {
				report.LastCycle = remote.Workflow.LastReport
			}
		}
	}
	return report, nil
}

func renderStatus(out io.Writer, report statusReport) {
	fmt.Fprintln(out, "Curator status")
	if report.ConfigPath != "" {
		fmt.Fprintf(out, "  Config:    %s\n", report.ConfigPath)
	}
	daemonLine := "not running"
	if report.DaemonActive {
		daemonLine = "running (lock held)"
	}
	fmt.Fprintf(out, "  Daemon:    %s\n", daemonLine)
	fmt.Fprintf(out, "  Database:  %s (%s, schema v%d, integrity %s)\n",
		report.DatabasePath,
		humanize.Bytes(uint64(max(report.DatabaseSize, 0))),
		report.Health.SchemaVersion,
		map[bool]string{true: "ok", false: "FAILED"}[report.Health.IntegrityCheck],
	)
	if len(report.Health.MissingTables) > 0 {
		fmt.Fprintf(out, "  Missing tables: %s\n", strings.Join(report.Health.MissingTables, ", "))
	}
	if report.LastCycle != nil && report.LastCycle.CycleID != "" {
		line := fmt.Sprintf("%s, %d mapped, %d failed", humanize.Time(report.LastCycle.StartedAt), report.LastCycle.Mapped, report.LastCycle.Failed)
		if report.LastCycle.Error != "" {
			line += ", error: " + report.LastCycle.Error
		}
		fmt.Fprintf(out, "  Last cycle: %s\n", line)
	}
	fmt.Fprintln(out)

	stats := report.Stats
	fmt.Fprintf(out, "Entries: %s total, %s archived, %s manual; %s mappings over %s titles (revision %d)\n",
		humanize.Comma(int64(stats.Entries)),
		humanize.Comma(int64(stats.Archived)),
		humanize.Comma(int64(stats.Manual)),
		humanize.Comma(int64(stats.Mappings)),
		humanize.Comma(int64(stats.Identities)),
		stats.Revision,
	)
	if len(stats.ByState) > 0 {
		states := make([]string, 0, len(stats.ByState))
		for state := range stats.ByState {
			states = append(states, state)
		}
		sort.Strings(states)
		rows := make([][]string, 0, len(states))
		for _, state := range states {
			rows = append(rows, []string{state, strconv.Itoa(stats.ByState[state])})
		}
		fmt.Fprintln(out, renderTable([]string{"State", "Entries"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	if len(report.Checks) > 0 {
		rows := make([][]string, 0, len(report.Checks))
		for _, check := range report.Checks {
			mark := "ok"
			if !check.Passed {
				mark = "FAIL"
			}
			rows = append(rows, []string{check.Name, mark, check.Detail})
		}
		fmt.Fprintln(out, renderTable([]string{"Check", "Result", "Detail"}, rows, nil))
	}
}
