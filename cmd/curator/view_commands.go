package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"curator/internal/api"
	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/daemonrun"
	"curator/internal/nameparse"
	"curator/internal/services"
)

func newEntriesCommand(ctx *commandContext) *cobra.Command {
	var manual bool
	var archived bool
	var states []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List source entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := catalog.EntryFilter{}
			if cmd.Flags().Changed("manual") {
				filter.Manual = &manual
			}
			if cmd.Flags().Changed("archived") {
				filter.Archived = &archived
			}
			for _, raw := range states {
				state, err := catalog.ParseState(raw)
				if err != nil {
					return err
				}
				filter.States = append(filter.States, state)
			}
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				entries, err := store.ListEntries(commandCtx(cmd), filter)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.FromEntries(entries))
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No entries")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderEntries(cfg, entries))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&manual, "manual", false, "Only entries that need manual attention (or not, with --manual=false)")
	cmd.Flags().BoolVar(&archived, "archived", false, "Only archived entries (or active ones, with --archived=false)")
	cmd.Flags().StringSliceVar(&states, "state", nil, "Filter by state (new, resolving, mapped, manual, retryable, collision)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCollisionsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "collisions",
		Short: "List entries whose target is owned by another source",
		RunE: func(cmd *cobra.Command, args []string) error {
			active := false
			filter := catalog.EntryFilter{Archived: &active, States: []catalog.State{catalog.StateCollision}}
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				entries, err := store.ListEntries(commandCtx(cmd), filter)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.FromEntries(entries))
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No collisions")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						strconv.FormatInt(entry.ID, 10),
						relativeSource(cfg, entry.Path),
						nameparse.QualityLabel(entry.QualityScore),
						entry.LastError,
					})
				}
				headers := []string{"ID", "Source", "Quality", "Detail"}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, []columnAlignment{alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newTitlesCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "titles",
		Short: "List canonical titles with mapped sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				titles, err := store.ListTitles(commandCtx(cmd))
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.FromTitles(titles))
				}
				if len(titles) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No titles")
					return nil
				}
				rows := make([][]string, 0, len(titles))
				for _, title := range titles {
					rows = append(rows, []string{
						strconv.FormatInt(title.ID, 10),
						strconv.FormatInt(title.ExternalID, 10),
						string(title.Kind),
						title.Title,
						formatYear(title.Year),
						strconv.Itoa(title.Mappings),
						strconv.Itoa(title.Seasons),
					})
				}
				headers := []string{"ID", "External ID", "Kind", "Title", "Year", "Mappings", "Seasons"}
				aligns := []columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newSeasonsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "seasons <canonicalId>",
		Short: "List seasons and episode counts for a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("%w: invalid title id %q", services.ErrValidation, args[0])
			}
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				seasons, err := store.ListSeasons(commandCtx(cmd), id)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.FromSeasons(seasons))
				}
				if len(seasons) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No seasons")
					return nil
				}
				rows := make([][]string, 0, len(seasons))
				for _, season := range seasons {
					rows = append(rows, []string{strconv.Itoa(season.Season), strconv.Itoa(season.Episodes)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Season", "Episodes"}, rows, []columnAlignment{alignRight, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newMappingsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "List source-to-library mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				mappings, err := store.ListAllMappings(commandCtx(cmd))
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.FromMappings(mappings))
				}
				if len(mappings) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No mappings")
					return nil
				}
				rows := make([][]string, 0, len(mappings))
				for _, mapping := range mappings {
					rows = append(rows, []string{
						relativeSource(cfg, mapping.SourcePath),
						mapping.TargetPath,
						strconv.FormatFloat(mapping.ConfidenceScore, 'f', 2, 64),
						yesNo(mapping.ManualOverride),
						yesNo(mapping.Archived),
					})
				}
				headers := []string{"Source", "Target", "Score", "Manual", "Archived"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignRight}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.AddCommand(newMappingDeleteCommand(ctx))
	return cmd
}

func newMappingDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <sourcePath>",
		Short: "Delete a mapping and park its entry for manual resolution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourcePath := strings.TrimSpace(args[0])
			client, err := ctx.remote()
			if err != nil {
				return err
			}
			if client != nil {
				err := ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
					return store.DeleteMapping(commandCtx(cmd), sourcePath)
				})
				if err != nil {
					return err
				}
				if err := client.post(commandCtx(cmd), "/trigger", nil, nil); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted mapping for %s; daemon will remove the link shortly\n", sourcePath)
				return nil
			}
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				if err := rt.Store.DeleteMapping(commandCtx(cmd), sourcePath); err != nil {
					return err
				}
				report, err := rt.Synchronizer.Sync(commandCtx(cmd))
				if err != nil {
					return fmt.Errorf("mapping deleted but link sync failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted mapping for %s (%d link(s) removed)\n", sourcePath, report.Removed)
				return nil
			})
		},
	}
}

func renderEntries(cfg *config.Config, entries []catalog.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		state := string(entry.State)
		if entry.Archived {
			state += " (archived)"
		}
		rows = append(rows, []string{
			strconv.FormatInt(entry.ID, 10),
			state,
			relativeSource(cfg, entry.Path),
			nameparse.QualityLabel(entry.QualityScore),
			strconv.Itoa(entry.RepairAttempts),
			formatSeen(entry.LastSeenAt),
			entry.LastErrorKind,
		})
	}
	headers := []string{"ID", "State", "Source", "Quality", "Attempts", "Last Seen", "Error"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight}
	return renderTable(headers, rows, aligns)
}

func relativeSource(cfg *config.Config, path string) string {
	if cfg == nil || cfg.Source.Root == "" {
		return path
	}
	rel, err := filepath.Rel(cfg.Source.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func formatSeen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatYear(year int) string {
	if year <= 0 {
		return "-"
	}
	return strconv.Itoa(year)
}
