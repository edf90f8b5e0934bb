package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/api"
	"curator/internal/daemonrun"
	"curator/internal/media"
	"curator/internal/services"
	"curator/internal/workflow"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var season int
	var episode int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "resolve <ref> <externalId>",
		Short: "Manually map an entry to a canonical title",
		Long: "Manually map a source entry (path or numeric id) to a provider title.\n" +
			"For series, --season and --episode pick the episode; when omitted they are\n" +
			"read from the entry's names. Manual mappings are never overwritten by scans.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			externalID, err := strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
			if err != nil || externalID <= 0 {
				return fmt.Errorf("%w: invalid external id %q", services.ErrValidation, args[1])
			}
			if strings.TrimSpace(kind) != "" {
				if _, err := media.ParseKind(kind); err != nil {
					return err
				}
			}
			req := api.ResolveRequest{Ref: args[0], ExternalID: externalID, Kind: kind, Season: season, Episode: episode}

			var resp api.ResolveResponse
			client, err := ctx.remote()
			if err != nil {
				return err
			}
			if client != nil {
				err = client.post(commandCtx(cmd), "/api/resolve", req, &resp)
			} else {
				err = ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
					result, err := rt.Manager.ManualResolve(commandCtx(cmd), workflow.ManualRequest{
						Ref:        req.Ref,
						ExternalID: req.ExternalID,
						Kind:       media.Kind(req.Kind),
						Season:     req.Season,
						Episode:    req.Episode,
					})
					if err != nil {
						return err
					}
					resp = api.ResolveResponse{Mapping: api.FromMapping(result.Mapping), Links: api.FromLinkReport(result.Links)}
					return nil
				})
			}
			if err != nil {
				return describeOperatorError(err)
			}
			if jsonOutput {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Mapped %s\n", resp.Mapping.SourcePath)
			fmt.Fprintf(out, "    -> %s\n", resp.Mapping.TargetPath)
			if resp.Links.Created+resp.Links.Replaced > 0 {
				fmt.Fprintln(out, "Link updated")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Title kind: film or series (default: inferred)")
	cmd.Flags().IntVar(&season, "season", 0, "Season number for series")
	cmd.Flags().IntVar(&episode, "episode", 0, "Episode number for series")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <ref>",
		Short: "Reset an entry to new with a fresh repair budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entry api.Entry
			client, err := ctx.remote()
			if err != nil {
				return err
			}
			if client != nil {
				err = client.post(commandCtx(cmd), "/api/entries/retry", api.RetryRequest{Ref: args[0]}, &entry)
			} else {
				err = ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
					reset, err := rt.Manager.Retry(commandCtx(cmd), args[0])
					entry = api.FromEntry(reset)
					return err
				})
			}
			if err != nil {
				return describeOperatorError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entry %d reset to %s: %s\n", entry.ID, entry.State, entry.Path)
			return nil
		},
	}
}

// describeOperatorError adds a next step for the failure classes an operator
// can act on.
func describeOperatorError(err error) error {
	switch services.FailureKind(err) {
	case services.KindCollision:
		return fmt.Errorf("%w\nhint: delete or re-resolve the existing mapping first (curator mappings delete <path>)", err)
	case services.KindNotFound:
		return fmt.Errorf("%w\nhint: list entries with `curator entries`", err)
	default:
		return err
	}
}
