package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/libriscan/libriscan/internal/entity"
)

var (
	extractCheckOnly bool
	extractAsync     bool
)

// queuedJob is what extract --async prints.
type queuedJob struct {
	Page string             `json:"page" yaml:"page"`
	Job  *entity.ExtractJob `json:"job" yaml:"job"`
	Hint string             `json:"hint" yaml:"hint"`
}

var extractCmd = &cobra.Command{
	Use:   "extract ORG/COLLECTION/DOCUMENT/PAGE",
	Short: "Extract the words of one page",
	Long: `Run text extraction for a single page and wait for it to finish.

The page is extracted with the backend configured for its organization. A page
that already has words, or whose organization has no backend, is refused. Only
one extraction per page runs at a time, across this command and a running server.

With --async the job is only queued; a running "libriscan serve" picks it up and
"libriscan status" reports progress.

Examples:
  libriscan extract acme/letters/doc-1/1
  libriscan extract acme/letters/doc-1/1 --async
  libriscan extract acme/letters/doc-1/1 --check`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := entity.ParseOwnershipPath(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			if extractCheckOnly {
				ok, err := a.orch.CanExtract(ctx, path)
				if err != nil {
					return err
				}
				return printOut(cmd.OutOrStdout(), map[string]any{"page": path.String(), "can_extract": ok})
			}
			if extractAsync {
				job, err := a.orch.RequestExtraction(ctx, path)
				if err != nil {
					return err
				}
				return printOut(cmd.OutOrStdout(), queuedJob{
					Page: path.String(),
					Job:  job,
					Hint: "libriscan status " + path.String(),
				})
			}
			st, err := a.orch.ExtractNow(ctx, path)
			if err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), st)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status ORG/COLLECTION/DOCUMENT/PAGE",
	Short: "Show the extraction state of one page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := entity.ParseOwnershipPath(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			st, err := a.orch.Status(ctx, path)
			if err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), st)
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reclaim extraction leases older than extraction.lease_timeout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			n, err := a.orch.Sweep(ctx)
			if err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), map[string]int{"reclaimed": n})
		})
	},
}

func init() {
	extractCmd.Flags().BoolVar(&extractCheckOnly, "check", false, "only report whether the page can be extracted")
	extractCmd.Flags().BoolVar(&extractAsync, "async", false, "queue the extraction for a running server and return")
	rootCmd.AddCommand(extractCmd, statusCmd, sweepCmd)
}
