package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/libriscan/libriscan/internal/entity"
	"github.com/libriscan/libriscan/internal/ingest"
)

var (
	importWatch         bool
	importExtract       bool
	importIncludeHidden bool
	importDebounce      time.Duration
)

var importCmd = &cobra.Command{
	Use:   "import ORG/COLLECTION/DOCUMENT DIR",
	Short: "Register page images from a directory as pages of a document",
	Long: `Walk DIR and append every page image (jpg, png, tiff, bmp, webp, heic) to
the document, in file name order, numbered after its last page. Images already
registered by path or content are skipped.

With --watch the command keeps running and imports images as they are saved,
which suits a scanner writing into a shared folder. With --extract each new
page gets a queued extraction job, which a running "libriscan serve" executes.

Examples:
  libriscan import acme/letters/doc-1 ./scans/doc-1
  libriscan import acme/letters/doc-1 ./scans/doc-1 --watch --extract`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := parseDocumentRef(args[0])
		if err != nil {
			return err
		}
		dir := args[1]

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			doc, err := a.orgs.GetDocument(ctx, ref.Organization, ref.Collection, ref.Document)
			if err != nil {
				return err
			}
			imp := ingest.NewImporter(a.pages, a.cfg.Storage.ImageRoot, a.logger)

			extractNew := func(r ingest.Result) {
				if !importExtract || r.Err != "" || r.Duplicate {
					return
				}
				path := entity.OwnershipPath{
					Organization: ref.Organization,
					Collection:   ref.Collection,
					Document:     ref.Document,
					Page:         r.PageNumber,
				}
				job, err := a.orch.RequestExtraction(ctx, path)
				if err != nil {
					a.logger.Warn("extraction not queued", "page", path.String(), "err", err)
					return
				}
				a.logger.Info("extraction queued", "page", path.String(), "job_id", job.ID)
			}

			if importWatch {
				err := imp.Watch(ctx, doc, dir, importDebounce, func(r ingest.Result) {
					extractNew(r)
					_ = printOut(cmd.OutOrStdout(), r)
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			results, stats, err := imp.ImportDirectory(ctx, doc, dir, !importIncludeHidden)
			if err != nil {
				return err
			}
			for _, r := range results {
				extractNew(r)
			}
			return printOut(cmd.OutOrStdout(), map[string]any{"stats": stats, "results": results})
		})
	},
}

func init() {
	importCmd.Flags().BoolVar(&importWatch, "watch", false, "keep importing images as they appear")
	importCmd.Flags().BoolVar(&importExtract, "extract", false, "queue extraction of each newly imported page")
	importCmd.Flags().BoolVar(&importIncludeHidden, "include-hidden", false, "also import files under hidden directories")
	importCmd.Flags().DurationVar(&importDebounce, "debounce", ingest.DefaultDebounce, "quiet period before a saved image is imported")
	rootCmd.AddCommand(importCmd)
}
