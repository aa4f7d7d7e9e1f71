package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/libriscan/libriscan/internal/export"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export ORG/COLLECTION/DOCUMENT",
	Short: "Write a document's included words as text or a spreadsheet",
	Long: `Export every included word of a document, page by page.

Formats:
  text  one line of output per line of words, each page ending in a newline
  xlsx  one row per word with position, confidence, text type and review flag

Examples:
  libriscan export acme/letters/doc-1 > doc-1.txt
  libriscan export acme/letters/doc-1 --format xlsx --out doc-1.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := parseDocumentRef(args[0])
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			var (
				data []byte
				err  error
			)
			switch exportFormat {
			case "text":
				data, err = a.export.Text(ctx, ref)
			case "xlsx":
				if exportOut == "" {
					return fmt.Errorf("--out is required for xlsx")
				}
				data, err = a.export.XLSX(ctx, ref)
			default:
				return fmt.Errorf("unknown export format %q: use text or xlsx", exportFormat)
			}
			if err != nil {
				return err
			}
			if exportOut == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(exportOut, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", exportOut, err)
			}
			a.logger.Info("export written", "document", args[0], "format", exportFormat, "path", exportOut, "bytes", len(data))
			return nil
		})
	},
}

func parseDocumentRef(s string) (export.DocumentRef, error) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return export.DocumentRef{}, fmt.Errorf("document path %q must look like org/collection/document", s)
	}
	return export.DocumentRef{Organization: parts[0], Collection: parts[1], Document: parts[2]}, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "text", "export format: text or xlsx")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "write to this file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
