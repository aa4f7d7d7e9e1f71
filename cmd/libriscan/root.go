package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/libriscan/libriscan/internal/common"
)

var (
	cfgFile      string
	outputFormat string
	actor        string
)

var rootCmd = &cobra.Command{
	Use:   "libriscan",
	Short: "OCR extraction and text curation for scanned document pages",
	Long: `libriscan turns scanned page images into positioned, editable words.

Pages are extracted through the backend configured for their organization
(AWS Textract, local Tesseract or the test fixture). Extracted words can then
be corrected, merged, reverted and exported as text or a spreadsheet.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case "yaml", "json":
			return nil
		default:
			return fmt.Errorf("unknown output format %q: use yaml or json", outputFormat)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.libriscan/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&actor, "actor", "", "name recorded against curation changes",
	)
}

// loadConfig reads configuration and builds the process logger. Logs go to stderr
// so command output on stdout stays parseable.
func loadConfig() (*common.Loader, *slog.Logger, *slog.LevelVar, error) {
	loader, err := common.NewLoader(cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, level := common.NewLeveledLogger(os.Stderr, loader.Get().Log)
	slog.SetDefault(logger)
	return loader, logger, level, nil
}
