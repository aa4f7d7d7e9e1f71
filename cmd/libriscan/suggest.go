package main

import (
	"github.com/spf13/cobra"

	"github.com/libriscan/libriscan/internal/common"
)

var suggestLongS bool

var suggestCmd = &cobra.Command{
	Use:   "suggest WORD",
	Short: "Show spelling suggestions for a word",
	Long: `Print the corrections the extraction pipeline would store for WORD.

With --long-s the word is also read with every "f" as a long s ("Hiftory").`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, _, _, err := loadConfig()
		if err != nil {
			return err
		}
		engine, err := newEngine(loader.Get().Suggest)
		if err != nil {
			return err
		}
		return printOut(cmd.OutOrStdout(), map[string]any{
			"word":        args[0],
			"suggestions": engine.Suggest(args[0], suggestLongS),
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [PATH]",
	Short: "Write the default configuration to PATH (default ./config.yaml)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := common.WriteDefault(path); err != nil {
			return err
		}
		cmd.Printf("wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, _, _, err := loadConfig()
		if err != nil {
			return err
		}
		cfg := *loader.Get()
		if cfg.Extraction.AWSSecretAccessKey != "" {
			cfg.Extraction.AWSSecretAccessKey = "********"
		}
		return printOut(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	suggestCmd.Flags().BoolVar(&suggestLongS, "long-s", false, "also try the long-s reading of the word")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(suggestCmd, configCmd)
}
