package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/entity"
)

var wordsPrintControl string

var wordsCmd = &cobra.Command{
	Use:   "words",
	Short: "List and curate the extracted words of a page",
	Long: `Curation commands address a block by its page path and block id:

  libriscan words list acme/letters/doc-1/1
  libriscan words edit acme/letters/doc-1/1 <block-id> "History"
  libriscan words merge acme/letters/doc-1/1 <block-id>
  libriscan words revert acme/letters/doc-1/1 <block-id>

Use --actor to record who made a change.`,
}

func blockRef(path, id string) (entity.BlockRef, error) {
	p, err := entity.ParseOwnershipPath(path)
	if err != nil {
		return entity.BlockRef{}, err
	}
	blockID, err := uuid.Parse(id)
	if err != nil {
		return entity.BlockRef{}, fmt.Errorf("block id %q: %w", id, err)
	}
	return entity.BlockRef{OwnershipPath: p, BlockID: blockID}, nil
}

// blockCommand builds a subcommand that acts on one block and prints its new view.
func blockCommand(use, short string, extra int, run func(ctx context.Context, a *app, ref entity.BlockRef, args []string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2 + extra),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := blockRef(args[0], args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				out, err := run(ctx, a, ref, args[2:])
				if err != nil {
					return err
				}
				return printOut(cmd.OutOrStdout(), out)
			})
		},
	}
}

var wordsListCmd = &cobra.Command{
	Use:   "list ORG/COLLECTION/DOCUMENT/PAGE",
	Short: "List a page's words in reading order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := entity.ParseOwnershipPath(args[0])
		if err != nil {
			return err
		}
		var controls []constants.PrintControl
		if wordsPrintControl != "" {
			for _, s := range strings.Split(wordsPrintControl, ",") {
				pc, ok := constants.ParsePrintControl(s)
				if !ok {
					return fmt.Errorf("unknown print control %q", s)
				}
				controls = append(controls, pc)
			}
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			words, err := a.curation.Words(ctx, path, controls...)
			if err != nil {
				return err
			}
			views := make([]entity.BlockView, 0, len(words))
			for _, w := range words {
				views = append(views, w.View())
			}
			return printOut(cmd.OutOrStdout(), views)
		})
	},
}

func init() {
	wordsListCmd.Flags().StringVar(&wordsPrintControl, "print-control", "", "comma separated print controls to include (default all)")

	wordsCmd.AddCommand(
		wordsListCmd,
		blockCommand("edit PAGE BLOCK TEXT", "Replace a word's text", 1,
			func(ctx context.Context, a *app, ref entity.BlockRef, args []string) (any, error) {
				return a.curation.Edit(ctx, ref, args[0])
			}),
		blockCommand("print-control PAGE BLOCK I|M|O", "Set whether a word is exported", 1,
			func(ctx context.Context, a *app, ref entity.BlockRef, args []string) (any, error) {
				return a.curation.SetPrintControl(ctx, ref, args[0])
			}),
		blockCommand("text-type PAGE BLOCK P|H", "Mark a word as printed or handwritten", 1,
			func(ctx context.Context, a *app, ref entity.BlockRef, args []string) (any, error) {
				return a.curation.SetTextType(ctx, ref, args[0])
			}),
		blockCommand("review PAGE BLOCK", "Toggle a word's review flag", 0,
			func(ctx context.Context, a *app, ref entity.BlockRef, _ []string) (any, error) {
				return a.curation.ToggleReview(ctx, ref)
			}),
		blockCommand("revert PAGE BLOCK", "Restore a word to its extracted state", 0,
			func(ctx context.Context, a *app, ref entity.BlockRef, _ []string) (any, error) {
				return a.curation.Revert(ctx, ref)
			}),
		blockCommand("history PAGE BLOCK", "Show a word's change history, newest first", 0,
			func(ctx context.Context, a *app, ref entity.BlockRef, _ []string) (any, error) {
				return a.curation.History(ctx, ref)
			}),
		blockCommand("merge PAGE BLOCK", "Join a word with the included word before it", 0,
			func(ctx context.Context, a *app, ref entity.BlockRef, _ []string) (any, error) {
				return a.curation.Merge(ctx, ref)
			}),
		blockCommand("merge-pair PAGE BLOCK OTHER", "Join two adjacent words on the same line", 1,
			func(ctx context.Context, a *app, ref entity.BlockRef, args []string) (any, error) {
				other, err := blockRef(ref.OwnershipPath.String(), args[0])
				if err != nil {
					return nil, err
				}
				return a.curation.MergePair(ctx, ref, other)
			}),
	)
	rootCmd.AddCommand(wordsCmd)
}
