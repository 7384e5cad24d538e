package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quillhq/quill/internal/diff"
)

func newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Compute a word-level diff between two texts",
		Long: `Compare two texts word by word and print the edits.

Deletions are rendered as [-text-] and insertions as {+text+}.

Examples:
  quill diff "The cat sat" "The big cat sat"
  quill diff --granularity char "colour" "color"
  quill diff --json "old text" "new text"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			granularity, _ := cmd.Flags().GetString("granularity")
			var segments []diff.Segment
			switch granularity {
			case "word":
				segments = diff.WordDiff(args[0], args[1])
			case "char":
				segments = diff.CharDiff(args[0], args[1])
			default:
				return fmt.Errorf("unknown granularity %q (supported: word, char)", granularity)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"segments": segments,
					"summary":  diff.ChangeSummary(segments),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderDiff(segments))
			fmt.Fprintln(cmd.OutOrStdout(), diff.ChangeSummary(segments))
			return nil
		},
	}

	cmd.Flags().String("granularity", "word", "Diff granularity: word or char")
	return cmd
}

// renderDiff renders segments in wdiff-style inline markup.
func renderDiff(segments []diff.Segment) string {
	var b strings.Builder
	for _, s := range segments {
		switch s.Op {
		case diff.OpInsert:
			b.WriteString("{+" + s.Text + "+}")
		case diff.OpDelete:
			b.WriteString("[-" + s.Text + "-]")
		default:
			b.WriteString(s.Text)
		}
	}
	return b.String()
}
