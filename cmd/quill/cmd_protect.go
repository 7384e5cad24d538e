package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillhq/quill/internal/guard"
)

func newProtectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "protect [text]",
		Short: "Replace sensitive tokens in text with placeholders",
		Long: `Scan text for mentions, emoji shortcodes, URLs, emails, file paths,
and code spans, replacing each with an opaque placeholder.

This is the same protection step 'quill correct' applies before text
reaches the AI tool. With --json the token mapping is included so the
originals can be restored.

Examples:
  quill protect "ping @alice at https://example.com"
  echo "see ~/notes/todo.md" | quill protect --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}
			res := guard.Protect(text)

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"protected_text": res.ProtectedText,
					"tokens":         res.Tokens,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.ProtectedText)
			return nil
		},
	}
}
