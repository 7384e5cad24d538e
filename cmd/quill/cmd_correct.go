package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quillhq/quill/internal/engine"
	"github.com/quillhq/quill/internal/provider"
)

func newCorrectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correct [text]",
		Short: "Correct grammar and spelling in text",
		Long: `Send text to the configured AI CLI tool and print the corrected result.

Reads the text from the argument, or from stdin when no argument is given.

Examples:
  quill correct "teh quick brown fox"
  pbpaste | quill correct
  quill correct --provider gemini --model gemini-2.5-flash "some text"
  quill correct --show-diff "teh quick brown fox"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}
			if text == "" {
				return fmt.Errorf("no text to correct")
			}

			req := cfg.NewRequest(text)
			if cmd.Flags().Changed("provider") {
				raw, _ := cmd.Flags().GetString("provider")
				name, err := provider.ParseName(raw)
				if err != nil {
					return err
				}
				req.Provider = name
			}
			if cmd.Flags().Changed("model") {
				req.Model, _ = cmd.Flags().GetString("model")
			}
			if cmd.Flags().Changed("timeout") {
				req.TimeoutSeconds, _ = cmd.Flags().GetInt("timeout")
			}
			if cmd.Flags().Changed("prompt") {
				req.SystemPrompt, _ = cmd.Flags().GetString("prompt")
			}
			stream, _ := cmd.Flags().GetBool("stream")
			jsonOut, _ := cmd.Flags().GetBool("json")
			req.Streaming = stream && !jsonOut

			engineCfg := cfg.EngineConfig()
			engineCfg.Logger = newLogger()
			eng := engine.New(engineCfg)
			defer eng.Close()

			var printed string
			onChunk := func(chunk string) {
				// Chunks grow monotonically; print only the new suffix.
				if strings.HasPrefix(chunk, printed) {
					fmt.Fprint(cmd.OutOrStdout(), chunk[len(printed):])
					printed = chunk
				}
			}
			if !req.Streaming {
				onChunk = nil
			}

			res, err := eng.CorrectTextStreaming(cmd.Context(), req, onChunk)
			if err != nil {
				return fmt.Errorf("correction failed: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
			}

			switch {
			case printed == res.Text:
				fmt.Fprintln(cmd.OutOrStdout())
			case strings.HasPrefix(res.Text, printed):
				fmt.Fprintln(cmd.OutOrStdout(), res.Text[len(printed):])
			default:
				// Token restoration rewrote already-printed text; start a
				// fresh line with the authoritative result.
				if printed != "" {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			}
			if showDiff, _ := cmd.Flags().GetBool("show-diff"); showDiff {
				fmt.Fprintln(os.Stderr, renderDiff(res.Diff))
				fmt.Fprintln(os.Stderr, res.Summary())
			}
			if res.UsedFallback {
				fmt.Fprintln(os.Stderr, "note: correction used the fallback path")
			}
			for _, tok := range res.UnverifiedTokens {
				fmt.Fprintf(os.Stderr, "warning: %s token %q could not be verified in the output\n", tok.Kind, tok.Original)
			}
			return nil
		},
	}

	cmd.Flags().String("provider", "", "Provider CLI to use: claude, codex, or gemini")
	cmd.Flags().String("model", "", "Provider-specific model alias")
	cmd.Flags().String("prompt", "", "Override the correction system prompt")
	cmd.Flags().Int("timeout", 0, "Timeout in seconds for the provider round trip")
	cmd.Flags().Bool("stream", false, "Print corrected text incrementally as it arrives")
	cmd.Flags().Bool("show-diff", false, "Print a word-level diff to stderr")

	return cmd
}
