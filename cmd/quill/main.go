package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quillhq/quill/internal/config"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "quill",
		Short: "Quill - AI-powered text correction via local CLI tools",
		Long: `quill corrects grammar, spelling, and punctuation in text by driving
locally installed AI CLI tools (claude, codex, gemini).

Mentions, emoji shortcodes, URLs, emails, file paths, and code spans
are protected before the text reaches the AI and restored verbatim
afterwards, so a correction can never mangle them.`,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for tool consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file path (default ~/.quill/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(
		newVersionCmd(),
		newCorrectCmd(),
		newDiffCmd(),
		newProtectCmd(),
		newPrewarmCmd(),
		newMCPServerCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "quill version %s\n", version)
			}
		},
	}
}

// loadConfig reads the config file named by the --config flag, falling
// back to the default location.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// readText returns the positional text argument, or the whole of stdin
// when no argument was given.
func readText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// newLogger keeps routine engine chatter off the terminal; warnings and
// errors still reach stderr.
func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}
