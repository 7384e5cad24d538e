package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillhq/quill/internal/engine"
	"github.com/quillhq/quill/internal/provider"
)

func newPrewarmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prewarm",
		Short: "Verify the provider CLI is installed and the shell session starts",
		Long: `Resolve the provider's executable and run the session handshake.

Use this as a health check after installing or reconfiguring a provider
CLI. Long-running frontends (e.g. the MCP server) perform the same
warmup automatically so their first correction takes the fast path.

Examples:
  quill prewarm
  quill prewarm --provider gemini`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			name := provider.Name(cfg.Provider)
			if cmd.Flags().Changed("provider") {
				raw, _ := cmd.Flags().GetString("provider")
				name, err = provider.ParseName(raw)
				if err != nil {
					return err
				}
			}

			engineCfg := cfg.EngineConfig()
			engineCfg.Logger = newLogger()
			eng := engine.New(engineCfg)
			defer eng.Close()

			if err := eng.Prewarm(cmd.Context(), name); err != nil {
				return fmt.Errorf("prewarm %s: %w", name, err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"provider": name,
					"ready":    true,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is ready\n", name)
			return nil
		},
	}

	cmd.Flags().String("provider", "", "Provider CLI to check: claude, codex, or gemini")
	return cmd
}
