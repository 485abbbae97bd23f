package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fastgate/fastgate/internal/config"
	"github.com/fastgate/fastgate/internal/providers"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}

		fmt.Println("fastgate status")
		fmt.Println()

		fmt.Printf("Model:      %s\n", cfg.Agents.Defaults.Model)
		fmt.Printf("Workspace:  %s\n", cfg.WorkspacePath())
		fmt.Printf("Max iters:  %d\n", cfg.Agents.Defaults.MaxToolIter)
		fmt.Println()

		fmt.Println("Providers:")
		anyKey := false
		for _, spec := range providers.PROVIDERS {
			pc := cfg.ProviderByName(spec.Name)
			if pc == nil || pc.APIKey == "" {
				continue
			}
			anyKey = true
			marker := " "
			if m := cfg.MatchProvider(cfg.Agents.Defaults.Model); m.Name == spec.Name {
				marker = "*"
			}
			fmt.Printf("  %s %s (key configured)\n", marker, spec.Label())
		}
		if !anyKey {
			fmt.Println("  (none configured; run `fastgate onboard`)")
		}
		fmt.Println()

		fmt.Println("MCP servers:")
		if len(cfg.Tools.MCPServers) == 0 {
			fmt.Println("  (none configured)")
		}
		for name, sc := range cfg.Tools.MCPServers {
			if sc.URL != "" {
				fmt.Printf("  %s → %s\n", name, sc.URL)
			} else {
				fmt.Printf("  %s → %s\n", name, sc.Command)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
