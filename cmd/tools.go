package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fastgate/fastgate/internal/dependency"
	"github.com/fastgate/fastgate/internal/shared/llmutils"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Connect to the configured MCP servers and list their tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := dependency.New(dependency.Options{ConfigPath: flagConfig})
		if err != nil {
			return err
		}
		manager, err := container.Manager()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := manager.Connect(ctx); err != nil {
			return err
		}
		defer manager.Close()

		tools, err := manager.ListTools(ctx)
		if err != nil {
			return err
		}
		if tools.Len() == 0 {
			fmt.Println("No tools advertised.")
			return nil
		}
		for _, d := range tools.All() {
			fmt.Printf("%-40s %s\n", d.Name, llmutils.Truncate(d.Description, 80))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}
