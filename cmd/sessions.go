package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fastgate/fastgate/internal/dependency"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversation sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := dependency.New(dependency.Options{ConfigPath: flagConfig})
		if err != nil {
			return err
		}
		store, err := container.Store()
		if err != nil {
			return err
		}

		sessions := store.List()
		if len(sessions) == 0 {
			fmt.Println("No sessions.")
			return nil
		}
		for _, s := range sessions {
			fmt.Printf("%-30v updated %v\n", s["id"], s["updated_at"])
		}
		return nil
	},
}

var sessionsResetCmd = &cobra.Command{
	Use:   "reset <session-id>",
	Short: "Clear a session's history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := dependency.New(dependency.Options{ConfigPath: flagConfig})
		if err != nil {
			return err
		}
		store, err := container.Store()
		if err != nil {
			return err
		}
		if err := store.Reset(args[0]); err != nil {
			return err
		}
		fmt.Printf("Session %s cleared.\n", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsResetCmd)
	rootCmd.AddCommand(sessionsCmd)
}
