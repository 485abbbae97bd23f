package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fastgate/fastgate/internal/agent"
	"github.com/fastgate/fastgate/internal/dependency"
	"github.com/fastgate/fastgate/internal/shared/llmutils"
)

var (
	flagMessage string
	flagSession string
	flagModel   string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat, or send a single message with -m",
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := dependency.New(dependency.Options{
			ConfigPath: flagConfig,
			Model:      flagModel,
		})
		if err != nil {
			return err
		}

		manager, err := container.Manager()
		if err != nil {
			return err
		}
		engine, err := container.Engine()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := manager.Connect(ctx); err != nil {
			return err
		}
		defer manager.Close()

		sessionID := llmutils.FirstNonEmpty(flagSession, "cli:default")

		if flagMessage != "" {
			return runOnce(ctx, engine, sessionID, flagMessage)
		}
		return runREPL(ctx, container, engine, sessionID)
	},
}

func init() {
	chatCmd.Flags().StringVarP(&flagMessage, "message", "m", "", "send one message and exit")
	chatCmd.Flags().StringVar(&flagSession, "session", "", "session id (default cli:default)")
	chatCmd.Flags().StringVar(&flagModel, "model", "", "override the configured model")
	rootCmd.AddCommand(chatCmd)
}

func runOnce(ctx context.Context, engine *agent.Engine, sessionID, text string) error {
	answer, err := engine.ProcessMessage(ctx, sessionID, text)
	if err != nil {
		return describeTurnError(err)
	}
	fmt.Println(answer)
	return nil
}

func runREPL(ctx context.Context, container *dependency.Container, engine *agent.Engine, sessionID string) error {
	fmt.Printf("fastgate chat, session %s (type 'exit' to quit, '/reset' to clear history)\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if line == "/reset" {
			store, err := container.Store()
			if err != nil {
				return err
			}
			if err := store.Reset(sessionID); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				continue
			}
			fmt.Println("Session cleared.")
			continue
		}

		answer, err := engine.ProcessMessage(ctx, sessionID, line)
		if err != nil {
			if agent.IsTurnError(err, agent.KindCancelled) {
				return nil
			}
			fmt.Fprintln(os.Stderr, "Error:", describeTurnError(err))
			continue
		}
		fmt.Println(answer)
	}
	return scanner.Err()
}

// describeTurnError rewrites turn failures into actionable CLI messages.
func describeTurnError(err error) error {
	var te *agent.TurnError
	if !errors.As(err, &te) {
		return err
	}
	switch te.Kind {
	case agent.KindRegistryUnavailable:
		return fmt.Errorf("tool servers unreachable: %w (check tools.mcpServers in your config)", err)
	case agent.KindOracleUnavailable:
		return fmt.Errorf("LLM unreachable: %w (check provider credentials with `fastgate status`)", err)
	case agent.KindLoopExhausted:
		return fmt.Errorf("the model kept calling tools without answering: %w", err)
	default:
		return err
	}
}
