package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fastgate/fastgate/internal/config"
	"github.com/fastgate/fastgate/internal/providers"
	"github.com/fastgate/fastgate/internal/shared/llmutils"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Interactive first-time setup",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}

		reader := bufio.NewReader(os.Stdin)
		fmt.Println("fastgate setup")
		fmt.Println()

		fmt.Println("Choose an LLM provider:")
		for i, spec := range providers.PROVIDERS {
			fmt.Printf("  %d. %s\n", i+1, spec.Label())
		}
		choice := readLine(reader, "Provider number: ")
		idx, err := strconv.Atoi(choice)
		if err != nil || idx < 1 || idx > len(providers.PROVIDERS) {
			return fmt.Errorf("invalid choice %q", choice)
		}
		spec := providers.PROVIDERS[idx-1]

		pc := cfg.ProviderByName(spec.Name)
		pc.APIKey = readLine(reader, fmt.Sprintf("%s API key: ", spec.Label()))
		if spec.DefaultAPIBase == "" {
			pc.APIBase = readLine(reader, "API base URL: ")
		}

		model := readLine(reader, fmt.Sprintf("Default model [%s]: ", cfg.Agents.Defaults.Model))
		cfg.Agents.Defaults.Model = llmutils.StringOrDefault(model, cfg.Agents.Defaults.Model)

		if err := config.Save(cfg, flagConfig); err != nil {
			return err
		}

		path := flagConfig
		if path == "" {
			path = config.ConfigPath()
		}
		fmt.Println()
		fmt.Printf("Config written to %s\n", path)
		fmt.Println("Add MCP servers under tools.mcpServers, then run `fastgate chat`.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(onboardCmd)
}

func readLine(reader *bufio.Reader, prompt string) string {
	fmt.Print(prompt)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
