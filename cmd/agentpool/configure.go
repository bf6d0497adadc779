package agentpool

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/agentpool/internal/config"
)

var (
	configureStrategy    string
	configureMaxOverflow int
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Update strategy/max_overflow in the config file in place",
	Long: `Rewrite the strategy and/or max_overflow keys in the active config
file without disturbing any other key, ordering, or comments.

A running "agentpool serve" or "agentpool dashboard" process watching that
same file (internal/config.Watch) will pick the change up automatically.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
	configureCmd.Flags().StringVar(&configureStrategy, "strategy", "", "lifo or fifo")
	configureCmd.Flags().IntVar(&configureMaxOverflow, "max-overflow", -1, "new max_overflow value")
}

func runConfigure(_ *cobra.Command, _ []string) error {
	path := v.ConfigFileUsed()
	if path == "" {
		return fmt.Errorf("no config file in use; run a subcommand once to create one, or pass --config")
	}

	if configureStrategy != "" {
		if configureStrategy != "lifo" && configureStrategy != "fifo" {
			return fmt.Errorf("invalid strategy %q: must be lifo or fifo", configureStrategy)
		}
		if err := config.SetStrategy(path, configureStrategy); err != nil {
			return fmt.Errorf("setting strategy: %w", err)
		}
		fmt.Printf("strategy set to %s in %s\n", configureStrategy, path)
	}

	if configureMaxOverflow >= 0 {
		if err := config.SetMaxOverflow(path, configureMaxOverflow); err != nil {
			return fmt.Errorf("setting max_overflow: %w", err)
		}
		fmt.Printf("max_overflow set to %d in %s\n", configureMaxOverflow, path)
	}

	return nil
}
