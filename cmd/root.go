package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bashclaw/bashclaw/internal/logging"
	"github.com/bashclaw/bashclaw/internal/state"
	"github.com/bashclaw/bashclaw/internal/version"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "bashclaw",
	Short: "bashclaw — multi-agent conversational runtime",
	Long:  "bashclaw runs conversational agents over a shared session, memory, and tool runtime, with an HTTP gateway, scheduled jobs, and external engine adaptors.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbose)
	},
	Run: func(cmd *cobra.Command, args []string) {
		runGateway()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $BASHCLAW_CONFIG or <state>/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(gatewayCmd())
	rootCmd.AddCommand(toolCmd())
	rootCmd.AddCommand(hooksBridgeCmd())
	rootCmd.AddCommand(cronCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bashclaw %s (%s)\n", version.Version, version.Commit)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return state.ConfigPath()
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
