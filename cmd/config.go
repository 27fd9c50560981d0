package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bashclaw/bashclaw/internal/config"
)

func openConfig() (*config.Store, error) {
	return config.Open(resolveConfigPath())
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the config file",
	}
	cmd.AddCommand(configGetCmd(), configSetCmd(), configInitCmd())
	return cmd
}

func configGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print a config value, or the whole tree with secrets masked",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := openConfig()
			if err != nil {
				return err
			}
			var out any
			if len(args) == 0 {
				out = cfg.Tree(true)
			} else {
				v, ok := cfg.Get(args[0])
				if !ok {
					return fmt.Errorf("config: key %q not set", args[0])
				}
				out = v
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value (JSON values are parsed, anything else is a string)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := openConfig()
			if err != nil {
				return err
			}
			var value any = args[1]
			var parsed any
			if err := json.Unmarshal([]byte(args[1]), &parsed); err == nil {
				value = parsed
			}
			if err := cfg.Backup(); err != nil {
				return err
			}
			return cfg.Set(args[0], value)
		},
	}
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config file if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := openConfig()
			if err != nil {
				return err
			}
			if err := cfg.InitDefault(); err != nil {
				return err
			}
			fmt.Println(cfg.Path())
			return nil
		},
	}
}
