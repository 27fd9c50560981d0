package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bashclaw/bashclaw/internal/hooks"
	"github.com/bashclaw/bashclaw/internal/state"
)

// hooksBridgeCmd is invoked by external engine settings files, not by users.
func hooksBridgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "hooks-bridge <event>",
		Short:  "Relay an external engine hook event through the hook chain",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			disp := hooks.NewDispatcher(state.Hooks())
			out, err := disp.Bridge(cmd.Context(), args[0], string(input))
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
}
