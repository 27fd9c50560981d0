package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func toolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tool <name> [<json> | --<key> <value>...]",
		Short: "Execute a built-in tool and print its result",
		// Tool inputs arrive as --key value pairs; keep cobra's flag
		// parser out of the way.
		DisableFlagParsing: true,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				fmt.Print(cmd.UsageString())
				return
			}
			rt, err := buildRuntime()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			name := args[0]
			if _, ok := rt.registry.Get(name); !ok {
				fmt.Fprintf(os.Stderr, "unknown tool: %s\n", name)
				os.Exit(1)
			}

			res := rt.registry.Execute(cmd.Context(), name, toolInput(args[1:]))
			rt.spawn.Wait()
			fmt.Println(res.ForLLM)
			if res.IsError {
				os.Exit(1)
			}
		},
	}
}

// toolInput accepts either a single JSON document or --key value pairs.
// Flag values that parse as numbers or booleans are typed accordingly so
// schema validation sees what the tool expects.
func toolInput(args []string) string {
	if len(args) == 1 && strings.HasPrefix(strings.TrimSpace(args[0]), "{") {
		return args[0]
	}
	input := map[string]any{}
	for i := 0; i < len(args); i++ {
		if !strings.HasPrefix(args[i], "--") {
			continue
		}
		key := strings.TrimPrefix(args[i], "--")
		if i+1 >= len(args) || strings.HasPrefix(args[i+1], "--") {
			input[key] = true
			continue
		}
		input[key] = coerce(args[i+1])
		i++
	}
	data, _ := json.Marshal(input)
	return string(data)
}

func coerce(v string) any {
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}
