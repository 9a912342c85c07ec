package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}
	root := createRootCommand(flags)
	root.AddCommand(
		createRunCommand(flags),
		createProbeCommand(flags),
		createStatusCommand(flags),
		createBridgePathCommand(flags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "socktainerd",
		Short: "Expose the Apple container runtime as a Docker-compatible connection",
		Long: `socktainerd watches the Apple container runtime and, while it is running,
supervises the socktainer bridge and registers its socket as a docker connection.

Examples:
  socktainerd run --config socktainerd.toml
  socktainerd probe
  socktainerd status --api-url http://127.0.0.1:8721/api
  socktainerd bridge-path`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}
