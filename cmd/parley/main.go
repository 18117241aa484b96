// Parley is a voice and text assistant daemon. It classifies each utterance,
// runs the matching action or asks a chat model, speaks the reply and, in
// hands-free mode, listens for the next one.
//
// Usage:
//
//	parley serve [--config /path/to/parley.yaml]
//	parley ask "what's the weather in Amman"
//	parley version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nadzzz/parley/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

var configFile string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "parley",
		Short:        "Conversational voice and text assistant",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file (e.g. configs/parley.local.yaml)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newAskCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "parley %s\n", version)
		},
	}
}

// loadConfig reads configuration and installs the logger it describes.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	config.SetupLogging(cfg.Logging)
	return cfg, nil
}
