package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kartevonmorgen/kvmsync/cmd/digest"
	"github.com/kartevonmorgen/kvmsync/cmd/recent"
	"github.com/kartevonmorgen/kvmsync/cmd/serve"
	"github.com/kartevonmorgen/kvmsync/cmd/sync"
	"github.com/kartevonmorgen/kvmsync/internal/conf"
	"github.com/kartevonmorgen/kvmsync/internal/runtime"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "kvmsync",
		Short:   "Sync Karte von Morgen directory entries into a local store",
		Version: fmt.Sprintf("%s (built %s)", runtime.Version, runtime.BuildDate),
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		sync.Command(settings),
		recent.Command(settings),
		digest.Command(settings),
		serve.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}
	return nil
}
