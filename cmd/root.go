package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lunikdev/pledo/internal/config"
	"github.com/lunikdev/pledo/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// globalHost is the --host flag shared by every client command.
var globalHost string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pledo",
	Short: "Download movies and episodes from a Plex Media Server",
	Long: `pledo keeps a local catalog of the libraries of a Plex Media Server and
downloads movies, episodes, seasons, shows and playlists one at a time
through a background daemon.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalHost, "host", "", "Daemon to talk to as host:port or URL (or set PLEDO_HOST)")
	rootCmd.SetVersionTemplate("pledo version {{.Version}}\n")
}

// initializeGlobalState creates the pledo directories, configures logging
// and returns the current settings. Extra writers receive Info logs.
func initializeGlobalState(extra ...io.Writer) *config.Settings {
	if err := config.EnsureDirs(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create %s: %v\n", config.GetPledoDir(), err)
	}

	utils.ConfigureDebug(config.GetLogsDir(), extra...)

	settings, err := config.LoadSettings()
	if err != nil {
		utils.Debug("Falling back to default settings: %v", err)
		settings = config.DefaultSettings()
	}
	utils.CleanupLogs(settings.General.LogRetentionCount)
	return settings
}
