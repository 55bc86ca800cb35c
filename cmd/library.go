package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lunikdev/pledo/internal/tui"
)

var libraryCmd = &cobra.Command{
	Use:     "library",
	Aliases: []string{"lib"},
	Short:   "Refresh, sync and list the libraries of registered servers",
}

var libraryRefreshCmd = &cobra.Command{
	Use:   "refresh <server id>",
	Short: "Fetch the library sections and playlists of a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, err := newRemote()
		if err != nil {
			return err
		}
		libs, err := remote.RefreshLibraries(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Server %s has %d video libraries\n", args[0], len(libs))
		for _, l := range libs {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s (%s)\n", l.ID, l.Name, l.Kind)
		}
		return nil
	},
}

var librarySyncCmd = &cobra.Command{
	Use:   "sync <library id>",
	Short: "Start a background sync of a library into the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, err := newRemote()
		if err != nil {
			return err
		}
		if err := remote.SyncLibrary(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Syncing library %s\n", args[0])
		return nil
	},
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the libraries in the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		remote, err := newRemote()
		if err != nil {
			return err
		}
		libs, err := remote.Libraries(cmd.Context(), server)
		if err != nil {
			return err
		}
		view := tui.NewListView(tui.DefaultWidth, tui.ConfigureOutput(os.Stdout))
		fmt.Fprintln(cmd.OutOrStdout(), view.Libraries(libs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(libraryCmd)
	libraryCmd.AddCommand(libraryRefreshCmd, librarySyncCmd, libraryListCmd)
	libraryListCmd.Flags().String("server", "", "Only list libraries of this server")
}
