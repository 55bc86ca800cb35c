package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lunikdev/pledo/internal/engine/types"
	"github.com/lunikdev/pledo/internal/tui"
)

var lsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"l"},
	Short:   "List downloads",
	Long:    `List every download the daemon knows of, or only the pending ones with --pending.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pending, _ := cmd.Flags().GetBool("pending")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		remote, err := newRemote()
		if err != nil {
			return err
		}

		title := "Downloads"
		var statuses []types.DownloadStatus
		if pending {
			title = "Pending"
			statuses, err = remote.Pending(cmd.Context())
		} else {
			statuses, err = remote.List(cmd.Context())
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), statuses)
		}
		view := tui.NewListView(tui.DefaultWidth, tui.ConfigureOutput(os.Stdout))
		fmt.Fprintln(cmd.OutOrStdout(), view.Downloads(title, statuses))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().Bool("pending", false, "Only list queued and running downloads")
	lsCmd.Flags().Bool("json", false, "Print the listing as JSON")
}
