package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:     "rm <media key>",
	Aliases: []string{"cancel"},
	Short:   "Cancel a pending download",
	Long:    `Cancel the queued or running download of a media element by its rating key.`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, err := newRemote()
		if err != nil {
			return err
		}
		if err := remote.Cancel(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cancelled download of %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
