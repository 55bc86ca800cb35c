package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lunikdev/pledo/internal/core"
	"github.com/lunikdev/pledo/internal/engine/types"
	"github.com/lunikdev/pledo/internal/tui"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Queue movies, episodes, seasons, shows or playlists for download",
	Long: `get asks the daemon to download catalog entries by their Plex rating key.
Media must be synced into the catalog first with 'pledo library sync'.`,
}

// queueCommand builds a get subcommand that forwards its arguments to the daemon.
func queueCommand(use, short string, nargs int, queue func(ctx context.Context, svc core.DownloadService, args []string, file string) ([]types.DownloadStatus, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			remote, err := newRemote()
			if err != nil {
				return err
			}
			queued, err := queue(cmd.Context(), remote, args, file)
			if err != nil {
				return err
			}
			printQueued(cmd.OutOrStdout(), queued)
			return nil
		},
	}
}

var (
	getMovieCmd = queueCommand("movie <key>", "Download a movie", 1,
		func(ctx context.Context, svc core.DownloadService, args []string, file string) ([]types.DownloadStatus, error) {
			return svc.Movie(ctx, args[0], file)
		})
	getEpisodeCmd = queueCommand("episode <key>", "Download an episode", 1,
		func(ctx context.Context, svc core.DownloadService, args []string, file string) ([]types.DownloadStatus, error) {
			return svc.Episode(ctx, args[0], file)
		})
	getSeasonCmd = queueCommand("season <show key> <season>", "Download every episode of a season", 2,
		func(ctx context.Context, svc core.DownloadService, args []string, _ string) ([]types.DownloadStatus, error) {
			season, err := strconv.Atoi(args[1])
			if err != nil {
				return nil, fmt.Errorf("invalid season %q", args[1])
			}
			return svc.Season(ctx, args[0], season)
		})
	getShowCmd = queueCommand("show <show key>", "Download every episode of a show", 1,
		func(ctx context.Context, svc core.DownloadService, args []string, _ string) ([]types.DownloadStatus, error) {
			return svc.Show(ctx, args[0])
		})
	getPlaylistCmd = queueCommand("playlist <key>", "Download the items of a playlist", 1,
		func(ctx context.Context, svc core.DownloadService, args []string, _ string) ([]types.DownloadStatus, error) {
			return svc.Playlist(ctx, args[0])
		})
)

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.AddCommand(getMovieCmd, getEpisodeCmd, getSeasonCmd, getShowCmd, getPlaylistCmd)

	getMovieCmd.Flags().String("file", "", "Download URI of a specific media file (default: preferred resolution and codec)")
	getEpisodeCmd.Flags().String("file", "", "Download URI of a specific media file (default: preferred resolution and codec)")
}

func printQueued(out io.Writer, queued []types.DownloadStatus) {
	if len(queued) == 0 {
		fmt.Fprintln(out, "Nothing new to download.")
		return
	}
	for _, s := range queued {
		fmt.Fprintf(out, "Queued: %s [%s] -> %s\n", s.Name, tui.ShortID(s.ID), s.FilePath)
	}
}
