package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lunikdev/pledo/internal/catalog"
	"github.com/lunikdev/pledo/internal/config"
	"github.com/lunikdev/pledo/internal/utils"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the pledo daemon and the media servers it knows",
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pledo daemon in the foreground",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := initializeGlobalState(os.Stderr)
		defer utils.CloseLog()

		isMaster, err := AcquireLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !isMaster {
			return errors.New("pledo server is already running")
		}
		defer func() {
			if err := ReleaseLock(); err != nil {
				utils.Debug("Error releasing lock: %v", err)
			}
		}()

		portFlag, _ := cmd.Flags().GetInt("port")
		port, ln, err := listen(portFlag)
		if err != nil {
			return err
		}

		savePID()
		defer removePID()
		saveActivePort(port)
		defer removeActivePort()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, settings, config.FileProvider{}, config.GetCatalogPath(), ln, cmd.OutOrStdout())
	},
}

var serverStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running pledo daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid := readPID()
		if pid == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No running pledo daemon found (PID file missing).")
			return nil
		}
		process, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("find process %d: %w", pid, err)
		}
		if err := process.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("stop daemon: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent stop signal to process %d\n", pid)
		return nil
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the pledo daemon is running",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		pid := readPID()
		if pid == 0 {
			fmt.Fprintln(out, "pledo daemon is NOT running.")
			return
		}
		process, err := os.FindProcess(pid)
		if err == nil {
			err = process.Signal(syscall.Signal(0))
		}
		if err != nil {
			fmt.Fprintf(out, "pledo daemon is NOT running (process %d dead).\n", pid)
			return
		}
		fmt.Fprintf(out, "pledo daemon is running (PID: %d, Port: %d).\n", pid, readActivePort())
	},
}

var serverAddCmd = &cobra.Command{
	Use:   "add <server id>",
	Short: "Register a Plex Media Server with the daemon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		token, _ := cmd.Flags().GetString("token")
		uris, _ := cmd.Flags().GetStringSlice("uri")
		localURIs, _ := cmd.Flags().GetStringSlice("local-uri")
		relayURIs, _ := cmd.Flags().GetStringSlice("relay-uri")

		srv := catalog.Server{ID: args[0], Name: name, AccessToken: token}
		if srv.Name == "" {
			srv.Name = srv.ID
		}
		for _, u := range localURIs {
			srv.Connections = append(srv.Connections, catalog.Connection{URI: u, Local: true})
		}
		for _, u := range uris {
			srv.Connections = append(srv.Connections, catalog.Connection{URI: u})
		}
		for _, u := range relayURIs {
			srv.Connections = append(srv.Connections, catalog.Connection{URI: u, Relay: true})
		}
		if len(srv.Connections) == 0 {
			return errors.New("at least one --uri, --local-uri or --relay-uri is required")
		}

		remote, err := newRemote()
		if err != nil {
			return err
		}
		if err := remote.AddServer(cmd.Context(), srv); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added server %s (%d connections)\n", srv.ID, len(srv.Connections))
		return nil
	},
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered media servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, err := newRemote()
		if err != nil {
			return err
		}
		servers, err := remote.Servers(cmd.Context())
		if err != nil {
			return err
		}
		printServers(cmd.OutOrStdout(), servers)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.AddCommand(serverStartCmd, serverStopCmd, serverStatusCmd, serverAddCmd, serverListCmd)

	serverStartCmd.Flags().IntP("port", "p", 0, "Port to listen on (default: first free port from 1800)")

	serverAddCmd.Flags().String("name", "", "Display name (defaults to the id)")
	serverAddCmd.Flags().String("token", "", "Plex access token")
	serverAddCmd.Flags().StringSlice("uri", nil, "Remote connection URI")
	serverAddCmd.Flags().StringSlice("local-uri", nil, "LAN connection URI, tried first")
	serverAddCmd.Flags().StringSlice("relay-uri", nil, "Relay connection URI, tried last")
}

// listen binds the strict port when given, otherwise the first free one.
func listen(port int) (int, net.Listener, error) {
	if port > 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return 0, nil, fmt.Errorf("could not bind to port %d: %w", port, err)
		}
		return port, ln, nil
	}
	port, ln := findAvailablePort(DefaultPort)
	if ln == nil {
		return 0, nil, errors.New("could not find an available port")
	}
	return port, ln, nil
}

// runServer serves the daemon on ln until ctx is done, printing events to out.
func runServer(ctx context.Context, settings *config.Settings, provider config.Provider, dbPath string, ln net.Listener, out io.Writer) error {
	d, err := newDaemon(settings, provider, dbPath, utils.Logger())
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer func() {
		if err := d.close(); err != nil {
			utils.Debug("Error closing catalog: %v", err)
		}
	}()

	stream, cleanup, err := d.service.StreamEvents(ctx)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer cleanup()

	fmt.Fprintf(out, "pledo %s running in server mode.\n", Version)
	fmt.Fprintf(out, "HTTP server listening on %s\n", ln.Addr())
	StartHeadlessConsumer(stream, out)

	return d.serve(ctx, ln)
}

func printServers(out io.Writer, servers []catalog.Server) {
	if len(servers) == 0 {
		fmt.Fprintln(out, "No servers registered. Add one with 'pledo server add'.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCONNECTIONS\tLAST KNOWN URI")
	for _, s := range servers {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.Name, len(s.Connections), s.LastKnownURI)
	}
	_ = w.Flush()
}
