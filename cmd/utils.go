package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lunikdev/pledo/internal/config"
	"github.com/lunikdev/pledo/internal/core"
	"github.com/lunikdev/pledo/internal/utils"
)

// DefaultPort is where the daemon starts looking for a free port.
const DefaultPort = 1800

// maxPortAttempts bounds the search in findAvailablePort.
const maxPortAttempts = 100

func runtimeFile(name string) string {
	return filepath.Join(config.GetRuntimeDir(), name)
}

func writeIntFile(name string, v int) {
	if err := os.WriteFile(runtimeFile(name), []byte(strconv.Itoa(v)), 0o644); err != nil {
		utils.Debug("Error writing %s file: %v", name, err)
	}
}

func readIntFile(name string) int {
	data, err := os.ReadFile(runtimeFile(name))
	if err != nil {
		return 0
	}
	v, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return v
}

func removeRuntimeFile(name string) {
	if err := os.Remove(runtimeFile(name)); err != nil && !os.IsNotExist(err) {
		utils.Debug("Error removing %s file: %v", name, err)
	}
}

func savePID()   { writeIntFile("pid", os.Getpid()) }
func removePID() { removeRuntimeFile("pid") }
func readPID() int {
	return readIntFile("pid")
}

func saveActivePort(port int) { writeIntFile("port", port) }
func removeActivePort()       { removeRuntimeFile("port") }

// readActivePort reads the port of the local daemon, 0 when none runs.
func readActivePort() int {
	return readIntFile("port")
}

// findAvailablePort binds the first free loopback port at or above start.
// It returns 0 and a nil listener when every attempt fails.
func findAvailablePort(start int) (int, net.Listener) {
	for port := start; port < start+maxPortAttempts; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return port, ln
		}
	}
	return 0, nil
}

func resolveHostTarget() string {
	if host := strings.TrimSpace(globalHost); host != "" {
		return host
	}
	return strings.TrimSpace(os.Getenv("PLEDO_HOST"))
}

// resolveAPIConnection returns the base URL of the daemon to talk to: the
// --host target when given, otherwise the local daemon's port file.
func resolveAPIConnection() (string, error) {
	target := resolveHostTarget()
	if target == "" {
		port := readActivePort()
		if port > 0 {
			return fmt.Sprintf("http://127.0.0.1:%d", port), nil
		}
		return "", errors.New("pledo is not running locally. start it with 'pledo server start' or pass --host (or set PLEDO_HOST)")
	}
	return resolveConnectBaseURL(target)
}

// newRemote returns a client for the resolved daemon.
func newRemote() (*core.RemoteDownloadService, error) {
	baseURL, err := resolveAPIConnection()
	if err != nil {
		return nil, err
	}
	return core.NewRemoteDownloadService(baseURL), nil
}

// resolveConnectBaseURL turns host:port or a URL into a base URL. Bare
// targets use http on loopback and https elsewhere.
func resolveConnectBaseURL(target string) (string, error) {
	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("invalid target: %v", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", fmt.Errorf("unsupported scheme %q (use http or https)", u.Scheme)
		}
		if u.Host == "" {
			return "", errors.New("invalid target: missing host")
		}
		return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
	}

	scheme := "https"
	if isLoopbackHost(hostnameFromTarget(target)) {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, target), nil
}

func hostnameFromTarget(target string) string {
	if host, _, err := net.SplitHostPort(target); err == nil {
		return host
	}
	return target
}

func isLoopbackHost(host string) bool {
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
