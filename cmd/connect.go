package cmd

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/tidal-downloader/tidal/internal/core"
	"github.com/tidal-downloader/tidal/internal/tui"
)

var connectCmd = &cobra.Command{
	Use:   "connect [host:port]",
	Short: "Connect TUI to a running Tidal daemon",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		target := resolveHostTarget()
		if len(args) > 0 {
			target = args[0]
		}
		if target == "" {
			// Auto-discovery from local port file
			port := readActivePort()
			if port == 0 {
				fmt.Println("No active Tidal daemon found locally.")
				fmt.Println("Usage: tidal connect <host:port>")
				os.Exit(1)
			}
			target = fmt.Sprintf("127.0.0.1:%d", port)
		}

		insecureHTTP, _ := cmd.Flags().GetBool("insecure-http")
		baseURL, err := resolveConnectBaseURL(target, insecureHTTP)
		if err != nil {
			fmt.Println(err.Error())
			os.Exit(1)
		}

		token, err := resolveTokenForTarget(target)
		if err != nil {
			fmt.Println(err.Error())
			os.Exit(1)
		}

		fmt.Printf("Connecting to %s...\n", baseURL)
		service := core.NewRemoteDownloadService(baseURL, token)
		defer func() { _ = service.Shutdown() }()

		// Verify connection
		if _, err := service.List(); err != nil {
			fmt.Printf("Failed to connect: %v\n", err)
			os.Exit(1)
		}

		m := tui.New(service, tui.Options{
			Port:    portFromBaseURL(baseURL),
			Version: Version,
			Remote:  true,
		})
		defer m.Close()

		p := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			fmt.Printf("Error running TUI: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	connectCmd.Flags().Bool("insecure-http", false, "Allow plain HTTP for non-loopback targets")
	rootCmd.AddCommand(connectCmd)
}

func resolveConnectBaseURL(target string, allowInsecureHTTP bool) (string, error) {
	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("invalid target: %v", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", fmt.Errorf("unsupported scheme %q (use http or https)", u.Scheme)
		}
		if u.Host == "" {
			return "", fmt.Errorf("invalid target: missing host")
		}
		if u.Scheme == "http" && !allowInsecureHTTP && !isLoopbackHost(u.Hostname()) {
			return "", fmt.Errorf("refusing insecure HTTP for non-loopback target. Use https:// or --insecure-http")
		}
		return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
	}

	scheme := "https"
	if allowInsecureHTTP || isLoopbackHost(hostnameFromTarget(target)) {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, target), nil
}

// hostnameFromTarget strips scheme and port from a connect target.
func hostnameFromTarget(target string) string {
	if strings.Contains(target, "://") {
		if u, err := url.Parse(target); err == nil {
			return u.Hostname()
		}
	}
	if host, _, err := net.SplitHostPort(target); err == nil {
		return host
	}
	return strings.Trim(target, "[]")
}

func isLoopbackHost(host string) bool {
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

func portFromBaseURL(baseURL string) int {
	u, err := url.Parse(baseURL)
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(u.Port())
	return port
}
