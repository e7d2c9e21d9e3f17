package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidal-downloader/tidal/internal/config"
	"github.com/tidal-downloader/tidal/internal/core"
	"github.com/tidal-downloader/tidal/internal/engine/events"
	"github.com/tidal-downloader/tidal/internal/engine/types"
	"github.com/tidal-downloader/tidal/internal/history"
	"github.com/tidal-downloader/tidal/internal/stream"
	"github.com/tidal-downloader/tidal/internal/utils"
)

const (
	defaultPort     = 1700
	httpStopTimeout = 5 * time.Second
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the Tidal background server (daemon)",
	Long:  `Start, stop, or check the status of the Tidal background server.`,
}

var serverStartCmd = &cobra.Command{
	Use:   "start [url]...",
	Short: "Start the Tidal server in headless mode",
	Run: func(cmd *cobra.Command, args []string) {
		settings := initializeGlobalState()

		// Attempt to acquire lock
		isMaster, err := AcquireLock()
		if err != nil {
			fmt.Printf("Error acquiring lock: %v\n", err)
			os.Exit(1)
		}

		if !isMaster {
			fmt.Fprintln(os.Stderr, "Error: Tidal is already running.")
			os.Exit(1)
		}
		defer func() {
			if err := ReleaseLock(); err != nil {
				utils.Debug("Error releasing lock: %v", err)
			}
		}()

		portFlag, _ := cmd.Flags().GetInt("port")
		batchFile, _ := cmd.Flags().GetString("batch")
		outputDir, _ := cmd.Flags().GetString("output")
		exitWhenDone, _ := cmd.Flags().GetBool("exit-when-done")

		if outputDir != "" {
			settings.General.DefaultDownloadDir = utils.EnsureAbsPath(outputDir)
		}

		// Save current PID to file
		savePID()
		defer removePID()

		if err := startServerLogic(settings, args, portFlag, batchFile, exitWhenDone); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			removePID()
			os.Exit(1)
		}
	},
}

var serverStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running Tidal server",
	Run: func(cmd *cobra.Command, args []string) {
		pid := readPID()
		if pid == 0 {
			fmt.Println("No running Tidal server found (PID file missing).")
			return
		}

		process, err := os.FindProcess(pid)
		if err != nil {
			fmt.Printf("Error finding process: %v\n", err)
			return
		}

		// Try to send SIGTERM
		if err := process.Signal(syscall.SIGTERM); err != nil {
			fmt.Printf("Error stopping server: %v\n", err)
			return
		}

		fmt.Printf("Sent stop signal to process %d\n", pid)
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of the Tidal server",
	Run: func(cmd *cobra.Command, args []string) {
		pid := readPID()
		if pid == 0 {
			fmt.Println("Tidal server is NOT running.")
			return
		}

		if !processAlive(pid) {
			fmt.Printf("Tidal server is NOT running (Process %d dead).\n", pid)
			return
		}

		port := readActivePort()
		fmt.Printf("Tidal server is running (PID: %d, Port: %d).\n", pid, port)

		dir := loadSettings().General.DefaultDownloadDir
		if usage, err := utils.DiskUsage(utils.EnsureAbsPath(dir)); err == nil {
			fmt.Printf("Download dir %s: %s free of %s (%.1f%% used)\n",
				dir,
				utils.ConvertBytesToHumanReadable(int64(usage.Free)),
				utils.ConvertBytesToHumanReadable(int64(usage.Total)),
				usage.UsedPercent)
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverStopCmd)
	serverCmd.AddCommand(serverStatusCmd)

	serverStartCmd.Flags().StringP("batch", "b", "", "File containing URLs to download")
	serverStartCmd.Flags().IntP("port", "p", 0, "Port to listen on")
	serverStartCmd.Flags().StringP("output", "o", "", "Default output directory")
	serverStartCmd.Flags().Bool("exit-when-done", false, "Exit when all downloads complete")
}

// processAlive sends signal 0 to check that pid exists.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func pidFilePath() string {
	return filepath.Join(config.GetRuntimeDir(), "pid")
}

func savePID() {
	pid := os.Getpid()
	if err := os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		utils.Debug("Error writing PID file: %v", err)
	}
}

func removePID() {
	if err := os.Remove(pidFilePath()); err != nil && !os.IsNotExist(err) {
		utils.Debug("Error removing PID file: %v", err)
	}
}

func readPID() int {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return pid
}

func portFilePath() string {
	return filepath.Join(config.GetRuntimeDir(), "port")
}

// saveActivePort records the API port for CLI and extension discovery
func saveActivePort(port int) {
	if err := os.WriteFile(portFilePath(), []byte(strconv.Itoa(port)), 0o644); err != nil {
		utils.Debug("Error writing port file: %v", err)
		return
	}
	utils.Debug("HTTP server listening on port %d", port)
}

// removeActivePort cleans up the port file on exit
func removeActivePort() {
	if err := os.Remove(portFilePath()); err != nil && !os.IsNotExist(err) {
		utils.Debug("Error removing port file: %v", err)
	}
}

// readActivePort reads the port from the port file
func readActivePort() int {
	data, err := os.ReadFile(portFilePath())
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return port
}

// findAvailablePort tries ports starting from 'start' until one is available
func findAvailablePort(start int) (int, net.Listener) {
	for port := start; port < start+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return port, ln
		}
	}
	return 0, nil
}

// listen binds the API port: exactly portFlag when set, else the first free
// port from defaultPort.
func listen(portFlag int) (int, net.Listener, error) {
	if portFlag > 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", portFlag))
		if err != nil {
			return 0, nil, fmt.Errorf("could not bind to port %d: %w", portFlag, err)
		}
		return portFlag, ln, nil
	}
	port, ln := findAvailablePort(defaultPort)
	if ln == nil {
		return 0, nil, errors.New("could not find available port")
	}
	return port, ln, nil
}

// daemon is the embedded engine together with the API serving it.
type daemon struct {
	service *core.LocalDownloadService
	hub     *stream.Hub
	server  *http.Server
	port    int
	cancel  context.CancelFunc
}

// startDaemon opens the history ledger, builds the local service and serves
// the API on a loopback port recorded in the port file.
func startDaemon(settings *config.Settings, portFlag int) (*daemon, error) {
	port, ln, err := listen(portFlag)
	if err != nil {
		return nil, err
	}

	store, err := history.Open(filepath.Join(config.GetStateDir(), history.FileName))
	if err != nil {
		// Downloads work without the ledger
		utils.Debug("History disabled: %v", err)
		store = nil
	}

	service := core.NewLocalDownloadService(settings, store)
	hub := stream.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	service.Manager.AddListener(hub)

	handler := newAPIHandler(service, hub, port, service.DownloadDir)
	server := &http.Server{
		Handler:           corsMiddleware(authMiddleware(ensureAuthToken(), handler)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Debug("HTTP server error: %v", err)
		}
	}()
	saveActivePort(port)

	return &daemon{service: service, hub: hub, server: server, port: port, cancel: cancel}, nil
}

// Close stops the API, disconnects stream clients and pauses running
// downloads.
func (d *daemon) Close() {
	removeActivePort()

	ctx, cancel := context.WithTimeout(context.Background(), httpStopTimeout)
	defer cancel()
	if err := d.server.Shutdown(ctx); err != nil {
		utils.Debug("HTTP server shutdown: %v", err)
	}
	d.cancel()

	if err := d.service.Shutdown(); err != nil {
		utils.Debug("Service shutdown: %v", err)
	}
}

func startServerLogic(settings *config.Settings, args []string, portFlag int, batchFile string, exitWhenDone bool) error {
	d, err := startDaemon(settings, portFlag)
	if err != nil {
		return err
	}
	defer d.Close()

	fmt.Printf("Tidal %s running in server mode.\n", Version)
	fmt.Printf("HTTP server listening on port %d\n", d.port)
	fmt.Println("Press Ctrl+C to exit.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	StartHeadlessConsumer(ctx, d.service, os.Stdout)

	// Queue initial downloads
	go queueInitialDownloads(d.service, args, batchFile, os.Stdout)

	if exitWhenDone {
		go func() {
			if waitUntilSettled(ctx, d.service, 2*time.Second) {
				fmt.Println("All downloads finished. Exiting...")
				stop()
			}
		}()
	}

	<-ctx.Done()
	fmt.Println("\nShutting down...")
	return nil
}

// StartHeadlessConsumer prints a line to out whenever a task changes state.
func StartHeadlessConsumer(ctx context.Context, service core.DownloadService, out io.Writer) {
	ch, cleanup, err := service.StreamEvents(ctx)
	if err != nil {
		utils.Debug("Headless consumer: %v", err)
		return
	}

	go func() {
		defer cleanup()
		last := make(map[string]types.Status)
		for e := range ch {
			if line := describeEvent(e, last); line != "" {
				fmt.Fprintln(out, line)
			}
		}
	}()
}

// describeEvent renders a state change, or "" when the status is unchanged.
// last tracks the previous status per task.
func describeEvent(e events.Event, last map[string]types.Status) string {
	t := e.Task
	id := shortID(t.ID)

	if e.Type == events.TaskRemoved {
		delete(last, t.ID)
		return fmt.Sprintf("Removed: %s [%s]", t.FileName, id)
	}

	prev, seen := last[t.ID]
	last[t.ID] = t.Status
	if seen && prev == t.Status {
		return ""
	}

	switch t.Status {
	case types.StatusWaiting:
		return fmt.Sprintf("Queued: %s [%s]", t.FileName, id)
	case types.StatusDownloading:
		return fmt.Sprintf("Started: %s [%s]", t.FileName, id)
	case types.StatusPaused:
		return fmt.Sprintf("Paused: %s [%s]", t.FileName, id)
	case types.StatusCompleted:
		elapsed := ""
		if !t.StartedAt.IsZero() && !t.CompletedAt.IsZero() {
			elapsed = fmt.Sprintf(" (in %s)", t.CompletedAt.Sub(t.StartedAt).Round(time.Millisecond))
		}
		return fmt.Sprintf("Completed: %s [%s]%s", t.FileName, id, elapsed)
	case types.StatusError:
		return fmt.Sprintf("Error: %s [%s]: %s", t.FileName, id, t.ErrorMessage)
	case types.StatusCancelled:
		return fmt.Sprintf("Cancelled: %s [%s]", t.FileName, id)
	}
	return ""
}

// allSettled reports whether there is at least one task and none is queued
// or running.
func allSettled(statuses []types.DownloadStatus) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		if s.Status == types.StatusWaiting.String() || s.Status == types.StatusDownloading.String() {
			return false
		}
	}
	return true
}

// waitUntilSettled polls service until allSettled holds. It returns false if
// ctx ends first.
func waitUntilSettled(ctx context.Context, service core.DownloadService, interval time.Duration) bool {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			statuses, err := service.List()
			if err == nil && allSettled(statuses) {
				return true
			}
		}
	}
}
