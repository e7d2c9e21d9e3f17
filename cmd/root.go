package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/tidal-downloader/tidal/internal/config"
	"github.com/tidal-downloader/tidal/internal/core"
	"github.com/tidal-downloader/tidal/internal/tui"
	"github.com/tidal-downloader/tidal/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Connection overrides shared by the client commands
var (
	globalHost  string
	globalToken string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "tidal [url]...",
	Short:   "A segmented HTTP download manager",
	Long:    `Tidal downloads files over HTTP with parallel byte-range segments, a download queue and a terminal dashboard.`,
	Version: Version,
	Args:    cobra.ArbitraryArgs,
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
			fmt.Fprintln(os.Stderr, "Use 'tidal add <url>' to add a download to the active instance.")
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

		d, err := startDaemon(settings, portFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer d.Close()

		// Output would corrupt the dashboard; failures land in the debug log
		go queueInitialDownloads(d.service, args, batchFile, io.Discard)

		startTUI(d, settings, exitWhenDone)
	},
}

// startTUI runs the dashboard on the embedded service until the user quits.
func startTUI(d *daemon, settings *config.Settings, exitWhenDone bool) {
	m := tui.New(d.service, tui.Options{
		Port:         d.port,
		Version:      Version,
		Settings:     settings,
		ExitWhenDone: exitWhenDone,
	})
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running program: %v\n", err)
		os.Exit(1)
	}
}

// queueInitialDownloads adds the URLs from the command line and the batch file.
func queueInitialDownloads(service core.DownloadService, args []string, batchFile string, out io.Writer) int {
	urls := append([]string(nil), args...)
	if batchFile != "" {
		fileURLs, err := readURLsFromFile(batchFile)
		if err != nil {
			utils.Debug("Error reading batch file: %v", err)
			fmt.Fprintf(out, "Error reading batch file: %v\n", err)
		} else {
			urls = append(urls, fileURLs...)
		}
	}
	if len(urls) == 0 {
		return 0
	}
	return processDownloads(service, urls, "", out)
}

// processDownloads adds every URL through service and reports failures to
// out. It returns the number of downloads added.
func processDownloads(service core.DownloadService, urls []string, outputDir string, out io.Writer) int {
	if outputDir != "" {
		outputDir = utils.EnsureAbsPath(outputDir)
	}

	successCount := 0
	for _, arg := range urls {
		url := strings.TrimSpace(arg)
		if url == "" {
			continue
		}
		id, err := service.Add(url, outputDir, "", 0)
		if err != nil {
			utils.Debug("Adding %s failed: %v", url, err)
			fmt.Fprintf(out, "Error adding %s: %v\n", url, err)
			continue
		}
		fmt.Fprintf(out, "Queued %s [%s]\n", url, shortID(id))
		successCount++
	}
	return successCount
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalHost, "host", "", "Daemon address to talk to (or set TIDAL_HOST)")
	rootCmd.PersistentFlags().StringVar(&globalToken, "token", "", "Bearer token for the daemon (or set TIDAL_TOKEN)")

	rootCmd.Flags().StringP("batch", "b", "", "File containing URLs to download (one per line)")
	rootCmd.Flags().IntP("port", "p", 0, "Port to listen on (default: 1700 or first available)")
	rootCmd.Flags().StringP("output", "o", "", "Default output directory")
	rootCmd.Flags().Bool("exit-when-done", false, "Exit when all downloads complete")
	rootCmd.SetVersionTemplate("Tidal version {{.Version}}\n")
}

// initializeGlobalState prepares the app directories and logging, and returns
// the validated settings.
func initializeGlobalState() *config.Settings {
	if err := config.EnsureDirs(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create %s: %v\n", config.GetTidalDir(), err)
	}

	logsDir := config.GetLogsDir()
	if err := utils.ConfigureDebug(logsDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: debug log disabled: %v\n", err)
	}

	settings := loadSettings()
	if err := utils.CleanupLogs(logsDir, settings.General.LogRetentionCount); err != nil {
		utils.Debug("Log cleanup failed: %v", err)
	}
	return settings
}

func loadSettings() *config.Settings {
	settings, err := config.LoadSettings()
	if err != nil {
		utils.Debug("Loading settings failed, using defaults: %v", err)
		settings = config.DefaultSettings()
	}
	settings.Validate()
	return settings
}

// shortID is the 8 character prefix used in listings.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
