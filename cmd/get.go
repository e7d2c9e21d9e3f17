package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidal-downloader/tidal/internal/config"
	"github.com/tidal-downloader/tidal/internal/core"
	"github.com/tidal-downloader/tidal/internal/engine/events"
	"github.com/tidal-downloader/tidal/internal/engine/types"
	"github.com/tidal-downloader/tidal/internal/utils"
)

// getPollInterval backs up the event stream, which drops events when full.
const getPollInterval = 500 * time.Millisecond

var getCmd = &cobra.Command{
	Use:   "get <url>",
	Short: "Download a single file in the foreground",
	Long:  `get downloads one URL without a daemon and exits when it finishes. Interrupting keeps the partial file.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		outputDir, _ := cmd.Flags().GetString("output")
		filename, _ := cmd.Flags().GetString("filename")
		segments, _ := cmd.Flags().GetInt("segments")

		settings := initializeGlobalState()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		path, err := runGet(ctx, settings, args[0], outputDir, filename, segments, os.Stdout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nSaved %s\n", path)
	},
}

func init() {
	getCmd.Flags().StringP("output", "o", ".", "Output directory")
	getCmd.Flags().String("filename", "", "Name for the downloaded file")
	getCmd.Flags().IntP("segments", "s", 0, "Parallel segments (0 uses the configured default)")
	rootCmd.AddCommand(getCmd)
}

// runGet downloads url with a private engine and returns the final path.
func runGet(ctx context.Context, settings *config.Settings, url, outputDir, filename string, segments int, out io.Writer) (string, error) {
	service := core.NewLocalDownloadService(settings, nil)
	defer func() { _ = service.Shutdown() }()

	stream, cancel, err := service.StreamEvents(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	id, err := service.Add(url, outputDir, filename, segments)
	if err != nil {
		return "", err
	}

	ticker := time.NewTicker(getPollInterval)
	defer ticker.Stop()

	for {
		var task *types.DownloadStatus
		select {
		case e, ok := <-stream:
			if !ok {
				return "", errors.New("interrupted; partial file kept")
			}
			if e.Task.ID != id || e.Type == events.TaskRemoved {
				continue
			}
			s := types.StatusFromTask(e.Task)
			task = &s
		case <-ticker.C:
			s, err := service.GetStatus(id)
			if err != nil {
				return "", err
			}
			task = s
		}

		printGetProgress(*task, out)
		switch task.Status {
		case types.StatusCompleted.String():
			return task.DestPath, nil
		case types.StatusError.String():
			return "", fmt.Errorf("download failed: %s", task.Error)
		case types.StatusCancelled.String():
			return "", errors.New("download cancelled")
		}
	}
}

func printGetProgress(s types.DownloadStatus, out io.Writer) {
	line := fmt.Sprintf("\r%s  %5.1f%%  %s / %s  %s",
		truncate(s.Filename, 32),
		s.Progress,
		utils.ConvertBytesToHumanReadable(s.Downloaded),
		utils.ConvertBytesToHumanReadable(s.TotalSize),
		utils.FormatSpeed(s.Speed))
	if s.ETA > 0 {
		line += "  ETA " + utils.FormatETA(s.ETA)
	}
	fmt.Fprintf(out, "%-90s", line)
}
