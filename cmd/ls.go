package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidal-downloader/tidal/internal/core"
	"github.com/tidal-downloader/tidal/internal/engine/types"
	"github.com/tidal-downloader/tidal/internal/utils"
)

const watchInterval = time.Second

var lsCmd = &cobra.Command{
	Use:     "ls [id]",
	Aliases: []string{"l"},
	Short:   "List downloads of the running Tidal instance",
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		watch, _ := cmd.Flags().GetBool("watch")

		service, err := clientService()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(args) == 1 {
			if err := showDownloadDetails(service, args[0], jsonOutput, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}

		if !watch {
			if err := printDownloads(service, jsonOutput, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		for {
			fmt.Print("\033[H\033[2J")
			if err := printDownloads(service, jsonOutput, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	},
}

func init() {
	lsCmd.Flags().Bool("json", false, "Output as JSON")
	lsCmd.Flags().BoolP("watch", "w", false, "Refresh the listing every second")
	rootCmd.AddCommand(lsCmd)
}

// printDownloads writes every task as a table, or as a JSON array.
func printDownloads(service core.DownloadService, jsonOutput bool, out io.Writer) error {
	statuses, err := service.List()
	if err != nil {
		return err
	}
	if statuses == nil {
		statuses = []types.DownloadStatus{}
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	if len(statuses) == 0 {
		fmt.Fprintln(out, "No downloads.")
		return nil
	}

	fmt.Fprintf(out, "%-10s %-32s %-12s %8s %12s %10s\n", "ID", "FILENAME", "STATUS", "PROGRESS", "SPEED", "SIZE")
	for _, s := range statuses {
		speed := "-"
		if s.Status == types.StatusDownloading.String() {
			speed = utils.FormatSpeed(s.Speed)
		}
		fmt.Fprintf(out, "%-10s %-32s %-12s %7.1f%% %12s %10s\n",
			shortID(s.ID),
			truncate(s.Filename, 32),
			s.Status,
			s.Progress,
			speed,
			utils.ConvertBytesToHumanReadable(s.TotalSize))
	}
	return nil
}

// showDownloadDetails prints one task, addressed by id or unique id prefix.
func showDownloadDetails(service core.DownloadService, partialID string, jsonOutput bool, out io.Writer) error {
	id, err := resolveDownloadID(service, partialID)
	if err != nil {
		return err
	}
	status, err := service.GetStatus(id)
	if err != nil {
		return err
	}
	printDownloadDetail(*status, jsonOutput, out)
	return nil
}

func printDownloadDetail(s types.DownloadStatus, jsonOutput bool, out io.Writer) {
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(s)
		return
	}

	fmt.Fprintf(out, "ID:         %s\n", s.ID)
	fmt.Fprintf(out, "URL:        %s\n", s.URL)
	fmt.Fprintf(out, "Filename:   %s\n", s.Filename)
	if s.DestPath != "" {
		fmt.Fprintf(out, "Path:       %s\n", s.DestPath)
	}
	fmt.Fprintf(out, "Status:     %s\n", s.Status)
	fmt.Fprintf(out, "Progress:   %.1f%% (%s / %s)\n", s.Progress,
		utils.ConvertBytesToHumanReadable(s.Downloaded),
		utils.ConvertBytesToHumanReadable(s.TotalSize))
	fmt.Fprintf(out, "Speed:      %s\n", utils.FormatSpeed(s.Speed))
	if s.ETA > 0 {
		fmt.Fprintf(out, "ETA:        %s\n", utils.FormatETA(s.ETA))
	}
	fmt.Fprintf(out, "Segments:   %d\n", s.Segments)
	if s.Error != "" {
		fmt.Fprintf(out, "Error:      %s\n", s.Error)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
