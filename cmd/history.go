package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidal-downloader/tidal/internal/config"
	"github.com/tidal-downloader/tidal/internal/core"
	"github.com/tidal-downloader/tidal/internal/engine/types"
	"github.com/tidal-downloader/tidal/internal/history"
	"github.com/tidal-downloader/tidal/internal/utils"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show finished, failed and cancelled downloads",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := loadHistory(limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printHistory(entries, jsonOutput, os.Stdout)
	},
}

func init() {
	historyCmd.Flags().Bool("json", false, "Output as JSON")
	historyCmd.Flags().IntP("limit", "n", 0, "Show at most n entries (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

// loadHistory asks the running daemon, falling back to the ledger file when
// none is running.
func loadHistory(limit int) ([]types.HistoryEntry, error) {
	baseURL, token, err := resolveAPIConnection(false)
	if err != nil {
		return nil, err
	}

	var entries []types.HistoryEntry
	if baseURL != "" {
		service := core.NewRemoteDownloadService(baseURL, token)
		if entries, err = service.History(); err != nil {
			return nil, err
		}
	} else {
		path := filepath.Join(config.GetStateDir(), history.FileName)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return []types.HistoryEntry{}, nil
		}
		store, err := history.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = store.Close() }()
		if entries, err = store.List(context.Background(), limit); err != nil {
			return nil, err
		}
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []types.HistoryEntry{}
	}
	return entries, nil
}

func printHistory(entries []types.HistoryEntry, jsonOutput bool, out io.Writer) {
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(entries)
		return
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No history yet.")
		return
	}

	fmt.Fprintf(out, "%-10s %-32s %-10s %10s %-8s %-17s %s\n", "ID", "FILENAME", "STATUS", "SIZE", "KIND", "FINISHED", "TOOK")
	for _, e := range entries {
		kind := e.Kind
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(out, "%-10s %-32s %-10s %10s %-8s %-17s %s\n",
			shortID(e.ID),
			truncate(e.Filename, 32),
			e.Status,
			utils.ConvertBytesToHumanReadable(e.TotalSize),
			kind,
			e.CompletedAt.Local().Format("2006-01-02 15:04"),
			e.TimeTaken.Round(100*time.Millisecond))
	}
}
