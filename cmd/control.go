package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tidal-downloader/tidal/internal/core"
	"github.com/tidal-downloader/tidal/internal/engine/types"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <ID>",
	Short: "Pause a download",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		runControl(args, all, func(service core.DownloadService, out io.Writer) error {
			if all {
				return forEachWithStatus(service, out, "Paused", service.Pause, types.StatusDownloading)
			}
			return applyToID(service, args[0], out, "Paused", service.Pause)
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <ID>",
	Short: "Resume a paused, failed or cancelled download",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		runControl(args, all, func(service core.DownloadService, out io.Writer) error {
			if all {
				return forEachWithStatus(service, out, "Resumed", service.Resume,
					types.StatusPaused, types.StatusError, types.StatusCancelled)
			}
			return applyToID(service, args[0], out, "Resumed", service.Resume)
		})
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <ID>",
	Aliases: []string{"kill"},
	Short:   "Remove a download",
	Long:    `Remove a download from the list. The partial file is kept for a later re-add unless --discard is given.`,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		discard, _ := cmd.Flags().GetBool("discard")
		verb := "Removed"
		if discard {
			verb = "Discarded"
		}
		runControl(args, false, func(service core.DownloadService, out io.Writer) error {
			return applyToID(service, args[0], out, verb, func(id string) error {
				return service.Delete(id, discard)
			})
		})
	},
}

func init() {
	pauseCmd.Flags().Bool("all", false, "Pause every running download")
	resumeCmd.Flags().Bool("all", false, "Resume every stopped download")
	rmCmd.Flags().Bool("discard", false, "Also delete the partial file")

	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(rmCmd)
}

// runControl connects to the daemon and runs fn, exiting non-zero on error.
func runControl(args []string, all bool, fn func(core.DownloadService, io.Writer) error) {
	if len(args) == 0 && !all {
		fmt.Fprintln(os.Stderr, "Error: an ID or --all is required")
		os.Exit(1)
	}
	service, err := clientService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := fn(service, os.Stdout); err != nil {
		if core.IsNotFound(err) {
			err = errors.New("download not found")
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyToID resolves an ID prefix and runs action on the match.
func applyToID(service core.DownloadService, partialID string, out io.Writer, verb string, action func(string) error) error {
	id, err := resolveDownloadID(service, partialID)
	if err != nil {
		return err
	}
	if err := action(id); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", verb, shortID(id))
	return nil
}

// forEachWithStatus runs action on every task in one of statuses.
func forEachWithStatus(service core.DownloadService, out io.Writer, verb string, action func(string) error, statuses ...types.Status) error {
	list, err := service.List()
	if err != nil {
		return err
	}

	want := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		want[s.String()] = true
	}

	var errs []error
	count := 0
	for _, s := range list {
		if !want[s.Status] {
			continue
		}
		if err := action(s.ID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", shortID(s.ID), err))
			continue
		}
		count++
	}
	fmt.Fprintf(out, "%s %d download(s)\n", verb, count)
	return errors.Join(errs...)
}
