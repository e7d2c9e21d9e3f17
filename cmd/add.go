package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:     "add <url>...",
	Aliases: []string{"a"},
	Short:   "Queue downloads on the running Tidal instance",
	Args:    cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		batchFile, _ := cmd.Flags().GetString("batch")
		outputDir, _ := cmd.Flags().GetString("output")

		urls := append([]string(nil), args...)
		if batchFile != "" {
			fileURLs, err := readURLsFromFile(batchFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading batch file: %v\n", err)
				os.Exit(1)
			}
			urls = append(urls, fileURLs...)
		}
		if len(urls) == 0 {
			_ = cmd.Usage()
			os.Exit(1)
		}

		service, err := clientService()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		added := processDownloads(service, urls, outputDir, os.Stdout)
		if added == 0 {
			os.Exit(1)
		}
		if added > 1 {
			fmt.Printf("Added %d downloads.\n", added)
		}
	},
}

func init() {
	addCmd.Flags().StringP("batch", "b", "", "File containing URLs to download (one per line)")
	addCmd.Flags().StringP("output", "o", "", "Output directory (default: the daemon's download dir)")
	rootCmd.AddCommand(addCmd)
}
