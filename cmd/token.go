package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidal-downloader/tidal/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the auth token used by the Tidal daemon",
	Run: func(cmd *cobra.Command, args []string) {
		_ = config.EnsureDirs()
		fmt.Println(ensureAuthToken())
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
