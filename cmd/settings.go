package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tidal-downloader/tidal/internal/config"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the persisted settings",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		settings := loadSettings()
		fmt.Printf("# %s\n", config.GetSettingsPath())
		if err := printSettings(settings, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Long:  `Change one setting by its JSON key. A running instance picks the change up on restart.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := updateSettings(func(s *config.Settings) error {
			return s.Set(args[0], args[1])
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s updated\n", args[0])
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset [key]",
	Short: "Restore one setting, or all of them, to the default",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		err := updateSettings(func(s *config.Settings) error {
			if len(args) == 0 {
				*s = *config.DefaultSettings()
				return nil
			}
			return s.Reset(args[0])
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Settings reset")
	},
}

func init() {
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsResetCmd)
	rootCmd.AddCommand(settingsCmd)
}

// updateSettings loads, mutates, clamps and saves the settings file.
func updateSettings(mutate func(*config.Settings) error) error {
	if err := config.EnsureDirs(); err != nil {
		return err
	}
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	if err := mutate(settings); err != nil {
		return err
	}
	settings.Validate()
	return config.SaveSettings(settings)
}

func printSettings(s *config.Settings, out io.Writer) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
