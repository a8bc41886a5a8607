// Package cli wires the three pipeline stages into cobra commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/xhsnap/xhsnap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "xhsnap",
	Short: "Capture, analyze and archive Xiaohongshu posts.",
	Long: `xhsnap archives single Xiaohongshu posts in three stages:

  extract   capture a post and its comments via browser automation
  analyze   send a downloaded video to Gemini for multimodal analysis
  archive   download media and render everything into a Markdown note

Stages hand off through JSON files and can be run independently.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
	},
}

// loadConfig reads the config file, falling back to defaults. A missing file
// is the normal first-run case; the defaults are written out so the user has
// a file to edit.
func loadConfig() {
	loaded, err := config.Load()
	if err != nil {
		loaded = config.Default()
		if os.IsNotExist(err) {
			if saveErr := loaded.Save(); saveErr != nil {
				slog.Debug("could not write default config", "error", saveErr)
			}
		} else {
			slog.Warn("could not load config, using defaults", "error", err)
		}
	}
	cfg = loaded
}

// Execute runs the CLI and reports the outcome.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
	}
	return err
}
