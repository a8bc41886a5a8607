package cli

import (
	"log/slog"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/xhsnap/xhsnap/internal/analyzer"
	"github.com/xhsnap/xhsnap/internal/archiver"
)

var (
	archiveAnalyze bool
	archiveQuality string
	archiveOpen    bool
)

func init() {
	archiveCmd.Flags().BoolVar(&archiveAnalyze, "analyze", false, "run Gemini video analysis on a downloaded video")
	archiveCmd.Flags().StringVar(&archiveQuality, "quality", analyzer.TierFlash, "analysis quality tier: flash or pro")
	archiveCmd.Flags().BoolVar(&archiveOpen, "open", false, "open the rendered note when done")
	rootCmd.AddCommand(archiveCmd)
}

var archiveCmd = &cobra.Command{
	Use:   "archive <capture-json>",
	Short: "Download media and render a capture into a Markdown note.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		arch := archiver.New(cfg)
		mdPath, err := arch.Archive(cmd.Context(), args[0], archiver.Options{
			Analyze: archiveAnalyze,
			Quality: archiveQuality,
		})
		if err != nil {
			return err
		}

		if archiveOpen {
			if err := browser.OpenFile(mdPath); err != nil {
				slog.Warn("failed to open note", "error", err)
			}
		}
		return nil
	},
}
