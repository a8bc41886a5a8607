package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/xhsnap/xhsnap/internal/extractor"
	"github.com/xhsnap/xhsnap/internal/types"
)

var (
	extractOut     string
	extractHeadful bool
)

func init() {
	extractCmd.Flags().StringVar(&extractOut, "out", types.DefaultCaptureFile, "path for the capture JSON snapshot")
	extractCmd.Flags().BoolVar(&extractHeadful, "headful", false, "run the browser with a visible window")
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract <note-url>",
	Short: "Capture one note and its visible comments via browser automation.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noteURL := args[0]
		slog.Info("capturing note", "url", noteURL)

		if extractHeadful {
			cfg.Capture.Headless = false
		}

		ext := extractor.New(cfg)
		capture, err := ext.Capture(cmd.Context(), noteURL)
		if err != nil {
			return err
		}

		// The snapshot is written even without a note, so a failed session
		// still leaves its comment evidence on disk.
		if err := capture.Save(extractOut); err != nil {
			return fmt.Errorf("failed to save capture: %w", err)
		}

		if !capture.HasNote() {
			return fmt.Errorf("failed to capture note data for %s", noteURL)
		}

		note, err := types.Normalize(capture.Note)
		if err != nil {
			return err
		}
		slog.Info("capture complete",
			"title", note.Title,
			"type", note.Type,
			"comments", len(capture.Comments),
			"saved", extractOut)
		return nil
	},
}
