package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xhsnap/xhsnap/internal/analyzer"
	"github.com/xhsnap/xhsnap/internal/analyzer/providers"
	"github.com/xhsnap/xhsnap/internal/config"
	"github.com/xhsnap/xhsnap/internal/types"
)

var (
	analyzeQuality string
	analyzeOut     string
)

func init() {
	analyzeCmd.Flags().StringVar(&analyzeQuality, "quality", analyzer.TierFlash, "quality tier: flash (fast/cheap) or pro (higher quality)")
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", types.DefaultAnalysisFile, "path for the analysis result JSON")
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <video-path>",
	Short: "Send a video to Gemini for multimodal analysis.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		videoPath := args[0]
		if _, err := os.Stat(videoPath); err != nil {
			return fmt.Errorf("file not found: %s", videoPath)
		}

		apiKey := config.APIKey()
		if apiKey == "" {
			return fmt.Errorf("%s not set", config.EnvGeminiKey)
		}

		model := analyzer.ResolveModel(analyzeQuality)
		provider := providers.NewGemini(apiKey, model)
		an := analyzer.New(provider, cfg.Analysis.MaxRetries)

		result, err := an.AnalyzeVideo(cmd.Context(), videoPath)
		if err != nil {
			return err
		}

		fmt.Println()
		fmt.Println(strings.Repeat("=", 50))
		fmt.Printf("Model: %s\n", result.Model)
		fmt.Println(strings.Repeat("=", 50))
		fmt.Println(result.Analysis)

		if err := result.Save(analyzeOut); err != nil {
			return fmt.Errorf("failed to save analysis: %w", err)
		}
		fmt.Printf("\nSaved to %s\n", analyzeOut)
		return nil
	},
}
