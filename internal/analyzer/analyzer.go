// Package analyzer sends a downloaded video to a remote multimodal model and
// returns a structured textual analysis. The retry policy and the error
// classification it consults live here; the wire protocol lives in the
// providers subpackage.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xhsnap/xhsnap/internal/types"
)

// Quality tiers and the concrete models they map to.
const (
	TierFlash = "flash"
	TierPro   = "pro"
)

var modelForTier = map[string]string{
	TierFlash: "gemini-2.0-flash",
	TierPro:   "gemini-2.5-pro",
}

// ResolveModel maps a quality tier to a remote model identifier. Unknown
// tiers default to the fast tier.
func ResolveModel(quality string) string {
	if model, ok := modelForTier[quality]; ok {
		return model
	}
	return modelForTier[TierFlash]
}

// FileState is the remote processing state of an uploaded asset.
type FileState string

const (
	FileStateProcessing FileState = "PROCESSING"
	FileStateActive     FileState = "ACTIVE"
	FileStateFailed     FileState = "FAILED"
)

// File describes an asset uploaded to the inference service.
type File struct {
	Name     string // resource name, e.g. "files/abc123"
	URI      string
	MIMEType string
	State    FileState
}

// Provider defines the remote multimodal service operations.
type Provider interface {
	// Upload pushes a local file to the service.
	Upload(ctx context.Context, path string) (*File, error)
	// File refreshes the state of an uploaded asset.
	File(ctx context.Context, name string) (*File, error)
	// Generate runs one inference over the uploaded asset plus a prompt and
	// returns the response text.
	Generate(ctx context.Context, file *File, prompt string) (string, error)
	// Delete removes the uploaded asset from the service.
	Delete(ctx context.Context, name string) error
	// Model identifies the concrete remote model.
	Model() string
}

// backoffSchedule is the fixed escalating wait between rate-limited attempts;
// the last value repeats if retries exceed its length.
var backoffSchedule = []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}

const pollInterval = 2 * time.Second

// Analyzer runs the upload/poll/generate flow with bounded retries.
type Analyzer struct {
	provider   Provider
	maxRetries int

	// Injectable for tests.
	sleep func(time.Duration)
}

// New creates an analyzer around a provider. maxRetries bounds the total
// generation attempts; values < 1 fall back to 3.
func New(provider Provider, maxRetries int) *Analyzer {
	if maxRetries < 1 {
		maxRetries = 3
	}
	return &Analyzer{
		provider:   provider,
		maxRetries: maxRetries,
		sleep:      time.Sleep,
	}
}

// AnalyzeVideo uploads the video, waits for remote processing, and requests
// the analysis. Only rate-limited generation failures are retried; everything
// else aborts immediately. The uploaded asset is deleted best-effort on every
// path.
func (a *Analyzer) AnalyzeVideo(ctx context.Context, videoPath string) (*types.Analysis, error) {
	model := a.provider.Model()
	slog.Info("analyzing video", "model", model, "path", videoPath)

	file, err := a.provider.Upload(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to upload video: %w", err)
	}
	defer a.cleanup(file.Name)

	file, err = a.waitForProcessing(ctx, file)
	if err != nil {
		return nil, err
	}
	slog.Info("video ready", "file", file.Name)

	text, err := a.generateWithRetry(ctx, file)
	if err != nil {
		return nil, err
	}

	return &types.Analysis{Model: model, Analysis: text}, nil
}

// waitForProcessing polls the asset state until the remote side finishes. A
// terminal FAILED state is a hard error.
func (a *Analyzer) waitForProcessing(ctx context.Context, file *File) (*File, error) {
	for file.State == FileStateProcessing {
		slog.Info("processing...")
		a.sleep(pollInterval)
		refreshed, err := a.provider.File(ctx, file.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to poll file state: %w", err)
		}
		file = refreshed
	}
	if file.State == FileStateFailed {
		return nil, fmt.Errorf("video processing failed: state %s", file.State)
	}
	return file, nil
}

// generateWithRetry issues the generation call, retrying on rate limiting
// with the fixed backoff schedule.
func (a *Analyzer) generateWithRetry(ctx context.Context, file *File) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		text, err := a.provider.Generate(ctx, file, AnalysisPrompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if Classify(err) == ClassRateLimited && attempt < a.maxRetries {
			wait := backoffSchedule[min(attempt-1, len(backoffSchedule)-1)]
			slog.Warn("throttled by inference API, backing off",
				"wait", wait, "attempt", attempt, "max_retries", a.maxRetries)
			a.sleep(wait)
			continue
		}
		break
	}
	return "", fmt.Errorf("video analysis failed: %w", lastErr)
}

// cleanup deletes the uploaded asset best-effort.
func (a *Analyzer) cleanup(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.provider.Delete(ctx, name); err != nil {
		slog.Debug("failed to delete uploaded file", "file", name, "error", err)
	}
}
