// Package archiver turns a capture snapshot into a local archive: downloaded
// media, a raw JSON copy and one Markdown note with relative links.
package archiver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xhsnap/xhsnap/internal/browser"
	"github.com/xhsnap/xhsnap/internal/config"
	"github.com/xhsnap/xhsnap/internal/types"
)

// Referer the CDN expects; bare requests are rejected.
const cdnReferer = "https://www.xiaohongshu.com/"

const maxSlugLen = 50

var illegalFilenameChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// Options control one archive run.
type Options struct {
	Analyze bool
	Quality string
}

// Archiver archives one capture per call.
type Archiver struct {
	cfg    *config.Config
	client *resty.Client

	// Injectable for tests.
	now        func() time.Time
	analyzeCmd func(ctx context.Context, videoPath, quality, outPath string) error
}

// New creates an archiver from configuration.
func New(cfg *config.Config) *Archiver {
	client := resty.New().
		SetHeader("User-Agent", browser.DefaultUserAgent).
		SetHeader("Referer", cdnReferer).
		SetTimeout(10 * time.Minute)

	a := &Archiver{
		cfg:    cfg,
		client: client,
		now:    time.Now,
	}
	a.analyzeCmd = a.runAnalyzeSubprocess
	return a
}

// Archive reads the capture JSON, downloads media, optionally runs video
// analysis, and renders the Markdown note. Returns the note path.
func (a *Archiver) Archive(ctx context.Context, jsonPath string, opts Options) (string, error) {
	capture, err := types.LoadCapture(jsonPath)
	if err != nil {
		return "", fmt.Errorf("failed to read capture JSON: %w", err)
	}
	if !capture.HasNote() {
		return "", fmt.Errorf("no note data found in %s", jsonPath)
	}

	note, err := types.Normalize(capture.Note)
	if err != nil {
		return "", err
	}
	if !note.Valid() {
		return "", fmt.Errorf("note in %s has no title, description or id", jsonPath)
	}

	now := a.now()
	dateStr := now.Format("2006-01-02")
	slug := Slug(note.Title)
	if slug == "" {
		slug = note.ID
	}

	notesDir := a.cfg.NotesDir()
	mediaDir := filepath.Join(a.cfg.MediaRootDir(), now.Format("2006-01"))
	if err := os.MkdirAll(notesDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create notes dir: %w", err)
	}
	if err := os.MkdirAll(mediaDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create media dir: %w", err)
	}

	var mediaLinks []string
	relLink := func(path string) string {
		rel, err := filepath.Rel(notesDir, path)
		if err != nil {
			return path
		}
		return filepath.ToSlash(rel)
	}

	// Persist the raw capture alongside the media and link it first.
	rawName := fmt.Sprintf("%s_%s_raw.json", dateStr, slug)
	rawPath := filepath.Join(mediaDir, rawName)
	if err := capture.Save(rawPath); err != nil {
		return "", fmt.Errorf("failed to save raw capture: %w", err)
	}
	mediaLinks = append(mediaLinks, fmt.Sprintf("**Raw Data**: [%s](%s)", rawName, relLink(rawPath)))

	// Video notes: download the first h264 master stream.
	var videoPath string
	if note.IsVideo() && len(note.VideoURLs) > 0 {
		name := fmt.Sprintf("%s_%s.mp4", dateStr, slug)
		path, err := a.download(ctx, note.VideoURLs[0], mediaDir, name)
		if err != nil {
			slog.Warn("failed to download video", "url", note.VideoURLs[0], "error", err)
		} else {
			videoPath = path
			mediaLinks = append(mediaLinks, fmt.Sprintf("**Video**: [%s](%s)", name, relLink(path)))
		}
	}

	// Image notes: download every image; one failure skips that image only.
	for i, img := range note.Images {
		name := fmt.Sprintf("%s_%s_img%d.jpg", dateStr, slug, i+1)
		path, err := a.download(ctx, img.URL, mediaDir, name)
		if err != nil {
			slog.Warn("failed to download image", "url", img.URL, "error", err)
			continue
		}
		mediaLinks = append(mediaLinks, fmt.Sprintf("![Image %d](%s)", i+1, relLink(path)))
	}

	var analysis *types.Analysis
	if opts.Analyze && videoPath != "" {
		analysis = a.analyzeVideo(ctx, videoPath, opts.Quality, mediaDir)
	}

	mdName := fmt.Sprintf("%s_XHS_%s.md", dateStr, slug)
	mdPath := filepath.Join(notesDir, mdName)
	content := renderNote(noteView{
		Note:       note,
		Comments:   capture.Comments,
		MediaLinks: mediaLinks,
		Captured:   now,
		Quality:    opts.Quality,
		Analysis:   analysis,
	})
	if err := os.WriteFile(mdPath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write note: %w", err)
	}

	slog.Info("note written", "path", mdPath)
	slog.Info("media archived", "dir", mediaDir)
	return mdPath, nil
}

// Slug derives a filesystem-safe slug from a title: surrounding whitespace
// trimmed, characters illegal in filenames stripped, interior spaces replaced
// with underscores, length capped. A whitespace-only title yields "" so the
// caller falls back to the post id.
func Slug(title string) string {
	clean := illegalFilenameChars.ReplaceAllString(strings.TrimSpace(title), "")
	clean = strings.ReplaceAll(clean, " ", "_")
	runes := []rune(clean)
	if len(runes) > maxSlugLen {
		runes = runes[:maxSlugLen]
	}
	return string(runes)
}

// download fetches a URL into dir/filename, streaming to disk. An existing
// file short-circuits: this is the system's only caching rule.
func (a *Archiver) download(ctx context.Context, url, dir, filename string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("empty media URL")
	}

	localPath := filepath.Join(dir, filename)
	if _, err := os.Stat(localPath); err == nil {
		slog.Info("already downloaded", "file", filename)
		return localPath, nil
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetOutput(localPath).
		Get(url)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		os.Remove(localPath)
		return "", fmt.Errorf("download returned %s", resp.Status())
	}
	return localPath, nil
}

// analyzeVideo runs the analyzer as a subprocess with a bounded timeout. The
// emitted JSON result file is the source of truth; a non-zero exit or timeout
// is non-fatal and the note is rendered without an analysis section.
func (a *Archiver) analyzeVideo(ctx context.Context, videoPath, quality, mediaDir string) *types.Analysis {
	if config.APIKey() == "" {
		slog.Warn("no inference API key set, skipping video analysis",
			"hint", "set "+config.EnvGeminiKey)
		return nil
	}

	outPath := filepath.Join(mediaDir, types.DefaultAnalysisFile)
	slog.Info("running video analysis", "quality", quality)

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.AnalyzeTimeout())
	defer cancel()

	if err := a.analyzeCmd(runCtx, videoPath, quality, outPath); err != nil {
		slog.Warn("video analysis failed", "error", err)
		return nil
	}

	analysis, err := types.LoadAnalysis(outPath)
	if err != nil {
		slog.Warn("video analysis produced no readable result", "error", err)
		return nil
	}
	return analysis
}

// runAnalyzeSubprocess re-invokes this binary's analyze command.
func (a *Archiver) runAnalyzeSubprocess(ctx context.Context, videoPath, quality, outPath string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate own executable: %w", err)
	}

	cmd := exec.CommandContext(ctx, self, "analyze", videoPath, "--quality", quality, "--out", outPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("analyze subprocess: %w (output: %s)", err, string(out))
	}
	return nil
}
