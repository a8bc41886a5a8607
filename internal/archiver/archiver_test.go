package archiver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhsnap/xhsnap/internal/config"
	"github.com/xhsnap/xhsnap/internal/types"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"plain", "hello", "hello"},
		{"spaces", "a b c", "a_b_c"},
		{"illegal chars stripped", `a\b/c*d?e:f"g<h>i|j`, "abcdefghij"},
		{"chinese preserved", "美食分享 第一期", "美食分享_第一期"},
		{"surrounding whitespace trimmed", "  padded title ", "padded_title"},
		{"whitespace-only collapses to empty", "   ", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.title))
		})
	}

	t.Run("caps at 50 runes", func(t *testing.T) {
		long := strings.Repeat("标", 80)
		got := Slug(long)
		assert.Equal(t, 50, len([]rune(got)))
	})

	t.Run("never contains forbidden characters", func(t *testing.T) {
		got := Slug(`some: very/bad * title?`)
		assert.NotContains(t, got, " ")
		for _, c := range `\/*?:"<>|` {
			assert.NotContains(t, got, string(c))
		}
	})
}

// newMediaServer serves fake media and counts hits.
func newMediaServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "media-bytes-for-", r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// newTestArchiver pins output dirs and the clock.
func newTestArchiver(t *testing.T) *Archiver {
	t.Helper()
	t.Setenv(config.EnvOutputDir, t.TempDir())
	t.Setenv(config.EnvNotesDir, "")
	t.Setenv(config.EnvMediaDir, "")

	a := New(config.Default())
	a.now = func() time.Time {
		return time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	}
	return a
}

func writeCapture(t *testing.T, capture *types.Capture) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.json")
	require.NoError(t, capture.Save(path))
	return path
}

func videoCapture(baseURL string) *types.Capture {
	note := fmt.Sprintf(`{
		"noteId": "note1",
		"title": "Cooking Tips",
		"desc": "three tricks",
		"type": "video",
		"user": {"nickname": "chef"},
		"interactInfo": {"likedCount": "321", "commentCount": "3"},
		"video": {"media": {"stream": {"h264": [{"masterUrl": "%s/v.mp4"}]}}},
		"imageList": [
			{"urlDefault": "%s/i1.jpg"},
			{"url": "%s/i2.jpg"}
		]
	}`, baseURL, baseURL, baseURL)

	return &types.Capture{
		Note: []byte(note),
		Comments: []types.Comment{
			{UserInfo: types.CommentUser{Nickname: "u1"}, Content: "first!", LikeCount: "5"},
			{UserInfo: types.CommentUser{Nickname: "u2"}, Content: "nice", LikeCount: "2"},
			{UserInfo: types.CommentUser{Nickname: "u3"}, Content: "saved", LikeCount: "0"},
		},
	}
}

func TestArchiveEndToEndVideo(t *testing.T) {
	srv, hits := newMediaServer(t)
	a := newTestArchiver(t)

	mdPath, err := a.Archive(context.Background(), writeCapture(t, videoCapture(srv.URL)), Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), hits.Load(), "one video and two images downloaded")

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	content := string(md)

	assert.Contains(t, content, "# Cooking Tips")
	assert.Contains(t, content, "https://www.xiaohongshu.com/explore/note1")
	assert.Contains(t, content, "**Video**: [2026-08-29_Cooking_Tips.mp4]")
	assert.Contains(t, content, "![Image 1]")
	assert.Contains(t, content, "![Image 2]")
	assert.Contains(t, content, "**Raw Data**: [2026-08-29_Cooking_Tips_raw.json]")
	assert.Contains(t, content, "- **Author**: chef")
	assert.Contains(t, content, "- **Likes**: 321")
	assert.Contains(t, content, "- **Comments**: 3")

	// Exactly three comment bullets, in interception order.
	assert.Equal(t, 3, strings.Count(content, "(❤️"))
	first := strings.Index(content, "first!")
	second := strings.Index(content, "nice")
	third := strings.Index(content, "saved")
	assert.True(t, first < second && second < third, "comments rendered in original order")
	assert.NotContains(t, content, "No comments captured")

	// Media landed in the per-month directory, raw JSON alongside.
	mediaDir := filepath.Join(a.cfg.MediaRootDir(), "2026-08")
	for _, name := range []string{
		"2026-08-29_Cooking_Tips.mp4",
		"2026-08-29_Cooking_Tips_img1.jpg",
		"2026-08-29_Cooking_Tips_img2.jpg",
		"2026-08-29_Cooking_Tips_raw.json",
	} {
		_, err := os.Stat(filepath.Join(mediaDir, name))
		assert.NoError(t, err, name)
	}
}

func TestArchiveIdempotentSameDay(t *testing.T) {
	srv, hits := newMediaServer(t)
	a := newTestArchiver(t)
	jsonPath := writeCapture(t, videoCapture(srv.URL))

	mdPath1, err := a.Archive(context.Background(), jsonPath, Options{})
	require.NoError(t, err)
	firstHits := hits.Load()
	md1, err := os.ReadFile(mdPath1)
	require.NoError(t, err)

	mdPath2, err := a.Archive(context.Background(), jsonPath, Options{})
	require.NoError(t, err)
	md2, err := os.ReadFile(mdPath2)
	require.NoError(t, err)

	assert.Equal(t, mdPath1, mdPath2)
	assert.Equal(t, firstHits, hits.Load(), "existing files are not re-downloaded")
	assert.Equal(t, md1, md2, "markdown is byte-identical")
}

func TestArchiveNoComments(t *testing.T) {
	a := newTestArchiver(t)
	capture := &types.Capture{
		Note: []byte(`{"noteId": "n1", "title": "Quiet Post", "type": "normal"}`),
	}

	mdPath, err := a.Archive(context.Background(), writeCapture(t, capture), Options{})
	require.NoError(t, err)

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "*No comments captured.*")
	assert.Equal(t, 0, strings.Count(string(md), "(❤️"))
}

func TestArchiveCommentsTruncatedToTen(t *testing.T) {
	a := newTestArchiver(t)
	capture := &types.Capture{
		Note: []byte(`{"noteId": "n1", "title": "Busy Post", "type": "normal"}`),
	}
	for i := 0; i < 14; i++ {
		capture.Comments = append(capture.Comments, types.Comment{
			UserInfo: types.CommentUser{Nickname: fmt.Sprintf("u%d", i)},
			Content:  fmt.Sprintf("comment %d", i),
		})
	}

	mdPath, err := a.Archive(context.Background(), writeCapture(t, capture), Options{})
	require.NoError(t, err)

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Equal(t, 10, strings.Count(string(md), "(❤️"))

	// All 14 persist in the raw JSON copy.
	rawPath := filepath.Join(a.cfg.MediaRootDir(), "2026-08", "2026-08-29_Busy_Post_raw.json")
	saved, err := types.LoadCapture(rawPath)
	require.NoError(t, err)
	assert.Len(t, saved.Comments, 14)
}

func TestArchiveWrappedShapeRendersSameMetadata(t *testing.T) {
	a := newTestArchiver(t)
	capture := &types.Capture{
		Note: []byte(`{
			"id": "n9",
			"note_card": {
				"note_id": "n9",
				"title": "Wrapped Post",
				"desc": "wrapped desc",
				"type": "normal",
				"user": {"nickname": "author9"},
				"interact_info": {"liked_count": "77", "comment_count": "8"}
			}
		}`),
	}

	mdPath, err := a.Archive(context.Background(), writeCapture(t, capture), Options{})
	require.NoError(t, err)

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	content := string(md)
	assert.Contains(t, content, "# Wrapped Post")
	assert.Contains(t, content, "- **Author**: author9")
	assert.Contains(t, content, "- **Likes**: 77")
	assert.Contains(t, content, "- **Comments**: 8")
	assert.Contains(t, content, "https://www.xiaohongshu.com/explore/n9")
}

func TestArchiveSlugFallsBackToNoteID(t *testing.T) {
	a := newTestArchiver(t)
	capture := &types.Capture{
		Note: []byte(`{"noteId": "641f00aa", "desc": "only a description", "type": "normal"}`),
	}

	mdPath, err := a.Archive(context.Background(), writeCapture(t, capture), Options{})
	require.NoError(t, err)
	assert.Equal(t, "2026-08-29_XHS_641f00aa.md", filepath.Base(mdPath))
}

func TestArchiveWhitespaceTitleFallsBackToNoteID(t *testing.T) {
	a := newTestArchiver(t)
	capture := &types.Capture{
		Note: []byte(`{"noteId": "abc999", "title": "   ", "type": "normal"}`),
	}

	mdPath, err := a.Archive(context.Background(), writeCapture(t, capture), Options{})
	require.NoError(t, err)
	assert.Equal(t, "2026-08-29_XHS_abc999.md", filepath.Base(mdPath))
}

func TestArchiveMissingNoteIsFatal(t *testing.T) {
	a := newTestArchiver(t)
	path := writeCapture(t, &types.Capture{})

	_, err := a.Archive(context.Background(), path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no note data")
}

func TestArchiveBadPathIsFatal(t *testing.T) {
	a := newTestArchiver(t)
	_, err := a.Archive(context.Background(), filepath.Join(t.TempDir(), "missing.json"), Options{})
	require.Error(t, err)
}

func TestArchiveWithAnalysis(t *testing.T) {
	srv, _ := newMediaServer(t)
	a := newTestArchiver(t)
	t.Setenv(config.EnvGeminiKey, "test-key")

	a.analyzeCmd = func(ctx context.Context, videoPath, quality, outPath string) error {
		result := &types.Analysis{Model: "gemini-2.5-pro", Analysis: "A video about cooking."}
		return result.Save(outPath)
	}

	mdPath, err := a.Archive(context.Background(), writeCapture(t, videoCapture(srv.URL)),
		Options{Analyze: true, Quality: "pro"})
	require.NoError(t, err)

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "## 🎬 Video Analysis (Gemini PRO)")
	assert.Contains(t, string(md), "A video about cooking.")
}

func TestArchiveAnalysisFailureIsNonFatal(t *testing.T) {
	srv, _ := newMediaServer(t)
	a := newTestArchiver(t)
	t.Setenv(config.EnvGeminiKey, "test-key")

	a.analyzeCmd = func(ctx context.Context, videoPath, quality, outPath string) error {
		return fmt.Errorf("exit status 1")
	}

	mdPath, err := a.Archive(context.Background(), writeCapture(t, videoCapture(srv.URL)),
		Options{Analyze: true, Quality: "flash"})
	require.NoError(t, err, "the note is still generated")

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.NotContains(t, string(md), "Video Analysis")
}

func TestArchiveSkipsAnalysisWithoutAPIKey(t *testing.T) {
	srv, _ := newMediaServer(t)
	a := newTestArchiver(t)
	t.Setenv(config.EnvGeminiKey, "")
	t.Setenv(config.EnvGoogleKey, "")

	called := false
	a.analyzeCmd = func(ctx context.Context, videoPath, quality, outPath string) error {
		called = true
		return nil
	}

	_, err := a.Archive(context.Background(), writeCapture(t, videoCapture(srv.URL)),
		Options{Analyze: true, Quality: "flash"})
	require.NoError(t, err)
	assert.False(t, called, "analysis skipped when no key is configured")
}

func TestArchiveFailedDownloadContinues(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.Contains(r.URL.Path, "i1") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, "bytes")
	}))
	t.Cleanup(srv.Close)

	a := newTestArchiver(t)
	mdPath, err := a.Archive(context.Background(), writeCapture(t, videoCapture(srv.URL)), Options{})
	require.NoError(t, err, "one failed image does not abort the run")

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.NotContains(t, string(md), "![Image 1]")
	assert.Contains(t, string(md), "![Image 2]")
}

func TestDownloadSendsBrowserHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		assert.Equal(t, cdnReferer, r.Header.Get("Referer"))
		fmt.Fprint(w, "bytes")
	}))
	t.Cleanup(srv.Close)

	a := newTestArchiver(t)
	dir := t.TempDir()
	path, err := a.download(context.Background(), srv.URL+"/f.jpg", dir, "f.jpg")
	require.NoError(t, err)
	assert.FileExists(t, path)
}
