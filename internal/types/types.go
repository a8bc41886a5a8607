// Package types defines the file-serialized records passed between the
// extract, analyze and archive stages.
package types

import (
	"encoding/json"
	"os"
	"strings"
)

// Default handoff file names between stages.
const (
	DefaultCaptureFile  = "xhs_last_run.json"
	DefaultAnalysisFile = "xhs_video_analysis.json"
)

// Capture is the extractor's output contract: one note plus the comments
// intercepted during the session, in interception order. Note is kept as the
// raw upstream JSON so the archived copy is byte-faithful; use Normalize to
// get the canonical view.
type Capture struct {
	Note     json.RawMessage `json:"note,omitempty"`
	Comments []Comment       `json:"comments"`
}

// HasNote reports whether the capture contains a note object.
func (c *Capture) HasNote() bool {
	return len(c.Note) > 0 && string(c.Note) != "null"
}

// Save serializes the capture to JSON with indentation and writes it to path.
func (c *Capture) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadCapture reads a capture snapshot from disk.
func LoadCapture(path string) (*Capture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Capture
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Comment is a single note comment. Field names match the upstream
// comment-page API payload.
type Comment struct {
	UserInfo  CommentUser `json:"user_info"`
	Content   string      `json:"content"`
	LikeCount Count       `json:"like_count"`
}

// CommentUser identifies a comment author.
type CommentUser struct {
	Nickname string `json:"nickname"`
}

// Analysis is the analyzer's output contract.
type Analysis struct {
	Model    string `json:"model"`
	Analysis string `json:"analysis"`
}

// Save serializes the analysis to JSON with indentation and writes it to path.
func (a *Analysis) Save(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadAnalysis reads an analysis result from disk.
func LoadAnalysis(path string) (*Analysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Count holds an upstream engagement count. The API emits these
// inconsistently as JSON numbers or strings ("1234", "1.2万"), so the raw
// token is kept as text.
type Count string

// UnmarshalJSON accepts both string and number forms.
func (c *Count) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*c = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*c = Count(v)
		return nil
	}
	*c = Count(s)
	return nil
}

// MarshalJSON writes the count back as a string.
func (c Count) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(c))
}

// String returns the count, or "0" when it was never set.
func (c Count) String() string {
	if c == "" {
		return "0"
	}
	return string(c)
}
