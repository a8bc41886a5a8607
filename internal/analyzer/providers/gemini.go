// Package providers implements the remote inference services the analyzer
// can talk to.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xhsnap/xhsnap/internal/analyzer"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com"

	uploadPath   = "/upload/v1beta/files"
	filePath     = "/v1beta/%s"                        // resource name, e.g. files/abc123
	generatePath = "/v1beta/models/%s:generateContent" // model id
)

// Gemini implements analyzer.Provider against the Gemini file and generation
// APIs.
type Gemini struct {
	client *resty.Client
	model  string
}

// NewGemini creates a Gemini provider for the given model.
func NewGemini(apiKey, model string) *Gemini {
	client := resty.New().
		SetBaseURL(geminiBaseURL).
		SetHeader("x-goog-api-key", apiKey).
		SetTimeout(5 * time.Minute)

	return &Gemini{client: client, model: model}
}

// Model identifies the concrete remote model.
func (g *Gemini) Model() string { return g.model }

// geminiFile is the wire shape of an uploaded asset.
type geminiFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	State    string `json:"state"`
}

func (f *geminiFile) toFile() *analyzer.File {
	return &analyzer.File{
		Name:     f.Name,
		URI:      f.URI,
		MIMEType: f.MIMEType,
		State:    analyzer.FileState(f.State),
	}
}

// Upload pushes a local video to the file API using the resumable protocol:
// a start request yields an upload URL, a single upload-and-finalize request
// carries the bytes.
func (g *Gemini) Upload(ctx context.Context, path string) (*analyzer.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat video: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	start, err := g.client.R().
		SetContext(ctx).
		SetHeader("X-Goog-Upload-Protocol", "resumable").
		SetHeader("X-Goog-Upload-Command", "start").
		SetHeader("X-Goog-Upload-Header-Content-Length", fmt.Sprintf("%d", info.Size())).
		SetHeader("X-Goog-Upload-Header-Content-Type", mimeType).
		SetBody(map[string]any{
			"file": map[string]any{"display_name": filepath.Base(path)},
		}).
		Post(uploadPath)
	if err != nil {
		return nil, g.classifyTransport("start upload", err)
	}
	if start.IsError() {
		return nil, g.classifyResponse("start upload", start)
	}

	uploadURL := start.Header().Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return nil, &analyzer.ProviderError{
			Class: analyzer.ClassPermanent,
			Err:   fmt.Errorf("upload start returned no upload URL"),
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()

	var uploaded struct {
		File geminiFile `json:"file"`
	}
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", mimeType).
		SetHeader("X-Goog-Upload-Offset", "0").
		SetHeader("X-Goog-Upload-Command", "upload, finalize").
		SetBody(f).
		SetResult(&uploaded).
		Post(uploadURL)
	if err != nil {
		return nil, g.classifyTransport("upload", err)
	}
	if resp.IsError() {
		return nil, g.classifyResponse("upload", resp)
	}

	return uploaded.File.toFile(), nil
}

// File refreshes the state of an uploaded asset.
func (g *Gemini) File(ctx context.Context, name string) (*analyzer.File, error) {
	var file geminiFile
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&file).
		Get(fmt.Sprintf(filePath, name))
	if err != nil {
		return nil, g.classifyTransport("get file", err)
	}
	if resp.IsError() {
		return nil, g.classifyResponse("get file", resp)
	}
	return file.toFile(), nil
}

// generateRequest is the wire shape of a generateContent call.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type fileData struct {
	MIMEType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate runs one inference over the uploaded asset plus the prompt.
func (g *Gemini) Generate(ctx context.Context, file *analyzer.File, prompt string) (string, error) {
	req := generateRequest{
		Contents: []content{{
			Parts: []part{
				{FileData: &fileData{MIMEType: file.MIMEType, FileURI: file.URI}},
				{Text: prompt},
			},
		}},
	}

	var result generateResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post(fmt.Sprintf(generatePath, g.model))
	if err != nil {
		return "", g.classifyTransport("generate", err)
	}
	if resp.IsError() {
		return "", g.classifyResponse("generate", resp)
	}

	for _, cand := range result.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				return p.Text, nil
			}
		}
	}
	return "", &analyzer.ProviderError{
		Class: analyzer.ClassPermanent,
		Err:   fmt.Errorf("generate returned no text candidates"),
	}
}

// Delete removes the uploaded asset.
func (g *Gemini) Delete(ctx context.Context, name string) error {
	resp, err := g.client.R().
		SetContext(ctx).
		Delete(fmt.Sprintf(filePath, name))
	if err != nil {
		return g.classifyTransport("delete file", err)
	}
	if resp.IsError() {
		return g.classifyResponse("delete file", resp)
	}
	return nil
}

// errorEnvelope is the Google API error shape.
type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// classifyResponse translates a non-2xx API response into the analyzer's
// closed error-class set at the call boundary.
func (g *Gemini) classifyResponse(op string, resp *resty.Response) error {
	var envelope errorEnvelope
	_ = json.Unmarshal(resp.Body(), &envelope)

	class := analyzer.ClassPermanent
	switch {
	case resp.StatusCode() == http.StatusTooManyRequests,
		envelope.Error.Status == "RESOURCE_EXHAUSTED":
		class = analyzer.ClassRateLimited
	case resp.StatusCode() >= http.StatusInternalServerError:
		class = analyzer.ClassTransient
	}

	msg := envelope.Error.Message
	if msg == "" {
		msg = resp.Status()
	}
	return &analyzer.ProviderError{
		Class: class,
		Err:   fmt.Errorf("%s: %s (HTTP %d)", op, msg, resp.StatusCode()),
	}
}

// classifyTransport wraps connection-level failures; they carry no status, so
// classification falls back to the analyzer's text heuristic.
func (g *Gemini) classifyTransport(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
