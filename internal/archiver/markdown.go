package archiver

import (
	"bytes"
	"strings"
	"text/template"
	"time"

	"github.com/xhsnap/xhsnap/internal/types"
)

// Comments beyond this count stay in the raw JSON only.
const maxRenderedComments = 10

// noteView is everything the note template needs.
type noteView struct {
	Note       *types.Note
	Comments   []types.Comment
	MediaLinks []string
	Captured   time.Time
	Quality    string
	Analysis   *types.Analysis
}

// noteData is the flattened template data.
type noteData struct {
	Title        string
	SourceURL    string
	Captured     string
	Type         string
	MediaLinks   []string
	Quality      string
	AnalysisText string
	Desc         string
	Author       string
	Likes        string
	CommentCount string
	Comments     []commentData
}

type commentData struct {
	Author string
	Likes  string
	Text   string
}

// renderNote renders the final Markdown document.
func renderNote(v noteView) string {
	title := v.Note.Title
	if title == "" {
		title = "Untitled"
	}
	noteType := v.Note.Type
	if noteType == "" {
		noteType = "unknown"
	}

	data := noteData{
		Title:        title,
		SourceURL:    "https://www.xiaohongshu.com/explore/" + v.Note.ID,
		Captured:     v.Captured.Format("2006-01-02 15:04"),
		Type:         noteType,
		MediaLinks:   v.MediaLinks,
		Desc:         v.Note.Desc,
		Author:       v.Note.Author,
		Likes:        v.Note.LikedCount.String(),
		CommentCount: v.Note.CommentCount.String(),
	}

	if v.Analysis != nil {
		data.Quality = strings.ToUpper(v.Quality)
		data.AnalysisText = v.Analysis.Analysis
		if data.AnalysisText == "" {
			data.AnalysisText = "No analysis available."
		}
	}

	comments := v.Comments
	if len(comments) > maxRenderedComments {
		comments = comments[:maxRenderedComments]
	}
	for _, c := range comments {
		author := c.UserInfo.Nickname
		if author == "" {
			author = "Anon"
		}
		data.Comments = append(data.Comments, commentData{
			Author: author,
			Likes:  c.LikeCount.String(),
			Text:   c.Content,
		})
	}

	var buf bytes.Buffer
	// The template is static; parse errors cannot happen at runtime.
	if err := noteTemplate.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}

var noteTemplate = template.Must(template.New("note").Parse(`# {{.Title}}

**Source**: [Xiaohongshu]({{.SourceURL}})
**Captured**: {{.Captured}}
**Type**: {{.Type}}

## Media Archive
{{range .MediaLinks}}{{.}}

{{end}}{{if .AnalysisText}}
## 🎬 Video Analysis (Gemini {{.Quality}})

{{.AnalysisText}}

{{end}}
## Description
{{.Desc}}

## Metadata
- **Author**: {{.Author}}
- **Likes**: {{.Likes}}
- **Comments**: {{.CommentCount}}

## Top Comments
{{if .Comments}}{{range .Comments}}- **{{.Author}}** (❤️ {{.Likes}}): {{.Text}}
{{end}}{{else}}*No comments captured.*
{{end}}`))
