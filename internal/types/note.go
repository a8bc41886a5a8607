package types

import (
	"encoding/json"
	"fmt"
)

// Note is the canonical representation of one post, normalized from the two
// upstream shapes (flat and note_card-wrapped).
type Note struct {
	ID           string
	Title        string
	Desc         string
	Type         string // "video", "normal" (image carousel) or ""
	Author       string
	LikedCount   Count
	CommentCount Count
	VideoURLs    []string // ordered h264 master URLs, best quality first
	Images       []ImageRef
}

// ImageRef is one downloadable image of an image-carousel note.
type ImageRef struct {
	URL string
}

// IsVideo reports whether the note carries a video stream.
func (n *Note) IsVideo() bool {
	return n.Type == "video"
}

// Valid reports whether the note carries enough data to archive: a title or
// description, or at least an identifying id.
func (n *Note) Valid() bool {
	return n.Title != "" || n.Desc != "" || n.ID != ""
}

// noteFields is the merge unit shared by the two upstream shapes.
type noteFields struct {
	ID           string
	Title        string
	Desc         string
	Type         string
	Author       string
	LikedCount   Count
	CommentCount Count
}

// rawNote decodes the flat upstream shape plus the optional note_card
// wrapper. Only the keys the pipeline consumes are modeled; the untouched
// remainder survives in the raw capture JSON.
type rawNote struct {
	ID           string       `json:"id"`
	NoteID       string       `json:"noteId"`
	Title        string       `json:"title"`
	Desc         string       `json:"desc"`
	Type         string       `json:"type"`
	User         rawUser      `json:"user"`
	InteractInfo rawInteract  `json:"interactInfo"`
	Video        rawVideo     `json:"video"`
	ImageList    []rawImage   `json:"imageList"`
	NoteCard     *rawNoteCard `json:"note_card"`
}

type rawNoteCard struct {
	NoteID       string      `json:"note_id"`
	Title        string      `json:"title"`
	Desc         string      `json:"desc"`
	Type         string      `json:"type"`
	User         rawUser     `json:"user"`
	InteractInfo rawInteract `json:"interact_info"`
}

type rawUser struct {
	Nickname string `json:"nickname"`
}

// rawInteract accepts both key spellings; upstream mixes them even within
// one shape.
type rawInteract struct {
	LikedCountCamel   Count `json:"likedCount"`
	LikedCountSnake   Count `json:"liked_count"`
	CommentCountCamel Count `json:"commentCount"`
	CommentCountSnake Count `json:"comment_count"`
}

func (r rawInteract) liked() Count {
	if r.LikedCountCamel != "" {
		return r.LikedCountCamel
	}
	return r.LikedCountSnake
}

func (r rawInteract) comments() Count {
	if r.CommentCountCamel != "" {
		return r.CommentCountCamel
	}
	return r.CommentCountSnake
}

type rawVideo struct {
	Media struct {
		Stream struct {
			H264 []struct {
				MasterURL string `json:"masterUrl"`
			} `json:"h264"`
		} `json:"stream"`
	} `json:"media"`
}

type rawImage struct {
	URLDefault string `json:"urlDefault"`
	URL        string `json:"url"`
}

func (r rawNote) flatFields() noteFields {
	id := r.NoteID
	if id == "" {
		id = r.ID
	}
	return noteFields{
		ID:           id,
		Title:        r.Title,
		Desc:         r.Desc,
		Type:         r.Type,
		Author:       r.User.Nickname,
		LikedCount:   r.InteractInfo.liked(),
		CommentCount: r.InteractInfo.comments(),
	}
}

func (r *rawNoteCard) fields() noteFields {
	if r == nil {
		return noteFields{}
	}
	return noteFields{
		ID:           r.NoteID,
		Title:        r.Title,
		Desc:         r.Desc,
		Type:         r.Type,
		Author:       r.User.Nickname,
		LikedCount:   r.InteractInfo.liked(),
		CommentCount: r.InteractInfo.comments(),
	}
}

// mergeNoteShapes merges the flat and note_card views of a note field by
// field: first non-empty value wins, flat shape preferred.
func mergeNoteShapes(flat, card noteFields) noteFields {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return noteFields{
		ID:           pick(flat.ID, card.ID),
		Title:        pick(flat.Title, card.Title),
		Desc:         pick(flat.Desc, card.Desc),
		Type:         pick(flat.Type, card.Type),
		Author:       pick(flat.Author, card.Author),
		LikedCount:   Count(pick(string(flat.LikedCount), string(card.LikedCount))),
		CommentCount: Count(pick(string(flat.CommentCount), string(card.CommentCount))),
	}
}

// Normalize decodes a raw captured note into its canonical form. Media
// references only exist on the flat shape, so they are taken from there
// directly; the scalar fields go through the two-source merge.
func Normalize(raw json.RawMessage) (*Note, error) {
	var r rawNote
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to decode note JSON: %w", err)
	}

	f := mergeNoteShapes(r.flatFields(), r.NoteCard.fields())

	n := &Note{
		ID:           f.ID,
		Title:        f.Title,
		Desc:         f.Desc,
		Type:         f.Type,
		Author:       f.Author,
		LikedCount:   f.LikedCount,
		CommentCount: f.CommentCount,
	}
	for _, s := range r.Video.Media.Stream.H264 {
		if s.MasterURL != "" {
			n.VideoURLs = append(n.VideoURLs, s.MasterURL)
		}
	}
	for _, img := range r.ImageList {
		url := img.URLDefault
		if url == "" {
			url = img.URL
		}
		if url != "" {
			n.Images = append(n.Images, ImageRef{URL: url})
		}
	}
	return n, nil
}
