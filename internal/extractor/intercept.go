package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/xhsnap/xhsnap/internal/types"
)

// Endpoint classes the observer cares about.
const (
	feedEndpoint        = "/api/sns/web/v1/feed"
	noteEndpoint        = "/api/sns/web/v1/note"
	commentPageEndpoint = "/api/sns/web/v2/comment/page"
)

type responseKind int

const (
	kindNote responseKind = iota
	kindComments
)

// classifyResponse maps a response URL to the observer channel it feeds.
func classifyResponse(url string) (responseKind, bool) {
	if strings.Contains(url, feedEndpoint) || strings.Contains(url, noteEndpoint) {
		return kindNote, true
	}
	if strings.Contains(url, commentPageEndpoint) {
		return kindComments, true
	}
	return 0, false
}

// observer accumulates capture evidence from intercepted responses. All
// per-response failures are swallowed: one bad frame must not abort the
// session.
type observer struct {
	noteID string

	// Tracks in-flight body fetches; callers must join before reading.
	wg sync.WaitGroup

	mu        sync.Mutex
	note      json.RawMessage
	noteExact bool
	comments  []types.Comment
	pending   map[network.RequestID]responseKind
}

func newObserver(noteID string) *observer {
	return &observer{
		noteID:  noteID,
		pending: map[network.RequestID]responseKind{},
	}
}

// listen installs the response observer on the browser context. Bodies are
// only fetchable once loading finishes, so responses are tracked on receipt
// and consumed on completion.
func (o *observer) listen(browserCtx context.Context) {
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *network.EventResponseReceived:
			kind, ok := classifyResponse(ev.Response.URL)
			if !ok {
				return
			}
			o.mu.Lock()
			o.pending[ev.RequestID] = kind
			o.mu.Unlock()

		case *network.EventLoadingFinished:
			o.mu.Lock()
			kind, ok := o.pending[ev.RequestID]
			delete(o.pending, ev.RequestID)
			o.mu.Unlock()
			if !ok {
				return
			}

			// Body retrieval needs its own CDP call, which cannot run inside
			// the event handler.
			o.background(func() {
				c := chromedp.FromContext(browserCtx)
				body, err := network.GetResponseBody(ev.RequestID).Do(cdp.WithExecutor(browserCtx, c.Target))
				if err != nil {
					slog.Debug("failed to read intercepted body", "error", err)
					return
				}
				o.consume(kind, body)
			})
		}
	})
}

// background runs fn on its own goroutine, tracked so wait can join it.
func (o *observer) background(fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
}

// wait blocks until every in-flight body fetch has been consumed. The fetches
// run against the browser context, so its deadline bounds the wait.
func (o *observer) wait() {
	o.wg.Wait()
}

// consume parses one intercepted body into the running capture.
func (o *observer) consume(kind responseKind, body []byte) {
	switch kind {
	case kindNote:
		item, err := firstFeedItem(body)
		if err != nil {
			slog.Debug("skipping malformed note response", "error", err)
			return
		}
		o.setNote(item, noteItemID(item) == o.noteID)

	case kindComments:
		comments, err := commentPage(body)
		if err != nil {
			slog.Debug("skipping malformed comment response", "error", err)
			return
		}
		if len(comments) == 0 {
			return
		}
		o.mu.Lock()
		o.comments = append(o.comments, comments...)
		o.mu.Unlock()
		slog.Info("intercepted comments", "count", len(comments))
	}
}

// setNote records an intercepted note. An exact id match always replaces the
// slot; a non-matching item only fills an empty slot.
func (o *observer) setNote(item json.RawMessage, exact bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if exact {
		o.note = item
		o.noteExact = true
		return
	}
	if o.note == nil {
		o.note = item
	}
}

// setFallbackNote records a note recovered from embedded page state. The
// caller checks hasNote first; this re-checks under the lock so the fallback
// never overwrites an interception capture that raced in.
func (o *observer) setFallbackNote(item json.RawMessage, exact bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.note != nil {
		return
	}
	o.note = item
	o.noteExact = exact
}

func (o *observer) hasNote() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.note != nil
}

// capture snapshots the accumulated evidence.
func (o *observer) capture() *types.Capture {
	o.mu.Lock()
	defer o.mu.Unlock()
	return &types.Capture{
		Note:     o.note,
		Comments: o.comments,
	}
}

// feedPayload is the envelope of the feed/note detail endpoints.
type feedPayload struct {
	Data struct {
		Items []json.RawMessage `json:"items"`
	} `json:"data"`
}

// firstFeedItem returns the first item of a feed/note response body.
func firstFeedItem(body []byte) (json.RawMessage, error) {
	var payload feedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode feed response: %w", err)
	}
	if len(payload.Data.Items) == 0 {
		return nil, fmt.Errorf("feed response has no items")
	}
	return payload.Data.Items[0], nil
}

// commentPayload is the envelope of the comment pagination endpoint.
type commentPayload struct {
	Data struct {
		Comments []types.Comment `json:"comments"`
	} `json:"data"`
}

// commentPage returns the comments of one pagination response body.
func commentPage(body []byte) ([]types.Comment, error) {
	var payload commentPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode comment response: %w", err)
	}
	return payload.Data.Comments, nil
}

// noteIdent is the subset of fields used for id matching and plausibility
// checks across both upstream shapes.
type noteIdent struct {
	ID      string          `json:"id"`
	NoteID  string          `json:"noteId"`
	SnakeID string          `json:"note_id"`
	Title   string          `json:"title"`
	Desc    string          `json:"desc"`
	Note    json.RawMessage `json:"note"`
}

// noteItemID extracts an item's note id, trying the known key spellings.
func noteItemID(item json.RawMessage) string {
	var ident noteIdent
	if err := json.Unmarshal(item, &ident); err != nil {
		return ""
	}
	switch {
	case ident.NoteID != "":
		return ident.NoteID
	case ident.SnakeID != "":
		return ident.SnakeID
	default:
		return ident.ID
	}
}

// pickNote chooses a note from the embedded page state entries. Precedence:
// an exact id match, else the first item with a non-empty title or
// description as a best-effort match (which can attach the wrong post when
// several items are present; the caller logs that case). Entries wrapped as
// {note: {...}, comments: {...}} are unwrapped first.
func pickNote(items []json.RawMessage, noteID string) (item json.RawMessage, exact, found bool) {
	var bestEffort json.RawMessage

	for _, raw := range items {
		if len(raw) == 0 {
			continue
		}
		var ident noteIdent
		if err := json.Unmarshal(raw, &ident); err != nil {
			continue
		}
		if len(ident.Note) > 0 && string(ident.Note) != "null" {
			raw = ident.Note
			if err := json.Unmarshal(raw, &ident); err != nil {
				continue
			}
		}

		if ident.NoteID == noteID || ident.ID == noteID {
			return raw, true, true
		}
		if bestEffort == nil && (ident.Title != "" || ident.Desc != "") {
			bestEffort = raw
		}
	}

	if bestEffort != nil {
		return bestEffort, false, true
	}
	return nil, false, false
}
