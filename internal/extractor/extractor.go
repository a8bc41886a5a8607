// Package extractor drives a headless browser session against one XHS post
// page and recovers the note plus its visible comments. Two evidence channels
// feed the capture: network response interception (primary) and the
// server-rendered page state (fallback); interception always wins.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/xhsnap/xhsnap/internal/auth"
	"github.com/xhsnap/xhsnap/internal/browser"
	"github.com/xhsnap/xhsnap/internal/config"
	"github.com/xhsnap/xhsnap/internal/types"
)

// ssrStateJS pulls the note detail entries out of the server-rendered page
// state, when present.
const ssrStateJS = `(() => {
	try {
		const state = window.__INITIAL_STATE__;
		if (state && state.note && state.note.noteDetailMap) {
			return Object.values(state.note.noteDetailMap);
		}
		return null;
	} catch (e) {
		return null;
	}
})()`

// Page titles XHS serves when a session is blocked or the note is gone.
var accessWallTitles = []string{"无法浏览", "页面不见了"}

// Extractor captures one note per session.
type Extractor struct {
	headless   bool
	navTimeout time.Duration
}

// New creates an extractor from configuration.
func New(cfg *config.Config) *Extractor {
	return &Extractor{
		headless:   cfg.Capture.Headless,
		navTimeout: cfg.NavTimeout(),
	}
}

// ParseNoteID extracts the stable note id from the two known URL shapes,
// falling back to the whole URL when neither matches.
func ParseNoteID(noteURL string) string {
	for _, marker := range []string{"explore/", "/discovery/item/"} {
		if _, rest, ok := strings.Cut(noteURL, marker); ok {
			id, _, _ := strings.Cut(rest, "?")
			return id
		}
	}
	return noteURL
}

// Capture navigates to the note URL and returns whatever was recovered. An
// absent note is a normal outcome; navigation and browser-level errors are
// fatal for the run.
func (e *Extractor) Capture(ctx context.Context, noteURL string) (*types.Capture, error) {
	noteID := ParseNoteID(noteURL)

	cookieStr := auth.ResolveCookie()
	if cookieStr == "" {
		slog.Warn("no cookie found, content may be limited",
			"hint", "set "+config.EnvCookie+" or create secrets/xhs_config.json")
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, browser.Options(e.headless)...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	// Bound the whole session; navigation gets its own tighter deadline below.
	browserCtx, timeoutCancel := context.WithTimeout(browserCtx, e.navTimeout+2*time.Minute)
	defer timeoutCancel()

	// The observer must be listening before navigation so no early response
	// is missed.
	obs := newObserver(noteID)
	obs.listen(browserCtx)

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		return nil, fmt.Errorf("failed to enable network events: %w", err)
	}

	if cookieStr != "" {
		if err := e.injectCookies(browserCtx, auth.ParseCookieString(cookieStr)); err != nil {
			return nil, fmt.Errorf("failed to inject cookies: %w", err)
		}
	}

	slog.Info("navigating", "url", noteURL)
	navCtx, navCancel := context.WithTimeout(browserCtx, e.navTimeout)
	defer navCancel()

	var title string
	if err := chromedp.Run(navCtx,
		chromedp.Navigate(noteURL),
		chromedp.Title(&title),
	); err != nil {
		return nil, fmt.Errorf("failed to load note page: %w", err)
	}

	for _, wall := range accessWallTitles {
		if strings.Contains(title, wall) {
			slog.Warn("hit access wall, checking for embedded data", "title", title)
		}
	}
	slog.Info("page loaded", "title", title)

	// Join in-flight body fetches so an intercepted note is in the slot
	// before the fallback decision below.
	obs.wait()

	// Fallback channel: server-rendered page state. Never overwrites a note
	// the observer already captured.
	var ssrItems []json.RawMessage
	if err := chromedp.Run(browserCtx, chromedp.Evaluate(ssrStateJS, &ssrItems)); err != nil {
		slog.Warn("failed to read embedded page state", "error", err)
	} else if !obs.hasNote() {
		if item, exact, found := pickNote(ssrItems, noteID); found {
			if exact {
				slog.Info("found exact match in embedded page state")
			} else {
				slog.Warn("no exact id match in embedded page state, using best-effort item", "note_id", noteID)
			}
			obs.setFallbackNote(item, exact)
		}
	}

	// Scroll to trigger lazy-loaded comment batches. Best-effort: there is no
	// guarantee every comment loads.
	if obs.hasNote() {
		slog.Info("scrolling to load comments")
		if err := chromedp.Run(browserCtx,
			chromedp.Evaluate(`window.scrollBy(0, 2000)`, nil),
			chromedp.Sleep(2*time.Second),
			chromedp.Evaluate(`window.scrollBy(0, 2000)`, nil),
			chromedp.Sleep(2*time.Second),
		); err != nil {
			slog.Warn("scroll failed", "error", err)
		}
	}

	// Join again so the late comment batches triggered by scrolling make it
	// into the snapshot.
	obs.wait()
	return obs.capture(), nil
}

// injectCookies sets the session cookies in the browser context, scoped to
// the XHS domain.
func (e *Extractor) injectCookies(ctx context.Context, cookies []auth.SessionCookie) error {
	return chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				err := network.SetCookie(c.Name, c.Value).
					WithDomain(auth.CookieDomain).
					WithPath("/").
					Do(ctx)
				if err != nil {
					return err
				}
			}
			return nil
		}),
	)
}
