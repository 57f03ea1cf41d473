// Package web provides the browser interface for ReplyDesk: a single
// page with a credential sidebar, an unread-email picker, and a draft
// panel. The interface is strictly request-response — each user action
// (fetch, select, generate) runs to completion before the next.
package web

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"sync"

	"github.com/yuin/goldmark"

	"github.com/replydesk/replydesk/internal/mail"
	"github.com/replydesk/replydesk/internal/pipeline"
	"github.com/replydesk/replydesk/internal/policy"
)

// Fetcher retrieves unread messages. *mail.Client satisfies this.
type Fetcher interface {
	FetchUnread(ctx context.Context, creds mail.Credentials, limit int) ([]mail.Record, error)
}

// Drafter runs the drafting pipeline. *pipeline.Orchestrator satisfies
// this.
type Drafter interface {
	Draft(ctx context.Context, emailBody string) (*pipeline.Result, error)
}

// DrafterFactory builds a Drafter bound to the generation service key
// the user entered. The server caches the result per key so the rate
// ceiling carries across draft actions.
type DrafterFactory func(apiKey string) Drafter

// Server is the ReplyDesk web UI.
type Server struct {
	logger     *slog.Logger
	fetcher    Fetcher
	newDrafter DrafterFactory
	fetchLimit int
	state      *State
	templates  map[string]*template.Template
	markdown   goldmark.Markdown

	// drafter is cached per API key; see DrafterFactory.
	drafterMu  sync.Mutex
	drafter    Drafter
	drafterKey string
}

// NewServer creates the web UI server.
func NewServer(fetcher Fetcher, factory DrafterFactory, fetchLimit int, logger *slog.Logger) *Server {
	return &Server{
		logger:     logger,
		fetcher:    fetcher,
		newDrafter: factory,
		fetchLimit: fetchLimit,
		state:      NewState(),
		templates:  loadTemplates(),
		markdown:   goldmark.New(),
	}
}

// SeedAPIKey pre-fills the session's generation key, typically from
// config environment expansion. A key later entered in the browser
// replaces it. Empty input is ignored.
func (s *Server) SeedAPIKey(key string) {
	if key != "" {
		s.state.SetAPIKey(key)
	}
}

// Handler returns the route mux for the UI.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /fetch", s.handleFetch)
	mux.HandleFunc("POST /select", s.handleSelect)
	mux.HandleFunc("POST /draft", s.handleDraft)
	return mux
}

// emailRow is a display-friendly wrapper for the picker list.
type emailRow struct {
	Index    int
	Sender   string
	Preview  string
	Selected bool
}

// IndexData is the template context for the main page.
type IndexData struct {
	Flash     *Flash
	Address   string
	HasSecret bool
	HasAPIKey bool

	Emails   []emailRow
	HasEmail bool
	Subject  string
	Sender   string
	Body     string

	Result     *pipeline.Result
	DraftHTML  template.HTML
	MailtoLink string

	Policies []policy.Entry
}

// handleIndex renders the single application page from current state.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, "index.html", s.buildIndexData())
}

// buildIndexData projects the session state into template context.
func (s *Server) buildIndexData() IndexData {
	snap := s.state.Snapshot()

	data := IndexData{
		Flash:     snap.Flash,
		Address:   snap.Address,
		HasSecret: snap.HasSecret,
		HasAPIKey: snap.HasAPIKey,
		Policies:  policy.Entries(),
	}

	for i, e := range snap.Emails {
		data.Emails = append(data.Emails, emailRow{
			Index:    i,
			Sender:   e.Sender,
			Preview:  truncate(e.Subject, 20),
			Selected: i == snap.Selected,
		})
	}

	if len(snap.Emails) > 0 {
		sel := snap.Emails[snap.Selected]
		data.HasEmail = true
		data.Subject = sel.Subject
		data.Sender = sel.Sender
		data.Body = sel.Body

		if snap.Result != nil {
			data.Result = snap.Result
			data.DraftHTML = s.renderMarkdown(snap.Result.Draft)
			data.MailtoLink = BuildMailtoLink(sel.Subject, snap.Result.Draft)
		}
	}

	return data
}

// renderMarkdown converts the draft markdown to HTML for display.
// goldmark escapes raw HTML by default, so model output cannot inject
// markup into the page.
func (s *Server) renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(src), &buf); err != nil {
		s.logger.Warn("draft markdown render failed", "error", err)
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}
