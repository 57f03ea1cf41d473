package web

import (
	"fmt"
	"sync"

	"github.com/replydesk/replydesk/internal/mail"
	"github.com/replydesk/replydesk/internal/pipeline"
)

// Flash is a one-shot status message rendered on the next page load.
type Flash struct {
	// Kind is "success", "warning", or "error"; it selects the banner style.
	Kind string
	Text string
}

// State is the single explicit application state for the session:
// credentials, the fetched email list, the current selection, and the
// last draft result. The email list and selection are always replaced
// together so the selection index can never dangle. All access goes
// through the mutex; handlers never reach into fields directly.
type State struct {
	mu sync.Mutex

	creds    mail.Credentials
	apiKey   string
	emails   []mail.Record
	selected int
	result   *pipeline.Result
	flash    *Flash
}

// NewState creates empty session state.
func NewState() *State {
	return &State{}
}

// Snapshot is a consistent read-only copy of the state for rendering.
type Snapshot struct {
	Address   string
	HasSecret bool
	HasAPIKey bool
	Emails    []mail.Record
	Selected  int
	Result    *pipeline.Result
	Flash     *Flash
}

// Snapshot returns a copy of the current state and clears the pending
// flash message.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Address:   s.creds.Address,
		HasSecret: s.creds.Secret != "",
		HasAPIKey: s.apiKey != "",
		Emails:    s.emails,
		Selected:  s.selected,
		Result:    s.result,
		Flash:     s.flash,
	}
	s.flash = nil
	return snap
}

// SetCredentials stores the mailbox credentials for this session. Empty
// form values leave the existing secret untouched so the user does not
// have to retype the password on every action.
func (s *State) SetCredentials(address, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if address != "" {
		s.creds.Address = address
	}
	if secret != "" {
		s.creds.Secret = secret
	}
}

// SetAPIKey stores the generation service key for this session.
func (s *State) SetAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key != "" {
		s.apiKey = key
	}
}

// Credentials returns the stored mailbox credentials.
func (s *State) Credentials() mail.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

// APIKey returns the stored generation service key.
func (s *State) APIKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKey
}

// ReplaceEmails swaps in a freshly fetched list. The selection resets
// to the first (newest) message and any previous draft is discarded —
// list and selection change as one unit.
func (s *State) ReplaceEmails(emails []mail.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails = emails
	s.selected = 0
	s.result = nil
}

// Select sets the current selection. The index must be valid for the
// currently held list.
func (s *State) Select(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.emails) {
		return fmt.Errorf("selection %d out of range (have %d emails)", i, len(s.emails))
	}
	if i != s.selected {
		s.selected = i
		s.result = nil
	}
	return nil
}

// SelectedEmail returns the currently selected record, or false when
// the list is empty.
func (s *State) SelectedEmail() (mail.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.emails) == 0 {
		return mail.Record{}, false
	}
	return s.emails[s.selected], true
}

// SetResult stores the latest draft result. A failed pipeline run never
// calls this, leaving the fetched list and any prior draft untouched.
func (s *State) SetResult(r *pipeline.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = r
}

// SetFlash queues a status message for the next render.
func (s *State) SetFlash(kind, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flash = &Flash{Kind: kind, Text: text}
}
