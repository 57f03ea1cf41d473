package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/replydesk/replydesk/internal/mail"
	"github.com/replydesk/replydesk/internal/pipeline"
)

type fakeFetcher struct {
	records []mail.Record
	err     error
	calls   int
	creds   mail.Credentials
	limit   int
}

func (f *fakeFetcher) FetchUnread(ctx context.Context, creds mail.Credentials, limit int) ([]mail.Record, error) {
	f.calls++
	f.creds = creds
	f.limit = limit
	return f.records, f.err
}

type fakeDrafter struct {
	result *pipeline.Result
	err    error
	calls  int
	body   string
}

func (f *fakeDrafter) Draft(ctx context.Context, emailBody string) (*pipeline.Result, error) {
	f.calls++
	f.body = emailBody
	return f.result, f.err
}

type testEnv struct {
	server       *Server
	handler      http.Handler
	fetcher      *fakeFetcher
	drafter      *fakeDrafter
	factoryCalls int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		fetcher: &fakeFetcher{},
		drafter: &fakeDrafter{},
	}
	factory := func(apiKey string) Drafter {
		env.factoryCalls++
		return env.drafter
	}
	env.server = NewServer(env.fetcher, factory, 5, slog.Default())
	env.handler = env.server.Handler()
	return env
}

// post submits a form and requires the POST-redirect-GET 303.
func (e *testEnv) post(t *testing.T, path string, form url.Values) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("POST %s status = %d, want 303 (body: %s)", path, rec.Code, rec.Body.String())
	}
}

// get renders the index page and returns the HTML.
func (e *testEnv) get(t *testing.T) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rec.Code)
	}
	return rec.Body.String()
}

func credentialForm() url.Values {
	return url.Values{
		"address": {"user@example.com"},
		"secret":  {"app-password"},
		"api_key": {"gemini-key"},
	}
}

func TestFetchSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.records = []mail.Record{
		{Subject: "Fraud alert", Sender: "a@example.com", Body: "help, fraud"},
		{Subject: "Fee question", Sender: "b@example.com", Body: "why a fee"},
	}

	env.post(t, "/fetch", credentialForm())

	if env.fetcher.calls != 1 {
		t.Fatalf("fetch calls = %d", env.fetcher.calls)
	}
	if env.fetcher.creds.Address != "user@example.com" || env.fetcher.limit != 5 {
		t.Errorf("fetch args = %+v limit %d", env.fetcher.creds, env.fetcher.limit)
	}

	html := env.get(t)
	if !strings.Contains(html, "Found 2 unread email(s).") {
		t.Error("success flash missing")
	}
	if !strings.Contains(html, "a@example.com") || !strings.Contains(html, "b@example.com") {
		t.Error("email list missing from page")
	}
	// The newest (first) message is selected by default.
	if !strings.Contains(html, "Fraud alert") {
		t.Error("selected email subject missing")
	}
}

func TestFetchMissingCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/fetch", url.Values{"address": {"user@example.com"}})

	if env.fetcher.calls != 0 {
		t.Error("fetch must not run without a password")
	}
	if !strings.Contains(env.get(t), "app password") {
		t.Error("expected config-error flash")
	}
}

func TestFetchAuthErrorKeepsList(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.records = []mail.Record{{Subject: "Keep me", Sender: "a@example.com"}}
	env.post(t, "/fetch", credentialForm())

	// Second fetch fails authentication.
	env.fetcher.records = nil
	env.fetcher.err = &mail.AuthError{Err: errors.New("LOGIN failed")}
	env.post(t, "/fetch", credentialForm())

	html := env.get(t)
	if !strings.Contains(html, "rejected your credentials") {
		t.Error("auth failure must prompt for credential re-entry")
	}
	if !strings.Contains(html, "Keep me") {
		t.Error("previous list must survive a failed fetch")
	}
}

func TestFetchConnectionError(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.err = &mail.ConnectionError{Err: errors.New("dial timeout")}
	env.post(t, "/fetch", credentialForm())

	if !strings.Contains(env.get(t), "Could not reach the mail server") {
		t.Error("expected network-retry flash")
	}
}

func TestFetchEmptyInbox(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/fetch", credentialForm())

	if !strings.Contains(env.get(t), "No unread emails found.") {
		t.Error("expected empty-inbox notice")
	}
}

func TestSelectInvalidIndex(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.records = []mail.Record{{Subject: "Only one"}}
	env.post(t, "/fetch", credentialForm())

	for _, idx := range []string{"5", "-1", "abc"} {
		req := httptest.NewRequest("POST", "/select", strings.NewReader("index="+idx))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("select %q status = %d, want 400", idx, rec.Code)
		}
	}
}

func TestDraftSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.records = []mail.Record{{Subject: "Fee question", Sender: "a@example.com", Body: "why a fee"}}
	env.drafter.result = &pipeline.Result{
		Urgency:  "LOW",
		Entities: "- topic: fee",
		Draft:    "Dear customer,\n\nThe **fee** is waivable once per year.",
	}

	env.post(t, "/fetch", credentialForm())
	env.post(t, "/draft", url.Values{"api_key": {"gemini-key"}})

	if env.drafter.calls != 1 {
		t.Fatalf("draft calls = %d", env.drafter.calls)
	}

	html := env.get(t)
	if !strings.Contains(html, "Draft ready.") {
		t.Error("success flash missing")
	}
	// Markdown renders to HTML for display.
	if !strings.Contains(html, "<strong>fee</strong>") {
		t.Error("draft markdown not rendered")
	}
	if !strings.Contains(html, "mailto:?subject=Re%3A%20Fee%20question") {
		t.Error("mailto link missing or malformed")
	}
	if !strings.Contains(html, "LOW") {
		t.Error("triage note missing")
	}
}

// Drafting must run on the body of the email the user selected, not
// the default first entry.
func TestDraftUsesSelectedEmail(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.records = []mail.Record{
		{Subject: "Newest", Sender: "a@example.com", Body: "body zero"},
		{Subject: "Middle", Sender: "b@example.com", Body: "body one"},
		{Subject: "Oldest", Sender: "c@example.com", Body: "body two"},
	}
	env.drafter.result = &pipeline.Result{Draft: "d"}

	env.post(t, "/fetch", credentialForm())
	env.post(t, "/select", url.Values{"index": {"1"}})
	env.post(t, "/draft", url.Values{"api_key": {"gemini-key"}})

	if env.drafter.calls != 1 {
		t.Fatalf("draft calls = %d", env.drafter.calls)
	}
	if env.drafter.body != "body one" {
		t.Errorf("drafter received %q, want the selected email's body", env.drafter.body)
	}
}

func TestDraftWithoutKey(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.records = []mail.Record{{Subject: "x", Body: "y"}}
	env.post(t, "/fetch", url.Values{"address": {"u@example.com"}, "secret": {"pw"}})

	env.post(t, "/draft", url.Values{})

	if env.drafter.calls != 0 {
		t.Error("pipeline must not run without a key")
	}
	if !strings.Contains(env.get(t), "API key") {
		t.Error("expected key-required flash")
	}
}

func TestDraftWithoutSelection(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/draft", url.Values{"api_key": {"gemini-key"}})

	if env.drafter.calls != 0 {
		t.Error("pipeline must not run without a fetched email")
	}
}

func TestDraftFailureKeepsList(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.records = []mail.Record{{Subject: "Keep me", Sender: "a@example.com", Body: "b"}}
	env.drafter.err = &pipeline.PipelineError{Stage: "triage", Err: errors.New("status 403")}

	env.post(t, "/fetch", credentialForm())
	env.post(t, "/draft", url.Values{"api_key": {"gemini-key"}})

	html := env.get(t)
	if !strings.Contains(html, "triage stage") {
		t.Error("flash must name the failing stage")
	}
	if !strings.Contains(html, "Keep me") {
		t.Error("fetched list must survive a pipeline failure")
	}
}

func TestDrafterCachedPerKey(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.records = []mail.Record{{Subject: "x", Body: "y"}}
	env.drafter.result = &pipeline.Result{Draft: "d"}
	env.post(t, "/fetch", credentialForm())

	env.post(t, "/draft", url.Values{"api_key": {"key-1"}})
	env.post(t, "/draft", url.Values{"api_key": {"key-1"}})
	if env.factoryCalls != 1 {
		t.Errorf("factory calls = %d, want the drafter reused for the same key", env.factoryCalls)
	}

	env.post(t, "/draft", url.Values{"api_key": {"key-2"}})
	if env.factoryCalls != 2 {
		t.Errorf("factory calls = %d, want a fresh drafter for a new key", env.factoryCalls)
	}
}
