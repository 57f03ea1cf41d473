package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/replydesk/replydesk/internal/mail"
	"github.com/replydesk/replydesk/internal/pipeline"
)

// handleFetch replaces the email list with a fresh unread fetch.
// Failures never crash the interface: they become a flash message and
// the previous list stays in place so the user can retry.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	s.state.SetCredentials(r.FormValue("address"), r.FormValue("secret"))
	s.state.SetAPIKey(r.FormValue("api_key"))

	creds := s.state.Credentials()
	if creds.Address == "" || creds.Secret == "" {
		// ConfigError: caught before any network call.
		s.state.SetFlash("error", "Enter your mail address and app password first.")
		s.redirectHome(w, r)
		return
	}

	emails, err := s.fetcher.FetchUnread(r.Context(), creds, s.fetchLimit)
	if err != nil {
		s.state.SetFlash(classifyMailError(err))
		s.logger.Warn("fetch failed", "error", err)
		s.redirectHome(w, r)
		return
	}

	s.state.ReplaceEmails(emails)
	if len(emails) == 0 {
		s.state.SetFlash("warning", "No unread emails found.")
	} else {
		s.state.SetFlash("success", fmt.Sprintf("Found %d unread email(s).", len(emails)))
	}

	s.logger.Info("inbox fetched", "count", len(emails))
	s.redirectHome(w, r)
}

// classifyMailError maps typed mail errors to a flash kind and a
// user-facing hint: auth failures prompt for credential re-entry,
// everything else suggests a retry.
func classifyMailError(err error) (kind, text string) {
	var authErr *mail.AuthError
	if errors.As(err, &authErr) {
		return "error", "The mail server rejected your credentials. Check the address and app password and try again."
	}
	var parseErr *mail.ParseError
	if errors.As(err, &parseErr) {
		return "error", "A fetched message could not be decoded. Try fetching again."
	}
	return "error", "Could not reach the mail server. Check your network and try again."
}

// handleSelect changes the current selection within the fetched list.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.FormValue("index"))
	if err != nil {
		http.Error(w, "invalid selection", http.StatusBadRequest)
		return
	}
	if err := s.state.Select(idx); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.redirectHome(w, r)
}

// handleDraft runs the pipeline on the selected email's body. A
// pipeline failure leaves the fetched list and selection untouched.
func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	s.state.SetAPIKey(r.FormValue("api_key"))

	apiKey := s.state.APIKey()
	if apiKey == "" {
		s.state.SetFlash("error", "Enter your Gemini API key first.")
		s.redirectHome(w, r)
		return
	}

	selected, ok := s.state.SelectedEmail()
	if !ok {
		s.state.SetFlash("error", "Fetch and select an email before generating a draft.")
		s.redirectHome(w, r)
		return
	}

	result, err := s.drafterFor(apiKey).Draft(r.Context(), selected.Body)
	if err != nil {
		var pipeErr *pipeline.PipelineError
		if errors.As(err, &pipeErr) {
			s.state.SetFlash("error", fmt.Sprintf("Draft generation failed (%s stage). Check your API key and try again.", pipeErr.Stage))
		} else {
			s.state.SetFlash("error", "Draft generation failed. Try again.")
		}
		s.logger.Warn("draft failed", "error", err)
		s.redirectHome(w, r)
		return
	}

	s.state.SetResult(result)
	s.state.SetFlash("success", "Draft ready.")
	s.logger.Info("draft generated", "draft_len", len(result.Draft))
	s.redirectHome(w, r)
}

// drafterFor returns the cached drafter for the given key, building a
// new one when the key changes. Reusing the drafter keeps its request
// rate ceiling effective across successive draft actions.
func (s *Server) drafterFor(apiKey string) Drafter {
	s.drafterMu.Lock()
	defer s.drafterMu.Unlock()
	if s.drafter == nil || s.drafterKey != apiKey {
		s.drafter = s.newDrafter(apiKey)
		s.drafterKey = apiKey
	}
	return s.drafter
}

// redirectHome sends the browser back to the main page (POST-redirect-GET).
func (s *Server) redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
