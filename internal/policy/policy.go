// Package policy provides the static bank-policy lookup table that
// grounds the drafting stage. It is a pure function over a fixed table:
// no state, no persistence, deterministic results.
package policy

import "strings"

// Entry is one keyword-indexed policy snippet.
type Entry struct {
	// Keyword is matched case-insensitively as a substring of the query.
	Keyword string

	// Text is the policy snippet returned on a match.
	Text string
}

// Fallback is returned when no keyword matches the query.
const Fallback = "Refer to General Terms."

// entries is the policy table in match-priority order. A slice (not a
// map) so that first-match iteration order is fixed.
var entries = []Entry{
	{Keyword: "fraud", Text: "POLICY 9.1: Unauthorized Transaction. If reported within 24 hours, 0 liability. Immediate freeze."},
	{Keyword: "refund", Text: "POLICY 4.2: Refunds <$50 auto-credit. >$50 require Manager Approval."},
	{Keyword: "fee", Text: "POLICY 2.1: Overdraft fees $35. Waivable once per year."},
}

// Lookup returns the text of the first entry whose keyword appears in
// the query, matching case-insensitively. Returns Fallback when nothing
// matches. Never fails.
func Lookup(query string) string {
	q := strings.ToLower(query)
	for _, e := range entries {
		if strings.Contains(q, e.Keyword) {
			return e.Text
		}
	}
	return Fallback
}

// Entries returns a copy of the policy table for display purposes.
func Entries() []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
