package web

import (
	"net/url"
	"strings"
)

// BuildMailtoLink builds a compose deep link for replying to the
// selected email: subject "Re: <original subject>" and the draft text
// as the body, both percent-encoded. No recipient is pre-filled; the
// support worker addresses the reply in their own mail client.
func BuildMailtoLink(subject, draft string) string {
	var sb strings.Builder
	sb.WriteString("mailto:?subject=")
	sb.WriteString(escapeMailtoComponent("Re: " + subject))
	sb.WriteString("&body=")
	sb.WriteString(escapeMailtoComponent(draft))
	return sb.String()
}

// escapeMailtoComponent percent-encodes a mailto header value. Query
// escaping alone would encode spaces as "+", which mail clients render
// literally, so those are rewritten to %20.
func escapeMailtoComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
