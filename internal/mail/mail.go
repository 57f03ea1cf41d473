// Package mail implements unread-message retrieval for ReplyDesk. It
// opens a short-lived IMAPS session per fetch, searches the inbox for
// unseen messages, and decodes each into a plain Record (subject,
// sender, body). Fetches are strictly read-only: messages are fetched
// with BODY.PEEK so nothing is ever marked as seen, moved, or deleted.
package mail

// Credentials identify the mailbox for a single fetch. They are held in
// session state only and never persisted.
type Credentials struct {
	// Address is the mail address, used as the IMAP login name.
	Address string

	// Secret is the app password for the account.
	Secret string
}

// Record is one fetched unread message, decoded to plain text.
// Immutable once created.
type Record struct {
	// Subject is the decoded Subject header. RFC 2047 encoded-words are
	// decoded to plain text, defaulting to UTF-8 when no charset is
	// declared.
	Subject string

	// Sender is the raw From header value, verbatim. No display-name
	// vs. address parsing is attempted.
	Sender string

	// Body is the plain-text body. For multipart messages this is the
	// first text/plain part; for single-part messages it is the sole
	// decoded payload. Empty when no usable part exists.
	Body string
}

// ConnectionError reports a network or protocol failure while talking
// to the mail server (unreachable host, handshake failure, broken
// fetch). Retrying the same action later may succeed.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "mail server connection failed: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthError reports a credential rejection by the mail server. It is
// distinct from ConnectionError so callers can prompt for re-entry of
// credentials instead of suggesting a network retry.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "mail server rejected credentials: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// ParseError reports that a fetched message stream could not be
// decoded. Individual malformed messages are skipped with a log line
// instead; ParseError only surfaces when the fetch itself is unusable.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "message decode failed: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }
