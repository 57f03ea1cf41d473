package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// maxRawMessageSize is the maximum raw RFC822 message size to buffer
// when reading from the IMAP literal. Messages larger than this (e.g.
// with huge attachments) are truncated — the remainder of the literal
// is drained to keep the IMAP stream in sync. The parsed text body is
// further truncated at maxBodySize by parseRecord.
const maxRawMessageSize = 5 * 1024 * 1024

// ServerConfig holds the fixed mail server endpoint. Credentials are
// supplied per fetch, not here.
type ServerConfig struct {
	// Host is the IMAP server hostname (e.g., "imap.gmail.com").
	Host string

	// Port is the IMAPS port (e.g., 993).
	Port int
}

// Client fetches unread messages from a single IMAP server. Each fetch
// opens its own connection and closes it before returning — there is no
// pooling or reuse across user actions.
type Client struct {
	cfg    ServerConfig
	logger *slog.Logger
}

// NewClient creates a mail client for the given server endpoint.
func NewClient(cfg ServerConfig, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger,
	}
}

// FetchUnread returns up to limit of the most recent unread messages,
// newest-first. A mailbox with no unread messages yields an empty list
// and no error.
//
// Failures are typed: *ConnectionError for dial/handshake/protocol
// trouble, *AuthError for rejected credentials, *ParseError when the
// fetch stream cannot be decoded at all. Individual malformed messages
// are logged and skipped rather than failing the whole fetch.
func (c *Client) FetchUnread(ctx context.Context, creds Credentials, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 5
	}

	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))

	opts := imapclient.Options{
		TLSConfig: &tls.Config{ServerName: c.cfg.Host},
	}

	c.logger.Debug("connecting to IMAP server", "host", c.cfg.Host, "port", c.cfg.Port)

	client, err := imapclient.DialTLS(addr, &opts)
	if err != nil {
		return nil, &ConnectionError{Err: fmt.Errorf("dial IMAP %s: %w", addr, err)}
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Login(creds.Address, creds.Secret).Wait(); err != nil {
		return nil, &AuthError{Err: fmt.Errorf("login as %s: %w", creds.Address, err)}
	}
	defer func() {
		// Best-effort logout; the deferred Close above tears down the
		// connection regardless.
		_ = client.Logout().Wait()
	}()

	c.logger.Info("IMAP connected", "host", c.cfg.Host, "user", creds.Address)

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, &ConnectionError{Err: fmt.Errorf("select INBOX: %w", err)}
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, &ConnectionError{Err: fmt.Errorf("search unseen: %w", err)}
	}

	allUIDs := searchData.AllUIDs()
	if len(allUIDs) == 0 {
		c.logger.Debug("no unread messages", "user", creds.Address)
		return nil, nil
	}

	uids := newestFirst(allUIDs, limit)

	records := make([]Record, 0, len(uids))
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return nil, &ConnectionError{Err: err}
		}
		rec, err := c.fetchOne(client, uid)
		if err != nil {
			var parseErr *ParseError
			if errors.As(err, &parseErr) {
				c.logger.Warn("skipping undecodable message", "uid", uid, "error", err)
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}

	c.logger.Info("fetched unread messages", "count", len(records), "limit", limit)
	return records, nil
}

// newestFirst returns up to limit UIDs in newest-first order. Servers
// return search results oldest-first, so the tail of the input holds
// the most recent messages.
func newestFirst(uids []imap.UID, limit int) []imap.UID {
	if len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}
	out := make([]imap.UID, len(uids))
	for i, uid := range uids {
		out[len(uids)-1-i] = uid
	}
	return out
}

// fetchOne fetches and decodes a single message by UID. The body is
// fetched with Peek so the message keeps its unseen flag.
func (c *Client) fetchOne(client *imapclient.Client, uid imap.UID) (Record, error) {
	uidSet := imap.UIDSet{}
	uidSet.AddNum(uid)

	fetchOpts := &imap.FetchOptions{
		UID: true,
		BodySection: []*imap.FetchItemBodySection{
			{Peek: true}, // Read-only: never mark as \Seen.
		},
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)

	var rawBody []byte
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			data, ok := item.(imapclient.FetchItemDataBodySection)
			if !ok {
				continue
			}
			// Consume the literal immediately. go-imap/v2 streams data
			// from the IMAP connection; msg.Next() advances past unread
			// literals, so deferring the read would lose the body.
			if data.Literal == nil {
				c.logger.Debug("nil body literal", "uid", uid)
				continue
			}
			var readErr error
			rawBody, readErr = io.ReadAll(io.LimitReader(data.Literal, maxRawMessageSize))
			// Drain any remaining data so the IMAP stream stays in sync.
			_, _ = io.Copy(io.Discard, data.Literal)
			if readErr != nil {
				c.logger.Debug("error reading body literal", "uid", uid, "error", readErr)
				rawBody = nil
			}
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return Record{}, &ConnectionError{Err: fmt.Errorf("fetch message UID %d: %w", uid, err)}
	}

	if rawBody == nil {
		return Record{}, &ParseError{Err: fmt.Errorf("message UID %d has no body literal", uid)}
	}

	rec, err := parseRecord(bytes.NewReader(rawBody), c.logger)
	if err != nil {
		return Record{}, &ParseError{Err: fmt.Errorf("message UID %d: %w", uid, err)}
	}
	return rec, nil
}
