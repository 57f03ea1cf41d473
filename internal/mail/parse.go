package mail

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"

	// Registers extended charsets (ISO-8859-*, windows-125*, GBK, ...)
	// with go-message so non-UTF-8 bodies decode instead of erroring.
	_ "github.com/emersion/go-message/charset"
)

// maxBodySize is the maximum body size to keep from a single message.
// Larger bodies are truncated with a note; bank support mail is short
// and the pipeline prompt should stay bounded.
const maxBodySize = 32 * 1024

// parseRecord decodes a raw RFC 5322 message into a Record.
//
// Subject: decoded from encoded-word form, UTF-8 when no charset is
// declared. Sender: the From header verbatim. Body: for multipart
// messages, the first text/plain part in walk order; for single-part
// messages, the sole payload regardless of declared type. A message
// with no usable part gets an empty body — that is accepted silently,
// not an error.
//
// go-message's mail.CreateReader and NextPart may return both a valid
// reader/part AND an error when the message uses an unknown charset or
// transfer encoding. Those are treated as non-fatal and parsing
// continues — the content may be slightly garbled but is still usable
// for drafting.
func parseRecord(r io.Reader, logger *slog.Logger) (Record, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return Record{}, fmt.Errorf("create mail reader: %w", err)
	}
	if mr == nil {
		return Record{}, fmt.Errorf("create mail reader returned nil: %w", err)
	}
	if err != nil {
		logger.Debug("mail reader created with charset warning", "error", err)
	}

	var rec Record

	subject, err := mr.Header.Subject()
	if err != nil {
		// Fall back to whatever partial decode we got; a garbled
		// subject is better than none.
		logger.Debug("subject decode warning", "error", err)
	}
	rec.Subject = subject
	rec.Sender = mr.Header.Get("From")

	contentType, _, _ := mr.Header.ContentType()
	multipart := strings.HasPrefix(contentType, "multipart/")

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return Record{}, fmt.Errorf("next part: %w", err)
		}
		if part == nil {
			continue
		}
		if err != nil {
			logger.Debug("part has charset warning", "error", err)
		}

		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			if multipart {
				partType, _, _ := h.ContentType()
				if partType != "text/plain" {
					continue
				}
			}
		case *gomail.AttachmentHeader:
			// In multipart messages attachments are never body
			// candidates. A single-part message's sole payload is
			// taken even when it declares itself an attachment.
			if multipart {
				continue
			}
		default:
			continue
		}

		body, err := io.ReadAll(io.LimitReader(part.Body, maxBodySize+1))
		if err != nil {
			logger.Debug("error reading body part", "error", err)
			continue
		}
		text := string(body)
		if len(body) > maxBodySize {
			text = text[:maxBodySize] + "\n\n[truncated: message exceeds 32KB]"
		}
		rec.Body = strings.TrimSpace(text)
		break
	}

	return rec, nil
}
