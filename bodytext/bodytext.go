package bodytext

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Plain returns the first text/plain part of a full RFC 5322 message, decoded
// from its transfer encoding and charset. Messages without a text/plain part
// fall back to the first text/html part, then to the raw body.
func Plain(raw []byte) (string, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return "", fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	var html string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				continue
			}
			return "", fmt.Errorf("read part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return "", fmt.Errorf("read part body: %w", err)
		}

		switch {
		case contentType == "", strings.HasPrefix(contentType, "text/plain"):
			return string(body), nil
		case strings.HasPrefix(contentType, "text/html") && html == "":
			html = string(body)
		}
	}

	if html != "" {
		return html, nil
	}

	_, body := SplitRawMessage(raw)
	return string(body), nil
}

// SplitRawMessage splits a raw message into header and body at the first blank line.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}

	return raw, nil
}
