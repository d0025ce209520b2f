package mbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/dhcgn/mailrow/bodytext"
	"github.com/dhcgn/mailrow/listing"
	"github.com/dhcgn/mailrow/model"
	"github.com/dhcgn/mailrow/state"
)

// MailboxName is the only mailbox an archive exposes.
const MailboxName = "INBOX"

var ErrUnknownID = errors.New("no such message in archive")

type Options struct {
	Path string
	// DecodeMIME returns the decoded text/plain part instead of the raw body.
	DecodeMIME bool
}

type entry struct {
	hash string
	raw  []byte
}

// Client serves an mbox archive as a read-only mailbox. The archive has no
// flags of its own, so seen state lives in the tracker.
type Client struct {
	opts     Options
	tracker  state.Tracker
	logger   *slog.Logger
	messages map[string]entry
	order    []string
	selected bool
}

// Open reads the whole archive. Message ids are 1-based positions.
func Open(opts Options, tracker state.Tracker, logger *slog.Logger) (*Client, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty: %w", model.ErrConnection)
	}
	if tracker == nil {
		return nil, fmt.Errorf("tracker must not be nil")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w: %w", model.ErrConnection, err)
	}
	defer file.Close()

	c := &Client{opts: opts, tracker: tracker, logger: logger, messages: make(map[string]entry)}
	if err := c.load(file); err != nil {
		return nil, fmt.Errorf("read mbox %s: %w: %w", path, model.ErrConnection, err)
	}

	logger.Debug("mbox archive loaded", "path", path, "messages", len(c.order))
	return c, nil
}

func (c *Client) load(r io.Reader) error {
	reader := mboxlib.NewReader(r)
	for idx := 1; ; idx++ {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("message %d read: %w", idx, err)
		}

		id := strconv.Itoa(idx)
		c.messages[id] = entry{hash: hashOf(raw), raw: raw}
		c.order = append(c.order, id)
	}
}

func (c *Client) ListMailboxes(context.Context) ([]string, error) {
	return []string{listing.Format([]string{`\HasNoChildren`}, "/", MailboxName)}, nil
}

func (c *Client) Select(_ context.Context, name string) error {
	if !strings.EqualFold(name, MailboxName) {
		return fmt.Errorf("mbox archive only has %s, not %q", MailboxName, name)
	}
	c.selected = true
	return nil
}

func (c *Client) SearchUnseen(context.Context) ([]string, error) {
	if !c.selected {
		return nil, fmt.Errorf("search before select")
	}
	ids := make([]string, 0, len(c.order))
	for _, id := range c.order {
		if !c.tracker.Seen(c.messages[id].hash) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Fetch returns the message body. Headers are dropped unless DecodeMIME is
// set, in which case the text/plain part is decoded.
func (c *Client) Fetch(_ context.Context, id string) (string, error) {
	e, ok := c.messages[id]
	if !ok {
		return "", fmt.Errorf("%q: %w", id, ErrUnknownID)
	}
	if c.opts.DecodeMIME {
		return bodytext.Plain(e.raw)
	}
	_, body := bodytext.SplitRawMessage(e.raw)
	return string(body), nil
}

func (c *Client) MarkSeen(_ context.Context, id string) error {
	e, ok := c.messages[id]
	if !ok {
		return fmt.Errorf("%q: %w", id, ErrUnknownID)
	}
	return c.tracker.MarkSeen(e.hash, id)
}

// Close releases the tracker when it holds a file.
func (c *Client) Close() error {
	if closer, ok := c.tracker.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func hashOf(raw []byte) string {
	sum := sha256.Sum256(bytes.TrimSpace(raw))
	return base64.StdEncoding.EncodeToString(sum[:])
}
