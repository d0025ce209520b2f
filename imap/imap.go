package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/mailrow/bodytext"
	"github.com/dhcgn/mailrow/listing"
	"github.com/dhcgn/mailrow/model"
)

var ErrInvalidID = errors.New("message id is not a uid")

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	// DecodeMIME fetches the whole message and returns its decoded text/plain
	// part instead of the raw BODY[TEXT] section.
	DecodeMIME bool
}

// Client talks to one IMAP account. Message ids are UIDs of the selected mailbox.
type Client struct {
	opts     Options
	client   *imapclient.Client
	logger   *slog.Logger
	mailbox  string
	stopWait func() bool
}

// Dial connects and authenticates. The connection is closed when ctx ends.
func Dial(ctx context.Context, opts Options, logger *slog.Logger) (*Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty: %w", model.ErrConnection)
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive: %w", model.ErrConnection)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	address := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	options := &imapclient.Options{}

	if opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         opts.Host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)

	if opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w: %w", address, model.ErrConnection, err)
	}

	if err := client.Login(opts.Username, opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap login as %s: %w: %w", opts.Username, model.ErrConnection, err)
	}

	logger.Debug("imap connection established", "address", address, "user", opts.Username, "tls", opts.UseTLS)

	c := &Client{opts: opts, client: client, logger: logger}
	c.stopWait = context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	return c, nil
}

// ListMailboxes returns LIST "" "*" as listing lines.
func (c *Client) ListMailboxes(_ context.Context) ([]string, error) {
	mailboxes, err := c.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}

	lines := make([]string, 0, len(mailboxes))
	for _, mb := range mailboxes {
		attrs := make([]string, 0, len(mb.Attrs))
		for _, attr := range mb.Attrs {
			attrs = append(attrs, string(attr))
		}
		delim := ""
		if mb.Delim != 0 {
			delim = string(mb.Delim)
		}
		lines = append(lines, listing.Format(attrs, delim, mb.Mailbox))
	}
	return lines, nil
}

func (c *Client) Select(_ context.Context, name string) error {
	data, err := c.client.Select(name, nil).Wait()
	if err != nil {
		return fmt.Errorf("select %s: %w", name, err)
	}
	c.mailbox = name
	c.logger.Debug("imap mailbox selected", "mailbox", name, "messages", data.NumMessages)
	return nil
}

// SearchUnseen runs UID SEARCH NOT \Seen.
func (c *Client) SearchUnseen(_ context.Context) ([]string, error) {
	if c.mailbox == "" {
		return nil, fmt.Errorf("search before select")
	}

	criteria := &imapv2.SearchCriteria{
		NotFlag: []imapv2.Flag{imapv2.FlagSeen},
	}
	data, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("uid search: %w", err)
	}

	uids := data.AllUIDs()
	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

// Fetch peeks at the message body so the seen flag is left untouched.
func (c *Client) Fetch(_ context.Context, id string) (string, error) {
	uid, err := parseUID(id)
	if err != nil {
		return "", err
	}

	section := &imapv2.FetchItemBodySection{Specifier: imapv2.PartSpecifierText, Peek: true}
	if c.opts.DecodeMIME {
		section = &imapv2.FetchItemBodySection{Peek: true}
	}

	cmd := c.client.Fetch(imapv2.UIDSetNum(uid), &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{section},
	})
	defer cmd.Close()

	msg := cmd.Next()
	if msg == nil {
		if err := cmd.Close(); err != nil {
			return "", fmt.Errorf("fetch uid %d: %w", uid, err)
		}
		return "", fmt.Errorf("fetch uid %d: message not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return "", fmt.Errorf("fetch uid %d: %w", uid, err)
	}
	if err := cmd.Close(); err != nil {
		return "", fmt.Errorf("fetch uid %d: %w", uid, err)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return "", fmt.Errorf("fetch uid %d: body section missing", uid)
	}

	if !c.opts.DecodeMIME {
		return string(raw), nil
	}
	text, err := bodytext.Plain(raw)
	if err != nil {
		return "", fmt.Errorf("decode uid %d: %w", uid, err)
	}
	return text, nil
}

// MarkSeen runs UID STORE +FLAGS.SILENT (\Seen).
func (c *Client) MarkSeen(_ context.Context, id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}

	cmd := c.client.Store(imapv2.UIDSetNum(uid), &imapv2.StoreFlags{
		Op:     imapv2.StoreFlagsAdd,
		Silent: true,
		Flags:  []imapv2.Flag{imapv2.FlagSeen},
	}, nil)
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("store seen on uid %d: %w", uid, err)
	}
	return nil
}

// Close logs out and closes the connection.
func (c *Client) Close() error {
	stopped := c.stopWait()
	if stopped {
		if err := c.client.Logout().Wait(); err != nil {
			c.logger.Warn("imap logout failed", "err", err)
		}
	}
	if err := c.client.Close(); err != nil {
		c.logger.Debug("imap connection closed", "err", err)
	}
	return nil
}

func parseUID(id string) (imapv2.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%q: %w", id, ErrInvalidID)
	}
	return imapv2.UID(n), nil
}
