package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhcgn/mailrow/extract"
	"github.com/dhcgn/mailrow/listing"
	"github.com/dhcgn/mailrow/model"
	"github.com/dhcgn/mailrow/normalize"
	"github.com/dhcgn/mailrow/output"
	"github.com/dhcgn/mailrow/stats"
)

// MailClient is the mailbox side of a scan. Implementations are already
// authenticated when handed to the runner.
type MailClient interface {
	// ListMailboxes returns raw `(<flags>) "<delimiter>" <name>` lines.
	ListMailboxes(ctx context.Context) ([]string, error)
	Select(ctx context.Context, name string) error
	// SearchUnseen returns the ids of all messages without the seen flag.
	SearchUnseen(ctx context.Context) ([]string, error)
	// Fetch returns the text body of a message without marking it seen.
	Fetch(ctx context.Context, id string) (string, error)
	MarkSeen(ctx context.Context, id string) error
}

// RowWriter persists output records. See output.Writer.
type RowWriter interface {
	AppendRow(fields []string, monthKey string) error
	AppendHeader(columns []string, monthKey string) error
}

// SearchErrorPolicy decides what a failed unseen search does to the run.
type SearchErrorPolicy string

const (
	// SearchErrorAbort ends the run with the search error.
	SearchErrorAbort SearchErrorPolicy = "abort"
	// SearchErrorDegrade logs a warning and finishes as if nothing was unseen.
	SearchErrorDegrade SearchErrorPolicy = "degrade"
)

type State string

const (
	StateIdle            State = "idle"
	StateMailboxSelected State = "mailbox_selected"
	StateSearching       State = "searching"
	StateEmpty           State = "empty"
	StateIterating       State = "iterating"
	StateDone            State = "done"
)

type Options struct {
	Mailbox       string
	Header        []string
	ShowMailboxes bool
	DryRun        bool
	OnSearchError SearchErrorPolicy
}

type Deps struct {
	Client     MailClient
	Extractor  *extract.Extractor
	Normalizer *normalize.Normalizer // nil skips normalization
	Writer     RowWriter
	Now        func() time.Time
	Logger     *slog.Logger
}

// Runner executes one scan of the unseen messages in a mailbox.
type Runner struct {
	opts       Options
	client     MailClient
	extractor  *extract.Extractor
	normalizer *normalize.Normalizer
	writer     RowWriter
	now        func() time.Time
	logger     *slog.Logger

	state State

	// ctx is cancelled once any stats subscriber fails.
	ctx    context.Context
	cancel context.CancelFunc

	subscribers []subscriber
	statsWG     sync.WaitGroup
	errMu       sync.Mutex
	statsErr    error
	closeOnce   sync.Once
	since       time.Time
}

type subscriber struct {
	events chan stats.Event
	done   chan struct{}
}

func New(opts Options, deps Deps) (*Runner, error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("mail client must not be nil")
	}
	if deps.Extractor == nil {
		return nil, fmt.Errorf("extractor must not be nil")
	}
	if deps.Writer == nil {
		return nil, fmt.Errorf("row writer must not be nil")
	}
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	switch opts.OnSearchError {
	case "":
		opts.OnSearchError = SearchErrorAbort
	case SearchErrorAbort, SearchErrorDegrade:
	default:
		return nil, fmt.Errorf("unknown search error policy %q: %w", opts.OnSearchError, model.ErrConfiguration)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		ctx:        ctx,
		cancel:     cancel,
		opts:       opts,
		client:     deps.Client,
		extractor:  deps.Extractor,
		normalizer: deps.Normalizer,
		writer:     deps.Writer,
		now:        deps.Now,
		logger:     deps.Logger,
		state:      StateIdle,
	}, nil
}

// State reports where the scan is. After Start returns it is StateDone unless
// the run was aborted.
func (r *Runner) State() State {
	return r.state
}

// SubscribeStats registers a consumer that receives every event of the run.
// It must be called before Start. A consumer that returns an error cancels
// the event stream for all consumers; one that returns early stops receiving.
func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	sub := subscriber{events: make(chan stats.Event, 128), done: make(chan struct{})}
	r.subscribers = append(r.subscribers, sub)
	r.statsWG.Add(1)
	go func() {
		defer r.statsWG.Done()
		defer close(sub.done)
		if err := fn(r.ctx, sub.events); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stats: %w", name, err))
		}
	}()
}

func (r *Runner) EmitEvent(evt stats.Event) {
	for _, sub := range r.subscribers {
		select {
		case <-r.ctx.Done():
			return
		case <-sub.done:
		case sub.events <- evt:
		}
	}
}

func (r *Runner) fail(err error) {
	r.errMu.Lock()
	if r.statsErr == nil {
		r.statsErr = err
	}
	r.errMu.Unlock()
	r.cancel()
}

// Start runs the scan to completion and waits for the stats subscribers.
func (r *Runner) Start(ctx context.Context) error {
	r.since = time.Now()

	err := r.scan(ctx)

	r.closeEvents()
	r.statsWG.Wait()
	r.cancel()

	if err == nil {
		r.errMu.Lock()
		err = r.statsErr
		r.errMu.Unlock()
	}

	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("scan failed", "mailbox", r.opts.Mailbox, "state", r.state, "duration", duration, "err", err)
		return err
	}

	r.logger.Info("scan completed", "mailbox", r.opts.Mailbox, "duration", duration)
	return nil
}

func (r *Runner) scan(ctx context.Context) error {
	if r.opts.ShowMailboxes {
		r.showMailboxes(ctx)
	}

	if err := r.client.Select(ctx, r.opts.Mailbox); err != nil {
		err = fmt.Errorf("select %q: %w: %w", r.opts.Mailbox, model.ErrMailbox, err)
		r.EmitEvent(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeError, Err: err})
		return err
	}
	r.setState(StateMailboxSelected)

	r.setState(StateSearching)
	ids, err := r.client.SearchUnseen(ctx)
	if err != nil {
		err = fmt.Errorf("search unseen in %q: %w: %w", r.opts.Mailbox, model.ErrSearch, err)
		r.EmitEvent(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeError, Err: err})
		if r.opts.OnSearchError != SearchErrorDegrade {
			return err
		}
		r.logger.Warn("unseen search failed, run degraded to an empty result; no messages will be processed", "mailbox", r.opts.Mailbox, "err", err)
		ids = nil
	}

	if err := r.maybeWriteHeader(); err != nil {
		return err
	}

	pending := snapshot(ids)
	if len(pending) == 0 {
		r.setState(StateEmpty)
		r.logger.Info("no unread messages in mailbox", "mailbox", r.opts.Mailbox)
		r.setState(StateDone)
		return nil
	}

	r.setState(StateIterating)
	r.logger.Info("unread messages found", "mailbox", r.opts.Mailbox, "count", len(pending))

	// Each id of the snapshot is handled once, so the loop ends after
	// len(pending) iterations whatever the server does.
	for _, id := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.EmitEvent(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeFound, MessageID: id})
		if err := r.process(ctx, id); err != nil {
			return err
		}
	}

	r.setState(StateDone)
	return nil
}

// process handles one message. Only output failures are returned; everything
// else is logged and the message stays unseen.
func (r *Runner) process(ctx context.Context, id string) error {
	body, err := r.client.Fetch(ctx, id)
	if err != nil {
		err = fmt.Errorf("fetch %s: %w: %w", id, model.ErrFetch, err)
		r.logger.Warn("unable to fetch message, skipping", "messageID", id, "err", err)
		r.EmitEvent(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeFetchFailed, MessageID: id, Err: err})
		return nil
	}
	r.EmitEvent(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeFetched, MessageID: id})

	fields, ok := r.extractor.Extract(body)
	if !ok {
		r.logger.Info("anchor not found, skipping", "messageID", id, "anchor", r.extractor.Anchor())
		r.EmitEvent(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeNoMatch, MessageID: id})
		return nil
	}

	if r.normalizer != nil {
		fields, err = r.normalizer.Normalize(fields)
		if err != nil {
			r.logger.Warn("normalization failed, skipping", "messageID", id, "err", err)
			r.EmitEvent(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeConfigError, MessageID: id, Err: err})
			return nil
		}
	}

	monthKey := output.MonthKey(r.now())

	if r.opts.DryRun {
		r.logger.Info("dry-run row", "messageID", id, "month", monthKey, "row", output.Format(fields))
		r.EmitEvent(stats.Event{Stage: stats.StageOutput, Type: stats.EventTypeDryRunRow, MessageID: id})
		return nil
	}

	if err := r.writer.AppendRow(fields, monthKey); err != nil {
		err = fmt.Errorf("message %s: %w", id, err)
		r.EmitEvent(stats.Event{Stage: stats.StageOutput, Type: stats.EventTypeError, MessageID: id, Err: err})
		return err
	}
	r.EmitEvent(stats.Event{Stage: stats.StageOutput, Type: stats.EventTypeWritten, MessageID: id})
	r.logger.Debug("row written", "messageID", id, "month", monthKey, "fields", len(fields))

	// The row is already on disk. A failed acknowledgement means the message
	// is processed again next run, which beats losing it.
	if err := r.client.MarkSeen(ctx, id); err != nil {
		r.logger.Warn("unable to mark message seen", "messageID", id, "err", err)
		r.EmitEvent(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeAckFailed, MessageID: id, Err: err})
		return nil
	}
	r.EmitEvent(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeAcknowledged, MessageID: id})

	return nil
}

// maybeWriteHeader writes the header row on the first day of the month. It
// does not look at the file, so a second run on that day repeats the header.
func (r *Runner) maybeWriteHeader() error {
	now := r.now()
	if now.Day() != 1 || len(r.opts.Header) == 0 {
		return nil
	}

	monthKey := output.MonthKey(now)
	if r.opts.DryRun {
		r.logger.Info("dry-run header", "month", monthKey, "row", output.Format(r.opts.Header))
		return nil
	}

	if err := r.writer.AppendHeader(r.opts.Header, monthKey); err != nil {
		err = fmt.Errorf("header: %w", err)
		r.EmitEvent(stats.Event{Stage: stats.StageOutput, Type: stats.EventTypeError, Err: err})
		return err
	}
	r.EmitEvent(stats.Event{Stage: stats.StageOutput, Type: stats.EventTypeHeader, Detail: monthKey})
	r.logger.Info("header row written", "month", monthKey)
	return nil
}

func (r *Runner) showMailboxes(ctx context.Context) {
	lines, err := r.client.ListMailboxes(ctx)
	if err != nil {
		r.logger.Warn("unable to list mailboxes", "err", err)
		return
	}

	names, err := listing.Names(lines)
	if err != nil {
		r.logger.Warn("unable to parse mailbox listing", "err", err)
	}
	r.logger.Info("available mailboxes", "mailboxes", names)
}

func (r *Runner) setState(s State) {
	r.logger.Debug("scan state", "from", r.state, "to", s)
	r.state = s
}

func (r *Runner) closeEvents() {
	r.closeOnce.Do(func() {
		for _, sub := range r.subscribers {
			close(sub.events)
		}
	})
}

func snapshot(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
