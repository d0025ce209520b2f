package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Stage string

const (
	StageMailbox Stage = "mailbox"
	StageExtract Stage = "extract"
	StageOutput  Stage = "output"
)

type EventType string

const (
	EventTypeFound        EventType = "found"
	EventTypeFetched      EventType = "fetched"
	EventTypeFetchFailed  EventType = "fetch_failed"
	EventTypeNoMatch      EventType = "no_match"
	EventTypeConfigError  EventType = "config_error"
	EventTypeWritten      EventType = "written"
	EventTypeDryRunRow    EventType = "dry_run_row"
	EventTypeHeader       EventType = "header"
	EventTypeAcknowledged EventType = "acknowledged"
	EventTypeAckFailed    EventType = "ack_failed"
	EventTypeError        EventType = "error"
)

type Event struct {
	Stage     Stage
	Type      EventType
	MessageID string
	Err       error
	Detail    string
}

type Summary struct {
	Found        int
	Fetched      int
	FetchFailed  int
	NoMatch      int
	ConfigErrors int
	Written      int
	DryRunRows   int
	Headers      int
	Acknowledged int
	AckFailed    int
	Errors       int
	LastError    error
}

// Skipped counts messages left unseen for a later run.
func (s Summary) Skipped() int {
	return s.FetchFailed + s.NoMatch + s.ConfigErrors
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"found", s.Found,
		"fetched", s.Fetched,
		"written", s.Written,
		"dryRunRows", s.DryRunRows,
		"headers", s.Headers,
		"acknowledged", s.Acknowledged,
		"skipped", s.Skipped(),
		"fetchFailed", s.FetchFailed,
		"noMatch", s.NoMatch,
		"configErrors", s.ConfigErrors,
		"ackFailed", s.AckFailed,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.Apply(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

func (c *Collector) Apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeFound:
		c.summary.Found++
	case EventTypeFetched:
		c.summary.Fetched++
	case EventTypeFetchFailed:
		c.summary.FetchFailed++
	case EventTypeNoMatch:
		c.summary.NoMatch++
	case EventTypeConfigError:
		c.summary.ConfigErrors++
	case EventTypeWritten:
		c.summary.Written++
	case EventTypeDryRunRow:
		c.summary.DryRunRows++
	case EventTypeHeader:
		c.summary.Headers++
	case EventTypeAcknowledged:
		c.summary.Acknowledged++
	case EventTypeAckFailed:
		c.summary.AckFailed++
	case EventTypeError:
		c.summary.Errors++
	}
	if evt.Err != nil {
		c.summary.LastError = evt.Err
	}
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}
