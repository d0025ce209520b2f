package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectorCounts(t *testing.T) {
	events := make(chan Event, 16)
	boom := errors.New("boom")
	for _, evt := range []Event{
		{Type: EventTypeFound}, {Type: EventTypeFound}, {Type: EventTypeFound},
		{Type: EventTypeFetched}, {Type: EventTypeFetched},
		{Type: EventTypeFetchFailed, Err: boom},
		{Type: EventTypeNoMatch},
		{Type: EventTypeWritten},
		{Type: EventTypeAcknowledged},
		{Type: EventTypeHeader},
	} {
		events <- evt
	}
	close(events)

	c := NewCollector()
	c.Run(context.Background(), events)

	s := c.Snapshot()
	assert.Equal(t, 3, s.Found)
	assert.Equal(t, 2, s.Fetched)
	assert.Equal(t, 1, s.Written)
	assert.Equal(t, 1, s.Headers)
	assert.Equal(t, 2, s.Skipped())
	assert.Equal(t, boom, s.LastError)
	assert.Contains(t, s.LogAttrs(), "lastError")
}

type syncStream struct {
	events chan Event
	done   chan struct{}
}

func (s *syncStream) SubscribeStats(_ string, fn func(context.Context, <-chan Event) error) {
	go func() {
		defer close(s.done)
		_ = fn(context.Background(), s.events)
	}()
}

func TestReporterSummary(t *testing.T) {
	stream := &syncStream{events: make(chan Event, 4), done: make(chan struct{})}
	r := NewReporter(stream, nil)

	stream.events <- Event{Type: EventTypeWritten}
	stream.events <- Event{Type: EventTypeAcknowledged}
	close(stream.events)
	<-stream.done

	assert.Equal(t, 1, r.Summary().Written)
	assert.Equal(t, 1, r.Summary().Acknowledged)
}
