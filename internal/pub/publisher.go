package pub

import (
	"context"
	"encoding/json"

	"main/internal/bus"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Publisher pushes rate events to an external sink.
type Publisher interface {
	Publish(ctx context.Context, event bus.Event) error
	Close() error
}

// payload is the serialized form shared by all publishers.
type payload struct {
	Symbol   string  `json:"symbol"`
	Bid      float64 `json:"bid"`
	Ask      float64 `json:"ask"`
	Ts       int64   `json:"ts"`
	Platform string  `json:"platform,omitempty"`
	Derived  bool    `json:"derived,omitempty"`
}

func encode(event bus.Event) ([]byte, error) {
	body, err := json.Marshal(payload{
		Symbol:   event.Rate.Name,
		Bid:      event.Rate.Bid,
		Ask:      event.Rate.Ask,
		Ts:       event.Rate.Ts.UnixMilli(),
		Platform: event.Platform,
		Derived:  event.Derived,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode rate event")
	}
	return body, nil
}

// Fanout publishes each event to every backing publisher. A failing sink
// is logged and skipped; the others still receive the event.
type Fanout struct {
	publishers []Publisher
}

// NewFanout composes publishers into one.
func NewFanout(publishers ...Publisher) *Fanout {
	return &Fanout{publishers: publishers}
}

func (f *Fanout) Publish(ctx context.Context, event bus.Event) error {
	var firstErr error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil {
			logs.Warnf("publish %s failed: %v", event.Rate.Name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (f *Fanout) Close() error {
	var firstErr error
	for _, p := range f.publishers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Drain consumes the queue and feeds the publisher until ctx is done.
func Drain(ctx context.Context, queue *bus.Queue, publisher Publisher) {
	queue.Run(ctx, func(event bus.Event) {
		if err := publisher.Publish(ctx, event); err != nil {
			logs.Warnf("publish %s failed: %v", event.Rate.Name, err)
		}
	})
}
