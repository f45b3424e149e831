package inmemory

import (
	"context"
	"sync"

	cbus "github.com/next-trace/scg-cqrs/contract/bus"
)

// Record is one integration event accepted by Publisher.
type Record struct {
	Event   cbus.IntegrationEvent
	Options cbus.PublishOptions
}

// Publisher is a thread-safe in-memory implementation of cbus.EventPublisher.
// It records published integration events for tests and examples.
type Publisher struct {
	mu      sync.Mutex
	records []Record
}

var _ cbus.EventPublisher = (*Publisher)(nil)

// New creates an empty in-memory publisher.
func New() *Publisher { return &Publisher{} }

func (p *Publisher) PublishIntegration(
	ctx context.Context,
	e cbus.IntegrationEvent,
	opts cbus.PublishOptions,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.records = append(p.records, Record{Event: e, Options: opts})
	p.mu.Unlock()

	return nil
}

// Records returns a copy of everything published so far, in publish order.
func (p *Publisher) Records() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]Record(nil), p.records...)
}

// Topics lists the effective topic of every record.
func (p *Publisher) Topics() []string {
	recs := p.Records()
	out := make([]string, 0, len(recs))

	for _, r := range recs {
		if r.Options.TopicOverride != "" {
			out = append(out, r.Options.TopicOverride)
			continue
		}

		out = append(out, r.Event.Topic())
	}

	return out
}
