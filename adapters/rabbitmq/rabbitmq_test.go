package rabbitmq_test

import (
	"context"
	"errors"
	"testing"

	"github.com/next-trace/scg-cqrs/adapters/rabbitmq"
	cbus "github.com/next-trace/scg-cqrs/contract/bus"
	berr "github.com/next-trace/scg-cqrs/contract/errors"
)

type fakePublisher struct {
	calls []rabbitmq.PubMsg
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, m rabbitmq.PubMsg) error {
	f.calls = append(f.calls, m)

	return f.err
}

type lootDropped struct{ HeroID string }

func (lootDropped) Topic() string { return "heroes.loot" }

type traceInjector struct{}

func (traceInjector) Inject(_ context.Context, h map[string]string) { h["traceparent"] = "00-abc-def-01" }

func TestRabbitMQ_PublishIntegration(t *testing.T) {
	fp := &fakePublisher{}
	ad := rabbitmq.NewWithPropagator(fp, traceInjector{})

	if err := ad.PublishIntegration(t.Context(), lootDropped{HeroID: "h1"}, cbus.PublishOptions{}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	po := cbus.PublishOptions{TopicOverride: "evt.orders", Key: "rk", Headers: map[string]string{"ph": "pv"}}
	if err := ad.PublishIntegration(t.Context(), lootDropped{}, po); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(fp.calls) != 2 {
		t.Fatalf("want 2, got %d", len(fp.calls))
	}

	c := fp.calls[0]
	if c.Exchange != "integration" || c.RoutingKey != "heroes.loot" || len(c.Body) == 0 {
		t.Fatalf("routing: %q %q", c.Exchange, c.RoutingKey)
	}

	if c.Headers["traceparent"] == "" {
		t.Fatalf("trace header missing: %+v", c.Headers)
	}

	p := fp.calls[1]
	if p.RoutingKey != "evt.orders" || p.Headers["ph"] != "pv" || p.Headers["key"] != "rk" {
		t.Fatalf("pub: %+v", p)
	}

	if len(po.Headers) != 1 {
		t.Fatalf("caller headers mutated: %+v", po.Headers)
	}
}

func TestRabbitMQ_CustomExchange(t *testing.T) {
	fp := &fakePublisher{}
	ad := rabbitmq.New(fp)
	ad.Exchange = "heroes"

	_ = ad.PublishIntegration(t.Context(), lootDropped{}, cbus.PublishOptions{})

	if fp.calls[0].Exchange != "heroes" {
		t.Fatalf("exchange=%q", fp.calls[0].Exchange)
	}
}

func TestRabbitMQ_Errors(t *testing.T) {
	if err := rabbitmq.New(nil).PublishIntegration(t.Context(), lootDropped{}, cbus.PublishOptions{}); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("nil publisher: %v", err)
	}

	err := rabbitmq.New(&fakePublisher{err: errors.New("boom")}).PublishIntegration(t.Context(), lootDropped{}, cbus.PublishOptions{})
	if !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("expected wrapped error, got %v", err)
	}

	err = rabbitmq.New(&fakePublisher{err: context.Canceled}).PublishIntegration(t.Context(), lootDropped{}, cbus.PublishOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
