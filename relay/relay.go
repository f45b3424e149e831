// Package relay forwards integration events from the in-process event stream
// to a broker adapter, wrapped in CloudEvents envelopes.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	cbus "github.com/next-trace/scg-cqrs/contract/bus"
	berr "github.com/next-trace/scg-cqrs/contract/errors"
	"github.com/next-trace/scg-cqrs/stream"
)

// DefaultSource is the CloudEvents source used when none is configured.
const DefaultSource = "urn:scg-cqrs"

// Envelope is an integration event wrapped as a CloudEvent. It marshals to
// the structured CloudEvents JSON form, so any cbus.EventPublisher can send it.
type Envelope struct {
	topic string
	event cloudevents.Event
}

func (e Envelope) Topic() string { return e.topic }

// Event returns the wrapped CloudEvent.
func (e Envelope) Event() cloudevents.Event { return e.event }

func (e Envelope) MarshalJSON() ([]byte, error) { return e.event.MarshalJSON() }

// Option configures a Relay.
type Option func(*Relay)

// WithSource sets the CloudEvents source attribute.
func WithSource(source string) Option { return func(r *Relay) { r.source = source } }

// WithLogger sets the logger used for forwarding failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithPropagator injects trace context into outbound headers.
func WithPropagator(p cbus.HeaderPropagator) Option {
	return func(r *Relay) {
		if p != nil {
			r.prop = p
		}
	}
}

// WithOnError registers a callback for forwarding failures.
func WithOnError(fn func(evt cbus.IntegrationEvent, err error)) Option {
	return func(r *Relay) { r.onErr = fn }
}

// WithTimeout bounds every forward. Zero means no bound.
func WithTimeout(d time.Duration) Option { return func(r *Relay) { r.timeout = d } }

// Relay sends integration events to an EventPublisher.
type Relay struct {
	pub     cbus.EventPublisher
	source  string
	logger  *slog.Logger
	prop    cbus.HeaderPropagator
	onErr   func(cbus.IntegrationEvent, error)
	timeout time.Duration
	now     func() time.Time
}

// New builds a Relay over pub.
func New(pub cbus.EventPublisher, opts ...Option) *Relay {
	r := &Relay{
		pub:    pub,
		source: DefaultSource,
		logger: slog.New(slog.DiscardHandler),
		prop:   cbus.NopHeaderPropagator{},
		now:    time.Now,
	}

	for _, o := range opts {
		o(r)
	}

	return r
}

// Wrap builds the CloudEvent envelope for e.
func (r *Relay) Wrap(e cbus.IntegrationEvent) (Envelope, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(uuid.NewString())
	ce.SetSource(r.source)
	ce.SetType(typeName(e))
	ce.SetSubject(e.Topic())
	ce.SetTime(r.now().UTC())

	if err := ce.SetData(cloudevents.ApplicationJSON, e); err != nil {
		return Envelope{}, fmt.Errorf("relay wrap %s: %w: %w", typeName(e), berr.ErrSerializationFailed, err)
	}

	if err := ce.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("relay wrap %s: %w: %w", typeName(e), berr.ErrSerializationFailed, err)
	}

	return Envelope{topic: e.Topic(), event: ce}, nil
}

// Forward publishes e if it is an integration event; other events are ignored.
func (r *Relay) Forward(ctx context.Context, e cbus.Event) error {
	ie, ok := e.(cbus.IntegrationEvent)
	if !ok {
		return nil
	}

	env, err := r.Wrap(ie)
	if err != nil {
		return err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	headers := map[string]string{
		"ce-id":          env.event.ID(),
		"ce-type":        env.event.Type(),
		"ce-source":      env.event.Source(),
		"ce-specversion": env.event.SpecVersion(),
		"content-type":   cloudevents.ApplicationCloudEventsJSON,
	}
	r.prop.Inject(ctx, headers)

	if err := r.pub.PublishIntegration(ctx, env, cbus.PublishOptions{Headers: headers}); err != nil {
		return fmt.Errorf("relay forward %s: %w", env.event.Type(), err)
	}

	return nil
}

// Attach forwards every integration event seen on events until the returned
// subscription is cancelled. Failures are logged and passed to the error
// callback; they never propagate to whoever published the event.
func (r *Relay) Attach(ctx context.Context, events stream.Source[cbus.Event]) *stream.Subscription {
	return events.Subscribe(stream.Observer[cbus.Event]{
		Next: func(e cbus.Event) {
			if err := r.Forward(ctx, e); err != nil {
				r.logger.ErrorContext(ctx, "relay forward failed", "event", typeName(e), "err", err)

				if r.onErr != nil {
					r.onErr(e.(cbus.IntegrationEvent), err)
				}
			}
		},
	})
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}

	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return t.String()
}
