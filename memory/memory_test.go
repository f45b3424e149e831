package memory_test

import (
	"context"
	"testing"

	cbus "github.com/next-trace/scg-cqrs/contract/bus"
	"github.com/next-trace/scg-cqrs/memory"
	"github.com/next-trace/scg-cqrs/servicebus"
)

type hireHero struct{ Name string }

type findHero struct{ Name string }

type heroHired struct{ Name string }

func (heroHired) Topic() string { return "heroes.hired" }

func TestNew_BasicFlow(t *testing.T) {
	m, cleanup := memory.New()
	defer cleanup()

	var hired []string

	err := m.Boot(func(m *servicebus.Mediator) (servicebus.Module, error) {
		return servicebus.Module{
			Commands: []servicebus.CommandRegistration{
				servicebus.CommandFunc(func(ctx context.Context, c hireHero, resolve cbus.Resolve) error {
					m.Publish(ctx, heroHired(c))
					resolve(c.Name)

					return nil
				}),
			},
			Queries: []servicebus.QueryRegistration{
				servicebus.QueryFunc(func(ctx context.Context, q findHero) (bool, error) {
					for _, h := range hired {
						if h == q.Name {
							return true, nil
						}
					}

					return false, nil
				}),
			},
			Events: []servicebus.EventRegistration{
				servicebus.EventFunc(func(ctx context.Context, e heroHired) error {
					hired = append(hired, e.Name)
					return nil
				}),
			},
		}, nil
	})
	if err != nil {
		t.Fatalf("boot: %v", err)
	}

	res, err := m.ExecuteSync(t.Context(), hireHero{Name: "Ayla"})
	if err != nil || res != "Ayla" {
		t.Fatalf("execute: res=%v err=%v", res, err)
	}

	found, err := servicebus.AskAs[findHero, bool](t.Context(), m.Queries, findHero{Name: "Ayla"})
	if err != nil || !found {
		t.Fatalf("ask: found=%v err=%v", found, err)
	}
}

func TestNewWithOutbox_RecordsIntegrationEvents(t *testing.T) {
	m, outbox, cleanup := memory.NewWithOutbox()

	m.PublishAll(t.Context(), heroHired{Name: "Ayla"}, struct{ Note string }{"domain only"})
	cleanup()

	m.Publish(t.Context(), heroHired{Name: "late"})

	topics := outbox.Topics()
	if len(topics) != 1 || topics[0] != "heroes.hired" {
		t.Fatalf("topics=%v", topics)
	}
}
