package servicebus_test

import (
	"context"
	"testing"
	"time"

	"github.com/next-trace/scg-cqrs/aggregate"
	cbus "github.com/next-trace/scg-cqrs/contract/bus"
	"github.com/next-trace/scg-cqrs/stream"
)

const lootID = "item-42"

type killDragon struct{ HeroID, DragonID string }

type dragonKilled struct{ HeroID, DragonID string }

type dropItem struct{ HeroID, ItemID string }

type heroFound struct{ ID string }

// hero is a minimal aggregate used across tests.
type hero struct {
	aggregate.Root

	ID    string
	Kills []string
}

func newHero(id string) *hero {
	h := &hero{ID: id}
	h.Init(h.on)

	return h
}

func (h *hero) on(e cbus.Event) {
	if k, ok := e.(dragonKilled); ok {
		h.Kills = append(h.Kills, k.DragonID)
	}
}

func (h *hero) KillDragon(dragonID string) {
	h.Apply(dragonKilled{HeroID: h.ID, DragonID: dragonID})
}

// dropLoot drops a fixed item for every killed dragon.
func dropLoot(events stream.Source[cbus.Event]) stream.Source[cbus.Command] {
	kills := stream.OfType[dragonKilled](events)

	return stream.Map(kills, func(e dragonKilled) cbus.Command {
		return dropItem{HeroID: e.HeroID, ItemID: lootID}
	})
}

func collectErrors(src stream.Source[error]) chan error {
	ch := make(chan error, 16)
	src.Subscribe(stream.Observer[error]{Next: func(err error) { ch <- err }})

	return ch
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for value")
	}

	var zero T

	return zero
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	t.Cleanup(cancel)

	return ctx
}
