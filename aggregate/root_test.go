package aggregate_test

import (
	"testing"

	"github.com/next-trace/scg-cqrs/aggregate"
	cbus "github.com/next-trace/scg-cqrs/contract/bus"
)

type heroHired struct{ ID string }

type dragonKilled struct{ HeroID, DragonID string }

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
	switch e := e.(type) {
	case heroHired:
		h.ID = e.ID
	case dragonKilled:
		h.Kills = append(h.Kills, e.DragonID)
	}
}

func TestApply_WithoutPublisherOnlyBuffers(t *testing.T) {
	h := newHero("h1")

	// must not panic without a publisher
	h.Apply(dragonKilled{HeroID: "h1", DragonID: "d1"})

	got := h.UncommittedEvents()
	if len(got) != 1 || got[0] != (dragonKilled{HeroID: "h1", DragonID: "d1"}) {
		t.Fatalf("uncommitted=%v", got)
	}

	if len(h.Kills) != 1 || h.Kills[0] != "d1" {
		t.Fatalf("state not folded: %v", h.Kills)
	}

	if h.Publisher() != nil {
		t.Fatalf("publisher should be nil by default")
	}
}

func TestApply_WithPublisherPublishesSynchronously(t *testing.T) {
	h := newHero("h1")

	var published []cbus.Event

	h.SetPublisher(func(e cbus.Event) {
		// the event is already buffered when published
		if n := len(h.UncommittedEvents()); n != len(published)+1 {
			t.Errorf("buffer len at publish=%d", n)
		}

		published = append(published, e)
	})

	h.Apply(dragonKilled{HeroID: "h1", DragonID: "d1"})

	if len(published) != 1 {
		t.Fatalf("published=%v", published)
	}

	if len(h.UncommittedEvents()) != 1 {
		t.Fatalf("buffering and publishing are independent effects")
	}
}

func TestLoadFromHistory_NeverBuffersOrPublishes(t *testing.T) {
	h := newHero("")

	published := 0
	h.SetPublisher(func(cbus.Event) { published++ })

	h.LoadFromHistory(heroHired{ID: "h9"}, dragonKilled{DragonID: "d1"}, dragonKilled{DragonID: "d2"})

	if got := h.UncommittedEvents(); len(got) != 0 {
		t.Fatalf("replay marked events uncommitted: %v", got)
	}

	if published != 0 {
		t.Fatalf("replay published %d events", published)
	}

	if h.ID != "h9" || len(h.Kills) != 2 || h.Version() != 3 {
		t.Fatalf("state=%+v version=%d", h.Kills, h.Version())
	}
}

func TestCommit_ReturnsAppliedInOrderAndClears(t *testing.T) {
	h := newHero("h1")
	h.LoadFromHistory(dragonKilled{DragonID: "old"})

	h.Apply(dragonKilled{DragonID: "d1"})
	h.Apply(dragonKilled{DragonID: "d2"})
	h.Apply(dragonKilled{DragonID: "d3"})

	got := h.Commit()
	if len(got) != 3 {
		t.Fatalf("commit=%v", got)
	}

	for i, want := range []string{"d1", "d2", "d3"} {
		if got[i].(dragonKilled).DragonID != want {
			t.Fatalf("order mismatch at %d: %v", i, got)
		}
	}

	if len(h.UncommittedEvents()) != 0 || len(h.Commit()) != 0 {
		t.Fatalf("buffer not cleared")
	}

	if h.Version() != 4 {
		t.Fatalf("version=%d", h.Version())
	}
}

func TestUncommit_Discards(t *testing.T) {
	h := newHero("h1")
	h.Apply(dragonKilled{DragonID: "d1"})
	h.Uncommit()

	if len(h.UncommittedEvents()) != 0 {
		t.Fatalf("uncommit did not clear")
	}
}

func TestPublish_BypassesBuffer(t *testing.T) {
	h := newHero("h1")

	// unbound: no-op
	h.Publish(dragonKilled{DragonID: "x"})

	var published []cbus.Event
	h.SetPublisher(func(e cbus.Event) { published = append(published, e) })

	h.PublishAll(dragonKilled{DragonID: "a"}, dragonKilled{DragonID: "b"})

	if len(published) != 2 || len(h.UncommittedEvents()) != 0 || len(h.Kills) != 0 {
		t.Fatalf("published=%v uncommitted=%v kills=%v", published, h.UncommittedEvents(), h.Kills)
	}
}
