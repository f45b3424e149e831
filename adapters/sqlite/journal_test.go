package sqlite_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/next-trace/scg-cqrs/adapters/sqlite"
	cbus "github.com/next-trace/scg-cqrs/contract/bus"
	berr "github.com/next-trace/scg-cqrs/contract/errors"
	"github.com/next-trace/scg-cqrs/servicebus"
)

type killDragon struct {
	HeroID   string `json:"hero_id"`
	DragonID string `json:"dragon_id"`
}

type dragonKilled struct {
	HeroID   string `json:"hero_id"`
	DragonID string `json:"dragon_id"`
}

func openJournal(t *testing.T, opts ...sqlite.Option) *sqlite.Journal {
	t.Helper()

	j, err := sqlite.Open(filepath.Join(t.TempDir(), "journal.db"), opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	t.Cleanup(func() { _ = j.Close() })

	return j
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := sqlite.Open("  "); err == nil {
		t.Fatalf("expected error for blank path")
	}
}

func TestRecord_AndEntriesInOrder(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	j := openJournal(t, sqlite.WithClock(func() time.Time { return at }))

	if err := j.Record(t.Context(), sqlite.KindCommand, killDragon{HeroID: "h1", DragonID: "d1"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := j.Record(t.Context(), sqlite.KindEvent, &dragonKilled{HeroID: "h1", DragonID: "d1"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := j.Entries(t.Context())
	if err != nil {
		t.Fatalf("entries: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("entries=%d", len(entries))
	}

	first, second := entries[0], entries[1]
	if first.Kind != sqlite.KindCommand || first.Type != "sqlite_test.killDragon" || !first.RecordedAt.Equal(at) {
		t.Fatalf("first=%+v", first)
	}

	if second.Kind != sqlite.KindEvent || second.Type != "sqlite_test.dragonKilled" || second.Seq <= first.Seq {
		t.Fatalf("second=%+v", second)
	}

	var payload dragonKilled
	if err := json.Unmarshal(second.Payload, &payload); err != nil || payload.DragonID != "d1" {
		t.Fatalf("payload=%s err=%v", second.Payload, err)
	}
}

func TestRecord_Errors(t *testing.T) {
	j := openJournal(t)

	if err := j.Record(t.Context(), sqlite.KindEvent, make(chan int)); !errors.Is(err, berr.ErrSerializationFailed) {
		t.Fatalf("want ErrSerializationFailed, got %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := j.Record(ctx, sqlite.KindEvent, dragonKilled{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestAttach_JournalsBusTraffic(t *testing.T) {
	j := openJournal(t)
	m := servicebus.NewMediator()

	j.Attach(m.Commands.Stream(), m.Events.Stream())

	_ = servicebus.BindCommandFunc(m.Commands, func(ctx context.Context, c killDragon, resolve cbus.Resolve) error {
		m.Publish(ctx, dragonKilled(c))
		resolve(nil)

		return nil
	})

	if _, err := m.ExecuteSync(t.Context(), killDragon{HeroID: "h1", DragonID: "d1"}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	entries, err := j.Entries(t.Context())
	if err != nil {
		t.Fatalf("entries: %v", err)
	}

	if len(entries) != 2 || entries[0].Kind != sqlite.KindCommand || entries[1].Kind != sqlite.KindEvent {
		t.Fatalf("entries=%+v", entries)
	}
}

func TestReopen_KeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_ = j.Record(t.Context(), sqlite.KindEvent, dragonKilled{HeroID: "h1"})

	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	j2, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j2.Close()

	entries, err := j2.Entries(t.Context())
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries=%v err=%v", entries, err)
	}
}
