// Package sqlite provides a SQLite-backed audit journal of dispatched
// commands and published events.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	cbus "github.com/next-trace/scg-cqrs/contract/bus"
	berr "github.com/next-trace/scg-cqrs/contract/errors"
	"github.com/next-trace/scg-cqrs/stream"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Kind tells commands and events apart in the journal.
type Kind string

const (
	KindCommand Kind = "command"
	KindEvent   Kind = "event"
)

// Entry is one journal row.
type Entry struct {
	Seq        int64
	Kind       Kind
	Type       string
	Payload    json.RawMessage
	RecordedAt time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger for write failures of attached streams.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) {
		if l != nil {
			j.logger = l
		}
	}
}

// WithClock overrides the time source for recorded_at.
func WithClock(now func() time.Time) Option { return func(j *Journal) { j.now = now } }

// Journal persists an append-only trail of bus traffic.
type Journal struct {
	sqlDB  *sql.DB
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	subs []*stream.Subscription
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (or creates) the journal database at path.
func Open(path string, opts ...Option) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// one writer; saga dispatchers and callers may record concurrently
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	j := &Journal{
		sqlDB:  sqlDB,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}

	for _, o := range opts {
		o(j)
	}

	return j, nil
}

// Record appends v to the journal.
func (j *Journal) Record(ctx context.Context, kind Kind, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if j == nil || j.sqlDB == nil {
		return fmt.Errorf("journal is not configured")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("record %s: %w", typeName(v), errors.Join(berr.ErrSerializationFailed, err))
	}

	_, err = j.sqlDB.ExecContext(
		ctx,
		`INSERT INTO journal (kind, type, payload, recorded_at) VALUES (?, ?, ?, ?)`,
		string(kind),
		typeName(v),
		string(payload),
		toMillis(j.now()),
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", typeName(v), err)
	}

	return nil
}

// Attach journals every command executed on commands and every event
// published on events. Write failures are logged and dropped.
func (j *Journal) Attach(commands stream.Source[cbus.Command], events stream.Source[cbus.Event]) {
	write := func(kind Kind) func(v any) {
		return func(v any) {
			if err := j.Record(context.Background(), kind, v); err != nil {
				j.logger.Error("journal write failed", "kind", kind, "type", typeName(v), "err", err)
			}
		}
	}

	var subs []*stream.Subscription

	if commands != nil {
		cmd := write(KindCommand)
		subs = append(subs, commands.Subscribe(stream.Observer[cbus.Command]{Next: func(c cbus.Command) { cmd(c) }}))
	}

	if events != nil {
		evt := write(KindEvent)
		subs = append(subs, events.Subscribe(stream.Observer[cbus.Event]{Next: func(e cbus.Event) { evt(e) }}))
	}

	j.mu.Lock()
	j.subs = append(j.subs, subs...)
	j.mu.Unlock()
}

// Entries lists the journal in insertion order.
func (j *Journal) Entries(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := j.sqlDB.QueryContext(ctx, `SELECT seq, kind, type, payload, recorded_at FROM journal ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var out []Entry

	for rows.Next() {
		var (
			e          Entry
			kind       string
			payload    string
			recordedAt int64
		)

		if err := rows.Scan(&e.Seq, &kind, &e.Type, &payload, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}

		e.Kind = Kind(kind)
		e.Payload = json.RawMessage(payload)
		e.RecordedAt = fromMillis(recordedAt)
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}

	return out, nil
}

// Close detaches from all streams and closes the SQLite handle.
func (j *Journal) Close() error {
	if j == nil || j.sqlDB == nil {
		return nil
	}

	j.mu.Lock()
	subs := j.subs
	j.subs = nil
	j.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}

	return j.sqlDB.Close()
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
