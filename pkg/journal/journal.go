// Package journal records coordinator events in a sqlite database so sync sessions can be inspected afterwards.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/astromechza/automerge-relay/pkg/syncer"
)

// Entry is one recorded event.
type Entry struct {
	ID    int64
	At    time.Time
	Role  string
	Peer  string
	Kind  string
	Bytes int
	Err   string
}

// Journal implements syncer.Observer. Observe never blocks: events that arrive while the buffer is full are
// counted and dropped.
type Journal struct {
	database *sql.DB
	pending  chan syncer.Event
	dropped  atomic.Int64
}

func Open(path string, buffer int) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS events (
		id integer not null primary key autoincrement,
		at integer not null,
		role text not null,
		peer text not null,
		kind text not null,
		bytes integer not null,
		err text not null
		)`,
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &Journal{database: db, pending: make(chan syncer.Event, buffer)}, nil
}

func (j *Journal) Observe(ev syncer.Event) {
	select {
	case j.pending <- ev:
	default:
		j.dropped.Add(1)
	}
}

// Run writes observed events until ctx is cancelled, then flushes whatever is still buffered.
func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case ev := <-j.pending:
			j.write(context.Background(), ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-j.pending:
					j.write(context.Background(), ev)
				default:
					if n := j.dropped.Load(); n > 0 {
						slog.Warn("journal dropped events", "count", n)
					}
					return
				}
			}
		}
	}
}

func (j *Journal) write(ctx context.Context, ev syncer.Event) {
	errText := ""
	if ev.Err != nil {
		errText = ev.Err.Error()
	}
	if _, err := j.database.ExecContext(
		ctx, `INSERT INTO events (at, role, peer, kind, bytes, err) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.At.UnixNano(), ev.Role, string(ev.Peer), string(ev.Kind), ev.Bytes, errText,
	); err != nil {
		slog.Error("failed to record event", "kind", ev.Kind, "peer", ev.Peer, "err", err)
	}
}

// Recent returns up to n events, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	res, err := j.database.QueryContext(
		ctx, `SELECT id, at, role, peer, kind, bytes, err FROM events ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer func(res *sql.Rows) {
		if err := res.Close(); err != nil {
			slog.Error("failed to close", "err", err)
		}
	}(res)
	var out []Entry
	for res.Next() {
		var e Entry
		var at int64
		if err := res.Scan(&e.ID, &at, &e.Role, &e.Peer, &e.Kind, &e.Bytes, &e.Err); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		e.At = time.Unix(0, at)
		out = append(out, e)
	}
	return out, res.Err()
}

func (j *Journal) Close() error {
	return j.database.Close()
}
