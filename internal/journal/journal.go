// Package journal keeps a SQLite record of monitoring sessions and the
// driver state transitions observed in each.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// ErrNoSession is returned by Record before StartSession.
var ErrNoSession = errors.New("journal: no active session")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id  TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	scheme      TEXT NOT NULL,
	threshold   REAL NOT NULL,
	started_at  TEXT NOT NULL,
	ended_at    TEXT
);

CREATE TABLE IF NOT EXISTS transitions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	frame_number  INTEGER NOT NULL,
	from_state    TEXT,
	to_state      TEXT NOT NULL,
	run           INTEGER NOT NULL,
	ear           REAL NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions(session_id, id);
`

// Journal stores sessions and transitions.
type Journal struct {
	db      *sql.DB
	session string
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// SessionID returns the active session, or "" before StartSession.
func (j *Journal) SessionID() string {
	return j.session
}

// StartSession opens a new session and makes it active.
func (j *Journal) StartSession(ctx context.Context, source, scheme string, threshold float64) (string, error) {
	id := uuid.New().String()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, source, scheme, threshold, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, source, scheme, threshold, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	j.session = id
	return id, nil
}

// EndSession stamps the active session's end time.
func (j *Journal) EndSession(ctx context.Context) error {
	if j.session == "" {
		return ErrNoSession
	}
	_, err := j.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE session_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), j.session,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// Record appends a transition to the active session.
func (j *Journal) Record(ctx context.Context, t types.Transition) error {
	if j.session == "" {
		return ErrNoSession
	}
	if t.At.IsZero() {
		t.At = time.Now()
	}

	var from interface{}
	if !t.Initial {
		from = t.From.Slug()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO transitions (session_id, frame_number, from_state, to_state, run, ear, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.session, int64(t.FrameNum), from, t.To.Slug(), int64(t.Run), t.EAR,
		t.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// Transitions returns up to limit transitions of session, newest first.
// A limit <= 0 returns all of them.
func (j *Journal) Transitions(ctx context.Context, session string, limit int) ([]types.Transition, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT frame_number, from_state, to_state, run, ear, created_at
		 FROM transitions WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		session, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []types.Transition
	for rows.Next() {
		var (
			t       types.Transition
			frame   int64
			run     int64
			from    sql.NullString
			to      string
			created string
		)
		if err := rows.Scan(&frame, &from, &to, &run, &t.EAR, &created); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.FrameNum = uint64(frame)
		t.Run = uint64(run)
		if t.To, err = types.ParseState(to); err != nil {
			return nil, err
		}
		if from.Valid {
			if t.From, err = types.ParseState(from.String); err != nil {
				return nil, err
			}
		} else {
			t.Initial = true
		}
		if t.At, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Sessions returns all sessions, most recent first.
func (j *Journal) Sessions(ctx context.Context) ([]types.Session, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT session_id, source, scheme, threshold, started_at, ended_at
		 FROM sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []types.Session
	for rows.Next() {
		var (
			s       types.Session
			started string
			ended   sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Source, &s.Scheme, &s.Threshold, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if s.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if ended.Valid {
			at, err := time.Parse(time.RFC3339Nano, ended.String)
			if err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
			s.EndedAt = &at
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
