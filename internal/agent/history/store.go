// Package history keeps a record of every agent session the controller ran.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kandev/voicectl/internal/db"
)

// Session is one worker's lifetime as seen through lifecycle events.
type Session struct {
	InstanceID      string     `db:"instance_id" json:"instance_id"`
	ChannelName     string     `db:"channel_name" json:"channel_name"`
	UID             int64      `db:"uid" json:"uid"`
	Pid             int        `db:"pid" json:"pid"`
	Voice           string     `db:"voice" json:"voice"`
	Language        string     `db:"language" json:"language"`
	StartedAt       time.Time  `db:"started_at" json:"started_at"`
	StopRequestedAt *time.Time `db:"stop_requested_at" json:"stop_requested_at,omitempty"`
	ExitedAt        *time.Time `db:"exited_at" json:"exited_at,omitempty"`
	ExitCode        *int       `db:"exit_code" json:"exit_code,omitempty"`
}

// Filter narrows List. A zero Limit means DefaultLimit.
type Filter struct {
	ChannelName string
	Limit       int
}

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Store persists sessions through a db.Pool.
type Store struct {
	writer *sqlx.DB
	reader *sqlx.DB
}

// NewStore creates the schema if needed.
func NewStore(ctx context.Context, pool *db.Pool) (*Store, error) {
	s := &Store{writer: pool.Writer(), reader: pool.Reader()}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	ts := "TIMESTAMP"
	if db.IsPostgres(s.writer.DriverName()) {
		ts = "TIMESTAMPTZ"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS agent_sessions (
			instance_id TEXT PRIMARY KEY,
			channel_name TEXT NOT NULL,
			uid BIGINT NOT NULL,
			pid INTEGER NOT NULL,
			voice TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			started_at %[1]s NOT NULL,
			stop_requested_at %[1]s NULL,
			exited_at %[1]s NULL,
			exit_code INTEGER NULL
		)`, ts),
		`CREATE INDEX IF NOT EXISTS idx_agent_sessions_channel ON agent_sessions (channel_name, started_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.writer.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate agent_sessions: %w", err)
		}
	}
	return nil
}

// RecordStart inserts a session. Replayed starts are ignored.
func (s *Store) RecordStart(ctx context.Context, sess Session) error {
	_, err := s.writer.ExecContext(ctx, s.writer.Rebind(`
		INSERT INTO agent_sessions (instance_id, channel_name, uid, pid, voice, language, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id) DO NOTHING`),
		sess.InstanceID, sess.ChannelName, sess.UID, sess.Pid, sess.Voice, sess.Language, sess.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("record session start: %w", err)
	}
	return nil
}

// RecordStopRequested stamps the first stop request for a session.
func (s *Store) RecordStopRequested(ctx context.Context, instanceID string, at time.Time) error {
	_, err := s.writer.ExecContext(ctx, s.writer.Rebind(`
		UPDATE agent_sessions SET stop_requested_at = ?
		WHERE instance_id = ? AND stop_requested_at IS NULL`),
		at.UTC(), instanceID)
	if err != nil {
		return fmt.Errorf("record stop request: %w", err)
	}
	return nil
}

// RecordExit stores how a session ended.
func (s *Store) RecordExit(ctx context.Context, instanceID string, exitCode int, at time.Time) error {
	_, err := s.writer.ExecContext(ctx, s.writer.Rebind(`
		UPDATE agent_sessions SET exited_at = ?, exit_code = ?
		WHERE instance_id = ?`),
		at.UTC(), exitCode, instanceID)
	if err != nil {
		return fmt.Errorf("record session exit: %w", err)
	}
	return nil
}

// List returns sessions newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Session, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	query := `SELECT instance_id, channel_name, uid, pid, voice, language,
		started_at, stop_requested_at, exited_at, exit_code
		FROM agent_sessions`
	var args []interface{}
	if f.ChannelName != "" {
		query += ` WHERE channel_name = ?`
		args = append(args, f.ChannelName)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	sessions := []Session{}
	if err := s.reader.SelectContext(ctx, &sessions, s.reader.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}
