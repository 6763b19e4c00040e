package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/okapihq/okapi/internal/core/domain"
	"github.com/okapihq/okapi/internal/core/ports"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store persists conversation contexts and flow audit records in
// DuckDB. It is the Memory collaborator behind the state manager.
type Store struct {
	db *sql.DB
}

var (
	_ ports.Memory    = (*Store)(nil)
	_ ports.FlowAudit = (*Store)(nil)
)

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_contexts (
			id         VARCHAR PRIMARY KEY,
			context    VARCHAR NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS flow_records (
			conversation_id VARCHAR NOT NULL,
			agent_id        VARCHAR,
			user_id         VARCHAR,
			started_at      TIMESTAMP,
			ended_at        TIMESTAMP,
			phase           VARCHAR,
			iterations      INTEGER,
			transitions     VARCHAR,
			errors          VARCHAR
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// StoreContext upserts the serialized context for a conversation.
func (s *Store) StoreContext(ctx context.Context, id domain.ConversationID, c domain.ConversationContext) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_contexts (id, context, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			context    = excluded.context,
			updated_at = excluded.updated_at`,
		string(id), string(payload), time.Now())
	if err != nil {
		return fmt.Errorf("upsert context: %w", err)
	}
	return nil
}

// RetrieveContext returns (nil, nil) when nothing has been stored.
func (s *Store) RetrieveContext(ctx context.Context, id domain.ConversationID) (*domain.ConversationContext, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT context FROM conversation_contexts WHERE id = ?`, string(id)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query context: %w", err)
	}

	var c domain.ConversationContext
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, fmt.Errorf("unmarshal context: %w", err)
	}
	return &c, nil
}

// SaveFlowRecord appends one completed flow record to the audit trail.
func (s *Store) SaveFlowRecord(ctx context.Context, rec domain.FlowRecord) error {
	transitions, _ := json.Marshal(rec.Transitions)
	flowErrors, _ := json.Marshal(rec.Errors)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_records
			(conversation_id, agent_id, user_id, started_at, ended_at, phase, iterations, transitions, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.ConversationID),
		rec.AgentID,
		rec.UserID,
		rec.StartedAt,
		rec.EndedAt,
		string(rec.Phase),
		rec.Iteration,
		string(transitions),
		string(flowErrors),
	)
	if err != nil {
		return fmt.Errorf("insert flow record: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
