package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SQLiteStore persists state in the conversation_state table, one row per
// conversation with a JSON column per field.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore returns a Store over db, which must carry the
// conversation_state table.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func load(ctx context.Context, q queryer, id string) (ConversationState, error) {
	s := ConversationState{ConversationID: id}
	var lastProduct, pending, lastExecuted, hints sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT last_product_json, pending_json, last_executed_json, hints_json, updated_at
		FROM conversation_state WHERE conversation_id = ?`, id,
	).Scan(&lastProduct, &pending, &lastExecuted, &hints, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return s, err
	}

	fields := []struct {
		col  sql.NullString
		dest any
	}{
		{lastProduct, &s.LastProduct},
		{pending, &s.Pending},
		{lastExecuted, &s.LastExecuted},
		{hints, &s.Hints},
	}
	for _, f := range fields {
		if !f.col.Valid || f.col.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.col.String), f.dest); err != nil {
			return ConversationState{ConversationID: id}, fmt.Errorf("decode state: %w", err)
		}
	}
	return s, nil
}

// Read implements Store. Database or decode errors are logged and an empty
// state is returned.
func (s *SQLiteStore) Read(ctx context.Context, id string) ConversationState {
	id = normalizeID(id)
	st, err := load(ctx, s.db, id)
	if err != nil {
		slog.Warn("memory: read failed, using empty state", "conversation_id", id, "err", err)
		return ConversationState{ConversationID: id}
	}
	return st
}

// Write implements Store. The merge runs inside one transaction.
func (s *SQLiteStore) Write(ctx context.Context, id string, patch Patch) error {
	id = normalizeID(id)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("memory: write %s: %w", id, err)
	}
	defer tx.Rollback() //nolint:errcheck

	st, err := load(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("memory: write %s: %w", id, err)
	}
	if err := patch.Apply(&st); err != nil {
		return err
	}
	st.UpdatedAt = s.now().UTC()
	if err := save(ctx, tx, st); err != nil {
		return fmt.Errorf("memory: write %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("memory: write %s: commit: %w", id, err)
	}
	return nil
}

// ClearPending implements Store.
func (s *SQLiteStore) ClearPending(ctx context.Context, id, reason string) error {
	id = normalizeID(id)
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversation_state SET pending_json = NULL, updated_at = ?
		WHERE conversation_id = ? AND pending_json IS NOT NULL`, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("memory: clear pending %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Debug("memory: pending cleared", "conversation_id", id, "reason", reason)
	}
	return nil
}

func save(ctx context.Context, tx *sql.Tx, st ConversationState) error {
	encode := func(v any, present bool) (sql.NullString, error) {
		if !present {
			return sql.NullString{}, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return sql.NullString{}, err
		}
		return sql.NullString{String: string(b), Valid: true}, nil
	}

	lastProduct, err := encode(st.LastProduct, st.LastProduct != nil)
	if err != nil {
		return err
	}
	pending, err := encode(st.Pending, st.Pending != nil)
	if err != nil {
		return err
	}
	lastExecuted, err := encode(st.LastExecuted, st.LastExecuted != nil)
	if err != nil {
		return err
	}
	hints, err := encode(st.Hints, true)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversation_state (conversation_id, last_product_json, pending_json, last_executed_json, hints_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			last_product_json  = excluded.last_product_json,
			pending_json       = excluded.pending_json,
			last_executed_json = excluded.last_executed_json,
			hints_json         = excluded.hints_json,
			updated_at         = excluded.updated_at
	`, st.ConversationID, lastProduct, pending, lastExecuted, hints, st.UpdatedAt)
	return err
}
