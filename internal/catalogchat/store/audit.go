package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	ID           int64
	Timestamp    time.Time
	TraceID      string
	Conversation string
	Event        string
	Target       string
	Payload      map[string]any
	Result       string
	ErrorMessage string
}

// WriteAudit appends e to the audit log. Timestamp defaults to now.
func (s *Store) WriteAudit(ctx context.Context, e AuditEntry) error {
	var payloadJSON sql.NullString
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("store: marshal audit payload: %w", err)
		}
		payloadJSON = sql.NullString{String: string(b), Valid: true}
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, trace_id, conversation, event, target, payload_json, result, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ts, e.TraceID, e.Conversation, e.Event, nullString(e.Target), payloadJSON, e.Result, nullString(e.ErrorMessage))
	if err != nil {
		return fmt.Errorf("store: write audit: %w", err)
	}
	return nil
}

// RecentAudit returns the newest entries first.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryAudit(ctx, `
		SELECT id, ts, trace_id, conversation, event, target, payload_json, result, error_message
		FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
}

// AuditByTrace returns every entry of one request in write order.
func (s *Store) AuditByTrace(ctx context.Context, traceID string) ([]AuditEntry, error) {
	return s.queryAudit(ctx, `
		SELECT id, ts, trace_id, conversation, event, target, payload_json, result, error_message
		FROM audit_log WHERE trace_id = ? ORDER BY id ASC`, traceID)
}

func (s *Store) queryAudit(ctx context.Context, query string, args ...any) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query audit: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			e                       AuditEntry
			target, payload, errMsg sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.TraceID, &e.Conversation, &e.Event,
			&target, &payload, &e.Result, &errMsg); err != nil {
			return nil, fmt.Errorf("store: scan audit: %w", err)
		}
		e.Target = target.String
		e.ErrorMessage = errMsg.String
		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("store: decode audit payload %d: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate audit: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
