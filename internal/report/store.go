// Package report provides PostgreSQL-backed storage for abuse reports.
// Each row captures who reported whom, the chat context, and a snapshot
// of the last few relayed messages for moderator review.
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veil/chat-app/internal/chat"
	"github.com/veil/chat-app/internal/engine"
	"github.com/veil/chat-app/internal/user"
)

// messageEntry is the anonymised JSON shape of one snapshot message.
type messageEntry struct {
	From string `json:"from"` // "party_a" or "party_b"
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// Store persists abuse reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts one abuse report. Message senders are anonymised to
// party labels before leaving the process; raw user ids appear only in
// the reporter/reported columns. Implements engine.ReportSink.
func (s *Store) Record(ctx context.Context, r engine.ReportRecord) error {
	var messagesJSON []byte
	if len(r.Messages) > 0 {
		entries := make([]messageEntry, len(r.Messages))
		for i, m := range r.Messages {
			entries[i] = messageEntry{
				From: partyLabel(m, r.Reporter),
				Text: m.Text,
				Ts:   m.Ts,
			}
		}
		var err error
		messagesJSON, err = json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("report: marshal messages: %w", err)
		}
	}

	const query = `
		INSERT INTO abuse_reports (reporter_id, reported_id, chat_id, messages, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.ExecContext(ctx, query,
		int64(r.Reporter),
		int64(r.Reported),
		r.ChatID,
		messagesJSON,
		r.At,
	)
	if err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// CountRecent returns the number of reports filed against a user within
// the given window. Useful for escalation policy outside the core.
func (s *Store) CountRecent(ctx context.Context, reported user.ID, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM abuse_reports
		WHERE reported_id = $1
		  AND created_at >= NOW() - $2::interval`

	var count int
	err := s.db.QueryRowContext(ctx, query, int64(reported), window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("report: count recent: %w", err)
	}
	return count, nil
}

func partyLabel(m chat.HistoryEntry, reporter user.ID) string {
	if m.From == reporter {
		return "party_a"
	}
	return "party_b"
}
