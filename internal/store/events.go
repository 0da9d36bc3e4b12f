package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"coachd/internal/event"
	"coachd/internal/logging"
)

// ErrSegmentSealed is returned on append to a sealed segment.
var ErrSegmentSealed = errors.New("segment is sealed")

// eventPayload is the stored JSON shape of the event union.
type eventPayload struct {
	UserMessage       *event.UserMessage       `json:"user_message,omitempty"`
	Knowledge         *event.Knowledge         `json:"knowledge,omitempty"`
	Action            *event.Action            `json:"action,omitempty"`
	Result            *event.Result            `json:"result,omitempty"`
	CheckpointSummary *event.CheckpointSummary `json:"checkpoint_summary,omitempty"`
}

func encodePayload(ev *event.Event) (string, error) {
	raw, err := json.Marshal(eventPayload{
		UserMessage:       ev.UserMessage,
		Knowledge:         ev.Knowledge,
		Action:            ev.Action,
		Result:            ev.Result,
		CheckpointSummary: ev.CheckpointSummary,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodePayload(ev *event.Event, raw string) error {
	var p eventPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return err
	}
	ev.UserMessage = p.UserMessage
	ev.Knowledge = p.Knowledge
	ev.Action = p.Action
	ev.Result = p.Result
	ev.CheckpointSummary = p.CheckpointSummary
	return nil
}

// Append writes one event to a segment and returns its assigned sequence
// number. The sequence is computed inside the transaction, so concurrent
// appends serialize without gaps or duplicates. Appending to a sealed
// segment fails with ErrSegmentSealed.
func (s *Store) Append(ctx context.Context, segmentID string, ev event.Event) (int64, error) {
	if err := ev.Validate(); err != nil {
		return 0, fmt.Errorf("refusing append: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, persistErr("Append", err)
	}
	defer tx.Rollback()

	seq, err := s.appendTx(ctx, tx, segmentID, &ev)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, persistErr("Append", err)
	}

	logging.Store("appended %s to segment %s at seq %d", ev.Kind, segmentID, seq)
	return seq, nil
}

// appendTx performs the sealed check, sequence assignment, and insert
// within the caller's transaction.
func (s *Store) appendTx(ctx context.Context, tx *sql.Tx, segmentID string, ev *event.Event) (int64, error) {
	var sealed sql.NullTime
	err := tx.QueryRowContext(ctx, `SELECT sealed_at FROM segments WHERE id = ?`, segmentID).Scan(&sealed)
	if err == sql.ErrNoRows {
		return 0, ErrSegmentNotFound
	}
	if err != nil {
		return 0, persistErr("Append", err)
	}
	if sealed.Valid {
		return 0, ErrSegmentSealed
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE segment_id = ?`, segmentID,
	).Scan(&seq); err != nil {
		return 0, persistErr("Append", err)
	}

	ev.ID = uuid.NewString()
	ev.SegmentID = segmentID
	ev.Seq = seq
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	payload, err := encodePayload(ev)
	if err != nil {
		return 0, persistErr("Append", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, segment_id, seq, kind, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SegmentID, ev.Seq, string(ev.Kind), payload, ev.CreatedAt,
	); err != nil {
		return 0, persistErr("Append", err)
	}
	return seq, nil
}

// Read returns the events of a segment with seq > afterSeq, in order.
// Pass afterSeq 0 for the whole segment; reads are restartable from any
// sequence number.
func (s *Store) Read(ctx context.Context, segmentID string, afterSeq int64) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, segment_id, seq, kind, payload, created_at
		 FROM events WHERE segment_id = ? AND seq > ? ORDER BY seq`,
		segmentID, afterSeq)
	if err != nil {
		return nil, persistErr("Read", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var ev event.Event
		var kind, payload string
		if err := rows.Scan(&ev.ID, &ev.SegmentID, &ev.Seq, &kind, &payload, &ev.CreatedAt); err != nil {
			return nil, persistErr("Read", err)
		}
		ev.Kind = event.Kind(kind)
		if err := decodePayload(&ev, payload); err != nil {
			return nil, persistErr("Read", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("Read", err)
	}
	return events, nil
}

// Rollover performs a checkpoint roll atomically: seal the active
// segment, open the next one, write the checkpoint summary as its first
// event, re-append the carried-forward knowledge events verbatim, and
// advance the session pointer. Either the whole roll lands or none of
// it does; a partial segment is never visible.
func (s *Store) Rollover(ctx context.Context, sessionID, summary string, knowledge []event.Event) (*event.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistErr("Rollover", err)
	}
	defer tx.Rollback()

	var oldSegID string
	err = tx.QueryRowContext(ctx, `SELECT current_segment_id FROM sessions WHERE id = ?`, sessionID).Scan(&oldSegID)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, persistErr("Rollover", err)
	}

	var oldSeq int
	if err := tx.QueryRowContext(ctx, `SELECT seq FROM segments WHERE id = ?`, oldSegID).Scan(&oldSeq); err != nil {
		return nil, persistErr("Rollover", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE segments SET sealed_at = ? WHERE id = ? AND sealed_at IS NULL`, now, oldSegID,
	); err != nil {
		return nil, persistErr("Rollover", err)
	}

	seg := &event.Segment{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Seq:       oldSeq + 1,
		CreatedAt: now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO segments (id, session_id, seq, created_at) VALUES (?, ?, ?, ?)`,
		seg.ID, seg.SessionID, seg.Seq, seg.CreatedAt,
	); err != nil {
		return nil, persistErr("Rollover", err)
	}

	first := event.NewCheckpointSummary(summary, oldSegID)
	if _, err := s.appendTx(ctx, tx, seg.ID, &first); err != nil {
		return nil, err
	}
	for _, kev := range knowledge {
		carried := event.Event{Kind: kev.Kind, Knowledge: kev.Knowledge, CreatedAt: kev.CreatedAt}
		if _, err := s.appendTx(ctx, tx, seg.ID, &carried); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET current_segment_id = ? WHERE id = ?`, seg.ID, sessionID,
	); err != nil {
		return nil, persistErr("Rollover", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, persistErr("Rollover", err)
	}

	logging.Store("rolled session %s onto segment %s (carried %d knowledge events)", sessionID, seg.ID, len(knowledge))
	return seg, nil
}
