package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"coachd/internal/event"
	"coachd/internal/logging"
)

// Session errors.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSegmentNotFound  = errors.New("segment not found")
	ErrNoLinkedResource = errors.New("session has no linked workout resource")
)

// CreateSession creates a session together with its first active segment.
func (s *Store) CreateSession(ctx context.Context, ownerID string) (*event.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &event.Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
	}
	seg := &event.Segment{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Seq:       1,
		CreatedAt: sess.CreatedAt,
	}
	sess.CurrentSegmentID = seg.ID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistErr("CreateSession", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO segments (id, session_id, seq, created_at) VALUES (?, ?, ?, ?)`,
		seg.ID, seg.SessionID, seg.Seq, seg.CreatedAt,
	); err != nil {
		return nil, persistErr("CreateSession", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, owner_id, current_segment_id, created_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.OwnerID, sess.CurrentSegmentID, sess.CreatedAt,
	); err != nil {
		return nil, persistErr("CreateSession", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, persistErr("CreateSession", err)
	}

	logging.Session("created session %s (owner=%s, segment=%s)", sess.ID, ownerID, seg.ID)
	return sess, nil
}

// GetSession loads a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*event.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sess event.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, current_segment_id, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.OwnerID, &sess.CurrentSegmentID, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, persistErr("GetSession", err)
	}
	return &sess, nil
}

// GetSegment loads a segment by ID.
func (s *Store) GetSegment(ctx context.Context, id string) (*event.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSegment(ctx, id)
}

func (s *Store) getSegment(ctx context.Context, id string) (*event.Segment, error) {
	var seg event.Segment
	var sealed sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, seq, created_at, sealed_at FROM segments WHERE id = ?`, id,
	).Scan(&seg.ID, &seg.SessionID, &seg.Seq, &seg.CreatedAt, &sealed)
	if err == sql.ErrNoRows {
		return nil, ErrSegmentNotFound
	}
	if err != nil {
		return nil, persistErr("GetSegment", err)
	}
	if sealed.Valid {
		t := sealed.Time
		seg.SealedAt = &t
	}
	return &seg, nil
}

// Segments returns all segments of a session in order.
func (s *Store) Segments(ctx context.Context, sessionID string) ([]event.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, seq, created_at, sealed_at FROM segments WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, persistErr("Segments", err)
	}
	defer rows.Close()

	var segs []event.Segment
	for rows.Next() {
		var seg event.Segment
		var sealed sql.NullTime
		if err := rows.Scan(&seg.ID, &seg.SessionID, &seg.Seq, &seg.CreatedAt, &sealed); err != nil {
			return nil, persistErr("Segments", err)
		}
		if sealed.Valid {
			t := sealed.Time
			seg.SealedAt = &t
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

// LinkResource durably associates a workout resource with a session.
// Idempotent: relinking the same pair is a no-op.
func (s *Store) LinkResource(ctx context.Context, sessionID, resourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_resources (session_id, resource_id) VALUES (?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET resource_id = excluded.resource_id`,
		sessionID, resourceID)
	if err != nil {
		return persistErr("LinkResource", err)
	}
	logging.Session("linked session %s -> resource %s", sessionID, resourceID)
	return nil
}

// ResourceFor returns the workout resource linked to a session.
func (s *Store) ResourceFor(ctx context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var resourceID string
	err := s.db.QueryRowContext(ctx,
		`SELECT resource_id FROM session_resources WHERE session_id = ?`, sessionID,
	).Scan(&resourceID)
	if err == sql.ErrNoRows {
		return "", ErrNoLinkedResource
	}
	if err != nil {
		return "", persistErr("ResourceFor", err)
	}
	return resourceID, nil
}
