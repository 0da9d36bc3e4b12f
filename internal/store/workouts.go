package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"coachd/internal/logging"
	"coachd/internal/workout"
)

// CreateResource persists a new workout session resource at version 1.
func (s *Store) CreateResource(ctx context.Context, ownerID string, payload workout.Payload) (*workout.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &workout.Resource{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		Status:         workout.StatusActive,
		Payload:        payload,
		PayloadVersion: 1,
		CreatedAt:      time.Now().UTC(),
	}

	raw, err := json.Marshal(res.Payload)
	if err != nil {
		return nil, persistErr("CreateResource", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO workout_sessions (id, owner_id, status, payload, payload_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		res.ID, res.OwnerID, string(res.Status), string(raw), res.PayloadVersion, res.CreatedAt,
	); err != nil {
		return nil, persistErr("CreateResource", err)
	}

	logging.Store("created workout resource %s for owner %s", res.ID, ownerID)
	return res, nil
}

// GetResource loads a workout resource by ID.
func (s *Store) GetResource(ctx context.Context, id string) (*workout.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res workout.Resource
	var status, payload string
	var completed sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, status, payload, payload_version, created_at, completed_at
		 FROM workout_sessions WHERE id = ?`, id,
	).Scan(&res.ID, &res.OwnerID, &status, &payload, &res.PayloadVersion, &res.CreatedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, workout.ErrNotFound
	}
	if err != nil {
		return nil, persistErr("GetResource", err)
	}

	res.Status = workout.Status(status)
	if err := json.Unmarshal([]byte(payload), &res.Payload); err != nil {
		return nil, persistErr("GetResource", err)
	}
	if completed.Valid {
		t := completed.Time
		res.CompletedAt = &t
	}
	return &res, nil
}

// RecentResources lists an owner's workout resources created within the
// last days days, newest first. Feeds the workout_history knowledge source.
func (s *Store) RecentResources(ctx context.Context, ownerID string, days int) ([]workout.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if days <= 0 {
		days = 7
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, status, payload, payload_version, created_at, completed_at
		 FROM workout_sessions
		 WHERE owner_id = ? AND created_at > datetime('now', ?)
		 ORDER BY created_at DESC`,
		ownerID, fmt.Sprintf("-%d days", days))
	if err != nil {
		return nil, persistErr("RecentResources", err)
	}
	defer rows.Close()

	var resources []workout.Resource
	for rows.Next() {
		var res workout.Resource
		var status, payload string
		var completed sql.NullTime
		if err := rows.Scan(&res.ID, &res.OwnerID, &status, &payload, &res.PayloadVersion, &res.CreatedAt, &completed); err != nil {
			return nil, persistErr("RecentResources", err)
		}
		res.Status = workout.Status(status)
		if err := json.Unmarshal([]byte(payload), &res.Payload); err != nil {
			return nil, persistErr("RecentResources", err)
		}
		if completed.Valid {
			t := completed.Time
			res.CompletedAt = &t
		}
		resources = append(resources, res)
	}
	return resources, rows.Err()
}

// LookupOutcome returns the stored outcome for a (resource, command) pair.
func (s *Store) LookupOutcome(ctx context.Context, resourceID, commandID string) (*workout.Outcome, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT outcome FROM command_results WHERE resource_id = ? AND command_id = ?`,
		resourceID, commandID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, persistErr("LookupOutcome", err)
	}

	var out workout.Outcome
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false, persistErr("LookupOutcome", err)
	}
	return &out, true, nil
}

// RecordOutcome stores an outcome without touching the resource row.
// Used for validation rejections, which are idempotent but mutate nothing.
func (s *Store) RecordOutcome(ctx context.Context, resourceID, commandID string, out *workout.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(out)
	if err != nil {
		return persistErr("RecordOutcome", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO command_results (resource_id, command_id, outcome) VALUES (?, ?, ?)`,
		resourceID, commandID, string(raw),
	); err != nil {
		return persistErr("RecordOutcome", err)
	}
	return nil
}

// CommitApply writes the mutated resource, bumps the version, and records
// the idempotency outcome in one transaction. The update is conditional
// on expectedVersion; zero rows affected means another writer won the
// race and the applier gets workout.ErrStaleWrite.
func (s *Store) CommitApply(ctx context.Context, res *workout.Resource, expectedVersion int64, commandID string, out *workout.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(res.Payload)
	if err != nil {
		return persistErr("CommitApply", err)
	}
	outRaw, err := json.Marshal(out)
	if err != nil {
		return persistErr("CommitApply", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("CommitApply", err)
	}
	defer tx.Rollback()

	var completed interface{}
	if res.CompletedAt != nil {
		completed = *res.CompletedAt
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE workout_sessions
		 SET payload = ?, status = ?, completed_at = ?, payload_version = ?
		 WHERE id = ? AND payload_version = ?`,
		string(payload), string(res.Status), completed, res.PayloadVersion, res.ID, expectedVersion,
	)
	if err != nil {
		return persistErr("CommitApply", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return persistErr("CommitApply", err)
	}
	if affected == 0 {
		return workout.ErrStaleWrite
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO command_results (resource_id, command_id, outcome) VALUES (?, ?, ?)`,
		res.ID, commandID, string(outRaw),
	); err != nil {
		return persistErr("CommitApply", err)
	}

	if err := tx.Commit(); err != nil {
		return persistErr("CommitApply", err)
	}

	logging.Store("committed command %s on %s at v%d", commandID, res.ID, res.PayloadVersion)
	return nil
}
