package event

import "time"

// Session identifies one continuous conversation. Sessions are never
// deleted; a checkpoint advances CurrentSegmentID to a fresh segment.
type Session struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	CreatedAt        time.Time `json:"created_at"`
	CurrentSegmentID string    `json:"current_segment_id"`
}

// Segment is a bounded run of events belonging to one session. Exactly
// one segment per session is active (SealedAt nil) at a time.
type Segment struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Seq       int        `json:"seq"` // position of this segment within the session
	CreatedAt time.Time  `json:"created_at"`
	SealedAt  *time.Time `json:"sealed_at,omitempty"`
}

// Sealed reports whether the segment no longer accepts appends.
func (s *Segment) Sealed() bool {
	return s.SealedAt != nil
}
