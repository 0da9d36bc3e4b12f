package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"coachd/internal/logging"
	"coachd/internal/loop"
	"coachd/internal/store"
	"coachd/internal/workout"
)

type createSessionRequest struct {
	OwnerID string           `json:"owner_id"`
	Workout *workout.Payload `json:"workout,omitempty"`
}

type createSessionResponse struct {
	SessionID  string `json:"session_id"`
	ResourceID string `json:"resource_id,omitempty"`
}

// handleCreateSession creates a session and, when a workout payload is
// supplied, the linked workout resource.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	sess, err := s.store.CreateSession(r.Context(), req.OwnerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := createSessionResponse{SessionID: sess.ID}
	if req.Workout != nil {
		res, err := s.store.CreateResource(r.Context(), req.OwnerID, *req.Workout)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := s.store.LinkResource(r.Context(), sess.ID, res.ID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.ResourceID = res.ID
	}
	writeJSON(w, http.StatusCreated, resp)
}

type messageRequest struct {
	Text string `json:"text"`
}

// handleMessage runs one conversation turn, streaming loop events as
// server-sent events. The stream mirrors log-append order and always
// ends with a single done event. A client disconnect cancels the
// in-flight provider call via the request context; events already
// appended stay appended.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := loop.SinkFunc(func(ev loop.StreamEvent) {
		raw, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", raw)
		flusher.Flush()
	})

	runner := s.runnerFor(sessionID, sess.OwnerID)
	if _, err := runner.Turn(r.Context(), sessionID, req.Text, sink); err != nil {
		// The sink already delivered error and done events; log only.
		logging.Get(logging.CategoryAPI).Warnf("turn failed for session %s: %v", sessionID, err)
	}
}

// handleGetWorkout returns the resource with its current version, which
// callers need before submitting commands.
func (s *Server) handleGetWorkout(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.GetResource(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, workout.ErrNotFound) {
			writeError(w, http.StatusNotFound, "workout not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type commandResponse struct {
	NewVersion int64 `json:"new_version"`
}

type conflictResponse struct {
	CurrentVersion int64 `json:"current_version"`
}

// handleCommand submits one idempotent, versioned command. Retrying the
// same command_id returns the original outcome; a stale expected_version
// gets 409 with the current version so the client can re-read and
// decide.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	resourceID := r.PathValue("id")

	var cmd workout.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	out, err := s.applier.Apply(r.Context(), resourceID, cmd)
	if err != nil {
		var conflict *workout.ConflictError
		switch {
		case errors.As(err, &conflict):
			writeJSON(w, http.StatusConflict, conflictResponse{CurrentVersion: conflict.CurrentVersion})
		case workout.IsValidation(err):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, workout.ErrNotFound):
			writeError(w, http.StatusNotFound, "workout not found")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{NewVersion: out.NewVersion})
}
