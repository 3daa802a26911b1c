// ABOUTME: Gateway HTTP handlers: send, poll, health, and the local review surface

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jnun/contactcmd/internal/policy"
	"github.com/jnun/contactcmd/internal/store"
)

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	key := keyFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", map[string]any{
			"message": "malformed JSON body",
		})
		return
	}

	preq := &policy.Request{
		Channel:       req.Channel,
		Recipient:     req.RecipientAddress,
		RecipientName: req.RecipientName,
		Subject:       req.Subject,
		Body:          req.Body,
		Priority:      req.Priority,
		AgentContext:  string(req.Context),
	}

	status, err := s.pipeline.Evaluate(r.Context(), key, preq)
	if err != nil {
		var perr *policy.Error
		if errors.As(err, &perr) {
			writeError(w, perr.Status, perr.Code, perr.Fields)
			return
		}
		s.logger.Error("pipeline evaluation failed", "key_id", key.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}

	priority := req.Priority
	if priority == "" {
		priority = store.PriorityNormal
	}
	entry := &store.QueueEntry{
		ApiKeyID:         key.ID,
		Channel:          req.Channel,
		RecipientAddress: req.RecipientAddress,
		RecipientName:    req.RecipientName,
		Subject:          req.Subject,
		Body:             req.Body,
		Priority:         priority,
		Status:           status,
		AgentContext:     string(req.Context),
	}
	if err := s.queue.CreateEntry(r.Context(), entry); err != nil {
		s.logger.Error("queueing entry", "key_id", key.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}

	s.logger.Info("send queued",
		"entry_id", entry.ID, "key_id", key.ID,
		"channel", entry.Channel, "status", entry.Status)
	writeData(w, http.StatusOK, SendResponse{ActionID: entry.ID, Status: entry.Status})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	key := keyFromContext(r.Context())
	id := chi.URLParam(r, "id")

	entry, err := s.queue.GetEntry(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	if err != nil {
		s.logger.Error("loading entry", "entry_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}

	// Keys can only see their own actions
	if entry.ApiKeyID != key.ID {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return
	}

	writeData(w, http.StatusOK, actionStatus(entry))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	pending, err := s.queue.CountPending(r.Context())
	if err != nil {
		s.logger.Error("counting pending entries", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}

	writeData(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		UptimeSecs:   int64(time.Since(s.startedAt).Seconds()),
		PendingCount: pending,
		Version:      s.version,
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	entries, err := s.queue.ListPending(r.Context())
	if err != nil {
		s.logger.Error("listing pending queue", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}

	items := make([]QueueItemResponse, len(entries))
	for i, e := range entries {
		items[i] = queueItem(e)
	}
	writeData(w, http.StatusOK, items)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleResolve(w, r, s.approver.Approve)
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	s.handleResolve(w, r, s.approver.Deny)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request, resolve func(ctx context.Context, id string) (*store.QueueEntry, error)) {
	id := chi.URLParam(r, "id")

	entry, err := resolve(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	if errors.Is(err, store.ErrAlreadyResolved) {
		writeError(w, http.StatusConflict, "already_resolved", nil)
		return
	}
	if err != nil {
		s.logger.Error("resolving entry", "entry_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}

	writeData(w, http.StatusOK, actionStatus(entry))
}
