// ABOUTME: Wire types for the gateway HTTP API
// ABOUTME: All responses share the success/data/error envelope

package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jnun/contactcmd/internal/store"
)

// envelope wraps every API response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SendRequest is the agent-facing send payload. Context is opaque
// agent-supplied data kept verbatim for audit.
type SendRequest struct {
	Channel          string          `json:"channel"`
	RecipientAddress string          `json:"recipient_address"`
	RecipientName    string          `json:"recipient_name,omitempty"`
	Subject          string          `json:"subject,omitempty"`
	Body             string          `json:"body"`
	Priority         string          `json:"priority,omitempty"`
	Context          json.RawMessage `json:"context,omitempty"`
}

// SendResponse acknowledges a queued send.
type SendResponse struct {
	ActionID string `json:"action_id"`
	Status   string `json:"status"`
}

// ActionStatusResponse is the poll payload for one queued action.
type ActionStatusResponse struct {
	ActionID     string `json:"action_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	SentAt       string `json:"sent_at,omitempty"`
}

// HealthResponse reports daemon liveness.
type HealthResponse struct {
	Status       string `json:"status"`
	UptimeSecs   int64  `json:"uptime_secs"`
	PendingCount int64  `json:"pending_count"`
	Version      string `json:"version"`
}

// QueueItemResponse is one entry in the local review listing.
type QueueItemResponse struct {
	ID               string `json:"id"`
	Channel          string `json:"channel"`
	RecipientAddress string `json:"recipient_address"`
	RecipientName    string `json:"recipient_name,omitempty"`
	Subject          string `json:"subject,omitempty"`
	Body             string `json:"body"`
	Priority         string `json:"priority"`
	Status           string `json:"status"`
	AgentContext     string `json:"agent_context,omitempty"`
	CreatedAt        string `json:"created_at"`
}

func actionStatus(entry *store.QueueEntry) ActionStatusResponse {
	resp := ActionStatusResponse{
		ActionID:     entry.ID,
		Status:       entry.Status,
		ErrorMessage: entry.ErrorMessage,
	}
	if entry.SentAt != nil {
		resp.SentAt = entry.SentAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func queueItem(entry *store.QueueEntry) QueueItemResponse {
	return QueueItemResponse{
		ID:               entry.ID,
		Channel:          entry.Channel,
		RecipientAddress: entry.RecipientAddress,
		RecipientName:    entry.RecipientName,
		Subject:          entry.Subject,
		Body:             entry.Body,
		Priority:         entry.Priority,
		Status:           entry.Status,
		AgentContext:     entry.AgentContext,
		CreatedAt:        entry.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code string, fields map[string]any) {
	body := map[string]any{
		"success": false,
		"error":   code,
	}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, status, body)
}
