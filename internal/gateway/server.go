// ABOUTME: Gateway HTTP server: routes, key authentication, loopback-only review surface
// ABOUTME: RealIP is deliberately absent from the local subtree so headers cannot spoof loopback

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/jnun/contactcmd/internal/keys"
	"github.com/jnun/contactcmd/internal/policy"
	"github.com/jnun/contactcmd/internal/store"
)

const keyHeader = "X-Gateway-Key"

type contextKey string

const apiKeyContextKey contextKey = "gateway-api-key"

// Server is the gateway HTTP surface.
type Server struct {
	keys     store.KeyStore
	queue    store.QueueStore
	pipeline *policy.Pipeline
	approver *Approver
	logger   *slog.Logger

	version      string
	startedAt    time.Time
	maxBodyBytes int64
}

// NewServer wires the HTTP surface. maxBodyBytes caps send request bodies.
func NewServer(ks store.KeyStore, qs store.QueueStore, p *policy.Pipeline, a *Approver, version string, maxBodyBytes int64) *Server {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &Server{
		keys:         ks,
		queue:        qs,
		pipeline:     p,
		approver:     a,
		logger:       slog.Default().With("component", "gateway"),
		version:      version,
		startedAt:    time.Now(),
		maxBodyBytes: maxBodyBytes,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/gateway", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Agent-facing endpoints: authenticated, coarse per-IP throttle
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(120, time.Minute))
			r.Use(s.requireKey)
			r.Post("/send", s.handleSend)
			r.Get("/actions/{id}", s.handlePoll)
		})

		// Review endpoints: loopback only, no key required
		r.Group(func(r chi.Router) {
			r.Use(requireLoopback)
			r.Get("/queue", s.handleQueue)
			r.Post("/queue/{id}/approve", s.handleApprove)
			r.Post("/queue/{id}/deny", s.handleDeny)
		})
	})
	return r
}

// requireKey authenticates the X-Gateway-Key header and stashes the key in
// the request context. Format is checked before any store access.
func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := r.Header.Get(keyHeader)
		if credential == "" {
			writeError(w, http.StatusUnauthorized, "missing_api_key", nil)
			return
		}
		if err := keys.ValidateFormat(credential); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_api_key", nil)
			return
		}

		key, err := s.keys.GetKeyByHash(r.Context(), keys.Hash(credential))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_api_key", nil)
			return
		}
		if err != nil {
			s.logger.Error("key lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", nil)
			return
		}
		if key.Revoked() {
			writeError(w, http.StatusUnauthorized, "key_revoked", nil)
			return
		}

		if err := s.keys.TouchKey(r.Context(), key.ID); err != nil {
			s.logger.Warn("touching key", "key_id", key.ID, "error", err)
		}

		ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func keyFromContext(ctx context.Context) *store.ApiKey {
	key, _ := ctx.Value(apiKeyContextKey).(*store.ApiKey)
	return key
}

// requireLoopback rejects requests whose TCP peer is not a loopback
// address. Checks RemoteAddr directly; forwarded headers are ignored.
func requireLoopback(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			writeError(w, http.StatusForbidden, "forbidden", map[string]any{
				"message": "only accessible from localhost",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
