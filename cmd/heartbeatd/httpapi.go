package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chadboar/heartbeat-core/approvals"
)

// healthState is the debug surface's view of the most recently completed
// cycle; RunHeartbeat's caller updates it after every cycle.
type healthState struct {
	mu         sync.Mutex
	lastCycle  time.Time
	halted     bool
	haltReason string
}

func (h *healthState) set(now time.Time, halted bool, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCycle = now
	h.halted = halted
	h.haltReason = reason
}

func (h *healthState) snapshot() (time.Time, bool, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastCycle, h.halted, h.haltReason
}

// newDebugRouter builds the tiny chi-routed debug HTTP surface SPEC_FULL.md
// section 6 adds: unauthenticated liveness and Prometheus metrics, and a
// JWT-protected approval callback for INV-HUMAN-GATE-100's out-of-band
// channel, grounded on the teacher's services/otc-gateway/server chi
// router and gateway/middleware JWT authenticator.
func newDebugRouter(health *healthState, gate *approvals.Store, jwtSecret []byte) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		lastCycle, halted, reason := health.snapshot()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"last_cycle_time": lastCycle.UTC().Format(time.RFC3339),
			"halted":          halted,
			"halt_reason":     reason,
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(protected chi.Router) {
		protected.Use(requireBearer(jwtSecret))
		protected.Post("/approvals/{proposal_id}", func(w http.ResponseWriter, r *http.Request) {
			mint := chi.URLParam(r, "proposal_id")
			if mint == "" || !gate.Approve(mint) {
				http.Error(w, "unknown proposal", http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return r
}

// requireBearer validates an HS256 bearer token the same shape as the
// teacher's gateway/middleware.Authenticator, scoped to this one
// endpoint rather than a whole service's route table.
func requireBearer(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(secret) == 0 {
				http.Error(w, "approval channel not configured", http.StatusServiceUnavailable)
				return
			}
			header := r.Header.Get("Authorization")
			tokenString := strings.TrimPrefix(header, "Bearer ")
			if tokenString == "" || tokenString == header {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
