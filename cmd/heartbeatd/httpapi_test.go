package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"chadboar/heartbeat-core/approvals"
)

func TestHealthzReportsLastCycle(t *testing.T) {
	health := &healthState{}
	health.set(time.Unix(1700000000, 0).UTC(), true, "killswitch engaged")

	router := newDebugRouter(health, approvals.NewStore(), []byte("unused"))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		LastCycleTime string `json:"last_cycle_time"`
		Halted        bool   `json:"halted"`
		HaltReason    string `json:"halt_reason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Halted)
	require.Equal(t, "killswitch engaged", body.HaltReason)
}

func TestApprovalEndpointRequiresBearerToken(t *testing.T) {
	gate := approvals.NewStore()
	gate.Register("MintA")

	router := newDebugRouter(&healthState{}, gate, []byte("test-secret"))

	req := httptest.NewRequest(http.MethodPost, "/approvals/MintA", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.False(t, gate.IsApproved("MintA"))
}

func TestApprovalEndpointApprovesKnownProposal(t *testing.T) {
	gate := approvals.NewStore()
	gate.Register("MintA")
	secret := []byte("test-secret")

	router := newDebugRouter(&healthState{}, gate, secret)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/approvals/MintA", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, gate.IsApproved("MintA"))
}

func TestApprovalEndpointRejectsUnknownProposal(t *testing.T) {
	gate := approvals.NewStore()
	secret := []byte("test-secret")
	router := newDebugRouter(&healthState{}, gate, secret)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/approvals/MintNeverRegistered", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
