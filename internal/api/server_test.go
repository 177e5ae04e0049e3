package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"stakingengine/internal/badge"
	"stakingengine/internal/domain"
	"stakingengine/internal/guard"
	"stakingengine/internal/ledger"
	"stakingengine/internal/orchestrator"
	"stakingengine/internal/paycenter"
	"stakingengine/internal/reward"
	"stakingengine/internal/store"
)

const testSigningKey = "test-signing-key"

func signToken(t *testing.T, subject string, admin bool) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": subject, "exp": time.Now().Add(time.Hour).Unix()}
	if admin {
		claims["scope"] = "admin"
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSigningKey))
	require.NoError(t, err)
	return signed
}

func newTestServer(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "entities.sqlite"), filepath.Join(dir, "index"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	guardSet := guard.NewSet()
	orc := orchestrator.New(s, guardSet, ledger.NewRPCGateway("http://ledger.invalid", ""), paycenter.NewRPCGateway("http://paycenter.invalid", ""), (*badge.Queue)(nil), []byte("canister"), "paycenter-account")
	rewardEngine := reward.NewEngine(s, guardSet, paycenter.NewRPCGateway("http://paycenter.invalid", ""), 2)
	auth := NewAuthenticator(testSigningKey)
	handler := NewServer(orc, s, rewardEngine, nil, []byte("canister"), auth, nil)
	return handler, s
}

func TestHealthzIsPublic(t *testing.T) {
	handler, _ := newTestServer(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestV1RouteRejectsMissingBearer(t *testing.T) {
	handler, _ := newTestServer(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/pools/visible")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminCanCreatePool(t *testing.T) {
	handler, s := newTestServer(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	body, _ := json.Marshal(domain.Pool{Crypto: "ICP", PoolSize: 1_000_000})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/pools", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "admin-user", true))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var pool domain.Pool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pool))
	require.NotEmpty(t, pool.Address)

	_, err = s.GetPool(req.Context(), pool.ID)
	require.NoError(t, err)
}

func TestNonAdminCannotCreatePool(t *testing.T) {
	handler, _ := newTestServer(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	body, _ := json.Marshal(domain.Pool{Crypto: "ICP", PoolSize: 1_000_000})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/pools", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "regular-user", false))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
