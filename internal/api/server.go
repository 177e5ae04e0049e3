package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"stakingengine/internal/address"
	"stakingengine/internal/domain"
	"stakingengine/internal/neuron"
	"stakingengine/internal/orchestrator"
	"stakingengine/internal/reward"
	"stakingengine/internal/store"
)

// Server is the HTTP front-end for the staking engine's exposed operations
// (§6), routed with go-chi/chi/v5 the way gateway/routes/router.go builds
// its proxy router.
type Server struct {
	orc      *orchestrator.Orchestrator
	store    store.Store
	reward   *reward.Engine
	neuron   *neuron.Service
	canister []byte
	auth     *Authenticator
	logger   *slog.Logger
}

// NewServer constructs the chi router for the staking engine's exposed API.
// neuronService may be nil when the deployment has no governance-neuron
// gateway configured; the NNS operator routes then return 501. canister is
// this engine's own on-chain identity, used to derive a pool's address at
// creation time.
func NewServer(orc *orchestrator.Orchestrator, s store.Store, rewardEngine *reward.Engine, neuronService *neuron.Service, canister []byte, auth *Authenticator, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{orc: orc, store: s, reward: rewardEngine, neuron: neuronService, canister: canister, auth: auth, logger: logger}
	limiter := newRateLimiter(10, 20)

	r := chi.NewRouter()
	r.Use(srv.requestID)
	r.Use(srv.metrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metricsHandler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(auth.Middleware(false))
		v1.Use(limiter.Middleware)
		v1.Post("/stake", srv.handleStake)
		v1.Post("/early_unstake", srv.handleEarlyUnstake)
		v1.Post("/dissolve", srv.handleDissolve)
		v1.Get("/early_unstake_pre_check", srv.handlePreCheck)
		v1.Get("/accounts", srv.handleAccountsByPool)

		v1.Group(func(admin chi.Router) {
			admin.Use(auth.Middleware(true))
			admin.Post("/pools", srv.handleAddPool)
			admin.Put("/pools/{poolID}", srv.handleUpdatePool)
			admin.Put("/pools/{poolID}/visibility", srv.handleSetPoolVisibility)
			admin.Put("/pools/{poolID}/status", srv.handleSetPoolStatus)
			admin.Get("/pools", srv.handleListAllPools)
			admin.Get("/accounts/all", srv.handleListAccounts)
			admin.Get("/events", srv.handleListEvents)
			admin.Post("/pools/{poolID}/neuron/stake", srv.handleStakeToNNSNeuron)
			admin.Post("/pools/{poolID}/neuron/sync", srv.handleSyncNNSNeuron)
			admin.Post("/pools/{poolID}/neuron/hotkey", srv.handleAddNNSHotkey)
			admin.Delete("/pools/{poolID}/neuron/hotkey", srv.handleRemoveNNSHotkey)
			admin.Post("/pools/{poolID}/neuron/dissolve_delay", srv.handleIncreaseNNSDissolveDelay)
		})
		v1.Get("/pools/visible", srv.handleListVisiblePools)
	})

	return r
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		s.logger.Info("request", "request_id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrAnonymousCaller), errors.Is(err, orchestrator.ErrPermissionDenied):
		status = http.StatusUnauthorized
	case errors.Is(err, orchestrator.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, orchestrator.ErrInvalidStatus), errors.Is(err, orchestrator.ErrValidation),
		errors.Is(err, orchestrator.ErrCapacityInsufficient), errors.Is(err, orchestrator.ErrTooEarly):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type stakeRequest struct {
	PoolID uint64 `json:"pool_id"`
	Amount int64  `json:"amount"`
	Days   int64  `json:"days"`
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	account, err := s.orc.Stake(r.Context(), principalFromContext(r.Context()), req.PoolID, req.Amount, req.Days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

type accountIDRequest struct {
	AccountID uint64 `json:"account_id"`
}

func (s *Server) handleEarlyUnstake(w http.ResponseWriter, r *http.Request) {
	var req accountIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	account, err := s.orc.EarlyUnstake(r.Context(), principalFromContext(r.Context()), req.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleDissolve(w http.ResponseWriter, r *http.Request) {
	var req accountIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	account, err := s.orc.Dissolve(r.Context(), principalFromContext(r.Context()), req.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handlePreCheck(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseUint(r.URL.Query().Get("account_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account_id"})
		return
	}
	result, err := s.orc.EarlyUnstakePreCheck(r.Context(), principalFromContext(r.Context()), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAccountsByPool(w http.ResponseWriter, r *http.Request) {
	poolID, err := strconv.ParseUint(r.URL.Query().Get("pool_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool_id"})
		return
	}
	accounts, err := s.store.ListAccountsByPool(r.Context(), poolID, pageFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context(), pageFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListEvents(r.Context(), pageFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleListVisiblePools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.store.ListVisiblePools(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

func (s *Server) handleListAllPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.store.ListPools(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

func (s *Server) handleAddPool(w http.ResponseWriter, r *http.Request) {
	var pool domain.Pool
	if err := json.NewDecoder(r.Body).Decode(&pool); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	id, err := s.store.NextPoolID(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	pool.ID = id
	pool.Address = address.PoolAccount(s.canister, id).String()
	pool.Status = domain.PoolCreated
	pool.CreatedBy = principalFromContext(r.Context())
	pool.CreatedAt = time.Now().UTC()
	if err := s.store.PutPool(r.Context(), &pool); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &pool)
}

func (s *Server) handleUpdatePool(w http.ResponseWriter, r *http.Request) {
	poolID, err := strconv.ParseUint(chi.URLParam(r, "poolID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	pool, err := s.store.GetPool(r.Context(), poolID)
	if err != nil {
		writeError(w, orchestrator.ErrNotFound)
		return
	}
	if pool.Status != domain.PoolCreated && pool.Status != domain.PoolCancelled && pool.Status != domain.PoolOpen {
		writeError(w, orchestrator.ErrInvalidStatus)
		return
	}
	var patch domain.Pool
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	patch.ID = pool.ID
	patch.Status = pool.Status
	patch.StakedAmount = pool.StakedAmount
	patch.LockedSize = pool.LockedSize
	patch.StakerCount = pool.StakerCount
	patch.CreatedBy = pool.CreatedBy
	patch.CreatedAt = pool.CreatedAt
	patch.UpdatedBy = principalFromContext(r.Context())
	patch.UpdatedAt = time.Now().UTC()
	if err := s.store.PutPool(r.Context(), &patch); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &patch)
}

type visibilityRequest struct {
	ClientVisible bool `json:"client_visible"`
}

func (s *Server) handleSetPoolVisibility(w http.ResponseWriter, r *http.Request) {
	poolID, err := strconv.ParseUint(chi.URLParam(r, "poolID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	pool, err := s.store.GetPool(r.Context(), poolID)
	if err != nil {
		writeError(w, orchestrator.ErrNotFound)
		return
	}
	if pool.Status == domain.PoolCreated || pool.Status == domain.PoolCancelled {
		writeError(w, orchestrator.ErrInvalidStatus)
		return
	}
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	pool.ClientVisible = req.ClientVisible
	pool.UpdatedBy = principalFromContext(r.Context())
	pool.UpdatedAt = time.Now().UTC()
	if err := s.store.PutPool(r.Context(), pool); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

type statusRequest struct {
	Status domain.PoolStatus `json:"status"`
}

func (s *Server) handleSetPoolStatus(w http.ResponseWriter, r *http.Request) {
	poolID, err := strconv.ParseUint(chi.URLParam(r, "poolID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	pool, err := s.store.GetPool(r.Context(), poolID)
	if err != nil {
		writeError(w, orchestrator.ErrNotFound)
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if !pool.Status.CanTransition(req.Status) {
		writeError(w, orchestrator.ErrInvalidStatus)
		return
	}
	now := time.Now().UTC()
	switch req.Status {
	case domain.PoolOpen:
		pool.OpenTime = now
	case domain.PoolCancelled:
		pool.EndTime = now
	case domain.PoolClosed:
		pool.CloseTime = now
	case domain.PoolFinished:
		pool.EndTime = now
	}
	pool.Status = req.Status
	pool.UpdatedBy = principalFromContext(r.Context())
	pool.UpdatedAt = now
	if err := s.store.PutPool(r.Context(), pool); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

type neuronStakeRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleStakeToNNSNeuron(w http.ResponseWriter, r *http.Request) {
	if s.neuron == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "no governance-neuron gateway configured"})
		return
	}
	poolID, err := strconv.ParseUint(chi.URLParam(r, "poolID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	var req neuronStakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	pool, err := s.neuron.StakeToNNSNeuron(r.Context(), poolID, req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) handleSyncNNSNeuron(w http.ResponseWriter, r *http.Request) {
	if s.neuron == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "no governance-neuron gateway configured"})
		return
	}
	poolID, err := strconv.ParseUint(chi.URLParam(r, "poolID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	if err := s.neuron.SyncPool(r.Context(), poolID); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type neuronHotkeyRequest struct {
	Principal string `json:"principal"`
}

func (s *Server) handleAddNNSHotkey(w http.ResponseWriter, r *http.Request) {
	if s.neuron == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "no governance-neuron gateway configured"})
		return
	}
	poolID, err := strconv.ParseUint(chi.URLParam(r, "poolID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	var req neuronHotkeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if err := s.neuron.AddHotkey(r.Context(), poolID, req.Principal); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveNNSHotkey(w http.ResponseWriter, r *http.Request) {
	if s.neuron == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "no governance-neuron gateway configured"})
		return
	}
	poolID, err := strconv.ParseUint(chi.URLParam(r, "poolID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	var req neuronHotkeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if err := s.neuron.RemoveHotkey(r.Context(), poolID, req.Principal); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type neuronDissolveDelayRequest struct {
	AdditionalSeconds int64 `json:"additional_seconds"`
}

func (s *Server) handleIncreaseNNSDissolveDelay(w http.ResponseWriter, r *http.Request) {
	if s.neuron == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "no governance-neuron gateway configured"})
		return
	}
	poolID, err := strconv.ParseUint(chi.URLParam(r, "poolID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	var req neuronDissolveDelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if err := s.neuron.IncreaseDissolveDelay(r.Context(), poolID, req.AdditionalSeconds); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pageFromQuery(r *http.Request) store.PageRequest {
	page := store.PageRequest{}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		page.Offset = offset
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		page.Limit = limit
	}
	page.Descending = r.URL.Query().Get("order") == "desc"
	return page.Normalize()
}
