package vault

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/codebymuri/DeFiYield/internal/domain"
)

// Handlers provides HTTP handlers for vault ledger endpoints
type Handlers struct {
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates a new vault handlers instance
func NewHandlers(service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("module", "vault_handlers").Logger(),
	}
}

// RegisterRoutes registers all vault routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/pools", func(r chi.Router) {
		r.Get("/", h.ListPools)
		r.Post("/", h.CreatePool)
		r.Get("/{id}", h.GetPool)
		r.Post("/{id}/deposit", h.Deposit)
		r.Post("/{id}/withdraw", h.Withdraw)
		r.Post("/{id}/claim", h.Claim)
		r.Post("/{id}/active", h.SetActive)
		r.Post("/{id}/reward-rate", h.SetRewardRate)
	})
	r.Get("/positions/{account}", h.ListPositions)
}

func (h *Handlers) writeError(w http.ResponseWriter, err error, msg string) {
	status := domain.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(msg)
		http.Error(w, msg, status)
		return
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func poolID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// ListPools returns all pools
func (h *Handlers) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.service.Pools().GetAll()
	if err != nil {
		h.writeError(w, err, "Failed to list pools")
		return
	}
	writeJSON(w, pools)
}

// GetPool returns one pool with its current share price
func (h *Handlers) GetPool(w http.ResponseWriter, r *http.Request) {
	id, err := poolID(r)
	if err != nil {
		http.Error(w, "Invalid pool id", http.StatusBadRequest)
		return
	}

	pool, err := h.service.Pools().GetByID(id)
	if errors.Is(err, sql.ErrNoRows) {
		h.writeError(w, domain.ErrPoolNotFound, "")
		return
	}
	if err != nil {
		h.writeError(w, err, "Failed to get pool")
		return
	}

	price, err := pool.SharePrice()
	if err != nil {
		h.writeError(w, err, "Failed to compute share price")
		return
	}

	writeJSON(w, struct {
		Pool
		SharePrice int64 `json:"share_price"`
	}{Pool: pool, SharePrice: price})
}

// CreatePoolRequest is the request for pool creation
type CreatePoolRequest struct {
	Caller     string `json:"caller"`
	AssetRef   string `json:"asset_ref"`
	RewardRate int64  `json:"reward_rate"`
}

// CreatePool registers a new pool
func (h *Handlers) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	pool, err := h.service.CreatePool(req.Caller, PoolConfig{AssetRef: req.AssetRef, RewardRate: req.RewardRate})
	if err != nil {
		h.writeError(w, err, "Failed to create pool")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(pool)
}

// DepositRequest is the request for a deposit
type DepositRequest struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// DepositResponse reports the shares minted for a deposit
type DepositResponse struct {
	SharesMinted int64 `json:"shares_minted"`
}

// Deposit adds funds to a pool and mints shares
func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	id, err := poolID(r)
	if err != nil {
		http.Error(w, "Invalid pool id", http.StatusBadRequest)
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		http.Error(w, "Account is required", http.StatusBadRequest)
		return
	}

	minted, err := h.service.Deposit(req.Account, id, req.Amount)
	if err != nil {
		h.writeError(w, err, "Failed to deposit")
		return
	}
	writeJSON(w, DepositResponse{SharesMinted: minted})
}

// WithdrawRequest is the request for a withdrawal
type WithdrawRequest struct {
	Account string `json:"account"`
	Shares  int64  `json:"shares"`
}

// WithdrawResponse reports the amount paid out for burned shares
type WithdrawResponse struct {
	Payout int64 `json:"payout"`
}

// Withdraw burns shares and pays out principal
func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, err := poolID(r)
	if err != nil {
		http.Error(w, "Invalid pool id", http.StatusBadRequest)
		return
	}

	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		http.Error(w, "Account is required", http.StatusBadRequest)
		return
	}

	payout, err := h.service.Withdraw(req.Account, id, req.Shares)
	if err != nil {
		h.writeError(w, err, "Failed to withdraw")
		return
	}
	writeJSON(w, WithdrawResponse{Payout: payout})
}

// ClaimRequest is the request for a reward claim
type ClaimRequest struct {
	Account string `json:"account"`
}

// ClaimResponse reports the reward amount paid out
type ClaimResponse struct {
	Claimed int64 `json:"claimed"`
}

// Claim pays out the account's settled pending reward
func (h *Handlers) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := poolID(r)
	if err != nil {
		http.Error(w, "Invalid pool id", http.StatusBadRequest)
		return
	}

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		http.Error(w, "Account is required", http.StatusBadRequest)
		return
	}

	claimed, err := h.service.Claim(req.Account, id)
	if err != nil {
		h.writeError(w, err, "Failed to claim rewards")
		return
	}
	writeJSON(w, ClaimResponse{Claimed: claimed})
}

// SetActiveRequest is the request for activating or deactivating a pool
type SetActiveRequest struct {
	Caller string `json:"caller"`
	Active bool   `json:"active"`
}

// SetActive flips a pool's active flag
func (h *Handlers) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := poolID(r)
	if err != nil {
		http.Error(w, "Invalid pool id", http.StatusBadRequest)
		return
	}

	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := h.service.SetPoolActive(req.Caller, id, req.Active); err != nil {
		h.writeError(w, err, "Failed to set pool active flag")
		return
	}
	writeJSON(w, map[string]bool{"active": req.Active})
}

// SetRewardRateRequest is the request for changing a pool's reward rate
type SetRewardRateRequest struct {
	Caller string `json:"caller"`
	Rate   int64  `json:"rate"`
}

// SetRewardRate changes a pool's reward rate
func (h *Handlers) SetRewardRate(w http.ResponseWriter, r *http.Request) {
	id, err := poolID(r)
	if err != nil {
		http.Error(w, "Invalid pool id", http.StatusBadRequest)
		return
	}

	var req SetRewardRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := h.service.SetRewardRate(req.Caller, id, req.Rate); err != nil {
		h.writeError(w, err, "Failed to set reward rate")
		return
	}
	writeJSON(w, map[string]int64{"rate": req.Rate})
}

// ListPositions returns all of an account's positions
func (h *Handlers) ListPositions(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	positions, err := h.service.Positions().GetByAccount(account)
	if err != nil {
		h.writeError(w, err, "Failed to list positions")
		return
	}
	if positions == nil {
		positions = []Position{}
	}
	writeJSON(w, positions)
}
