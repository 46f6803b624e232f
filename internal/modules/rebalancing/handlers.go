package rebalancing

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/codebymuri/DeFiYield/internal/domain"
)

// Handlers provides HTTP handlers for rebalancing controller endpoints
type Handlers struct {
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates a new rebalancing handlers instance
func NewHandlers(service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("module", "rebalancing_handlers").Logger(),
	}
}

// RegisterRoutes registers all rebalancing routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/rebalancing", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/targets", h.ListTargets)
		r.Post("/targets", h.SetTarget)
		r.Post("/execute", h.Execute)
		r.Post("/emergency", h.Emergency)
		r.Post("/recommendations", h.SubmitRecommendation)
		r.Get("/history", h.History)
	})
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

// Status reports current drift, cooldown and gating state
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status()
	if err != nil {
		h.writeError(w, err, "Failed to compute rebalancing status")
		return
	}
	writeJSON(w, status)
}

// ListTargets returns all configured allocation targets
func (h *Handlers) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.service.Targets()
	if err != nil {
		h.writeError(w, err, "Failed to list allocation targets")
		return
	}

	list := make([]AllocationTarget, 0, len(targets))
	for _, t := range targets {
		list = append(list, t)
	}
	writeJSON(w, list)
}

// SetTargetRequest is the request for configuring a pool's allocation target
type SetTargetRequest struct {
	Caller    string `json:"caller"`
	PoolID    int64  `json:"pool_id"`
	TargetBps int64  `json:"target_bps"`
	MinBps    int64  `json:"min_bps"`
	MaxBps    int64  `json:"max_bps"`
}

// SetTarget configures one pool's allocation target
func (h *Handlers) SetTarget(w http.ResponseWriter, r *http.Request) {
	var req SetTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	err := h.service.SetTarget(req.Caller, AllocationTarget{
		PoolID:    req.PoolID,
		TargetBps: req.TargetBps,
		MinBps:    req.MinBps,
		MaxBps:    req.MaxBps,
	})
	if err != nil {
		h.writeError(w, err, "Failed to set allocation target")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExecuteRequest is the request for a rebalance execution
type ExecuteRequest struct {
	Caller string `json:"caller"`
}

// Execute runs one rebalance pass with the configured strategy
func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	record, err := h.service.ExecuteRebalancing(req.Caller)
	if err != nil {
		h.writeError(w, err, "Failed to execute rebalancing")
		return
	}
	writeJSON(w, record)
}

// EmergencyRequest is the request for an emergency rebalance with explicit
// allocations, keyed by pool id in basis points
type EmergencyRequest struct {
	Caller      string          `json:"caller"`
	Allocations map[int64]int64 `json:"allocations"`
}

// Emergency applies an explicit allocation, bypassing the cooldown
func (h *Handlers) Emergency(w http.ResponseWriter, r *http.Request) {
	var req EmergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	record, err := h.service.TriggerEmergencyRebalancing(req.Caller, req.Allocations)
	if err != nil {
		h.writeError(w, err, "Failed to execute emergency rebalancing")
		return
	}
	writeJSON(w, record)
}

// RecommendationRequest is the request for submitting an oracle advisory
type RecommendationRequest struct {
	Caller        string          `json:"caller"`
	Allocations   map[int64]int64 `json:"allocations"`
	ConfidenceBps int64           `json:"confidence_bps"`
	Rationale     string          `json:"rationale"`
}

// SubmitRecommendation stores an oracle allocation advisory
func (h *Handlers) SubmitRecommendation(w http.ResponseWriter, r *http.Request) {
	var req RecommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	id, err := h.service.SubmitRecommendation(req.Caller, req.Allocations, req.ConfidenceBps, req.Rationale)
	if err != nil {
		h.writeError(w, err, "Failed to submit recommendation")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int64{"id": id})
}

// History returns recent rebalance records, newest first
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.service.History(limit)
	if err != nil {
		h.writeError(w, err, "Failed to query rebalance history")
		return
	}
	if records == nil {
		records = []RebalanceRecord{}
	}
	writeJSON(w, records)
}
