package admin

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/codebymuri/DeFiYield/internal/domain"
)

// Handlers provides HTTP handlers for administrative endpoints
type Handlers struct {
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates a new admin handlers instance
func NewHandlers(service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("module", "admin_handlers").Logger(),
	}
}

// RegisterRoutes registers all administrative routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/pause", h.SetPaused)
		r.Post("/cooldown", h.SetCooldown)
		r.Post("/drift-threshold", h.SetDriftThreshold)
		r.Post("/max-slippage", h.SetMaxSlippage)
		r.Post("/strategy", h.SetStrategy)
		r.Get("/settings", h.Settings)
		r.Post("/roles/grant", h.GrantRole)
		r.Post("/roles/revoke", h.RevokeRole)
	})
	r.Get("/events", h.Events)
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

// SetPausedRequest is the request for flipping the pause flag
type SetPausedRequest struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

// SetPaused flips the global pause flag
func (h *Handlers) SetPaused(w http.ResponseWriter, r *http.Request) {
	var req SetPausedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := h.service.SetPaused(req.Caller, req.Paused); err != nil {
		h.writeError(w, err, "Failed to set pause flag")
		return
	}
	writeJSON(w, map[string]bool{"paused": req.Paused})
}

// SetValueRequest is the request shape shared by the numeric setters
type SetValueRequest struct {
	Caller string `json:"caller"`
	Value  int64  `json:"value"`
}

// SetCooldown sets the rebalance cooldown in seconds
func (h *Handlers) SetCooldown(w http.ResponseWriter, r *http.Request) {
	var req SetValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := h.service.SetCooldown(req.Caller, req.Value); err != nil {
		h.writeError(w, err, "Failed to set cooldown")
		return
	}
	writeJSON(w, map[string]int64{"cooldown_seconds": req.Value})
}

// SetDriftThreshold sets the drift threshold in basis points
func (h *Handlers) SetDriftThreshold(w http.ResponseWriter, r *http.Request) {
	var req SetValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := h.service.SetDriftThreshold(req.Caller, req.Value); err != nil {
		h.writeError(w, err, "Failed to set drift threshold")
		return
	}
	writeJSON(w, map[string]int64{"drift_threshold_bps": req.Value})
}

// SetMaxSlippage sets the advisory slippage bound in basis points
func (h *Handlers) SetMaxSlippage(w http.ResponseWriter, r *http.Request) {
	var req SetValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := h.service.SetMaxSlippage(req.Caller, req.Value); err != nil {
		h.writeError(w, err, "Failed to set max slippage")
		return
	}
	writeJSON(w, map[string]int64{"max_slippage_bps": req.Value})
}

// SetStrategyRequest is the request for selecting the rebalancing strategy
type SetStrategyRequest struct {
	Caller   string `json:"caller"`
	Strategy string `json:"strategy"`
}

// SetStrategy selects the active rebalancing strategy
func (h *Handlers) SetStrategy(w http.ResponseWriter, r *http.Request) {
	var req SetStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := h.service.SetStrategy(req.Caller, req.Strategy); err != nil {
		h.writeError(w, err, "Failed to set strategy")
		return
	}
	writeJSON(w, map[string]string{"strategy": req.Strategy})
}

// Settings returns every stored setting. Caller identity comes from the
// query string since GET requests carry no body.
func (h *Handlers) Settings(w http.ResponseWriter, r *http.Request) {
	caller := r.URL.Query().Get("caller")
	all, err := h.service.Settings(caller)
	if err != nil {
		h.writeError(w, err, "Failed to read settings")
		return
	}
	writeJSON(w, all)
}

// RoleRequest is the request for granting or revoking a role
type RoleRequest struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Role    string `json:"role"`
}

// GrantRole adds an account to a role allow-list
func (h *Handlers) GrantRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := h.service.GrantRole(req.Caller, req.Account, req.Role); err != nil {
		h.writeError(w, err, "Failed to grant role")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeRole removes an account from a role allow-list
func (h *Handlers) RevokeRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := h.service.RevokeRole(req.Caller, req.Account, req.Role); err != nil {
		h.writeError(w, err, "Failed to revoke role")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Events returns recent event records, newest first
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.service.Events(limit)
	if err != nil {
		h.writeError(w, err, "Failed to query events")
		return
	}
	writeJSON(w, list)
}
