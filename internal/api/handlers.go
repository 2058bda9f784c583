/**
 * @description
 * HTTP handlers for the economy-service. Handlers decode the request, call the
 * runtime's ledger, charge request engine or pay menu, and map domain errors to
 * status codes.
 *
 * @dependencies
 * - encoding/json, log/slog, net/http: Standard Go libraries.
 * - internal/app, internal/domain: Core economy components and models.
 */
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/transfa/economy-service/internal/app"
	"github.com/transfa/economy-service/internal/config"
	"github.com/transfa/economy-service/internal/domain"
)

// ConfigLoader re-reads configuration for the reload route.
type ConfigLoader func() (config.Config, error)

// Handlers holds the runtime that handlers will use.
type Handlers struct {
	runtime    *app.Runtime
	loadConfig ConfigLoader
	logger     *slog.Logger
}

// NewHandlers creates the HTTP handlers.
func NewHandlers(runtime *app.Runtime, loadConfig ConfigLoader, logger *slog.Logger) *Handlers {
	return &Handlers{runtime: runtime, loadConfig: loadConfig, logger: logger}
}

type amountPayload struct {
	Amount domain.Amount `json:"amount"`
}

type openPayMenuPayload struct {
	Mode domain.PayMode `json:"mode"`
}

type payMenuTargetPayload struct {
	Target string `json:"target"`
}

type payMenuAmountPayload struct {
	Amount json.RawMessage `json:"amount"`
}

type chargeRequestErrorResponse struct {
	Error   string               `json:"error"`
	Request domain.ChargeRequest `json:"request"`
}

func (h *Handlers) handleGetOwnBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.writeBalance(w, actor)
}

func (h *Handlers) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	h.writeBalance(w, chi.URLParam(r, "id"))
}

func (h *Handlers) writeBalance(w http.ResponseWriter, accountID string) {
	balance, err := h.runtime.Economy().Balance(accountID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, domain.AccountBalance{AccountID: strings.TrimSpace(accountID), Balance: balance})
}

func (h *Handlers) handlePay(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req domain.PayPayload
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.runtime.Economy().Transfer(actor, req.To, req.Amount)
	if err != nil {
		h.logger.Warn("pay rejected", "actor", actor, "to", req.To, "amount", req.Amount.String(), "error", err)
		h.writeDomainError(w, err)
		return
	}
	h.logger.Info("pay completed", "actor", actor, "to", result.ToAccountID, "amount", result.Amount.String())
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleCreateChargeRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req domain.CreateChargeRequestPayload
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.runtime.Requests().Create(actor, req.Target, req.Amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) handleListChargeRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, h.runtime.Requests().ListFor(actor))
}

func (h *Handlers) handleGetChargeRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	req, err := h.runtime.Requests().Get(id, actor)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

func (h *Handlers) handleAcceptChargeRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	req, err := h.runtime.Requests().Accept(id, actor)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			// The request is closed as declined; report the final state with the error.
			h.writeJSON(w, http.StatusConflict, chargeRequestErrorResponse{Error: err.Error(), Request: req})
			return
		}
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

func (h *Handlers) handleDeclineChargeRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveChargeRequest(w, r, h.runtime.Requests().Decline)
}

func (h *Handlers) handleCancelChargeRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveChargeRequest(w, r, h.runtime.Requests().Cancel)
}

func (h *Handlers) resolveChargeRequest(w http.ResponseWriter, r *http.Request, resolve func(uuid.UUID, string) (domain.ChargeRequest, error)) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	req, err := resolve(id, actor)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

func (h *Handlers) handleOpenPayMenu(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req openPayMenuPayload
	if !h.decode(w, r, &req) {
		return
	}
	if req.Mode == "" {
		req.Mode = domain.PayModeDirect
	}
	session, err := h.runtime.Menu().Open(actor, req.Mode)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, session)
}

func (h *Handlers) handleGetPayMenu(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	session, err := h.runtime.Menu().Session(actor)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) handlePayMenuTarget(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req payMenuTargetPayload
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.runtime.Menu().ChooseTarget(actor, req.Target)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) handlePayMenuAmount(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req payMenuAmountPayload
	if !h.decode(w, r, &req) {
		return
	}
	// The amount is raw user input; numbers and strings are both accepted.
	raw := strings.Trim(strings.TrimSpace(string(req.Amount)), `"`)
	session, err := h.runtime.Menu().EnterAmount(actor, raw)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) handlePayMenuConfirm(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	outcome, err := h.runtime.Menu().Confirm(actor)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if outcome.Request != nil {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, outcome)
}

func (h *Handlers) handleCancelPayMenu(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.runtime.Menu().Cancel(actor); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleReload(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loadConfig()
	if err != nil {
		h.logger.Error("reload failed to read configuration", "error", err)
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.runtime.Reload(cfg); err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (h *Handlers) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := h.runtime.Save(r.Context()); err != nil {
		h.logger.Error("on-demand save failed", "error", err)
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *Handlers) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.runtime.Economy().Accounts())
}

func (h *Handlers) handleListAllChargeRequests(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.runtime.Requests().Pending())
}

func (h *Handlers) handleDeposit(w http.ResponseWriter, r *http.Request) {
	h.adjustBalance(w, r, h.runtime.Economy().Deposit)
}

func (h *Handlers) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	h.adjustBalance(w, r, h.runtime.Economy().Withdraw)
}

func (h *Handlers) adjustBalance(w http.ResponseWriter, r *http.Request, apply func(string, domain.Amount) (domain.Amount, error)) {
	accountID := chi.URLParam(r, "id")
	var req amountPayload
	if !h.decode(w, r, &req) {
		return
	}
	balance, err := apply(accountID, req.Amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, domain.AccountBalance{AccountID: strings.TrimSpace(accountID), Balance: balance})
}

func (h *Handlers) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "could not get actor from context")
		return "", false
	}
	return actor, true
}

func (h *Handlers) requestID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid charge request id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return false
		}
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSameActor),
		errors.Is(err, domain.ErrInvalidStep),
		errors.Is(err, domain.ErrInvalidAccount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("unexpected error", "error", err)
		h.writeError(w, status, "Internal server error")
		return
	}
	h.writeError(w, status, err.Error())
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
