package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/repository"
	"github.com/leafsii/leafsii-vault/internal/vault"
	"github.com/leafsii/leafsii-vault/internal/ws"
	"go.uber.org/zap"
)

// CallerHeader carries the address a request acts as. Nothing verifies it:
// anyone who can reach the server can act as any address, including the
// vault admin. Deployments outside dev must sit behind a proxy that
// authenticates the caller and sets this header itself.
const CallerHeader = "X-Caller-Address"

// WarnUnauthenticatedCaller logs once at startup when a non-dev deployment
// trusts CallerHeader.
func WarnUnauthenticatedCaller(logger *zap.SugaredLogger, env string, dev bool) {
	if dev {
		return
	}
	logger.Warnw("Callers are identified by an unauthenticated header; put an authenticating proxy in front of this server",
		"header", CallerHeader,
		"env", env,
	)
}

// MetricsInterface defines the interface for metrics recording
type MetricsInterface interface {
	RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration)
}

type Handler struct {
	svc        *Service
	wsHub      *ws.Hub
	sseHandler *ws.SSEHandler
	logger     *zap.SugaredLogger
	metrics    MetricsInterface
}

func NewHandler(
	svc *Service,
	wsHub *ws.Hub,
	sseHandler *ws.SSEHandler,
	logger *zap.SugaredLogger,
	metrics MetricsInterface,
) *Handler {
	return &Handler{
		svc:        svc,
		wsHub:      wsHub,
		sseHandler: sseHandler,
		logger:     logger,
		metrics:    metrics,
	}
}

func callerOf(r *http.Request) (account.Address, error) {
	raw := r.Header.Get(CallerHeader)
	if raw == "" {
		return account.Zero, missingParam(CallerHeader)
	}
	a, err := account.ParseAddress(raw)
	if err != nil {
		return account.Zero, invalidParam(CallerHeader, err)
	}
	return a, nil
}

// decode reads an optional JSON body into dst.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return invalidParam("body", err)
	}
	return nil
}

// command runs a caller-scoped write with a JSON body of type Req.
func command[Req any](h *Handler, status int, fn func(ctx context.Context, caller account.Address, req Req) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerOf(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		var req Req
		if err := decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
		out, err := fn(r.Context(), caller, req)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.writeJSON(w, status, out)
	}
}

func ok() StatusResponse { return StatusResponse{Status: "ok"} }

// Vault commands

func (h *Handler) InitVault(w http.ResponseWriter, r *http.Request) {
	command(h, http.StatusCreated, func(ctx context.Context, caller account.Address, req InitVaultRequest) (any, error) {
		if err := h.svc.InitVault(ctx, caller, req); err != nil {
			return nil, err
		}
		return h.svc.State(ctx)
	})(w, r)
}

func (h *Handler) InitSubAccount(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	command(h, http.StatusCreated, func(ctx context.Context, caller account.Address, _ struct{}) (any, error) {
		return h.svc.InitSubAccount(ctx, caller, InitSubAccountRequest{Kind: kind})
	})(w, r)
}

func (h *Handler) Stake(w http.ResponseWriter, r *http.Request) {
	command(h, http.StatusOK, func(ctx context.Context, caller account.Address, req StakeRequest) (any, error) {
		return h.svc.Stake(ctx, caller, req)
	})(w, r)
}

func (h *Handler) Unstake(w http.ResponseWriter, r *http.Request) {
	command(h, http.StatusOK, func(ctx context.Context, caller account.Address, req UnstakeRequest) (any, error) {
		return h.svc.Unstake(ctx, caller, req)
	})(w, r)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	command(h, http.StatusOK, func(ctx context.Context, caller account.Address, req WithdrawRequest) (any, error) {
		return h.svc.Withdraw(ctx, caller, req)
	})(w, r)
}

func (h *Handler) DistributeReward(w http.ResponseWriter, r *http.Request) {
	command(h, http.StatusOK, func(ctx context.Context, caller account.Address, req DistributeRewardRequest) (any, error) {
		return ok(), h.svc.DistributeReward(ctx, caller, req)
	})(w, r)
}

func (h *Handler) EmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	command(h, http.StatusOK, func(ctx context.Context, caller account.Address, req EmergencyWithdrawRequest) (any, error) {
		req.Kind = kind
		return ok(), h.svc.EmergencyWithdraw(ctx, caller, req)
	})(w, r)
}

func (h *Handler) RedistributeLocked(w http.ResponseWriter, r *http.Request) {
	command(h, http.StatusOK, func(ctx context.Context, caller account.Address, req RedistributeRequest) (any, error) {
		return h.svc.RedistributeLocked(ctx, caller, req)
	})(w, r)
}

func (h *Handler) AdjustCooldown(w http.ResponseWriter, r *http.Request) {
	command(h, http.StatusOK, func(ctx context.Context, caller account.Address, req AdjustCooldownRequest) (any, error) {
		return ok(), h.svc.AdjustCooldown(ctx, caller, req)
	})(w, r)
}

func (h *Handler) DepositCollateral(w http.ResponseWriter, r *http.Request) {
	command(h, http.StatusOK, func(ctx context.Context, caller account.Address, req CollateralRequest) (any, error) {
		return h.svc.DepositCollateral(ctx, caller, req)
	})(w, r)
}

func (h *Handler) RedeemCollateral(w http.ResponseWriter, r *http.Request) {
	command(h, http.StatusOK, func(ctx context.Context, caller account.Address, req CollateralRequest) (any, error) {
		return h.svc.RedeemCollateral(ctx, caller, req)
	})(w, r)
}

func (h *Handler) ProposeAdmin(w http.ResponseWriter, r *http.Request) {
	command(h, http.StatusOK, func(ctx context.Context, caller account.Address, req ProposeAdminRequest) (any, error) {
		return ok(), h.svc.ProposeAdmin(ctx, caller, req)
	})(w, r)
}

func (h *Handler) AcceptAdmin(w http.ResponseWriter, r *http.Request) {
	command(h, http.StatusOK, func(ctx context.Context, caller account.Address, _ struct{}) (any, error) {
		return ok(), h.svc.AcceptAdmin(ctx, caller)
	})(w, r)
}

// Vault reads

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.State(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

func (h *Handler) GetCooldown(w http.ResponseWriter, r *http.Request) {
	cd, err := h.svc.Cooldown(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "receiver"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cd)
}

func (h *Handler) PreviewDeposit(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.PreviewDeposit(r.Context(), r.URL.Query().Get("assets"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) PreviewRedeem(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.PreviewRedeem(r.Context(), r.URL.Query().Get("shares"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// ListEvents pages the event journal: ?type=&limit=&cursor=
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := repository.Query{
		Type:   vault.EventType(r.URL.Query().Get("type")),
		Cursor: r.URL.Query().Get("cursor"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.fail(w, r, invalidParam("limit", fmt.Errorf("must be a non-negative integer")))
			return
		}
		q.Limit = limit
	}
	page, err := h.svc.Events(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Balances(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// Registry management

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	command(h, http.StatusOK, func(ctx context.Context, caller account.Address, req RoleRequest) (any, error) {
		return ok(), h.svc.GrantRole(ctx, caller, req)
	})(w, r)
}

func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	command(h, http.StatusOK, func(ctx context.Context, caller account.Address, req RoleRequest) (any, error) {
		return ok(), h.svc.RevokeRole(ctx, caller, req)
	})(w, r)
}

func (h *Handler) DenyAdd(w http.ResponseWriter, r *http.Request) {
	command(h, http.StatusOK, func(ctx context.Context, caller account.Address, req DenyRequest) (any, error) {
		return ok(), h.svc.DenyAdd(ctx, caller, req)
	})(w, r)
}

func (h *Handler) DenyRemove(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "address")
	command(h, http.StatusOK, func(ctx context.Context, caller account.Address, _ struct{}) (any, error) {
		return ok(), h.svc.DenyRemove(ctx, caller, user)
	})(w, r)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	command(h, http.StatusOK, func(ctx context.Context, caller account.Address, req ApproveRequest) (any, error) {
		return h.svc.Approve(ctx, caller, req)
	})(w, r)
}

// MintTokens is the dev faucet. It needs no caller.
func (h *Handler) MintTokens(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.svc.Mint(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// Health and ops endpoints
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.svc.Ping(ctx); err != nil {
		h.logger.Warnw("Readiness check failed", "error", err)
		http.Error(w, "NOT READY", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// WebSocket endpoint
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHub.HandleWebSocket(w, r)
}

// SSE endpoint
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sseHandler.HandleSSE(w, r)
}

// Utility methods
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	info := classify(err)
	h.writeError(w, info.status, info.code, info.kind, err.Error(), middleware.GetReqID(r.Context()))
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, kind, message, requestID string) {
	if status >= http.StatusInternalServerError {
		h.logger.Errorw("API error", "request_id", requestID, "code", code, "message", message, "status", status)
	} else {
		h.logger.Debugw("API request rejected", "request_id", requestID, "code", code, "kind", kind, "message", message, "status", status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:    code,
		Kind:    kind,
		Message: message,
	})
}
