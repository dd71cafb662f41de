package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/leafsii/leafsii-vault/internal/account"
)

type rpcMethod struct {
	// readOnly methods need no caller.
	readOnly bool
	call     func(ctx context.Context, caller account.Address, params json.RawMessage) (any, error)
}

// rpcCall adapts a typed service call to an rpcMethod.
func rpcCall[Req any](fn func(ctx context.Context, caller account.Address, req Req) (any, error)) rpcMethod {
	return rpcMethod{call: func(ctx context.Context, caller account.Address, params json.RawMessage) (any, error) {
		var req Req
		if len(params) > 0 && string(params) != "null" {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, invalidParam("params", err)
			}
		}
		return fn(ctx, caller, req)
	}}
}

func (h *Handler) rpcMethods() map[string]rpcMethod {
	s := h.svc
	return map[string]rpcMethod{
		MethodInit: rpcCall(func(ctx context.Context, caller account.Address, req InitVaultRequest) (any, error) {
			if err := s.InitVault(ctx, caller, req); err != nil {
				return nil, err
			}
			return s.State(ctx)
		}),
		MethodStake: rpcCall(func(ctx context.Context, caller account.Address, req StakeRequest) (any, error) {
			return s.Stake(ctx, caller, req)
		}),
		MethodUnstake: rpcCall(func(ctx context.Context, caller account.Address, req UnstakeRequest) (any, error) {
			return s.Unstake(ctx, caller, req)
		}),
		MethodWithdraw: rpcCall(func(ctx context.Context, caller account.Address, req WithdrawRequest) (any, error) {
			return s.Withdraw(ctx, caller, req)
		}),
		MethodDistributeReward: rpcCall(func(ctx context.Context, caller account.Address, req DistributeRewardRequest) (any, error) {
			return ok(), s.DistributeReward(ctx, caller, req)
		}),
		MethodEmergencyWithdraw: rpcCall(func(ctx context.Context, caller account.Address, req EmergencyWithdrawRequest) (any, error) {
			return ok(), s.EmergencyWithdraw(ctx, caller, req)
		}),
		MethodRedistribute: rpcCall(func(ctx context.Context, caller account.Address, req RedistributeRequest) (any, error) {
			return s.RedistributeLocked(ctx, caller, req)
		}),
		MethodAdjustCooldown: rpcCall(func(ctx context.Context, caller account.Address, req AdjustCooldownRequest) (any, error) {
			return ok(), s.AdjustCooldown(ctx, caller, req)
		}),
		MethodDepositCollateral: rpcCall(func(ctx context.Context, caller account.Address, req CollateralRequest) (any, error) {
			return s.DepositCollateral(ctx, caller, req)
		}),
		MethodRedeemCollateral: rpcCall(func(ctx context.Context, caller account.Address, req CollateralRequest) (any, error) {
			return s.RedeemCollateral(ctx, caller, req)
		}),
		MethodProposeAdmin: rpcCall(func(ctx context.Context, caller account.Address, req ProposeAdminRequest) (any, error) {
			return ok(), s.ProposeAdmin(ctx, caller, req)
		}),
		MethodAcceptAdmin: rpcCall(func(ctx context.Context, caller account.Address, _ struct{}) (any, error) {
			return ok(), s.AcceptAdmin(ctx, caller)
		}),
		MethodGetState: {readOnly: true, call: func(ctx context.Context, _ account.Address, _ json.RawMessage) (any, error) {
			return s.State(ctx)
		}},
	}
}

// HandleJSONRPC handles JSON-RPC 2.0 requests. The caller comes from the
// X-Caller-Address header, as for REST.
func (h *Handler) HandleJSONRPC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Content-Type", "application/json")

	// Parse JSON-RPC request
	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendJSONRPCError(w, r, nil, JSONRPCParseError, "Parse error", err.Error())
		return
	}

	// Validate JSON-RPC version
	if req.JSONRPC != "2.0" {
		h.sendJSONRPCError(w, r, req.ID, JSONRPCInvalidRequest, "Invalid Request", "jsonrpc must be '2.0'")
		return
	}

	method, found := h.rpcMethods()[req.Method]
	if !found {
		h.sendJSONRPCError(w, r, req.ID, JSONRPCMethodNotFound, "Method not found", fmt.Sprintf("Method '%s' not found", req.Method))
		return
	}

	var caller account.Address
	if !method.readOnly {
		var err error
		if caller, err = callerOf(r); err != nil {
			h.sendRPCFailure(w, r, req.ID, err)
			return
		}
	}

	result, err := method.call(r.Context(), caller, req.Params)
	if err != nil {
		h.sendRPCFailure(w, r, req.ID, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
	})

	h.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path+"#"+req.Method, http.StatusOK, time.Since(start))
}

// sendRPCFailure maps a service error onto its JSON-RPC code. The vault
// error code and kind travel in data.
func (h *Handler) sendRPCFailure(w http.ResponseWriter, r *http.Request, id interface{}, err error) {
	info := classify(err)
	h.sendJSONRPCError(w, r, id, info.rpcCode, err.Error(), ErrorResponse{
		Code:    info.code,
		Kind:    info.kind,
		Message: err.Error(),
	})
}

func (h *Handler) sendJSONRPCError(w http.ResponseWriter, r *http.Request, id interface{}, code int, message string, data interface{}) {
	errorResp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}

	w.WriteHeader(http.StatusOK) // JSON-RPC errors are sent with HTTP 200
	json.NewEncoder(w).Encode(errorResp)

	h.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, http.StatusBadRequest, 0)
}
