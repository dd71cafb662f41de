package api

import "encoding/json"

// JSON-RPC 2.0 request structure
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSON-RPC 2.0 response structure
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// JSON-RPC 2.0 error structure
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON-RPC methods
const (
	MethodInit              = "vault_init"
	MethodStake             = "vault_stake"
	MethodUnstake           = "vault_unstake"
	MethodWithdraw          = "vault_withdraw"
	MethodDistributeReward  = "vault_distributeReward"
	MethodEmergencyWithdraw = "vault_emergencyWithdraw"
	MethodRedistribute      = "vault_redistributeLocked"
	MethodAdjustCooldown    = "vault_adjustCooldown"
	MethodProposeAdmin      = "vault_proposeAdmin"
	MethodAcceptAdmin       = "vault_acceptAdmin"
	MethodGetState          = "vault_getState"
	MethodDepositCollateral = "vault_depositCollateral"
	MethodRedeemCollateral  = "vault_redeemCollateral"
)

// JSON-RPC error codes (following standard)
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)
