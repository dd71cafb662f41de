package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/leafsii/leafsii-vault/internal/denylist"
	"github.com/leafsii/leafsii-vault/internal/guardian"
	"github.com/leafsii/leafsii-vault/internal/repository"
	"github.com/leafsii/leafsii-vault/internal/token"
	"github.com/leafsii/leafsii-vault/internal/vault"
)

// JSON-RPC codes for vault error kinds.
const (
	JSONRPCConfigError        = -32001
	JSONRPCAuthorizationError = -32002
	JSONRPCValidationError    = -32003
	JSONRPCArithmeticError    = -32004
	JSONRPCStateError         = -32005
	JSONRPCComplianceError    = -32006
)

// RequestError is a malformed request field.
type RequestError struct {
	Field   string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalidParam(field string, err error) error {
	return &RequestError{Field: field, Message: err.Error()}
}

func missingParam(field string) error {
	return &RequestError{Field: field, Message: "required"}
}

var errFaucetDisabled = errors.New("token faucet is disabled")

// errorInfo is how an error is presented over HTTP and JSON-RPC.
type errorInfo struct {
	status  int
	rpcCode int
	code    string
	kind    string
}

func classify(err error) errorInfo {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return errorInfo{http.StatusBadRequest, JSONRPCInvalidParams, "InvalidRequest", "request"}
	}

	var ve *vault.Error
	if errors.As(err, &ve) || vault.KindOf(err) == vault.KindArithmetic {
		kind := vault.KindOf(err)
		info := errorInfo{code: vault.CodeOf(err), kind: kind.String()}
		switch kind {
		case vault.KindConfig:
			info.status, info.rpcCode = http.StatusConflict, JSONRPCConfigError
		case vault.KindAuthorization:
			info.status, info.rpcCode = http.StatusForbidden, JSONRPCAuthorizationError
		case vault.KindValidation:
			info.status, info.rpcCode = http.StatusBadRequest, JSONRPCValidationError
		case vault.KindArithmetic:
			info.status, info.rpcCode = http.StatusUnprocessableEntity, JSONRPCArithmeticError
		case vault.KindState:
			info.status, info.rpcCode = http.StatusConflict, JSONRPCStateError
		case vault.KindCompliance:
			info.status, info.rpcCode = http.StatusForbidden, JSONRPCComplianceError
		default:
			info.status, info.rpcCode = http.StatusInternalServerError, JSONRPCInternalError
		}
		return info
	}

	switch {
	case errors.Is(err, guardian.ErrUnauthorized), errors.Is(err, denylist.ErrUnauthorized),
		errors.Is(err, token.ErrInvalidAuthority):
		return errorInfo{http.StatusForbidden, JSONRPCAuthorizationError, "Unauthorized", vault.KindAuthorization.String()}
	case errors.Is(err, guardian.ErrRoleAlreadyActive), errors.Is(err, guardian.ErrRoleNotActive),
		errors.Is(err, denylist.ErrAlreadyDenied), errors.Is(err, denylist.ErrNotDenied):
		return errorInfo{http.StatusConflict, JSONRPCStateError, "InvalidState", vault.KindState.String()}
	case errors.Is(err, guardian.ErrInvalidRole), errors.Is(err, guardian.ErrInvalidOwner),
		errors.Is(err, denylist.ErrInvalidAddress), errors.Is(err, token.ErrZeroAmount),
		errors.Is(err, token.ErrUnknownAsset), errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance), errors.Is(err, repository.ErrInvalidCursor):
		return errorInfo{http.StatusBadRequest, JSONRPCValidationError, "InvalidRequest", vault.KindValidation.String()}
	case errors.Is(err, denylist.ErrFrozen):
		return errorInfo{http.StatusForbidden, JSONRPCComplianceError, "Frozen", vault.KindCompliance.String()}
	case errors.Is(err, errFaucetDisabled):
		return errorInfo{http.StatusNotFound, JSONRPCMethodNotFound, "FaucetDisabled", "request"}
	}
	return errorInfo{http.StatusInternalServerError, JSONRPCInternalError, "Internal", vault.KindInternal.String()}
}
