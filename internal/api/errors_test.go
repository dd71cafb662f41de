package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/leafsii/leafsii-vault/internal/denylist"
	"github.com/leafsii/leafsii-vault/internal/guardian"
	"github.com/leafsii/leafsii-vault/internal/repository"
	"github.com/leafsii/leafsii-vault/internal/vault"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		rpcCode int
		code    string
	}{
		{"request", missingParam("amount"), http.StatusBadRequest, JSONRPCInvalidParams, "InvalidRequest"},
		{"config", vault.ErrConfigNotInitialized, http.StatusConflict, JSONRPCConfigError, "ConfigNotInitialized"},
		{"authorization", vault.ErrUnauthorizedRole, http.StatusForbidden, JSONRPCAuthorizationError, "UnauthorizedRole"},
		{"validation", vault.ErrMaxDepositExceeded, http.StatusBadRequest, JSONRPCValidationError, "MaxDepositExceeded"},
		{"arithmetic", vault.ErrMathOverflow, http.StatusUnprocessableEntity, JSONRPCArithmeticError, "MathOverflow"},
		{"state", vault.ErrStillVesting, http.StatusConflict, JSONRPCStateError, "StillVesting"},
		{"compliance", vault.ErrDenied, http.StatusForbidden, JSONRPCComplianceError, "Denied"},
		{"wrapped vault error", fmt.Errorf("stake: %w", vault.ErrCooldownActive), http.StatusConflict, JSONRPCStateError, "CooldownActive"},
		{"registry unauthorized", guardian.ErrUnauthorized, http.StatusForbidden, JSONRPCAuthorizationError, "Unauthorized"},
		{"deny-list duplicate", denylist.ErrAlreadyDenied, http.StatusConflict, JSONRPCStateError, "InvalidState"},
		{"frozen", denylist.ErrFrozen, http.StatusForbidden, JSONRPCComplianceError, "Frozen"},
		{"cursor", repository.ErrInvalidCursor, http.StatusBadRequest, JSONRPCValidationError, "InvalidRequest"},
		{"faucet", errFaucetDisabled, http.StatusNotFound, JSONRPCMethodNotFound, "FaucetDisabled"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, JSONRPCInternalError, "Internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := classify(tt.err)
			assert.Equal(t, tt.status, info.status)
			assert.Equal(t, tt.rpcCode, info.rpcCode)
			assert.Equal(t, tt.code, info.code)
		})
	}
}
