package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type rpcResult struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"error"`
}

// errorCode is the vault error code carried in error.data.
func (r rpcResult) errorCode(t *testing.T) string {
	t.Helper()
	require.NotNil(t, r.Error)
	var data ErrorResponse
	require.NoError(t, json.Unmarshal(r.Error.Data, &data))
	return data.Code
}

func (ts *testServer) rpcRaw(caller *account.Address, body []byte) rpcResult {
	ts.t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/v1/jsonrpc", bytes.NewReader(body))
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req.Header.Set(CallerHeader, caller.String())
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	require.Equal(ts.t, http.StatusOK, resp.StatusCode)

	var out rpcResult
	require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (ts *testServer) rpc(caller *account.Address, method string, params any) rpcResult {
	ts.t.Helper()
	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(ts.t, err)
	return ts.rpcRaw(caller, raw)
}

func TestJSONRPCVaultFlow(t *testing.T) {
	ts := newTestServer(t)

	res := ts.rpc(addr(vaultAdmin), MethodInit, InitVaultRequest{CooldownSeconds: 3600})
	require.Nil(t, res.Error)
	var state StateDTO
	require.NoError(t, json.Unmarshal(res.Result, &state))
	assert.Equal(t, uint64(3600), state.CooldownSeconds)
	assert.Equal(t, float64(1), res.ID)

	for _, kind := range []string{"stake_pool", "silo", "share_holding", "base_holding"} {
		ts.call(http.MethodPost, "/v1/vault/accounts/"+kind, addr(vaultAdmin), nil, http.StatusCreated, nil)
	}
	ts.call(http.MethodPost, "/v1/tokens/mint", nil, MintRequest{To: vaultAdmin.String(), Amount: "50"}, http.StatusOK, nil)

	// the vault admin passes every role gate
	res = ts.rpc(addr(vaultAdmin), MethodStake, StakeRequest{Amount: "20"})
	require.Nil(t, res.Error)
	var staked StakeResponse
	require.NoError(t, json.Unmarshal(res.Result, &staked))
	assert.Equal(t, uint64(20_000_000), staked.Shares.Raw)

	res = ts.rpc(addr(vaultAdmin), MethodUnstake, UnstakeRequest{Shares: "5"})
	require.Nil(t, res.Error)

	res = ts.rpc(addr(vaultAdmin), MethodWithdraw, WithdrawRequest{})
	require.NotNil(t, res.Error)
	assert.Equal(t, JSONRPCStateError, res.Error.Code)
	assert.Equal(t, "CooldownActive", res.errorCode(t))

	ts.now = ts.now.Add(time.Hour)
	res = ts.rpc(addr(vaultAdmin), MethodWithdraw, WithdrawRequest{})
	require.Nil(t, res.Error)
	var withdrawn WithdrawResponse
	require.NoError(t, json.Unmarshal(res.Result, &withdrawn))
	assert.Equal(t, uint64(5_000_000), withdrawn.Assets.Raw)

	res = ts.rpc(addr(vaultAdmin), MethodDistributeReward, DistributeRewardRequest{Amount: "1"})
	require.Nil(t, res.Error)
	res = ts.rpc(addr(vaultAdmin), MethodEmergencyWithdraw, EmergencyWithdrawRequest{Kind: "silo", Receiver: outsider.String(), Amount: "1"})
	require.NotNil(t, res.Error)
	assert.Equal(t, JSONRPCValidationError, res.Error.Code)
	assert.Equal(t, "InsufficientSubAccountBalance", res.errorCode(t))

	res = ts.rpc(addr(vaultAdmin), MethodAdjustCooldown, AdjustCooldownRequest{CooldownSeconds: 7200})
	require.Nil(t, res.Error)
	res = ts.rpc(addr(vaultAdmin), MethodProposeAdmin, ProposeAdminRequest{Proposed: outsider.String()})
	require.Nil(t, res.Error)
	res = ts.rpc(addr(outsider), MethodAcceptAdmin, nil)
	require.Nil(t, res.Error)

	res = ts.rpc(nil, MethodGetState, nil)
	require.Nil(t, res.Error)
	require.NoError(t, json.Unmarshal(res.Result, &state))
	assert.Equal(t, outsider, state.Admin)
	assert.Equal(t, uint64(7200), state.CooldownSeconds)
	assert.Equal(t, uint64(16_000_000), state.TotalStaked.Raw)

	res = ts.rpc(addr(outsider), MethodRedistribute, RedistributeRequest{Source: staker.String()})
	require.NotNil(t, res.Error)
	assert.Equal(t, JSONRPCComplianceError, res.Error.Code)
	assert.Equal(t, "NotDenied", res.errorCode(t))

	ts.metrics.AssertCalled(t, "RecordHTTPRequest", mock.Anything, http.MethodPost, "/v1/jsonrpc#"+MethodGetState, http.StatusOK, mock.Anything)
}

func TestJSONRPCErrors(t *testing.T) {
	tests := []struct {
		name   string
		caller *account.Address
		body   string
		code   int
		data   string
	}{
		{"parse error", nil, `{"jsonrpc":`, JSONRPCParseError, ""},
		{"wrong version", nil, `{"jsonrpc":"1.0","id":1,"method":"vault_getState"}`, JSONRPCInvalidRequest, ""},
		{"unknown method", nil, `{"jsonrpc":"2.0","id":1,"method":"vault_mint"}`, JSONRPCMethodNotFound, ""},
		{"write without caller", nil, `{"jsonrpc":"2.0","id":1,"method":"vault_stake","params":{"amount":"1"}}`, JSONRPCInvalidParams, "InvalidRequest"},
		{"params of the wrong shape", addr(vaultAdmin), `{"jsonrpc":"2.0","id":1,"method":"vault_stake","params":[1]}`, JSONRPCInvalidParams, "InvalidRequest"},
		{"bad amount", addr(vaultAdmin), `{"jsonrpc":"2.0","id":1,"method":"vault_stake","params":{"amount":"-3"}}`, JSONRPCInvalidParams, "InvalidRequest"},
		{"not initialized", addr(vaultAdmin), `{"jsonrpc":"2.0","id":1,"method":"vault_stake","params":{"amount":"3"}}`, JSONRPCConfigError, "ConfigNotInitialized"},
		{"accept before init", addr(vaultAdmin), `{"jsonrpc":"2.0","id":1,"method":"vault_acceptAdmin"}`, JSONRPCConfigError, "ConfigNotInitialized"},
		{"cooldown beyond duration", addr(vaultAdmin), `{"jsonrpc":"2.0","id":1,"method":"vault_adjustCooldown","params":{"cooldownSeconds":36028797018967568}}`, JSONRPCValidationError, "InvalidCooldownDuration"},
		{"init cooldown beyond duration", addr(vaultAdmin), `{"jsonrpc":"2.0","id":1,"method":"vault_init","params":{"cooldownSeconds":36028797018967568}}`, JSONRPCValidationError, "InvalidCooldownDuration"},
		{"unsupported collateral", addr(vaultAdmin), `{"jsonrpc":"2.0","id":1,"method":"vault_depositCollateral","params":{"benefactor":"0xb0b","beneficiary":"0xb0b","asset":"DAI","collateralAmount":"1","baseAmount":"1"}}`, JSONRPCValidationError, "CollateralMismatch"},
	}

	ts := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts.t = t
			res := ts.rpcRaw(tt.caller, []byte(tt.body))
			require.NotNil(t, res.Error)
			assert.Nil(t, res.Result)
			assert.Equal(t, tt.code, res.Error.Code)
			if tt.data != "" {
				assert.Equal(t, tt.data, res.errorCode(t))
			}
		})
	}
}

func TestJSONRPCCollateral(t *testing.T) {
	ts := newTestServer(t)
	ts.bootstrap()
	ts.call(http.MethodPost, "/v1/tokens/mint", nil, MintRequest{To: outsider.String(), Asset: collateralAsset, Amount: "10"}, http.StatusOK, nil)
	ts.call(http.MethodPost, "/v1/tokens/approve", addr(outsider), ApproveRequest{Asset: collateralAsset, Amount: "10"}, http.StatusOK, nil)

	order := CollateralRequest{
		Benefactor:       outsider.String(),
		Beneficiary:      outsider.String(),
		Asset:            collateralAsset,
		CollateralAmount: "10",
		BaseAmount:       "10",
	}
	res := ts.rpc(addr(staker), MethodDepositCollateral, order)
	require.NotNil(t, res.Error)
	assert.Equal(t, JSONRPCAuthorizationError, res.Error.Code)
	assert.Equal(t, "UnauthorizedRole", res.errorCode(t))

	res = ts.rpc(addr(vaultAdmin), MethodDepositCollateral, order)
	require.Nil(t, res.Error)
	var deposited CollateralResponse
	require.NoError(t, json.Unmarshal(res.Result, &deposited))
	assert.Equal(t, uint64(10_000_000), deposited.Base.Raw)

	ts.call(http.MethodPost, "/v1/tokens/approve", addr(fund), ApproveRequest{Asset: collateralAsset, Amount: "10"}, http.StatusOK, nil)
	ts.call(http.MethodPost, "/v1/tokens/approve", addr(outsider), ApproveRequest{Asset: "USDU", Amount: "4"}, http.StatusOK, nil)
	order.CollateralAmount, order.BaseAmount = "4", "4"
	res = ts.rpc(addr(vaultAdmin), MethodRedeemCollateral, order)
	require.Nil(t, res.Error)

	var bal BalancesDTO
	ts.call(http.MethodGet, "/v1/accounts/"+outsider.String()+"/balances", nil, nil, http.StatusOK, &bal)
	assert.Equal(t, uint64(6_000_000), bal.Base.Raw)
	assert.Equal(t, uint64(4_000_000), bal.Collateral[collateralAsset].Raw)
}
