package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leafsii/leafsii-vault/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	caller string
	req    api.JSONRPCRequest
}

// stubServer answers every call with result, or with rpcErr when set.
func stubServer(t *testing.T, result any, rpcErr *api.JSONRPCError) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/jsonrpc", r.URL.Path)
		var req api.JSONRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls = append(calls, recorded{caller: r.Header.Get(api.CallerHeader), req: req})

		resp := api.JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result, Error: rpcErr}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		method string
		params string
	}{
		{"state", []string{"state"}, api.MethodGetState, ""},
		{"stake", []string{"stake", "12.5", "--caller", "0xa11ce"}, api.MethodStake, `{"amount":"12.5"}`},
		{"stake to receiver", []string{"stake", "1", "--caller", "0xa11ce", "--receiver", "0xb0b"}, api.MethodStake, `{"receiver":"0xb0b","amount":"1"}`},
		{"stake with minimum", []string{"stake", "1", "--caller", "0xa11ce", "--min-shares", "0.99"}, api.MethodStake, `{"amount":"1","minShares":"0.99"}`},
		{"unstake", []string{"unstake", "3", "--caller", "0xa11ce"}, api.MethodUnstake, `{"shares":"3"}`},
		{"unstake with minimum", []string{"unstake", "3", "--caller", "0xa11ce", "--min-assets", "3.2"}, api.MethodUnstake, `{"shares":"3","minAssets":"3.2"}`},
		{
			"deposit collateral",
			[]string{"deposit-collateral", "USDC", "10", "9.9", "--caller", "0xde9", "--benefactor", "0xb0b", "--beneficiary", "0xa11ce"},
			api.MethodDepositCollateral,
			`{"benefactor":"0xb0b","beneficiary":"0xa11ce","asset":"USDC","collateralAmount":"10","baseAmount":"9.9"}`,
		},
		{
			"redeem collateral",
			[]string{"redeem-collateral", "USDT", "5", "5", "--caller", "0x3d", "--benefactor", "0xb0b", "--beneficiary", "0xa11ce"},
			api.MethodRedeemCollateral,
			`{"benefactor":"0xb0b","beneficiary":"0xa11ce","asset":"USDT","collateralAmount":"5","baseAmount":"5"}`,
		},
		{"withdraw", []string{"withdraw", "--caller", "0xa11ce"}, api.MethodWithdraw, `{}`},
		{"distribute", []string{"distribute", "100", "--caller", "0xad"}, api.MethodDistributeReward, `{"amount":"100"}`},
		{"adjust cooldown", []string{"adjust-cooldown", "72h", "--caller", "0xad"}, api.MethodAdjustCooldown, `{"cooldownSeconds":259200}`},
		{"propose admin", []string{"propose-admin", "0xb0b", "--caller", "0xad"}, api.MethodProposeAdmin, `{"proposed":"0xb0b"}`},
		{"accept admin", []string{"accept-admin", "--caller", "0xb0b"}, api.MethodAcceptAdmin, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := stubServer(t, map[string]string{"status": "ok"}, nil)

			out, err := run(t, append(tt.args, "--url", srv.URL)...)
			require.NoError(t, err)
			assert.JSONEq(t, `{"status":"ok"}`, out)

			require.Len(t, *calls, 1)
			got := (*calls)[0]
			assert.Equal(t, "2.0", got.req.JSONRPC)
			assert.Equal(t, tt.method, got.req.Method)
			if tt.params == "" {
				assert.Empty(t, got.req.Params)
			} else {
				assert.JSONEq(t, tt.params, string(got.req.Params))
			}
		})
	}
}

func TestCallerHeader(t *testing.T) {
	srv, calls := stubServer(t, map[string]string{"status": "ok"}, nil)

	_, err := run(t, "withdraw", "--caller", "0xa11ce", "--url", srv.URL)
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Equal(t, "0xa11ce", (*calls)[0].caller)
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		rpcErr  *api.JSONRPCError
		wantErr string
	}{
		{"write without caller", []string{"stake", "1"}, nil, "needs --caller"},
		{"bad duration", []string{"adjust-cooldown", "soon", "--caller", "0xad"}, nil, "invalid duration"},
		{"missing argument", []string{"distribute", "--caller", "0xad"}, nil, "accepts 1 arg"},
		{"collateral without parties", []string{"deposit-collateral", "USDC", "1", "1", "--caller", "0xde9"}, nil, "needs --benefactor"},
		{
			name:    "server error",
			args:    []string{"withdraw", "--caller", "0xa11ce"},
			rpcErr:  &api.JSONRPCError{Code: api.JSONRPCStateError, Message: "cooldown still active", Data: api.ErrorResponse{Code: "CooldownActive", Kind: "state", Message: "cooldown still active"}},
			wantErr: "CooldownActive (state, rpc -32005)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := stubServer(t, nil, tt.rpcErr)
			_, err := run(t, append(tt.args, "--url", srv.URL)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
