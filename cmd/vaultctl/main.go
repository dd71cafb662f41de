// vaultctl drives a running vault API over JSON-RPC.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/leafsii/leafsii-vault/internal/api"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		// The error is already printed by Cobra on failure.
		os.Exit(1)
	}
}

// NewRootCmd builds a fresh command tree. Settings come from flags, then
// LFS_VAULTCTL_* environment variables.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LFS_VAULTCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var client *rpcClient
	cmd := &cobra.Command{
		Use:   "vaultctl",
		Short: "Operate a leafsii vault through its JSON-RPC API.",
		Long: `vaultctl issues vault_* JSON-RPC calls against a running vault API.
Writes act as the address given by --caller. Amounts are decimal strings in
whole-token units, e.g. "12.5".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			client = newRPCClient(v.GetString("url"), v.GetString("caller"), v.GetDuration("timeout"))
			return nil
		},
	}

	cmd.PersistentFlags().String("url", "http://localhost:8080", "vault API base URL")
	cmd.PersistentFlags().String("caller", "", "address the call acts as")
	cmd.PersistentFlags().Duration("timeout", 15*time.Second, "request timeout")
	for _, name := range []string{"url", "caller", "timeout"} {
		v.BindPFlag(name, cmd.PersistentFlags().Lookup(name))
	}

	call := func(cmd *cobra.Command, method string, params any) error {
		if method != api.MethodGetState && v.GetString("caller") == "" {
			return fmt.Errorf("%s needs --caller", method)
		}
		res, err := client.Call(cmd.Context(), method, params)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "state",
			Short: "Show the vault ledger, totals and share price",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, api.MethodGetState, nil)
			},
		},
		newStakeCmd(call),
		newUnstakeCmd(call),
		newWithdrawCmd(call),
		newCollateralCmd(call, "deposit-collateral", "Take collateral into the fund and mint base asset", api.MethodDepositCollateral),
		newCollateralCmd(call, "redeem-collateral", "Burn base asset and release collateral from the fund", api.MethodRedeemCollateral),
		&cobra.Command{
			Use:   "distribute AMOUNT",
			Short: "Distribute a reward that vests over the vesting window",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, api.MethodDistributeReward, api.DistributeRewardRequest{Amount: args[0]})
			},
		},
		&cobra.Command{
			Use:   "adjust-cooldown DURATION",
			Short: "Set the unstake cooldown, e.g. 72h",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
				if d < 0 {
					return fmt.Errorf("duration must not be negative")
				}
				return call(cmd, api.MethodAdjustCooldown, api.AdjustCooldownRequest{CooldownSeconds: uint64(d / time.Second)})
			},
		},
		&cobra.Command{
			Use:   "propose-admin ADDRESS",
			Short: "Propose a new vault admin",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, api.MethodProposeAdmin, api.ProposeAdminRequest{Proposed: args[0]})
			},
		},
		&cobra.Command{
			Use:   "accept-admin",
			Short: "Accept a pending admin transfer as the proposed admin",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, api.MethodAcceptAdmin, nil)
			},
		},
	)
	return cmd
}

type callFunc func(cmd *cobra.Command, method string, params any) error

func newStakeCmd(call callFunc) *cobra.Command {
	var receiver, minShares string
	cmd := &cobra.Command{
		Use:   "stake AMOUNT",
		Short: "Stake base asset and mint shares",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, api.MethodStake, api.StakeRequest{Receiver: receiver, Amount: args[0], MinShares: minShares})
		},
	}
	cmd.Flags().StringVar(&receiver, "receiver", "", "share receiver (default: caller)")
	cmd.Flags().StringVar(&minShares, "min-shares", "", "fail unless at least this many shares are minted")
	return cmd
}

func newUnstakeCmd(call callFunc) *cobra.Command {
	var receiver, minAssets string
	cmd := &cobra.Command{
		Use:   "unstake SHARES",
		Short: "Burn shares and start a cooldown for the redeemed assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, api.MethodUnstake, api.UnstakeRequest{Receiver: receiver, Shares: args[0], MinAssets: minAssets})
		},
	}
	cmd.Flags().StringVar(&receiver, "receiver", "", "cooldown receiver (default: caller)")
	cmd.Flags().StringVar(&minAssets, "min-assets", "", "fail unless at least this much base asset is redeemed")
	return cmd
}

// newCollateralCmd builds the deposit and redeem commands, which share the
// order flags.
func newCollateralCmd(call callFunc, use, short, method string) *cobra.Command {
	var req api.CollateralRequest
	cmd := &cobra.Command{
		Use:   use + " ASSET COLLATERAL_AMOUNT BASE_AMOUNT",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Benefactor == "" || req.Beneficiary == "" {
				return fmt.Errorf("%s needs --benefactor and --beneficiary", use)
			}
			req.Asset, req.CollateralAmount, req.BaseAmount = args[0], args[1], args[2]
			return call(cmd, method, req)
		},
	}
	cmd.Flags().StringVar(&req.Benefactor, "benefactor", "", "collateral owner")
	cmd.Flags().StringVar(&req.Beneficiary, "beneficiary", "", "base asset owner")
	return cmd
}

func newWithdrawCmd(call callFunc) *cobra.Command {
	var receiver string
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw a finished cooldown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, api.MethodWithdraw, api.WithdrawRequest{Receiver: receiver})
		},
	}
	cmd.Flags().StringVar(&receiver, "receiver", "", "cooldown receiver (default: caller)")
	return cmd
}

func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("format result: %w", err)
	}
	buf.WriteByte('\n')
	_, err := cmd.OutOrStdout().Write(buf.Bytes())
	return err
}
