package api

import (
	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/calc"
	"github.com/leafsii/leafsii-vault/internal/vault"
)

// Amounts in requests are decimal strings in whole-token units ("12.5").

type InitVaultRequest struct {
	CooldownSeconds uint64 `json:"cooldownSeconds,omitempty"`
}

type InitSubAccountRequest struct {
	Kind string `json:"kind"`
}

// MinShares and MinAssets reject the request when the conversion would pay
// out less.
type StakeRequest struct {
	Receiver  string `json:"receiver,omitempty"`
	Amount    string `json:"amount"`
	MinShares string `json:"minShares,omitempty"`
}

type UnstakeRequest struct {
	Receiver  string `json:"receiver,omitempty"`
	Shares    string `json:"shares"`
	MinAssets string `json:"minAssets,omitempty"`
}

type WithdrawRequest struct {
	Receiver string `json:"receiver,omitempty"`
}

type DistributeRewardRequest struct {
	Amount string `json:"amount"`
}

type EmergencyWithdrawRequest struct {
	Kind     string `json:"kind"`
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
}

type RedistributeRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination,omitempty"`
}

type AdjustCooldownRequest struct {
	CooldownSeconds uint64 `json:"cooldownSeconds"`
}

type ProposeAdminRequest struct {
	Proposed string `json:"proposed"`
}

type RoleRequest struct {
	Owner string `json:"owner"`
	Role  string `json:"role"`
}

type DenyRequest struct {
	User        string `json:"user"`
	FrozenBase  bool   `json:"frozenBase"`
	FrozenShare bool   `json:"frozenShare"`
}

// CollateralRequest quotes a mint or redemption of base against collateral.
// CollateralAmount is in collateral units, BaseAmount in base units.
type CollateralRequest struct {
	Benefactor       string `json:"benefactor"`
	Beneficiary      string `json:"beneficiary"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateralAmount"`
	BaseAmount       string `json:"baseAmount"`
}

// ApproveRequest sets the caller's allowance for spender, the vault
// authority when omitted.
type ApproveRequest struct {
	Asset   string `json:"asset"`
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
}

// MintRequest credits Asset, the base asset when omitted.
type MintRequest struct {
	To     string `json:"to"`
	Asset  string `json:"asset,omitempty"`
	Amount string `json:"amount"`
}

// AmountDTO carries base units and their decimal rendering.
type AmountDTO struct {
	Raw     uint64 `json:"raw"`
	Display string `json:"display"`
}

func amountDTO(raw uint64, decimals uint8) AmountDTO {
	return AmountDTO{Raw: raw, Display: calc.ToUIAmount(raw, decimals).String()}
}

type StakeResponse struct {
	Receiver account.Address `json:"receiver"`
	Assets   AmountDTO       `json:"assets"`
	Shares   AmountDTO       `json:"shares"`
}

type CooldownDTO struct {
	Address     account.Address `json:"address"`
	Owner       account.Address `json:"owner"`
	Receiver    account.Address `json:"receiver"`
	Amount      AmountDTO       `json:"amount"`
	End         uint64          `json:"end"`
	Active      bool            `json:"active"`
	Initialized bool            `json:"initialized"`
}

type UnstakeResponse struct {
	Shares   AmountDTO   `json:"shares"`
	Assets   AmountDTO   `json:"assets"`
	Cooldown CooldownDTO `json:"cooldown"`
}

type WithdrawResponse struct {
	Receiver account.Address `json:"receiver"`
	Assets   AmountDTO       `json:"assets"`
}

type CollateralResponse struct {
	Benefactor  account.Address `json:"benefactor"`
	Beneficiary account.Address `json:"beneficiary"`
	Asset       string          `json:"asset"`
	Collateral  AmountDTO       `json:"collateral"`
	Base        AmountDTO       `json:"base"`
}

type AllowanceDTO struct {
	Owner     account.Address `json:"owner"`
	Spender   account.Address `json:"spender"`
	Asset     string          `json:"asset"`
	Allowance AmountDTO       `json:"allowance"`
}

type RedistributeResponse struct {
	Source      account.Address  `json:"source"`
	Destination *account.Address `json:"destination,omitempty"`
	Shares      AmountDTO        `json:"shares"`
}

type StateDTO struct {
	Authority            account.Address    `json:"authority"`
	Initialized          bool               `json:"initialized"`
	Admin                account.Address    `json:"admin"`
	PendingAdmin         account.Address    `json:"pendingAdmin"`
	AdminPhase           string             `json:"adminPhase"`
	BaseAsset            string             `json:"baseAsset"`
	ShareAsset           string             `json:"shareAsset"`
	CooldownSeconds      uint64             `json:"cooldownSeconds"`
	VestingSeconds       uint64             `json:"vestingSeconds"`
	TotalStaked          AmountDTO          `json:"totalStaked"`
	TotalAssets          AmountDTO          `json:"totalAssets"`
	TotalShares          AmountDTO          `json:"totalShares"`
	VestingAmount        AmountDTO          `json:"vestingAmount"`
	UnvestedAmount       AmountDTO          `json:"unvestedAmount"`
	TotalCooldown        AmountDTO          `json:"totalCooldown"`
	LastDistributionTime uint64             `json:"lastDistributionTime"`
	SharePrice           string             `json:"sharePrice"`
	SubAccounts          []vault.SubAccount `json:"subAccounts"`
	AsOf                 uint64             `json:"asOf"`
}

type PreviewDTO struct {
	In  AmountDTO `json:"in"`
	Out AmountDTO `json:"out"`
}

type BalancesDTO struct {
	Holder account.Address `json:"holder"`
	Base   AmountDTO       `json:"base"`
	Shares AmountDTO       `json:"shares"`
	// Collateral is keyed by asset id.
	Collateral map[string]AmountDTO `json:"collateral,omitempty"`
	Denied     bool                 `json:"denied"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
