package vault

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/leafsii/leafsii-vault/internal/account"
)

type EventType string

const (
	EventVaultInitialized          EventType = "VaultInitialized"
	EventSubAccountInitialized     EventType = "SubAccountInitialized"
	EventSharesMinted              EventType = "SharesMinted"
	EventCooldownStarted           EventType = "CooldownStarted"
	EventBaseWithdrawn             EventType = "BaseWithdrawn"
	EventRewardDistributed         EventType = "RewardDistributed"
	EventEmergencyWithdrawal       EventType = "EmergencyWithdrawal"
	EventLockedSharesRedistributed EventType = "LockedSharesRedistributed"
	EventCooldownAdjusted          EventType = "CooldownAdjusted"
	EventAdminTransferProposed     EventType = "AdminTransferProposed"
	EventAdminTransferCompleted    EventType = "AdminTransferCompleted"
	EventCollateralDeposited       EventType = "CollateralDeposited"
	EventCollateralRedeemed        EventType = "CollateralRedeemed"
)

// EventTypes lists every event the vault emits.
func EventTypes() []EventType {
	return []EventType{
		EventVaultInitialized,
		EventSubAccountInitialized,
		EventSharesMinted,
		EventCooldownStarted,
		EventBaseWithdrawn,
		EventRewardDistributed,
		EventEmergencyWithdrawal,
		EventLockedSharesRedistributed,
		EventCooldownAdjusted,
		EventAdminTransferProposed,
		EventAdminTransferCompleted,
		EventCollateralDeposited,
		EventCollateralRedeemed,
	}
}

// Event is emitted once per committed operation.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// EventSink receives events after the operation that produced them committed.
// Sink errors are logged and never undo the operation.
type EventSink interface {
	HandleEvents(ctx context.Context, events []Event) error
}

type VaultInitialized struct {
	Vault            account.Address `json:"vault"`
	Admin            account.Address `json:"admin"`
	BaseAsset        string          `json:"base_asset"`
	ShareAsset       string          `json:"share_asset"`
	RoleRegistry     account.Address `json:"role_registry"`
	CooldownDuration uint64          `json:"cooldown_duration"`
}

type SubAccountInitialized struct {
	Kind    SubAccountKind  `json:"kind"`
	Address account.Address `json:"address"`
	Asset   string          `json:"asset"`
}

type SharesMinted struct {
	Caller            account.Address `json:"caller"`
	Receiver          account.Address `json:"receiver"`
	Assets            uint64          `json:"assets"`
	Shares            uint64          `json:"shares"`
	TotalStakedSupply uint64          `json:"total_staked_supply"`
}

type CooldownStarted struct {
	Owner       account.Address `json:"owner"`
	Receiver    account.Address `json:"receiver"`
	Shares      uint64          `json:"shares"`
	Assets      uint64          `json:"assets"`
	TotalAmount uint64          `json:"total_amount"`
	CooldownEnd uint64          `json:"cooldown_end"`
}

type BaseWithdrawn struct {
	Caller   account.Address `json:"caller"`
	Receiver account.Address `json:"receiver"`
	Amount   uint64          `json:"amount"`
}

type RewardDistributed struct {
	Distributor       account.Address `json:"distributor"`
	Amount            uint64          `json:"amount"`
	TotalStakedSupply uint64          `json:"total_staked_supply"`
}

type EmergencyWithdrawal struct {
	Authority   account.Address `json:"authority"`
	SubAccount  SubAccountKind  `json:"sub_account"`
	Asset       string          `json:"asset"`
	Amount      uint64          `json:"amount"`
	Destination account.Address `json:"destination"`
}

type LockedSharesRedistributed struct {
	Authority account.Address  `json:"authority"`
	From      account.Address  `json:"from"`
	To        *account.Address `json:"to,omitempty"`
	Amount    uint64           `json:"amount"`
	Burned    bool             `json:"burned"`
}

type CooldownAdjusted struct {
	Previous uint64 `json:"previous"`
	Duration uint64 `json:"duration"`
}

type AdminTransferProposed struct {
	CurrentAdmin  account.Address `json:"current_admin"`
	ProposedAdmin account.Address `json:"proposed_admin"`
}

type AdminTransferCompleted struct {
	PreviousAdmin account.Address `json:"previous_admin"`
	NewAdmin      account.Address `json:"new_admin"`
}

type CollateralDeposited struct {
	Benefactor       account.Address `json:"benefactor"`
	Beneficiary      account.Address `json:"beneficiary"`
	Fund             account.Address `json:"fund"`
	CollateralAsset  string          `json:"collateral_asset"`
	CollateralAmount uint64          `json:"collateral_amount"`
	BaseAmount       uint64          `json:"base_amount"`
}

type CollateralRedeemed struct {
	Benefactor       account.Address `json:"benefactor"`
	Beneficiary      account.Address `json:"beneficiary"`
	Fund             account.Address `json:"fund"`
	CollateralAsset  string          `json:"collateral_asset"`
	CollateralAmount uint64          `json:"collateral_amount"`
	BaseAmount       uint64          `json:"base_amount"`
}
