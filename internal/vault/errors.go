package vault

import (
	"errors"
	"fmt"

	"github.com/leafsii/leafsii-vault/internal/calc"
)

// Kind groups error codes by what the caller has to change before retrying.
type Kind int

const (
	KindInternal Kind = iota
	KindConfig
	KindAuthorization
	KindValidation
	KindArithmetic
	KindState
	KindCompliance
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindArithmetic:
		return "arithmetic"
	case KindState:
		return "state"
	case KindCompliance:
		return "compliance"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so detailed copies still
// compare equal to the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// withf returns a copy of e with a more specific message.
func (e *Error) withf(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func (e *Error) wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

var (
	ErrConfigAlreadyInitialized     = newError(KindConfig, "ConfigAlreadyInitialized", "vault already initialized")
	ErrConfigNotInitialized         = newError(KindConfig, "ConfigNotInitialized", "vault not initialized")
	ErrSubAccountAlreadyInitialized = newError(KindConfig, "SubAccountAlreadyInitialized", "sub-account already initialized")
	ErrSubAccountNotInitialized     = newError(KindConfig, "SubAccountNotInitialized", "sub-account not initialized")

	ErrUnauthorized                = newError(KindAuthorization, "Unauthorized", "caller is not the vault admin")
	ErrUnauthorizedRole            = newError(KindAuthorization, "UnauthorizedRole", "caller lacks the required role")
	ErrOnlyAdminCanProposeNewAdmin = newError(KindAuthorization, "OnlyAdminCanProposeNewAdmin", "only the admin can propose a new admin")
	ErrOnlyProposedAdminCanAccept  = newError(KindAuthorization, "OnlyProposedAdminCanAccept", "only the proposed admin can accept")
	ErrInvalidCooldownOwner        = newError(KindAuthorization, "InvalidCooldownOwner", "cooldown belongs to another holder")

	ErrAmountMustBeGreaterThanZero  = newError(KindValidation, "AmountMustBeGreaterThanZero", "amount must be greater than zero")
	ErrMaxDepositExceeded           = newError(KindValidation, "MaxDepositExceeded", "deposit exceeds the maximum")
	ErrInsufficientBaseBalance      = newError(KindValidation, "InsufficientBaseBalance", "insufficient base asset balance")
	ErrInsufficientShares           = newError(KindValidation, "InsufficientShares", "insufficient share balance")
	ErrInsufficientStakedSupply     = newError(KindValidation, "InsufficientStakedSupply", "staked supply cannot absorb the reduction")
	ErrInsufficientSubAccountAmount = newError(KindValidation, "InsufficientSubAccountBalance", "insufficient sub-account balance")
	ErrInvalidReceiver              = newError(KindValidation, "InvalidReceiver", "receiver does not match the cooldown")
	ErrInvalidAddress               = newError(KindValidation, "InvalidAddress", "address must not be zero")
	ErrInvalidSubAccount            = newError(KindValidation, "InvalidSubAccount", "unknown sub-account kind")
	ErrInvalidCooldownDuration      = newError(KindValidation, "InvalidCooldownDuration", "cooldown duration out of range")
	ErrProposedAdminIsCurrentAdmin  = newError(KindValidation, "ProposedAdminIsCurrentAdmin", "proposed admin is the current admin")
	ErrProposedAdminAlreadySet      = newError(KindValidation, "ProposedAdminAlreadySet", "proposed admin already pending")
	ErrNoLockedShares               = newError(KindValidation, "InvalidLockedShareAmount", "source holds no shares")
	ErrSlippageExceeded             = newError(KindValidation, "SlippageExceeded", "output below the requested minimum")
	ErrCollateralMismatch           = newError(KindValidation, "CollateralMismatch", "collateral asset is not supported")
	ErrInsufficientCollateral       = newError(KindValidation, "InsufficientCollateral", "insufficient collateral balance or allowance")
	ErrInsufficientBaseAllowance    = newError(KindValidation, "InsufficientBaseAllowance", "insufficient base asset allowance")

	ErrMathOverflow                = newError(KindArithmetic, "MathOverflow", "arithmetic overflow")
	ErrInvalidPreviewDepositAmount = newError(KindArithmetic, "InvalidPreviewDepositAmount", "deposit converts to zero shares")
	ErrInvalidPreviewRedeemAmount  = newError(KindArithmetic, "InvalidPreviewRedeemAmount", "shares convert to zero assets")

	ErrCooldownActive         = newError(KindState, "CooldownActive", "cooldown still active")
	ErrCooldownNotInitialized = newError(KindState, "CooldownNotInitialized", "cooldown not initialized")
	ErrInsufficientMinShares  = newError(KindState, "InsufficientMinShares", "share supply below the minimum")
	ErrInitialDepositTooSmall = newError(KindState, "InitialDepositTooSmall", "first deposit below the minimum")
	ErrStillVesting           = newError(KindState, "StillVesting", "previous reward still vesting")
	ErrShareSupplyTooLow      = newError(KindState, "ShareSupplyTooLow", "share supply too low for distribution")
	ErrNoPendingAdminTransfer = newError(KindState, "NoPendingAdminTransfer", "no pending admin transfer")
	ErrInvalidAdminTransition = newError(KindState, "InvalidAdminTransition", "illegal admin phase transition")

	ErrDenied    = newError(KindCompliance, "Denied", "address is deny-listed")
	ErrNotDenied = newError(KindCompliance, "NotDenied", "address is not deny-listed")
)

// KindOf classifies err. Errors from calc map to KindArithmetic; anything
// that is not a vault error is KindInternal.
func KindOf(err error) Kind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	if errors.Is(err, calc.ErrMathOverflow) || errors.Is(err, calc.ErrDivisionByZero) {
		return KindArithmetic
	}
	return KindInternal
}

// CodeOf returns the error code of err, or "Internal".
func CodeOf(err error) string {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code
	}
	if KindOf(err) == KindArithmetic {
		return ErrMathOverflow.Code
	}
	return "Internal"
}

func arithmetic(err error) error {
	if err == nil {
		return nil
	}
	return ErrMathOverflow.wrap(err)
}
