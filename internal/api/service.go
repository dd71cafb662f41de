package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/calc"
	"github.com/leafsii/leafsii-vault/internal/denylist"
	"github.com/leafsii/leafsii-vault/internal/guardian"
	"github.com/leafsii/leafsii-vault/internal/repository"
	"github.com/leafsii/leafsii-vault/internal/store"
	"github.com/leafsii/leafsii-vault/internal/token"
	"github.com/leafsii/leafsii-vault/internal/vault"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Checkpointer persists registry and ledger state written outside a vault op.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// Service turns API requests into vault, registry and ledger calls.
type Service struct {
	vault   *vault.Vault
	roles   *guardian.Registry
	deny    *denylist.Registry
	assets  *token.Ledger
	journal repository.Journal
	cache   *store.Cache
	saver   Checkpointer
	faucet  account.Address
	now     func() time.Time
	logger  *zap.SugaredLogger

	group singleflight.Group
}

type ServiceOption func(*Service)

// WithFaucet enables POST /v1/tokens/mint using authority as the base asset
// mint authority.
func WithFaucet(authority account.Address) ServiceOption {
	return func(s *Service) { s.faucet = authority }
}

func WithCheckpointer(c Checkpointer) ServiceOption {
	return func(s *Service) { s.saver = c }
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(
	v *vault.Vault,
	roles *guardian.Registry,
	deny *denylist.Registry,
	assets *token.Ledger,
	journal repository.Journal,
	cache *store.Cache,
	logger *zap.SugaredLogger,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		vault:   v,
		roles:   roles,
		deny:    deny,
		assets:  assets,
		journal: journal,
		cache:   cache,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) baseDecimals(ctx context.Context) uint8 {
	return s.decimals(ctx, s.vault.Params().BaseAsset)
}

func (s *Service) shareDecimals(ctx context.Context) uint8 {
	return s.decimals(ctx, s.vault.Params().ShareAsset)
}

func (s *Service) decimals(ctx context.Context, asset string) uint8 {
	d, err := s.assets.Decimals(ctx, asset)
	if err != nil {
		s.logger.Warnw("Unknown asset decimals", "asset", asset, "error", err)
		return 0
	}
	return d
}

func parseAmount(field, raw string, decimals uint8) (uint64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, missingParam(field)
	}
	v, err := calc.ParseTokenAmount(strings.TrimSpace(raw), decimals)
	if err != nil {
		return 0, invalidParam(field, err)
	}
	return v, nil
}

func parseAddress(field, raw string) (account.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return account.Zero, missingParam(field)
	}
	a, err := account.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return account.Zero, invalidParam(field, err)
	}
	return a, nil
}

// parseMinimum reads an optional minimum output. Empty means no minimum.
func parseMinimum(field, raw string, decimals uint8) (uint64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return parseAmount(field, raw, decimals)
}

// cooldownDuration converts whole seconds, refusing values a time.Duration
// cannot hold.
func cooldownDuration(secs uint64) (time.Duration, error) {
	if secs > uint64(math.MaxInt64/int64(time.Second)) {
		return 0, fmt.Errorf("%w: %d seconds", vault.ErrInvalidCooldownDuration, secs)
	}
	return time.Duration(secs) * time.Second, nil
}

// parseReceiver defaults an empty receiver to the caller.
func parseReceiver(caller account.Address, raw string) (account.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return caller, nil
	}
	return parseAddress("receiver", raw)
}

func (s *Service) checkpoint(ctx context.Context) {
	if s.saver == nil {
		return
	}
	if err := s.saver.Checkpoint(ctx); err != nil {
		s.logger.Errorw("Checkpoint after registry write failed", "error", err)
	}
}

func (s *Service) InitVault(ctx context.Context, caller account.Address, req InitVaultRequest) error {
	cooldown, err := cooldownDuration(req.CooldownSeconds)
	if err != nil {
		return err
	}
	return s.vault.InitVault(ctx, caller, cooldown)
}

func (s *Service) InitSubAccount(ctx context.Context, caller account.Address, req InitSubAccountRequest) (vault.SubAccount, error) {
	kind, err := vault.ParseSubAccountKind(req.Kind)
	if err != nil {
		return vault.SubAccount{}, err
	}
	return s.vault.InitSubAccount(ctx, caller, kind)
}

func (s *Service) Stake(ctx context.Context, caller account.Address, req StakeRequest) (StakeResponse, error) {
	receiver, err := parseReceiver(caller, req.Receiver)
	if err != nil {
		return StakeResponse{}, err
	}
	amount, err := parseAmount("amount", req.Amount, s.baseDecimals(ctx))
	if err != nil {
		return StakeResponse{}, err
	}
	minShares, err := parseMinimum("minShares", req.MinShares, s.shareDecimals(ctx))
	if err != nil {
		return StakeResponse{}, err
	}
	res, err := s.vault.StakeAtLeast(ctx, caller, receiver, amount, minShares)
	if err != nil {
		return StakeResponse{}, err
	}
	return StakeResponse{
		Receiver: receiver,
		Assets:   amountDTO(res.Assets, s.baseDecimals(ctx)),
		Shares:   amountDTO(res.Shares, s.shareDecimals(ctx)),
	}, nil
}

func (s *Service) Unstake(ctx context.Context, caller account.Address, req UnstakeRequest) (UnstakeResponse, error) {
	receiver, err := parseReceiver(caller, req.Receiver)
	if err != nil {
		return UnstakeResponse{}, err
	}
	shares, err := parseAmount("shares", req.Shares, s.shareDecimals(ctx))
	if err != nil {
		return UnstakeResponse{}, err
	}
	minAssets, err := parseMinimum("minAssets", req.MinAssets, s.baseDecimals(ctx))
	if err != nil {
		return UnstakeResponse{}, err
	}
	res, err := s.vault.UnstakeAtLeast(ctx, caller, receiver, shares, minAssets)
	if err != nil {
		return UnstakeResponse{}, err
	}
	return UnstakeResponse{
		Shares:   amountDTO(res.Shares, s.shareDecimals(ctx)),
		Assets:   amountDTO(res.Assets, s.baseDecimals(ctx)),
		Cooldown: s.cooldownDTO(ctx, res.Cooldown),
	}, nil
}

func (s *Service) Withdraw(ctx context.Context, caller account.Address, req WithdrawRequest) (WithdrawResponse, error) {
	receiver, err := parseReceiver(caller, req.Receiver)
	if err != nil {
		return WithdrawResponse{}, err
	}
	paid, err := s.vault.Withdraw(ctx, caller, receiver)
	if err != nil {
		return WithdrawResponse{}, err
	}
	return WithdrawResponse{Receiver: receiver, Assets: amountDTO(paid, s.baseDecimals(ctx))}, nil
}

func (s *Service) DistributeReward(ctx context.Context, caller account.Address, req DistributeRewardRequest) error {
	amount, err := parseAmount("amount", req.Amount, s.baseDecimals(ctx))
	if err != nil {
		return err
	}
	return s.vault.DistributeReward(ctx, caller, amount)
}

func (s *Service) EmergencyWithdraw(ctx context.Context, caller account.Address, req EmergencyWithdrawRequest) error {
	kind, err := vault.ParseSubAccountKind(req.Kind)
	if err != nil {
		return err
	}
	receiver, err := parseAddress("receiver", req.Receiver)
	if err != nil {
		return err
	}
	decimals := s.baseDecimals(ctx)
	if kind == vault.ShareHolding {
		decimals = s.shareDecimals(ctx)
	}
	amount, err := parseAmount("amount", req.Amount, decimals)
	if err != nil {
		return err
	}
	return s.vault.EmergencyWithdraw(ctx, caller, kind, receiver, amount)
}

func (s *Service) RedistributeLocked(ctx context.Context, caller account.Address, req RedistributeRequest) (RedistributeResponse, error) {
	source, err := parseAddress("source", req.Source)
	if err != nil {
		return RedistributeResponse{}, err
	}
	var destination *account.Address
	if strings.TrimSpace(req.Destination) != "" {
		d, err := parseAddress("destination", req.Destination)
		if err != nil {
			return RedistributeResponse{}, err
		}
		destination = &d
	}
	moved, err := s.vault.RedistributeLocked(ctx, caller, source, destination)
	if err != nil {
		return RedistributeResponse{}, err
	}
	return RedistributeResponse{
		Source:      source,
		Destination: destination,
		Shares:      amountDTO(moved, s.shareDecimals(ctx)),
	}, nil
}

func (s *Service) AdjustCooldown(ctx context.Context, caller account.Address, req AdjustCooldownRequest) error {
	cooldown, err := cooldownDuration(req.CooldownSeconds)
	if err != nil {
		return err
	}
	return s.vault.AdjustCooldown(ctx, caller, cooldown)
}

func (s *Service) collateralOrder(ctx context.Context, req CollateralRequest) (vault.CollateralOrder, error) {
	var order vault.CollateralOrder
	asset := strings.TrimSpace(req.Asset)
	if asset == "" {
		return order, missingParam("asset")
	}
	if !s.isCollateral(asset) {
		return order, fmt.Errorf("%w: %q", vault.ErrCollateralMismatch, asset)
	}
	benefactor, err := parseAddress("benefactor", req.Benefactor)
	if err != nil {
		return order, err
	}
	beneficiary, err := parseAddress("beneficiary", req.Beneficiary)
	if err != nil {
		return order, err
	}
	collateral, err := parseAmount("collateralAmount", req.CollateralAmount, s.decimals(ctx, asset))
	if err != nil {
		return order, err
	}
	base, err := parseAmount("baseAmount", req.BaseAmount, s.baseDecimals(ctx))
	if err != nil {
		return order, err
	}
	return vault.CollateralOrder{
		Benefactor:       benefactor,
		Beneficiary:      beneficiary,
		CollateralAsset:  asset,
		CollateralAmount: collateral,
		BaseAmount:       base,
	}, nil
}

func (s *Service) isCollateral(asset string) bool {
	for _, c := range s.vault.Params().Collateral {
		if c == asset {
			return true
		}
	}
	return false
}

func (s *Service) collateralResponse(ctx context.Context, o vault.CollateralOrder) CollateralResponse {
	return CollateralResponse{
		Benefactor:  o.Benefactor,
		Beneficiary: o.Beneficiary,
		Asset:       o.CollateralAsset,
		Collateral:  amountDTO(o.CollateralAmount, s.decimals(ctx, o.CollateralAsset)),
		Base:        amountDTO(o.BaseAmount, s.baseDecimals(ctx)),
	}
}

func (s *Service) DepositCollateral(ctx context.Context, caller account.Address, req CollateralRequest) (CollateralResponse, error) {
	order, err := s.collateralOrder(ctx, req)
	if err != nil {
		return CollateralResponse{}, err
	}
	if err := s.vault.DepositCollateralMintBase(ctx, caller, order); err != nil {
		return CollateralResponse{}, err
	}
	return s.collateralResponse(ctx, order), nil
}

func (s *Service) RedeemCollateral(ctx context.Context, caller account.Address, req CollateralRequest) (CollateralResponse, error) {
	order, err := s.collateralOrder(ctx, req)
	if err != nil {
		return CollateralResponse{}, err
	}
	if err := s.vault.RedeemBaseWithdrawCollateral(ctx, caller, order); err != nil {
		return CollateralResponse{}, err
	}
	return s.collateralResponse(ctx, order), nil
}

func (s *Service) ProposeAdmin(ctx context.Context, caller account.Address, req ProposeAdminRequest) error {
	proposed, err := parseAddress("proposed", req.Proposed)
	if err != nil {
		return err
	}
	return s.vault.ProposeAdmin(ctx, caller, proposed)
}

func (s *Service) AcceptAdmin(ctx context.Context, caller account.Address) error {
	return s.vault.AcceptAdmin(ctx, caller)
}

// State serves the cached view when fresh. Concurrent misses share one read.
func (s *Service) State(ctx context.Context) (StateDTO, error) {
	var cached StateDTO
	if err := s.cache.GetVaultState(ctx, &cached); err == nil {
		return cached, nil
	}

	v, err, _ := s.group.Do("state", func() (interface{}, error) {
		view, err := s.vault.State(ctx)
		if err != nil {
			return nil, err
		}
		dto := s.stateDTO(ctx, view)
		if err := s.cache.SetVaultState(ctx, dto); err != nil {
			s.logger.Warnw("Failed to cache vault state", "error", err)
		}
		return dto, nil
	})
	if err != nil {
		return StateDTO{}, err
	}
	return v.(StateDTO), nil
}

func (s *Service) stateDTO(ctx context.Context, view vault.StateView) StateDTO {
	base, shares := s.baseDecimals(ctx), s.shareDecimals(ctx)
	l := view.Ledger
	return StateDTO{
		Authority:            view.Authority,
		Initialized:          l.Initialized,
		Admin:                l.Admin,
		PendingAdmin:         l.PendingAdmin,
		AdminPhase:           l.AdminPhase.String(),
		BaseAsset:            l.BaseAsset,
		ShareAsset:           l.ShareAsset,
		CooldownSeconds:      l.CooldownDuration,
		VestingSeconds:       view.VestingPeriod,
		TotalStaked:          amountDTO(l.TotalStakedSupply, base),
		TotalAssets:          amountDTO(view.TotalAssets, base),
		TotalShares:          amountDTO(view.TotalShares, shares),
		VestingAmount:        amountDTO(l.VestingAmount, base),
		UnvestedAmount:       amountDTO(view.UnvestedAmount, base),
		TotalCooldown:        amountDTO(l.TotalCooldownAmount, base),
		LastDistributionTime: l.LastDistributionTime,
		SharePrice:           sharePrice(view.TotalAssets, base, view.TotalShares, shares).String(),
		SubAccounts:          view.SubAccounts,
		AsOf:                 view.Now,
	}
}

// sharePrice is base asset per whole share. An empty vault prices at one.
func sharePrice(assets uint64, baseDecimals uint8, shares uint64, shareDecimals uint8) decimal.Decimal {
	if shares == 0 {
		return decimal.NewFromInt(1)
	}
	return calc.ToUIAmount(assets, baseDecimals).
		DivRound(calc.ToUIAmount(shares, shareDecimals), 12)
}

func (s *Service) Cooldown(ctx context.Context, ownerRaw, receiverRaw string) (CooldownDTO, error) {
	owner, err := parseAddress("owner", ownerRaw)
	if err != nil {
		return CooldownDTO{}, err
	}
	receiver, err := parseReceiver(owner, receiverRaw)
	if err != nil {
		return CooldownDTO{}, err
	}
	cd, err := s.vault.Cooldown(ctx, owner, receiver)
	if err != nil {
		return CooldownDTO{}, err
	}
	return s.cooldownDTO(ctx, cd), nil
}

func (s *Service) cooldownDTO(ctx context.Context, cd vault.Cooldown) CooldownDTO {
	return CooldownDTO{
		Address:     cd.Address,
		Owner:       cd.Owner,
		Receiver:    cd.Receiver,
		Amount:      amountDTO(cd.Amount, s.baseDecimals(ctx)),
		End:         cd.End,
		Active:      cd.Active(uint64(s.now().Unix())),
		Initialized: cd.Initialized,
	}
}

func (s *Service) PreviewDeposit(ctx context.Context, raw string) (PreviewDTO, error) {
	assets, err := parseAmount("assets", raw, s.baseDecimals(ctx))
	if err != nil {
		return PreviewDTO{}, err
	}
	var cached PreviewDTO
	if err := s.cache.GetPreview(ctx, "deposit", assets, &cached); err == nil {
		return cached, nil
	}
	shares, err := s.vault.PreviewDeposit(ctx, assets)
	if err != nil {
		return PreviewDTO{}, err
	}
	dto := PreviewDTO{In: amountDTO(assets, s.baseDecimals(ctx)), Out: amountDTO(shares, s.shareDecimals(ctx))}
	if err := s.cache.SetPreview(ctx, "deposit", assets, dto); err != nil {
		s.logger.Warnw("Failed to cache preview", "error", err)
	}
	return dto, nil
}

func (s *Service) PreviewRedeem(ctx context.Context, raw string) (PreviewDTO, error) {
	shares, err := parseAmount("shares", raw, s.shareDecimals(ctx))
	if err != nil {
		return PreviewDTO{}, err
	}
	var cached PreviewDTO
	if err := s.cache.GetPreview(ctx, "redeem", shares, &cached); err == nil {
		return cached, nil
	}
	assets, err := s.vault.PreviewRedeem(ctx, shares)
	if err != nil {
		return PreviewDTO{}, err
	}
	dto := PreviewDTO{In: amountDTO(shares, s.shareDecimals(ctx)), Out: amountDTO(assets, s.baseDecimals(ctx))}
	if err := s.cache.SetPreview(ctx, "redeem", shares, dto); err != nil {
		s.logger.Warnw("Failed to cache preview", "error", err)
	}
	return dto, nil
}

func (s *Service) Events(ctx context.Context, q repository.Query) (repository.Page, error) {
	if q.Type != "" && !knownEventType(q.Type) {
		return repository.Page{}, invalidParam("type", fmt.Errorf("unknown event type %q", q.Type))
	}
	return s.journal.List(ctx, q)
}

func knownEventType(t vault.EventType) bool {
	for _, known := range vault.EventTypes() {
		if known == t {
			return true
		}
	}
	return false
}

func (s *Service) Balances(ctx context.Context, raw string) (BalancesDTO, error) {
	holder, err := parseAddress("address", raw)
	if err != nil {
		return BalancesDTO{}, err
	}
	p := s.vault.Params()
	base, err := s.assets.BalanceOf(ctx, p.BaseAsset, holder)
	if err != nil {
		return BalancesDTO{}, err
	}
	shares, err := s.assets.BalanceOf(ctx, p.ShareAsset, holder)
	if err != nil {
		return BalancesDTO{}, err
	}
	denied, err := s.deny.IsDenied(ctx, holder)
	if err != nil {
		return BalancesDTO{}, err
	}
	dto := BalancesDTO{
		Holder: holder,
		Base:   amountDTO(base, s.baseDecimals(ctx)),
		Shares: amountDTO(shares, s.shareDecimals(ctx)),
		Denied: denied,
	}
	for _, asset := range p.Collateral {
		held, err := s.assets.BalanceOf(ctx, asset, holder)
		if errors.Is(err, token.ErrUnknownAsset) {
			continue
		}
		if err != nil {
			return BalancesDTO{}, err
		}
		if dto.Collateral == nil {
			dto.Collateral = make(map[string]AmountDTO, len(p.Collateral))
		}
		dto.Collateral[asset] = amountDTO(held, s.decimals(ctx, asset))
	}
	return dto, nil
}

// Approve lets spender move the caller's asset. The vault needs this before
// it can pull collateral or base for a collateral order.
func (s *Service) Approve(ctx context.Context, caller account.Address, req ApproveRequest) (AllowanceDTO, error) {
	asset := strings.TrimSpace(req.Asset)
	if asset == "" {
		return AllowanceDTO{}, missingParam("asset")
	}
	decimals, err := s.assets.Decimals(ctx, asset)
	if err != nil {
		return AllowanceDTO{}, invalidParam("asset", err)
	}
	spender := s.vault.Authority()
	if strings.TrimSpace(req.Spender) != "" {
		if spender, err = parseAddress("spender", req.Spender); err != nil {
			return AllowanceDTO{}, err
		}
	}
	amount, err := parseAmount("amount", req.Amount, decimals)
	if err != nil {
		return AllowanceDTO{}, err
	}
	if err := s.assets.Approve(ctx, asset, caller, spender, amount); err != nil {
		return AllowanceDTO{}, err
	}
	s.checkpoint(ctx)

	left, err := s.assets.Allowance(ctx, asset, caller, spender)
	if err != nil {
		return AllowanceDTO{}, err
	}
	return AllowanceDTO{Owner: caller, Spender: spender, Asset: asset, Allowance: amountDTO(left, decimals)}, nil
}

func (s *Service) parseRole(req RoleRequest) (account.Address, guardian.Role, error) {
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		return account.Zero, "", err
	}
	role, err := guardian.ParseRole(req.Role)
	if err != nil {
		return account.Zero, "", err
	}
	return owner, role, nil
}

func (s *Service) GrantRole(ctx context.Context, caller account.Address, req RoleRequest) error {
	owner, role, err := s.parseRole(req)
	if err != nil {
		return err
	}
	if err := s.roles.Grant(ctx, caller, owner, role); err != nil {
		return err
	}
	s.checkpoint(ctx)
	return nil
}

func (s *Service) RevokeRole(ctx context.Context, caller account.Address, req RoleRequest) error {
	owner, role, err := s.parseRole(req)
	if err != nil {
		return err
	}
	if err := s.roles.Revoke(ctx, caller, owner, role); err != nil {
		return err
	}
	s.checkpoint(ctx)
	return nil
}

func (s *Service) DenyAdd(ctx context.Context, caller account.Address, req DenyRequest) error {
	user, err := parseAddress("user", req.User)
	if err != nil {
		return err
	}
	if err := s.deny.Add(ctx, caller, user, req.FrozenBase, req.FrozenShare); err != nil {
		return err
	}
	s.checkpoint(ctx)
	return nil
}

func (s *Service) DenyRemove(ctx context.Context, caller account.Address, raw string) error {
	user, err := parseAddress("address", raw)
	if err != nil {
		return err
	}
	if err := s.deny.Remove(ctx, caller, user); err != nil {
		return err
	}
	s.checkpoint(ctx)
	return nil
}

// Mint credits base or collateral from the faucet. Dev networks only.
func (s *Service) Mint(ctx context.Context, req MintRequest) (BalancesDTO, error) {
	if s.faucet.IsZero() {
		return BalancesDTO{}, errFaucetDisabled
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		return BalancesDTO{}, err
	}
	asset := strings.TrimSpace(req.Asset)
	if asset == "" {
		asset = s.vault.Params().BaseAsset
	}
	if asset != s.vault.Params().BaseAsset && !s.isCollateral(asset) {
		return BalancesDTO{}, invalidParam("asset", fmt.Errorf("faucet does not issue %q", asset))
	}
	amount, err := parseAmount("amount", req.Amount, s.decimals(ctx, asset))
	if err != nil {
		return BalancesDTO{}, err
	}
	if err := s.assets.Mint(ctx, asset, s.faucet, to, amount); err != nil {
		return BalancesDTO{}, err
	}
	s.checkpoint(ctx)
	return s.Balances(ctx, to.String())
}

// Ping checks the collaborators a ready instance needs.
func (s *Service) Ping(ctx context.Context) error {
	var errs []error
	if err := s.cache.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}
	if err := s.journal.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("journal: %w", err))
	}
	return errors.Join(errs...)
}
