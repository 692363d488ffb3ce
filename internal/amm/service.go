package amm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbase/exchange-core/internal/ledger"
	"github.com/finbase/exchange-core/internal/metrics"
	"github.com/finbase/exchange-core/internal/storage"
	"github.com/finbase/exchange-core/internal/types"
)

var (
	// ErrPoolInactive rejects operations on a deactivated pool
	ErrPoolInactive = errors.New("pool is not active")

	// ErrKYCRequired rejects deposits from accounts without KYC approval
	ErrKYCRequired = errors.New("account is not KYC approved")

	// ErrCurrencyMismatch rejects deposits in assets the pool does not hold
	ErrCurrencyMismatch = errors.New("currency does not match pool pair")

	// ErrInsufficientShares rejects withdrawals beyond the provider's position
	ErrInsufficientShares = errors.New("provider holds fewer shares than requested")
)

// DefaultRatioTolerance is the maximum deviation of a deposit's ratio from
// the pool's reserve ratio, as a fraction.
var DefaultRatioTolerance = decimal.NewFromFloat(0.01)

// poolTxNamespace seeds deterministic transfer ids for pool operations
var poolTxNamespace = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")

// KYCGate answers whether an account may provide liquidity. The screening
// service itself lives outside this core.
type KYCGate interface {
	Approved(ctx context.Context, accountID uuid.UUID) (bool, error)
}

// AllowAll approves every account. Used when no screening collaborator is
// wired, and in tests.
type AllowAll struct{}

func (AllowAll) Approved(ctx context.Context, accountID uuid.UUID) (bool, error) {
	return true, nil
}

// DepositResult reports a completed liquidity addition
type DepositResult struct {
	Pool        *types.LiquidityPool `json:"pool"`
	Shares      decimal.Decimal      `json:"shares_minted"`
	TotalShares decimal.Decimal      `json:"provider_shares"`
}

// WithdrawResult reports a completed liquidity removal
type WithdrawResult struct {
	Pool        *types.LiquidityPool `json:"pool"`
	BaseAmount  decimal.Decimal      `json:"base_amount"`
	QuoteAmount decimal.Decimal      `json:"quote_amount"`
	Shares      decimal.Decimal      `json:"shares_burned"`
}

// PoolState is the read-model snapshot of one pool
type PoolState struct {
	Pool         *types.LiquidityPool `json:"pool"`
	ImpliedPrice decimal.Decimal      `json:"implied_price"`
}

// Service runs pool deposits and withdrawals. Asset movements go through
// the ledger against the pool's settlement account; share accounting lives
// in the pool store.
type Service struct {
	pools          storage.PoolStore
	ledger         ledger.Ledger
	kyc            KYCGate
	ratioTolerance decimal.Decimal
	logger         *zap.Logger
}

// NewService creates a pool service. A non-positive ratioTolerance falls
// back to DefaultRatioTolerance.
func NewService(pools storage.PoolStore, ldg ledger.Ledger, kyc KYCGate, ratioTolerance decimal.Decimal, logger *zap.Logger) *Service {
	if !ratioTolerance.IsPositive() {
		ratioTolerance = DefaultRatioTolerance
	}
	if kyc == nil {
		kyc = AllowAll{}
	}
	return &Service{
		pools:          pools,
		ledger:         ldg,
		kyc:            kyc,
		ratioTolerance: ratioTolerance,
		logger:         logger,
	}
}

// CreatePool registers a new, empty, active pool
func (s *Service) CreatePool(ctx context.Context, base, quote string, feeRate decimal.Decimal, settlementAccountID uuid.UUID) (*types.LiquidityPool, error) {
	pair := types.Pair{Base: base, Quote: quote}
	if !pair.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrCurrencyMismatch, pair)
	}

	pool := &types.LiquidityPool{
		ID:                  uuid.New(),
		Base:                base,
		Quote:               quote,
		BaseReserve:         decimal.Zero,
		QuoteReserve:        decimal.Zero,
		TotalShares:         decimal.Zero,
		FeeRate:             feeRate,
		Active:              true,
		SettlementAccountID: settlementAccountID,
		CreatedAt:           time.Now().UTC(),
	}
	if err := s.pools.Save(pool); err != nil {
		return nil, fmt.Errorf("persist pool: %w", err)
	}
	return pool, nil
}

// Deposit adds liquidity: both assets move from the provider to the pool's
// settlement account and shares are minted against the pool. A failed
// second transfer reverses the first.
func (s *Service) Deposit(ctx context.Context, poolID, accountID uuid.UUID, baseAsset, quoteAsset string, baseAmount, quoteAmount decimal.Decimal) (*DepositResult, error) {
	pool, err := s.pools.Get(poolID)
	if err != nil {
		s.countOp("deposit", "rejected")
		return nil, err
	}

	if err := s.validateDeposit(ctx, pool, accountID, baseAsset, quoteAsset, baseAmount, quoteAmount); err != nil {
		s.countOp("deposit", "rejected")
		return nil, err
	}

	shares, err := SharesForAddition(pool, baseAmount, quoteAmount)
	if err != nil {
		s.countOp("deposit", "rejected")
		return nil, err
	}

	opID := uuid.New()
	meta := map[string]string{"pool_id": pool.ID.String(), "operation_id": opID.String()}

	baseTx := poolTxID("deposit", "base", opID)
	if err := s.ledger.Transfer(ctx, accountID, pool.SettlementAccountID, pool.Base, baseAmount, baseTx, meta); err != nil {
		s.countOp("deposit", "failed")
		return nil, fmt.Errorf("deposit base leg: %w", err)
	}
	quoteTx := poolTxID("deposit", "quote", opID)
	if err := s.ledger.Transfer(ctx, accountID, pool.SettlementAccountID, pool.Quote, quoteAmount, quoteTx, meta); err != nil {
		s.reverse(ctx, pool.SettlementAccountID, accountID, pool.Base, baseAmount, baseTx, meta)
		s.countOp("deposit", "failed")
		return nil, fmt.Errorf("deposit quote leg: %w", err)
	}

	pool.BaseReserve = pool.BaseReserve.Add(baseAmount)
	pool.QuoteReserve = pool.QuoteReserve.Add(quoteAmount)
	pool.TotalShares = pool.TotalShares.Add(shares)
	if err := s.pools.Update(pool); err != nil {
		return nil, fmt.Errorf("persist pool reserves: %w", err)
	}

	provider, err := s.pools.Provider(pool.ID, accountID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	provider.Shares = provider.Shares.Add(shares)
	if err := s.pools.UpdateProvider(provider); err != nil {
		return nil, fmt.Errorf("persist provider shares: %w", err)
	}

	s.observeReserves(pool)
	s.countOp("deposit", "completed")
	s.logger.Info("liquidity deposited",
		zap.String("pool_id", pool.ID.String()),
		zap.String("account_id", accountID.String()),
		zap.String("shares", shares.String()))

	return &DepositResult{Pool: pool, Shares: shares, TotalShares: provider.Shares}, nil
}

// Withdraw redeems shares for a proportional cut of both reserves, moved
// from the settlement account back to the provider.
func (s *Service) Withdraw(ctx context.Context, poolID, accountID uuid.UUID, shares decimal.Decimal) (*WithdrawResult, error) {
	pool, err := s.pools.Get(poolID)
	if err != nil {
		s.countOp("withdraw", "rejected")
		return nil, err
	}
	if !pool.Active {
		s.countOp("withdraw", "rejected")
		return nil, fmt.Errorf("%w: %s", ErrPoolInactive, pool.ID)
	}

	provider, err := s.pools.Provider(pool.ID, accountID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if shares.GreaterThan(provider.Shares) {
		s.countOp("withdraw", "rejected")
		return nil, fmt.Errorf("%w: %s > %s", ErrInsufficientShares, shares, provider.Shares)
	}

	baseAmount, quoteAmount, err := AmountsForRemoval(pool, shares)
	if err != nil {
		s.countOp("withdraw", "rejected")
		return nil, err
	}

	opID := uuid.New()
	meta := map[string]string{"pool_id": pool.ID.String(), "operation_id": opID.String()}

	baseTx := poolTxID("withdraw", "base", opID)
	if err := s.ledger.Transfer(ctx, pool.SettlementAccountID, accountID, pool.Base, baseAmount, baseTx, meta); err != nil {
		s.countOp("withdraw", "failed")
		return nil, fmt.Errorf("withdraw base leg: %w", err)
	}
	quoteTx := poolTxID("withdraw", "quote", opID)
	if err := s.ledger.Transfer(ctx, pool.SettlementAccountID, accountID, pool.Quote, quoteAmount, quoteTx, meta); err != nil {
		s.reverse(ctx, accountID, pool.SettlementAccountID, pool.Base, baseAmount, baseTx, meta)
		s.countOp("withdraw", "failed")
		return nil, fmt.Errorf("withdraw quote leg: %w", err)
	}

	pool.BaseReserve = pool.BaseReserve.Sub(baseAmount)
	pool.QuoteReserve = pool.QuoteReserve.Sub(quoteAmount)
	pool.TotalShares = pool.TotalShares.Sub(shares)
	if pool.TotalShares.IsZero() {
		// An empty pool holds no shares and no reserves
		pool.BaseReserve = decimal.Zero
		pool.QuoteReserve = decimal.Zero
	}
	if err := s.pools.Update(pool); err != nil {
		return nil, fmt.Errorf("persist pool reserves: %w", err)
	}

	provider.Shares = provider.Shares.Sub(shares)
	if err := s.pools.UpdateProvider(provider); err != nil {
		return nil, fmt.Errorf("persist provider shares: %w", err)
	}

	s.observeReserves(pool)
	s.countOp("withdraw", "completed")
	s.logger.Info("liquidity withdrawn",
		zap.String("pool_id", pool.ID.String()),
		zap.String("account_id", accountID.String()),
		zap.String("shares", shares.String()))

	return &WithdrawResult{Pool: pool, BaseAmount: baseAmount, QuoteAmount: quoteAmount, Shares: shares}, nil
}

// State returns the pool snapshot with its reserve-implied price
func (s *Service) State(ctx context.Context, poolID uuid.UUID) (*PoolState, error) {
	pool, err := s.pools.Get(poolID)
	if err != nil {
		return nil, err
	}
	return &PoolState{Pool: pool, ImpliedPrice: pool.ImpliedPrice()}, nil
}

func (s *Service) validateDeposit(ctx context.Context, pool *types.LiquidityPool, accountID uuid.UUID, baseAsset, quoteAsset string, baseAmount, quoteAmount decimal.Decimal) error {
	approved, err := s.kyc.Approved(ctx, accountID)
	if err != nil {
		return fmt.Errorf("kyc check: %w", err)
	}
	if !approved {
		return fmt.Errorf("%w: account %s", ErrKYCRequired, accountID)
	}
	if !pool.Active {
		return fmt.Errorf("%w: %s", ErrPoolInactive, pool.ID)
	}
	if baseAsset != pool.Base || quoteAsset != pool.Quote {
		return fmt.Errorf("%w: got %s/%s, pool holds %s/%s",
			ErrCurrencyMismatch, baseAsset, quoteAsset, pool.Base, pool.Quote)
	}
	if !baseAmount.IsPositive() || !quoteAmount.IsPositive() {
		return fmt.Errorf("%w: base=%s quote=%s", ErrNonPositiveAmount, baseAmount, quoteAmount)
	}

	if err := ValidateRatio(pool, baseAmount, quoteAmount, s.ratioTolerance); err != nil {
		return err
	}

	for _, leg := range []struct {
		asset  string
		amount decimal.Decimal
	}{{pool.Base, baseAmount}, {pool.Quote, quoteAmount}} {
		available, err := s.ledger.Available(ctx, accountID, leg.asset)
		if err != nil {
			return fmt.Errorf("read available balance: %w", err)
		}
		if available.LessThan(leg.amount) {
			return &ledger.InsufficientBalanceError{
				AccountID: accountID,
				Asset:     leg.asset,
				Required:  leg.amount,
				Available: available,
			}
		}
	}
	return nil
}

// reverse undoes one completed transfer leg with a tx id derived from the
// original, so retries stay idempotent.
func (s *Service) reverse(ctx context.Context, from, to uuid.UUID, asset string, amount decimal.Decimal, origTx uuid.UUID, meta map[string]string) {
	reversalMeta := map[string]string{"reverses": origTx.String()}
	for k, v := range meta {
		reversalMeta[k] = v
	}
	reversalTx := uuid.NewSHA1(poolTxNamespace, []byte("reversal:"+origTx.String()))
	if err := s.ledger.Transfer(ctx, from, to, asset, amount, reversalTx, reversalMeta); err != nil {
		s.logger.Error("pool transfer reversal failed, manual reconciliation required",
			zap.String("asset", asset),
			zap.String("amount", amount.String()),
			zap.String("original_tx", origTx.String()),
			zap.Error(err))
	}
}

func (s *Service) observeReserves(pool *types.LiquidityPool) {
	id := pool.ID.String()
	base, _ := pool.BaseReserve.Float64()
	quote, _ := pool.QuoteReserve.Float64()
	metrics.PoolReserve.WithLabelValues(id, pool.Base).Set(base)
	metrics.PoolReserve.WithLabelValues(id, pool.Quote).Set(quote)
}

func (s *Service) countOp(operation, outcome string) {
	metrics.PoolOperations.WithLabelValues(operation, outcome).Inc()
}

func poolTxID(operation, leg string, opID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(poolTxNamespace, []byte(operation+":"+leg+":"+opID.String()))
}
