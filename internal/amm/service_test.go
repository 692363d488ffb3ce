package amm

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finbase/exchange-core/internal/ledger"
	"github.com/finbase/exchange-core/internal/storage/memory"
)

type denyAll struct{}

func (denyAll) Approved(ctx context.Context, accountID uuid.UUID) (bool, error) {
	return false, nil
}

type serviceHarness struct {
	svc    *Service
	pools  *memory.PoolStore
	ledger *ledger.MemoryLedger
}

func newServiceHarness(t *testing.T, kyc KYCGate) *serviceHarness {
	t.Helper()
	pools := memory.NewPoolStore()
	ldg := ledger.NewMemoryLedger()
	svc := NewService(pools, ldg, kyc, dec("0.01"), zap.NewNop())
	return &serviceHarness{svc: svc, pools: pools, ledger: ldg}
}

// TestDepositWithdrawFlow runs a full provider round trip: seed a pool,
// deposit, then withdraw everything and check the empty-pool invariant.
func TestDepositWithdrawFlow(t *testing.T) {
	h := newServiceHarness(t, AllowAll{})
	ctx := context.Background()

	provider := uuid.New()
	settlement := uuid.New()
	h.ledger.Credit(provider, "BTC", dec("100"))
	h.ledger.Credit(provider, "USD", dec("400"))

	pool, err := h.svc.CreatePool(ctx, "BTC", "USD", dec("0.003"), settlement)
	require.NoError(t, err)

	depRes, err := h.svc.Deposit(ctx, pool.ID, provider, "BTC", "USD", dec("100"), dec("400"))
	require.NoError(t, err)
	assert.True(t, depRes.Shares.Equal(dec("200")))
	assert.True(t, depRes.Pool.BaseReserve.Equal(dec("100")))
	assert.True(t, depRes.Pool.QuoteReserve.Equal(dec("400")))

	// Assets now sit on the settlement account
	assert.True(t, h.ledger.Balance(settlement, "BTC").Equal(dec("100")))
	assert.True(t, h.ledger.Balance(settlement, "USD").Equal(dec("400")))
	assert.True(t, h.ledger.Balance(provider, "BTC").IsZero())

	state, err := h.svc.State(ctx, pool.ID)
	require.NoError(t, err)
	assert.True(t, state.ImpliedPrice.Equal(dec("4")), "400/100 quote per base")

	wdRes, err := h.svc.Withdraw(ctx, pool.ID, provider, dec("200"))
	require.NoError(t, err)
	assert.True(t, wdRes.BaseAmount.Equal(dec("100")))
	assert.True(t, wdRes.QuoteAmount.Equal(dec("400")))

	// Full redemption leaves no shares and no reserves
	assert.True(t, wdRes.Pool.TotalShares.IsZero())
	assert.True(t, wdRes.Pool.BaseReserve.IsZero())
	assert.True(t, wdRes.Pool.QuoteReserve.IsZero())
	assert.True(t, h.ledger.Balance(provider, "BTC").Equal(dec("100")))
	assert.True(t, h.ledger.Balance(provider, "USD").Equal(dec("400")))
}

// TestSecondProviderProportionalShares checks pro rata minting and partial
// withdrawal for a later provider.
func TestSecondProviderProportionalShares(t *testing.T) {
	h := newServiceHarness(t, AllowAll{})
	ctx := context.Background()

	first, second := uuid.New(), uuid.New()
	settlement := uuid.New()
	for _, acct := range []uuid.UUID{first, second} {
		h.ledger.Credit(acct, "BTC", dec("100"))
		h.ledger.Credit(acct, "USD", dec("400"))
	}

	pool, err := h.svc.CreatePool(ctx, "BTC", "USD", dec("0.003"), settlement)
	require.NoError(t, err)

	_, err = h.svc.Deposit(ctx, pool.ID, first, "BTC", "USD", dec("100"), dec("400"))
	require.NoError(t, err)

	depRes, err := h.svc.Deposit(ctx, pool.ID, second, "BTC", "USD", dec("50"), dec("200"))
	require.NoError(t, err)
	assert.True(t, depRes.Shares.Equal(dec("100")), "half the reserves mints half the shares")
	assert.True(t, depRes.Pool.TotalShares.Equal(dec("300")))

	wdRes, err := h.svc.Withdraw(ctx, pool.ID, second, dec("50"))
	require.NoError(t, err)
	assert.True(t, wdRes.BaseAmount.Equal(dec("25")))
	assert.True(t, wdRes.QuoteAmount.Equal(dec("100")))
}

// TestDepositValidation covers the rejection gates in order
func TestDepositValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("kyc denied", func(t *testing.T) {
		h := newServiceHarness(t, denyAll{})
		pool, err := h.svc.CreatePool(ctx, "BTC", "USD", dec("0.003"), uuid.New())
		require.NoError(t, err)

		_, err = h.svc.Deposit(ctx, pool.ID, uuid.New(), "BTC", "USD", dec("1"), dec("4"))
		assert.ErrorIs(t, err, ErrKYCRequired)
	})

	t.Run("inactive pool", func(t *testing.T) {
		h := newServiceHarness(t, AllowAll{})
		pool, err := h.svc.CreatePool(ctx, "BTC", "USD", dec("0.003"), uuid.New())
		require.NoError(t, err)
		pool.Active = false
		require.NoError(t, h.pools.Update(pool))

		_, err = h.svc.Deposit(ctx, pool.ID, uuid.New(), "BTC", "USD", dec("1"), dec("4"))
		assert.ErrorIs(t, err, ErrPoolInactive)
	})

	t.Run("currency mismatch", func(t *testing.T) {
		h := newServiceHarness(t, AllowAll{})
		pool, err := h.svc.CreatePool(ctx, "BTC", "USD", dec("0.003"), uuid.New())
		require.NoError(t, err)

		_, err = h.svc.Deposit(ctx, pool.ID, uuid.New(), "ETH", "USD", dec("1"), dec("4"))
		assert.ErrorIs(t, err, ErrCurrencyMismatch)
	})

	t.Run("ratio deviation", func(t *testing.T) {
		h := newServiceHarness(t, AllowAll{})
		provider := uuid.New()
		h.ledger.Credit(provider, "BTC", dec("1000"))
		h.ledger.Credit(provider, "USD", dec("4000"))
		pool, err := h.svc.CreatePool(ctx, "BTC", "USD", dec("0.003"), uuid.New())
		require.NoError(t, err)
		_, err = h.svc.Deposit(ctx, pool.ID, provider, "BTC", "USD", dec("100"), dec("400"))
		require.NoError(t, err)

		_, err = h.svc.Deposit(ctx, pool.ID, provider, "BTC", "USD", dec("100"), dec("500"))
		assert.ErrorIs(t, err, ErrRatioDeviation)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		h := newServiceHarness(t, AllowAll{})
		provider := uuid.New()
		h.ledger.Credit(provider, "BTC", dec("1"))
		// No USD at all
		pool, err := h.svc.CreatePool(ctx, "BTC", "USD", dec("0.003"), uuid.New())
		require.NoError(t, err)

		_, err = h.svc.Deposit(ctx, pool.ID, provider, "BTC", "USD", dec("1"), dec("4"))
		assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

		var shortfall *ledger.InsufficientBalanceError
		require.True(t, errors.As(err, &shortfall))
		assert.Equal(t, "USD", shortfall.Asset)
	})
}

// TestWithdrawRejectsExcessShares rejects burning beyond the provider's
// position even when the pool has issued more in total.
func TestWithdrawRejectsExcessShares(t *testing.T) {
	h := newServiceHarness(t, AllowAll{})
	ctx := context.Background()

	provider := uuid.New()
	h.ledger.Credit(provider, "BTC", dec("100"))
	h.ledger.Credit(provider, "USD", dec("400"))

	pool, err := h.svc.CreatePool(ctx, "BTC", "USD", dec("0.003"), uuid.New())
	require.NoError(t, err)
	_, err = h.svc.Deposit(ctx, pool.ID, provider, "BTC", "USD", dec("100"), dec("400"))
	require.NoError(t, err)

	_, err = h.svc.Withdraw(ctx, pool.ID, provider, dec("201"))
	assert.ErrorIs(t, err, ErrInsufficientShares)

	// A stranger with no position cannot withdraw at all
	_, err = h.svc.Withdraw(ctx, pool.ID, uuid.New(), dec("1"))
	assert.ErrorIs(t, err, ErrInsufficientShares)
}

// TestCreatePoolRejectsBadPair rejects same-asset and empty pairs
func TestCreatePoolRejectsBadPair(t *testing.T) {
	h := newServiceHarness(t, AllowAll{})
	ctx := context.Background()

	_, err := h.svc.CreatePool(ctx, "BTC", "BTC", dec("0.003"), uuid.New())
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = h.svc.CreatePool(ctx, "", "USD", dec("0.003"), uuid.New())
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}
