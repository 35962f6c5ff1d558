package application

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/walletledger/internal/wallet/domain"
)

func TestCreditIsIdempotent(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	cmd := CreditCommand{AccountID: "ACC-1", UserID: "U-1", Currency: "USD", Amount: decimalFromInt(100), Reference: "pay-1"}

	first, err := e.command.Credit(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, first.AlreadyProcessed)
	assert.True(t, first.NewBalance.Equal(decimalFromInt(100)))

	// 同一引用重试：余额只增加一次，返回首次结果
	second, err := e.command.Credit(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
	assert.True(t, second.NewBalance.Equal(decimalFromInt(100)))
	assert.Equal(t, first.EntryID, second.EntryID)

	assert.True(t, e.account("ACC-1").Available.Equal(decimalFromInt(100)))
}

func TestCreditCreatesAccountLazily(t *testing.T) {
	e := newTestEngine()

	_, err := e.command.Credit(context.Background(), CreditCommand{
		AccountID: "ACC-NEW", UserID: "U-9", Currency: "USD",
		Amount: decimalFromInt(10), Reference: "ref-new",
	})
	require.NoError(t, err)

	account := e.account("ACC-NEW")
	assert.Equal(t, "U-9", account.UserID)
	assert.True(t, account.Available.Equal(decimalFromInt(10)))
}

func TestCreditLockedAccount(t *testing.T) {
	e := newTestEngine()
	e.seed("ACC-1", "U-1", 100)
	require.NoError(t, e.command.LockAccount(context.Background(), LockAccountCommand{AccountID: "ACC-1", Reason: "fraud review"}))

	_, err := e.command.Credit(context.Background(), CreditCommand{
		AccountID: "ACC-1", Amount: decimalFromInt(10), Reference: "r1",
	})
	assert.ErrorIs(t, err, domain.ErrAccountLocked)

	require.NoError(t, e.command.UnlockAccount(context.Background(), "ACC-1"))
	_, err = e.command.Credit(context.Background(), CreditCommand{
		AccountID: "ACC-1", Amount: decimalFromInt(10), Reference: "r1",
	})
	assert.NoError(t, err)
}

// 规格场景：余额 1000，d1 扣 600 成功，重试 d1 幂等，d2 再扣 600 余额不足
func TestDebitScenario(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.seed("ACC-1", "U-1", 1000)

	first, err := e.command.Debit(ctx, DebitCommand{AccountID: "ACC-1", Amount: decimalFromInt(600), Reference: "d1"})
	require.NoError(t, err)
	assert.False(t, first.AlreadyProcessed)
	assert.True(t, first.NewBalance.Equal(decimalFromInt(400)))

	repeat, err := e.command.Debit(ctx, DebitCommand{AccountID: "ACC-1", Amount: decimalFromInt(600), Reference: "d1"})
	require.NoError(t, err)
	assert.True(t, repeat.AlreadyProcessed)
	assert.True(t, repeat.NewBalance.Equal(decimalFromInt(400)))
	assert.True(t, e.account("ACC-1").Available.Equal(decimalFromInt(400)))

	_, err = e.command.Debit(ctx, DebitCommand{AccountID: "ACC-1", Amount: decimalFromInt(600), Reference: "d2"})
	var insufficient *domain.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.Equal(decimalFromInt(400)))
	assert.True(t, e.account("ACC-1").Available.Equal(decimalFromInt(400)))
}

func TestDebitUnknownAccount(t *testing.T) {
	e := newTestEngine()

	_, err := e.command.Debit(context.Background(), DebitCommand{
		AccountID: "ACC-MISSING", Amount: decimalFromInt(10), Reference: "d1",
	})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

// 并发扣款：成功扣款之和绝不超过初始余额
func TestParallelDebitsNeverOversell(t *testing.T) {
	e := newTestEngine()
	e.seed("ACC-1", "U-1", 500)

	const workers = 10
	results := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := e.command.Debit(context.Background(), DebitCommand{
				AccountID: "ACC-1",
				Amount:    decimalFromInt(100),
				Reference: "bulk-" + string(rune('a'+n)),
			})
			results[n] = err
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, domain.IsInsufficientBalance(err), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 5, succeeded)
	assert.True(t, e.account("ACC-1").Available.IsZero())
}

func TestProcessOrderPayment(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.seed("buyer", "U-B", 1000)

	cmd := OrderPaymentCommand{
		OrderID: "o1", BuyerAccountID: "buyer", SellerAccountID: "seller",
		SellerUserID: "U-S", Currency: "USD",
		Total: decimalFromInt(1000), Commission: decimalFromInt(100),
	}

	first, err := e.command.ProcessOrderPayment(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, first.AlreadyProcessed)

	buyer := e.account("buyer")
	seller := e.account("seller")
	assert.True(t, buyer.Available.IsZero())
	assert.True(t, buyer.Pending.Equal(decimalFromInt(1000)))
	assert.True(t, seller.Pending.Equal(decimalFromInt(900)))
	assert.True(t, seller.Available.IsZero())

	// 网关回调重投：重复支付是无操作
	repeat, err := e.command.ProcessOrderPayment(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, repeat.AlreadyProcessed)
	assert.True(t, e.account("buyer").Pending.Equal(decimalFromInt(1000)))
	assert.True(t, e.account("seller").Pending.Equal(decimalFromInt(900)))
}

func TestProcessOrderPaymentInsufficientBuyer(t *testing.T) {
	e := newTestEngine()
	e.seed("buyer", "U-B", 500)

	_, err := e.command.ProcessOrderPayment(context.Background(), OrderPaymentCommand{
		OrderID: "o1", BuyerAccountID: "buyer", SellerAccountID: "seller",
		Total: decimalFromInt(1000), Commission: decimalFromInt(100),
	})
	assert.True(t, domain.IsInsufficientBalance(err))
	assert.True(t, e.account("buyer").Available.Equal(decimalFromInt(500)))
	assert.True(t, e.account("buyer").Pending.IsZero())
}

// 规格场景：支付 1000/佣金 100 → 放款 → 卖家可用 +900，重复放款幂等
func TestReleaseEscrowScenario(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.seed("buyer", "U-B", 1000)

	_, err := e.command.ProcessOrderPayment(ctx, OrderPaymentCommand{
		OrderID: "o1", BuyerAccountID: "buyer", SellerAccountID: "seller",
		Total: decimalFromInt(1000), Commission: decimalFromInt(100),
	})
	require.NoError(t, err)

	first, err := e.command.ReleaseEscrow(ctx, ReleaseEscrowCommand{OrderID: "o1"})
	require.NoError(t, err)
	assert.False(t, first.AlreadyProcessed)
	assert.True(t, first.AmountReleased.Equal(decimalFromInt(900)))

	buyer := e.account("buyer")
	seller := e.account("seller")
	assert.True(t, seller.Available.Equal(decimalFromInt(900)))
	assert.True(t, seller.Pending.IsZero())
	assert.True(t, buyer.Pending.IsZero())
	assert.True(t, buyer.Available.IsZero())

	repeat, err := e.command.ReleaseEscrow(ctx, ReleaseEscrowCommand{OrderID: "o1"})
	require.NoError(t, err)
	assert.True(t, repeat.AlreadyProcessed)
	assert.True(t, e.account("seller").Available.Equal(decimalFromInt(900)))
}

func TestRefundEscrow(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.seed("buyer", "U-B", 1000)

	_, err := e.command.ProcessOrderPayment(ctx, OrderPaymentCommand{
		OrderID: "o1", BuyerAccountID: "buyer", SellerAccountID: "seller",
		Total: decimalFromInt(1000), Commission: decimalFromInt(100),
	})
	require.NoError(t, err)

	result, err := e.command.RefundEscrow(ctx, RefundEscrowCommand{OrderID: "o1", Reason: "not delivered"})
	require.NoError(t, err)
	assert.False(t, result.AlreadyProcessed)
	assert.True(t, result.AmountRefunded.Equal(decimalFromInt(1000)))

	buyer := e.account("buyer")
	seller := e.account("seller")
	assert.True(t, buyer.Available.Equal(decimalFromInt(1000)))
	assert.True(t, buyer.Pending.IsZero())
	assert.True(t, seller.Pending.IsZero())
	assert.True(t, seller.Available.IsZero())

	// 重复退款幂等
	repeat, err := e.command.RefundEscrow(ctx, RefundEscrowCommand{OrderID: "o1", Reason: "not delivered"})
	require.NoError(t, err)
	assert.True(t, repeat.AlreadyProcessed)
}

func TestRefundAfterReleaseFails(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.seed("buyer", "U-B", 1000)

	_, err := e.command.ProcessOrderPayment(ctx, OrderPaymentCommand{
		OrderID: "o1", BuyerAccountID: "buyer", SellerAccountID: "seller",
		Total: decimalFromInt(1000), Commission: decimalFromInt(100),
	})
	require.NoError(t, err)

	_, err = e.command.ReleaseEscrow(ctx, ReleaseEscrowCommand{OrderID: "o1"})
	require.NoError(t, err)

	_, err = e.command.RefundEscrow(ctx, RefundEscrowCommand{OrderID: "o1", Reason: "too late"})
	assert.ErrorIs(t, err, domain.ErrEscrowResolved)
	// 资金保持放款后的状态
	assert.True(t, e.account("seller").Available.Equal(decimalFromInt(900)))
	assert.True(t, e.account("buyer").Available.IsZero())
}

func TestReleaseAfterRefundIsIdempotent(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.seed("buyer", "U-B", 1000)

	_, err := e.command.ProcessOrderPayment(ctx, OrderPaymentCommand{
		OrderID: "o1", BuyerAccountID: "buyer", SellerAccountID: "seller",
		Total: decimalFromInt(1000), Commission: decimalFromInt(100),
	})
	require.NoError(t, err)

	_, err = e.command.RefundEscrow(ctx, RefundEscrowCommand{OrderID: "o1", Reason: "dispute"})
	require.NoError(t, err)

	result, err := e.command.ReleaseEscrow(ctx, ReleaseEscrowCommand{OrderID: "o1"})
	require.NoError(t, err)
	assert.True(t, result.AlreadyProcessed)
	assert.True(t, e.account("buyer").Available.Equal(decimalFromInt(1000)))
	assert.True(t, e.account("seller").Available.IsZero())
}

// 放款与退款竞争：只有一方真正移动资金
func TestReleaseRefundRace(t *testing.T) {
	e := newTestEngine()
	// 放开操作锁互斥，让双方进入各自事务竞争状态翻转
	e.locks.alwaysAcquire = true
	ctx := context.Background()
	e.seed("buyer", "U-B", 1000)

	_, err := e.command.ProcessOrderPayment(ctx, OrderPaymentCommand{
		OrderID: "o1", BuyerAccountID: "buyer", SellerAccountID: "seller",
		Total: decimalFromInt(1000), Commission: decimalFromInt(100),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var releaseResult *ReleaseResult
	var refundResult *RefundResult
	var releaseErr, refundErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		releaseResult, releaseErr = e.command.ReleaseEscrow(ctx, ReleaseEscrowCommand{OrderID: "o1"})
	}()
	go func() {
		defer wg.Done()
		refundResult, refundErr = e.command.RefundEscrow(ctx, RefundEscrowCommand{OrderID: "o1", Reason: "dispute"})
	}()
	wg.Wait()

	buyer := e.account("buyer")
	seller := e.account("seller")

	switch {
	case releaseErr == nil && !releaseResult.AlreadyProcessed:
		// 放款赢得翻转：退款必须失败或报幂等，资金只动一次
		assert.True(t, seller.Available.Equal(decimalFromInt(900)))
		assert.True(t, buyer.Available.IsZero())
		if refundErr != nil {
			assert.ErrorIs(t, refundErr, domain.ErrEscrowResolved)
		} else {
			assert.True(t, refundResult.AlreadyProcessed)
		}
	case refundErr == nil && !refundResult.AlreadyProcessed:
		// 退款赢得翻转
		assert.True(t, buyer.Available.Equal(decimalFromInt(1000)))
		assert.True(t, seller.Available.IsZero())
		require.NoError(t, releaseErr)
		assert.True(t, releaseResult.AlreadyProcessed)
	default:
		t.Fatalf("neither release nor refund performed the transition: release=%v refund=%v", releaseErr, refundErr)
	}

	// 双方托管余额均已清零
	assert.True(t, buyer.Pending.IsZero())
	assert.True(t, seller.Pending.IsZero())
}

func TestReleaseUnknownOrder(t *testing.T) {
	e := newTestEngine()

	_, err := e.command.ReleaseEscrow(context.Background(), ReleaseEscrowCommand{OrderID: "missing"})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestLockHeldSurfacesToCaller(t *testing.T) {
	e := newTestEngine()
	e.seed("ACC-1", "U-1", 100)

	_, err := e.locks.Acquire(context.Background(), "debit:d1", lockTTL)
	require.NoError(t, err)

	_, err = e.command.Debit(context.Background(), DebitCommand{
		AccountID: "ACC-1", Amount: decimalFromInt(10), Reference: "d1",
	})
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

// 每笔已完成操作恰有一条流水，余额变更与流水同事务落盘
func TestJournalEntriesWritten(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.seed("buyer", "U-B", 1000)

	_, err := e.command.Credit(ctx, CreditCommand{AccountID: "buyer", Amount: decimalFromInt(500), Reference: "topup-1"})
	require.NoError(t, err)

	entry := e.store.entries["topup-1"]
	assert.Equal(t, domain.DirectionCredit, entry.Direction)
	assert.Equal(t, domain.EntryStatusCompleted, entry.Status)
	assert.True(t, entry.BalanceBefore.Equal(decimalFromInt(1000)))
	assert.True(t, entry.BalanceAfter.Equal(decimalFromInt(1500)))

	_, err = e.command.ProcessOrderPayment(ctx, OrderPaymentCommand{
		OrderID: "o1", BuyerAccountID: "buyer", SellerAccountID: "seller",
		Total: decimalFromInt(1000), Commission: decimalFromInt(100),
	})
	require.NoError(t, err)

	buyerEntry := e.store.entries["order:o1:buyer"]
	sellerEntry := e.store.entries["order:o1:seller"]
	assert.Equal(t, domain.DirectionDebit, buyerEntry.Direction)
	assert.Equal(t, "seller", buyerEntry.CounterpartyID)
	assert.Equal(t, "o1", buyerEntry.OrderID)
	assert.True(t, buyerEntry.Amount.Equal(decimalFromInt(1000)))
	assert.True(t, sellerEntry.Amount.Equal(decimalFromInt(900)))

	// 买家扣款 == 卖家在途入账 + 佣金
	commission := buyerEntry.Amount.Sub(sellerEntry.Amount)
	assert.True(t, commission.Equal(decimalFromInt(100)))
}

func TestCacheInvalidatedAfterMutation(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.seed("ACC-1", "U-1", 100)

	// 预热缓存
	_, err := e.query.GetBalance(ctx, "ACC-1")
	require.NoError(t, err)
	assert.Contains(t, e.cache.data, "ACC-1")

	_, err = e.command.Credit(ctx, CreditCommand{AccountID: "ACC-1", Amount: decimalFromInt(50), Reference: "r1"})
	require.NoError(t, err)
	assert.NotContains(t, e.cache.data, "ACC-1")
	assert.Contains(t, e.cache.invalidated, "ACC-1")
}

func TestCacheInvalidationFailureDoesNotFailMutation(t *testing.T) {
	e := newTestEngine()
	e.seed("ACC-1", "U-1", 100)
	e.cache.failOnInvali = true

	result, err := e.command.Credit(context.Background(), CreditCommand{
		AccountID: "ACC-1", Amount: decimalFromInt(50), Reference: "r1",
	})
	require.NoError(t, err)
	assert.True(t, result.NewBalance.Equal(decimalFromInt(150)))
}

func TestEventsPublishedWithMutation(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.seed("buyer", "U-B", 1000)

	_, err := e.command.ProcessOrderPayment(ctx, OrderPaymentCommand{
		OrderID: "o1", BuyerAccountID: "buyer", SellerAccountID: "seller",
		Total: decimalFromInt(1000), Commission: decimalFromInt(100),
	})
	require.NoError(t, err)
	_, err = e.command.ReleaseEscrow(ctx, ReleaseEscrowCommand{OrderID: "o1"})
	require.NoError(t, err)

	topics := make([]string, len(e.publisher.events))
	for i, ev := range e.publisher.events {
		topics[i] = ev.topic
	}
	assert.Equal(t, []string{"wallet.escrow.held", "wallet.escrow.released"}, topics)

	// 幂等重试不再发布事件
	_, err = e.command.ReleaseEscrow(ctx, ReleaseEscrowCommand{OrderID: "o1"})
	require.NoError(t, err)
	assert.Len(t, e.publisher.events, 2)
}

func TestInvalidAmounts(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	_, err := e.command.Credit(ctx, CreditCommand{AccountID: "a", Amount: decimal.Zero, Reference: "r"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = e.command.Debit(ctx, DebitCommand{AccountID: "a", Amount: decimalFromInt(-1), Reference: "r"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = e.command.ProcessOrderPayment(ctx, OrderPaymentCommand{
		OrderID: "o1", BuyerAccountID: "b", SellerAccountID: "s",
		Total: decimalFromInt(100), Commission: decimalFromInt(100),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCommission)
}
