package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"
	"github.com/wyfcoding/walletledger/internal/wallet/domain"
)

const (
	// 操作锁租约时长：覆盖一次事务往返，崩溃后自动过期
	lockTTL = 10 * time.Second
	// 乐观锁冲突的事务级有限重试次数
	maxTxRetries = 3
)

// WalletCommandService 处理钱包相关的写操作。
// 统一的操作形状：获取操作锁 → 事务内检查流水幂等 → 重读权威
// 余额 → 变更 + 写流水（同一事务）→ 提交后同步失效缓存。
// 锁只是减少竞争的租约，幂等的权威证明是事务内的已完成流水。
type WalletCommandService struct {
	accounts  domain.AccountRepository
	journal   domain.JournalRepository
	orders    domain.EscrowOrderRepository
	tx        domain.TxManager
	locks     domain.LockManager
	cache     domain.BalanceCache
	publisher domain.EventPublisher
}

func NewWalletCommandService(
	accounts domain.AccountRepository,
	journal domain.JournalRepository,
	orders domain.EscrowOrderRepository,
	tx domain.TxManager,
	locks domain.LockManager,
	cache domain.BalanceCache,
	publisher domain.EventPublisher,
) *WalletCommandService {
	return &WalletCommandService{
		accounts:  accounts,
		journal:   journal,
		orders:    orders,
		tx:        tx,
		locks:     locks,
		cache:     cache,
		publisher: publisher,
	}
}

// Credit 处理入账
func (s *WalletCommandService) Credit(ctx context.Context, cmd CreditCommand) (*MutationResult, error) {
	if !cmd.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if cmd.Category == "" {
		cmd.Category = domain.CategoryPayment
	}

	release, err := s.acquire(ctx, "credit:"+cmd.Reference)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *MutationResult
	err = s.withRetry(ctx, func(txCtx context.Context) error {
		// 幂等检查：已完成流水即权威证明
		prior, err := s.journal.GetByReference(txCtx, cmd.Reference)
		if err != nil {
			return err
		}
		if prior != nil && prior.Status == domain.EntryStatusCompleted {
			result = &MutationResult{AlreadyProcessed: true, EntryID: prior.EntryID, NewBalance: prior.BalanceAfter}
			return nil
		}

		account, err := s.accounts.GetOrCreate(txCtx, cmd.AccountID, cmd.UserID, cmd.Currency)
		if err != nil {
			return err
		}

		before := account.Available
		if err := account.Credit(cmd.Amount); err != nil {
			return err
		}
		if err := s.accounts.Save(txCtx, account); err != nil {
			return err
		}

		entry := s.newEntry(cmd.Reference, account.AccountID, domain.DirectionCredit, cmd.Category, cmd.Amount, before, account.Available, cmd.Metadata)
		if err := s.journal.Create(txCtx, entry); err != nil {
			return err
		}

		if err := s.publisher.PublishInTx(txCtx, "wallet.credited", account.AccountID, map[string]any{
			"account_id": account.AccountID, "amount": cmd.Amount.String(),
			"available": account.Available.String(), "reference": cmd.Reference,
		}); err != nil {
			return err
		}

		result = &MutationResult{EntryID: entry.EntryID, NewBalance: account.Available}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, cmd.AccountID)
	return result, nil
}

// Debit 处理扣款
// 余额充足性在事务内重读后校验，绝不依赖事务外的读取。
func (s *WalletCommandService) Debit(ctx context.Context, cmd DebitCommand) (*MutationResult, error) {
	if !cmd.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if cmd.Category == "" {
		cmd.Category = domain.CategoryPayment
	}

	release, err := s.acquire(ctx, "debit:"+cmd.Reference)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *MutationResult
	err = s.withRetry(ctx, func(txCtx context.Context) error {
		prior, err := s.journal.GetByReference(txCtx, cmd.Reference)
		if err != nil {
			return err
		}
		if prior != nil && prior.Status == domain.EntryStatusCompleted {
			result = &MutationResult{AlreadyProcessed: true, EntryID: prior.EntryID, NewBalance: prior.BalanceAfter}
			return nil
		}

		account, err := s.accounts.Get(txCtx, cmd.AccountID)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrAccountNotFound
		}

		before := account.Available
		if err := account.Debit(cmd.Amount); err != nil {
			return err
		}
		if err := s.accounts.Save(txCtx, account); err != nil {
			return err
		}

		meta := cmd.Metadata
		if cmd.Description != "" {
			if meta == nil {
				meta = map[string]any{}
			}
			meta["description"] = cmd.Description
		}
		entry := s.newEntry(cmd.Reference, account.AccountID, domain.DirectionDebit, cmd.Category, cmd.Amount, before, account.Available, meta)
		if err := s.journal.Create(txCtx, entry); err != nil {
			return err
		}

		if err := s.publisher.PublishInTx(txCtx, "wallet.debited", account.AccountID, map[string]any{
			"account_id": account.AccountID, "amount": cmd.Amount.String(),
			"available": account.Available.String(), "reference": cmd.Reference,
		}); err != nil {
			return err
		}

		result = &MutationResult{EntryID: entry.EntryID, NewBalance: account.Available}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, cmd.AccountID)
	return result, nil
}

// ProcessOrderPayment 订单支付：买家可用转托管，卖家在途入账
// 两方变更与订单创建在同一事务，按 OrderID 幂等。
func (s *WalletCommandService) ProcessOrderPayment(ctx context.Context, cmd OrderPaymentCommand) (*PaymentResult, error) {
	order, err := domain.NewEscrowOrder(cmd.OrderID, cmd.BuyerAccountID, cmd.SellerAccountID, cmd.Total, cmd.Commission)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, "order:"+cmd.OrderID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *PaymentResult
	err = s.withRetry(ctx, func(txCtx context.Context) error {
		// 订单记录本身即订单支付的幂等证明
		existing, err := s.orders.Get(txCtx, cmd.OrderID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = &PaymentResult{AlreadyProcessed: true, OrderID: cmd.OrderID}
			return nil
		}

		buyer, err := s.accounts.Get(txCtx, cmd.BuyerAccountID)
		if err != nil {
			return err
		}
		if buyer == nil {
			return domain.ErrAccountNotFound
		}
		seller, err := s.accounts.GetOrCreate(txCtx, cmd.SellerAccountID, cmd.SellerUserID, cmd.Currency)
		if err != nil {
			return err
		}

		buyerBefore := buyer.Available
		if err := buyer.HoldToEscrow(cmd.Total); err != nil {
			return err
		}
		sellerAmount := order.SellerAmount()
		if err := seller.AddPending(sellerAmount); err != nil {
			return err
		}

		if err := s.accounts.Save(txCtx, buyer); err != nil {
			return err
		}
		if err := s.accounts.Save(txCtx, seller); err != nil {
			return err
		}
		if err := s.orders.Create(txCtx, order); err != nil {
			return err
		}

		buyerEntry := s.newEntry("order:"+cmd.OrderID+":buyer", buyer.AccountID, domain.DirectionDebit, domain.CategoryOrderPayment, cmd.Total, buyerBefore, buyer.Available, nil)
		buyerEntry.CounterpartyID = seller.AccountID
		buyerEntry.OrderID = cmd.OrderID
		if err := s.journal.Create(txCtx, buyerEntry); err != nil {
			return err
		}

		sellerEntry := s.newEntry("order:"+cmd.OrderID+":seller", seller.AccountID, domain.DirectionCredit, domain.CategoryOrderPayment, sellerAmount, seller.Available, seller.Available, nil)
		sellerEntry.CounterpartyID = buyer.AccountID
		sellerEntry.OrderID = cmd.OrderID
		if err := s.journal.Create(txCtx, sellerEntry); err != nil {
			return err
		}

		if err := s.publisher.PublishInTx(txCtx, "wallet.escrow.held", cmd.OrderID, map[string]any{
			"order_id": cmd.OrderID, "buyer": buyer.AccountID, "seller": seller.AccountID,
			"total": cmd.Total.String(), "commission": cmd.Commission.String(),
		}); err != nil {
			return err
		}

		result = &PaymentResult{OrderID: cmd.OrderID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, cmd.BuyerAccountID, cmd.SellerAccountID)
	return result, nil
}

// ReleaseEscrow 托管放款：卖家在途转可用，买家托管清除
// 状态翻转与余额变更在同一事务，竞争者只有一方真正移动资金。
func (s *WalletCommandService) ReleaseEscrow(ctx context.Context, cmd ReleaseEscrowCommand) (*ReleaseResult, error) {
	release, err := s.acquire(ctx, "escrow:"+cmd.OrderID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *ReleaseResult
	var buyerID, sellerID string
	err = s.withRetry(ctx, func(txCtx context.Context) error {
		order, err := s.orders.Get(txCtx, cmd.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}
		if order.Status.IsTerminal() {
			result = &ReleaseResult{AlreadyProcessed: true}
			return nil
		}

		if err := order.Release(txCtx); err != nil {
			return err
		}
		// 条件翻转：输掉竞争说明另一事务已终结订单
		won, err := s.orders.Transition(txCtx, order, domain.EscrowStatusHeld)
		if err != nil {
			return err
		}
		if !won {
			result = &ReleaseResult{AlreadyProcessed: true}
			return nil
		}

		buyer, seller, err := s.loadParties(txCtx, order)
		if err != nil {
			return err
		}
		buyerID, sellerID = buyer.AccountID, seller.AccountID

		sellerAmount := order.SellerAmount()
		sellerBefore := seller.Available
		if err := seller.ReleasePending(sellerAmount); err != nil {
			return err
		}
		if err := buyer.ClearPending(order.Total); err != nil {
			return err
		}

		if err := s.accounts.Save(txCtx, seller); err != nil {
			return err
		}
		if err := s.accounts.Save(txCtx, buyer); err != nil {
			return err
		}

		sellerEntry := s.newEntry("release:"+cmd.OrderID+":seller", seller.AccountID, domain.DirectionCredit, domain.CategoryEscrowRelease, sellerAmount, sellerBefore, seller.Available, nil)
		sellerEntry.CounterpartyID = buyer.AccountID
		sellerEntry.OrderID = cmd.OrderID
		if err := s.journal.Create(txCtx, sellerEntry); err != nil {
			return err
		}

		buyerEntry := s.newEntry("release:"+cmd.OrderID+":buyer", buyer.AccountID, domain.DirectionDebit, domain.CategoryEscrowRelease, order.Total, buyer.Available, buyer.Available, nil)
		buyerEntry.CounterpartyID = seller.AccountID
		buyerEntry.OrderID = cmd.OrderID
		if err := s.journal.Create(txCtx, buyerEntry); err != nil {
			return err
		}

		if err := s.publisher.PublishInTx(txCtx, "wallet.escrow.released", cmd.OrderID, map[string]any{
			"order_id": cmd.OrderID, "seller": seller.AccountID, "amount": sellerAmount.String(),
		}); err != nil {
			return err
		}

		result = &ReleaseResult{AmountReleased: sellerAmount}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if buyerID != "" {
		s.invalidate(ctx, buyerID, sellerID)
	}
	return result, nil
}

// RefundEscrow 托管退款：订单总额回到买家可用，双方托管清除
// 已放款的订单拒绝退款；重复退款返回幂等结果。
func (s *WalletCommandService) RefundEscrow(ctx context.Context, cmd RefundEscrowCommand) (*RefundResult, error) {
	release, err := s.acquire(ctx, "escrow:"+cmd.OrderID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *RefundResult
	var buyerID, sellerID string
	err = s.withRetry(ctx, func(txCtx context.Context) error {
		order, err := s.orders.Get(txCtx, cmd.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}
		switch order.Status {
		case domain.EscrowStatusRefunded:
			result = &RefundResult{AlreadyProcessed: true}
			return nil
		case domain.EscrowStatusReleased:
			return domain.ErrEscrowResolved
		}

		if err := order.Refund(txCtx, cmd.Reason); err != nil {
			return err
		}
		won, err := s.orders.Transition(txCtx, order, domain.EscrowStatusHeld)
		if err != nil {
			return err
		}
		if !won {
			// 输掉竞争：同一事务内重读终态，区分重复退款与已放款
			fresh, err := s.orders.Get(txCtx, cmd.OrderID)
			if err != nil {
				return err
			}
			if fresh != nil && fresh.Status == domain.EscrowStatusReleased {
				return domain.ErrEscrowResolved
			}
			result = &RefundResult{AlreadyProcessed: true}
			return nil
		}

		buyer, seller, err := s.loadParties(txCtx, order)
		if err != nil {
			return err
		}
		buyerID, sellerID = buyer.AccountID, seller.AccountID

		buyerBefore := buyer.Available
		if err := buyer.ReleasePending(order.Total); err != nil {
			return err
		}
		if err := seller.ClearPending(order.SellerAmount()); err != nil {
			return err
		}

		if err := s.accounts.Save(txCtx, buyer); err != nil {
			return err
		}
		if err := s.accounts.Save(txCtx, seller); err != nil {
			return err
		}

		meta := map[string]any{"reason": cmd.Reason}
		buyerEntry := s.newEntry("refund:"+cmd.OrderID+":buyer", buyer.AccountID, domain.DirectionCredit, domain.CategoryEscrowRefund, order.Total, buyerBefore, buyer.Available, meta)
		buyerEntry.CounterpartyID = seller.AccountID
		buyerEntry.OrderID = cmd.OrderID
		if err := s.journal.Create(txCtx, buyerEntry); err != nil {
			return err
		}

		sellerEntry := s.newEntry("refund:"+cmd.OrderID+":seller", seller.AccountID, domain.DirectionDebit, domain.CategoryEscrowRefund, order.SellerAmount(), seller.Available, seller.Available, meta)
		sellerEntry.CounterpartyID = buyer.AccountID
		sellerEntry.OrderID = cmd.OrderID
		if err := s.journal.Create(txCtx, sellerEntry); err != nil {
			return err
		}

		if err := s.publisher.PublishInTx(txCtx, "wallet.escrow.refunded", cmd.OrderID, map[string]any{
			"order_id": cmd.OrderID, "buyer": buyer.AccountID,
			"amount": order.Total.String(), "reason": cmd.Reason,
		}); err != nil {
			return err
		}

		result = &RefundResult{AmountRefunded: order.Total}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if buyerID != "" {
		s.invalidate(ctx, buyerID, sellerID)
	}
	return result, nil
}

// LockAccount 冻结账户（运营操作），冻结后拒绝一切资金变动
func (s *WalletCommandService) LockAccount(ctx context.Context, cmd LockAccountCommand) error {
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		account, err := s.accounts.Get(txCtx, cmd.AccountID)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrAccountNotFound
		}
		account.Lock(cmd.Reason)
		return s.accounts.Save(txCtx, account)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, cmd.AccountID)
	return nil
}

// UnlockAccount 解冻账户
func (s *WalletCommandService) UnlockAccount(ctx context.Context, accountID string) error {
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		account, err := s.accounts.Get(txCtx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrAccountNotFound
		}
		account.Unlock()
		return s.accounts.Save(txCtx, account)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, accountID)
	return nil
}

// --- helpers ---

// acquire 获取操作锁，返回在任意退出路径调用的释放函数
func (s *WalletCommandService) acquire(ctx context.Context, key string) (func(), error) {
	token, err := s.locks.Acquire(ctx, key, lockTTL)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := s.locks.Release(ctx, key, token); err != nil {
			slog.WarnContext(ctx, "failed to release operation lock", "key", key, "error", err)
		}
	}, nil
}

// withRetry 乐观锁冲突时有限次重试整个事务
func (s *WalletCommandService) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = s.tx.WithTx(ctx, fn)
		if err == nil || !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		slog.WarnContext(ctx, "transaction conflict, retrying", "attempt", attempt+1)
	}
	return err
}

func (s *WalletCommandService) loadParties(ctx context.Context, order *domain.EscrowOrder) (*domain.Account, *domain.Account, error) {
	buyer, err := s.accounts.Get(ctx, order.BuyerAccountID)
	if err != nil {
		return nil, nil, err
	}
	if buyer == nil {
		return nil, nil, domain.ErrAccountNotFound
	}
	seller, err := s.accounts.Get(ctx, order.SellerAccountID)
	if err != nil {
		return nil, nil, err
	}
	if seller == nil {
		return nil, nil, domain.ErrAccountNotFound
	}
	return buyer, seller, nil
}

func (s *WalletCommandService) newEntry(reference, accountID string, direction domain.EntryDirection, category domain.EntryCategory, amount, before, after decimal.Decimal, metadata map[string]any) *domain.JournalEntry {
	now := time.Now()
	entry := &domain.JournalEntry{
		EntryID:       fmt.Sprintf("JE-%d", idgen.GenID()),
		Reference:     reference,
		AccountID:     accountID,
		Direction:     direction,
		Category:      category,
		Status:        domain.EntryStatusCompleted,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		CompletedAt:   &now,
	}
	if len(metadata) > 0 {
		if data, err := json.Marshal(metadata); err == nil {
			entry.Metadata = string(data)
		}
	}
	return entry
}

// invalidate 提交后同步失效余额缓存；缓存只是建议性的，失败仅记录
func (s *WalletCommandService) invalidate(ctx context.Context, accountIDs ...string) {
	if err := s.cache.Invalidate(ctx, accountIDs...); err != nil {
		slog.WarnContext(ctx, "failed to invalidate balance cache", "accounts", accountIDs, "error", err)
	}
}
