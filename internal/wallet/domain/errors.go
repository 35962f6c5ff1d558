package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountLocked 账户已冻结，需运营介入
	ErrAccountLocked = errors.New("account is locked")
	// ErrAccountNotFound 账户不存在
	ErrAccountNotFound = errors.New("account not found")
	// ErrOrderNotFound 托管订单不存在
	ErrOrderNotFound = errors.New("escrow order not found")
	// ErrInvalidAmount 金额必须为正数
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidCommission 佣金必须非负且小于订单总额
	ErrInvalidCommission = errors.New("commission must be non-negative and less than total")
	// ErrInsufficientPending 托管中余额不足（内部一致性错误）
	ErrInsufficientPending = errors.New("insufficient pending balance")
	// ErrLockHeld 操作锁被其他调用持有，退避后可重试
	ErrLockHeld = errors.New("operation lock held by another caller")
	// ErrVersionConflict 乐观锁冲突，事务内有限次重试
	ErrVersionConflict = errors.New("optimistic lock conflict: record modified by another transaction")
	// ErrEscrowResolved 托管订单已进入终态，不能再放款/退款
	ErrEscrowResolved = errors.New("escrow order already resolved")
	// ErrPaymentNotVerified 网关未核验通过该笔支付
	ErrPaymentNotVerified = errors.New("payment not verified by gateway")
)

// InsufficientBalanceError 可用余额不足，携带当前余额供调用方展示缺口
type InsufficientBalanceError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s",
		e.Available.String(), e.Requested.String())
}

// Shortfall 缺口金额
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

// IsInsufficientBalance 判断是否余额不足错误
func IsInsufficientBalance(err error) bool {
	var target *InsufficientBalanceError
	return errors.As(err, &target)
}
