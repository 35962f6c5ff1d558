// Package domain 钱包账本服务领域层
// 生成摘要：
// 1) 定义钱包账户聚合根（可用余额 + 托管中余额）
// 2) 实现入账、扣款、托管冻结、托管释放/退回的领域逻辑（不仅是CRUD）
// 3) 余额不变量在聚合内校验，持久化层通过乐观锁保证并发安全
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account 钱包账户聚合根
// 每个用户一条记录，首次引用时惰性创建，永不删除。
type Account struct {
	gorm.Model
	// 账户 ID (业务主键)，全局唯一
	AccountID string `gorm:"column:account_id;type:varchar(32);uniqueIndex;not null" json:"account_id"`
	// 用户 ID，关联的用户
	UserID string `gorm:"column:user_id;type:varchar(32);index;not null" json:"user_id"`
	// 货币（如 NGN, USD）
	Currency string `gorm:"column:currency;type:varchar(10);not null" json:"currency"`
	// 可用余额，任何已提交操作之后恒 >= 0
	Available decimal.Decimal `gorm:"column:available;type:decimal(32,18);default:0;not null" json:"available"`
	// 托管中余额（escrow），持有人不可支配，恒 >= 0
	Pending decimal.Decimal `gorm:"column:pending;type:decimal(32,18);default:0;not null" json:"pending"`
	// 冻结标记：true 时拒绝一切资金变动，需运营介入
	Locked bool `gorm:"column:locked;not null;default:false" json:"locked"`
	// 冻结原因
	LockReason string `gorm:"column:lock_reason;type:varchar(255)" json:"lock_reason"`
	// 乐观锁版本号
	Version int64 `gorm:"column:version;not null;default:1" json:"version"`

	// 领域事件
	domainEvents []DomainEvent `gorm:"-" json:"-"`
}

// TableName 表名
func (Account) TableName() string {
	return "wallet_accounts"
}

// NewAccount 创建钱包账户
func NewAccount(accountID, userID, currency string) *Account {
	return &Account{
		AccountID: accountID,
		UserID:    userID,
		Currency:  currency,
		Available: decimal.Zero,
		Pending:   decimal.Zero,
		Version:   1,
	}
}

// Total 总余额 = 可用 + 托管中
func (a *Account) Total() decimal.Decimal {
	return a.Available.Add(a.Pending)
}

func (a *Account) guard(amount decimal.Decimal) error {
	if a.Locked {
		return ErrAccountLocked
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Credit 增加可用余额
func (a *Account) Credit(amount decimal.Decimal) error {
	if err := a.guard(amount); err != nil {
		return err
	}
	a.Available = a.Available.Add(amount)

	a.addEvent(&FundsCreditedEvent{
		AccountID: a.AccountID,
		Amount:    amount,
		Available: a.Available,
		Timestamp: time.Now(),
	})
	return nil
}

// Debit 扣减可用余额
// 余额不足时返回 *InsufficientBalanceError，携带当前可用余额。
func (a *Account) Debit(amount decimal.Decimal) error {
	if err := a.guard(amount); err != nil {
		return err
	}
	if a.Available.LessThan(amount) {
		return &InsufficientBalanceError{Available: a.Available, Requested: amount}
	}
	a.Available = a.Available.Sub(amount)

	a.addEvent(&FundsDebitedEvent{
		AccountID: a.AccountID,
		Amount:    amount,
		Available: a.Available,
		Timestamp: time.Now(),
	})
	return nil
}

// HoldToEscrow 可用余额转入托管（买家支付订单时）
func (a *Account) HoldToEscrow(amount decimal.Decimal) error {
	if err := a.guard(amount); err != nil {
		return err
	}
	if a.Available.LessThan(amount) {
		return &InsufficientBalanceError{Available: a.Available, Requested: amount}
	}
	a.Available = a.Available.Sub(amount)
	a.Pending = a.Pending.Add(amount)

	a.addEvent(&FundsHeldEvent{
		AccountID: a.AccountID,
		Amount:    amount,
		Pending:   a.Pending,
		Timestamp: time.Now(),
	})
	return nil
}

// AddPending 增加托管中余额（卖家侧的在途货款）
func (a *Account) AddPending(amount decimal.Decimal) error {
	if err := a.guard(amount); err != nil {
		return err
	}
	a.Pending = a.Pending.Add(amount)
	return nil
}

// ReleasePending 托管中余额转入可用（卖家收款 / 买家退款）
func (a *Account) ReleasePending(amount decimal.Decimal) error {
	if err := a.guard(amount); err != nil {
		return err
	}
	if a.Pending.LessThan(amount) {
		return ErrInsufficientPending
	}
	a.Pending = a.Pending.Sub(amount)
	a.Available = a.Available.Add(amount)

	a.addEvent(&FundsReleasedEvent{
		AccountID: a.AccountID,
		Amount:    amount,
		Available: a.Available,
		Timestamp: time.Now(),
	})
	return nil
}

// ClearPending 清除托管中余额，不转入可用（对手方已收款或已退款）
func (a *Account) ClearPending(amount decimal.Decimal) error {
	if err := a.guard(amount); err != nil {
		return err
	}
	if a.Pending.LessThan(amount) {
		return ErrInsufficientPending
	}
	a.Pending = a.Pending.Sub(amount)
	return nil
}

// Lock 冻结账户（运营操作），冻结后拒绝一切资金变动
func (a *Account) Lock(reason string) {
	a.Locked = true
	a.LockReason = reason
}

// Unlock 解冻账户
func (a *Account) Unlock() {
	a.Locked = false
	a.LockReason = ""
}

func (a *Account) addEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

func (a *Account) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

func (a *Account) ClearDomainEvents() {
	a.domainEvents = nil
}
