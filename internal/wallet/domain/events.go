// Package domain 钱包账本服务领域事件
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DomainEvent interface {
	EventName() string
	OccurredAt() time.Time
}

// FundsCreditedEvent 资金入账事件
type FundsCreditedEvent struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Available decimal.Decimal `json:"available"`
	Timestamp time.Time       `json:"timestamp"`
}

func (e *FundsCreditedEvent) EventName() string     { return "wallet.funds_credited" }
func (e *FundsCreditedEvent) OccurredAt() time.Time { return e.Timestamp }

// FundsDebitedEvent 资金出账事件
type FundsDebitedEvent struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Available decimal.Decimal `json:"available"`
	Timestamp time.Time       `json:"timestamp"`
}

func (e *FundsDebitedEvent) EventName() string     { return "wallet.funds_debited" }
func (e *FundsDebitedEvent) OccurredAt() time.Time { return e.Timestamp }

// FundsHeldEvent 资金转入托管事件
type FundsHeldEvent struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Pending   decimal.Decimal `json:"pending"`
	Timestamp time.Time       `json:"timestamp"`
}

func (e *FundsHeldEvent) EventName() string     { return "wallet.funds_held" }
func (e *FundsHeldEvent) OccurredAt() time.Time { return e.Timestamp }

// FundsReleasedEvent 托管资金转可用事件
type FundsReleasedEvent struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Available decimal.Decimal `json:"available"`
	Timestamp time.Time       `json:"timestamp"`
}

func (e *FundsReleasedEvent) EventName() string     { return "wallet.funds_released" }
func (e *FundsReleasedEvent) OccurredAt() time.Time { return e.Timestamp }
