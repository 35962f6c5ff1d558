package application

import (
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/walletledger/internal/wallet/domain"
)

// CreditCommand 入账命令
type CreditCommand struct {
	AccountID string
	UserID    string
	Currency  string
	Amount    decimal.Decimal
	// 幂等引用：同一引用的重试收敛为单次效果
	Reference string
	Category  domain.EntryCategory
	Metadata  map[string]any
}

// DebitCommand 扣款命令
type DebitCommand struct {
	AccountID   string
	Amount      decimal.Decimal
	Reference   string
	Description string
	Category    domain.EntryCategory
	Metadata    map[string]any
}

// OrderPaymentCommand 订单支付命令（资金进入托管）
type OrderPaymentCommand struct {
	OrderID         string
	BuyerAccountID  string
	SellerAccountID string
	SellerUserID    string
	Currency        string
	Total           decimal.Decimal
	Commission      decimal.Decimal
}

// ReleaseEscrowCommand 托管放款命令
type ReleaseEscrowCommand struct {
	OrderID string
}

// RefundEscrowCommand 托管退款命令
type RefundEscrowCommand struct {
	OrderID string
	Reason  string
}

// LockAccountCommand 冻结账户命令（运营操作）
type LockAccountCommand struct {
	AccountID string
	Reason    string
}

// MutationResult 入账/扣款结果
// 重复请求返回首次结果，AlreadyProcessed = true，绝不二次变动。
type MutationResult struct {
	AlreadyProcessed bool            `json:"already_processed"`
	EntryID          string          `json:"entry_id"`
	NewBalance       decimal.Decimal `json:"new_balance"`
}

// PaymentResult 订单支付结果
type PaymentResult struct {
	AlreadyProcessed bool   `json:"already_processed"`
	OrderID          string `json:"order_id"`
}

// ReleaseResult 托管放款结果
type ReleaseResult struct {
	AlreadyProcessed bool            `json:"already_processed"`
	AmountReleased   decimal.Decimal `json:"amount_released"`
}

// RefundResult 托管退款结果
type RefundResult struct {
	AlreadyProcessed bool            `json:"already_processed"`
	AmountRefunded   decimal.Decimal `json:"amount_refunded"`
}

// AccountDTO 账户视图
type AccountDTO struct {
	AccountID  string `json:"account_id"`
	UserID     string `json:"user_id"`
	Currency   string `json:"currency"`
	Available  string `json:"available"`
	Pending    string `json:"pending"`
	Locked     bool   `json:"locked"`
	LockReason string `json:"lock_reason,omitempty"`
	Version    int64  `json:"version"`
}

// JournalEntryDTO 流水视图
type JournalEntryDTO struct {
	EntryID        string `json:"entry_id"`
	Reference      string `json:"reference"`
	AccountID      string `json:"account_id"`
	Direction      string `json:"direction"`
	Category       string `json:"category"`
	Status         string `json:"status"`
	Amount         string `json:"amount"`
	BalanceBefore  string `json:"balance_before"`
	BalanceAfter   string `json:"balance_after"`
	CounterpartyID string `json:"counterparty_id,omitempty"`
	OrderID        string `json:"order_id,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

// AccountDetailDTO 账户详情（含最近流水窗口）
type AccountDetailDTO struct {
	Account AccountDTO        `json:"account"`
	Recent  []JournalEntryDTO `json:"recent"`
}

func toAccountDTO(a *domain.Account) *AccountDTO {
	return &AccountDTO{
		AccountID:  a.AccountID,
		UserID:     a.UserID,
		Currency:   a.Currency,
		Available:  a.Available.String(),
		Pending:    a.Pending.String(),
		Locked:     a.Locked,
		LockReason: a.LockReason,
		Version:    a.Version,
	}
}

func toJournalEntryDTO(e *domain.JournalEntry) JournalEntryDTO {
	return JournalEntryDTO{
		EntryID:        e.EntryID,
		Reference:      e.Reference,
		AccountID:      e.AccountID,
		Direction:      string(e.Direction),
		Category:       string(e.Category),
		Status:         string(e.Status),
		Amount:         e.Amount.String(),
		BalanceBefore:  e.BalanceBefore.String(),
		BalanceAfter:   e.BalanceAfter.String(),
		CounterpartyID: e.CounterpartyID,
		OrderID:        e.OrderID,
		CreatedAt:      e.CreatedAt.Unix(),
	}
}
