// 生成摘要：托管订单聚合根，包含状态机流程。
// 一笔订单的资金在买家扣款、卖家在途入账之后处于托管中，
// 由放款或退款二选一终结，终态互斥且只发生一次。
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/fsm"
	"gorm.io/gorm"
)

// EscrowStatus 托管订单状态
type EscrowStatus string

const (
	EscrowStatusHeld     EscrowStatus = "IN_ESCROW" // 托管中
	EscrowStatusReleased EscrowStatus = "RELEASED"  // 已放款（终态）
	EscrowStatusRefunded EscrowStatus = "REFUNDED"  // 已退款（终态）
)

// IsTerminal 是否终态
func (s EscrowStatus) IsTerminal() bool {
	return s == EscrowStatusReleased || s == EscrowStatusRefunded
}

// EscrowOrder 托管订单聚合根
// 终态翻转必须与双方余额变更处于同一事务，竞争的放款/退款
// 只有赢得状态翻转的一方真正移动资金。
type EscrowOrder struct {
	gorm.Model
	// 订单 ID (业务主键)，全局唯一，同时是订单支付的幂等键
	OrderID string `gorm:"column:order_id;type:varchar(64);uniqueIndex;not null" json:"order_id"`
	// 买家账户 ID
	BuyerAccountID string `gorm:"column:buyer_account_id;type:varchar(32);index;not null" json:"buyer_account_id"`
	// 卖家账户 ID
	SellerAccountID string `gorm:"column:seller_account_id;type:varchar(32);index;not null" json:"seller_account_id"`
	// 订单总额（买家托管金额）
	Total decimal.Decimal `gorm:"column:total;type:decimal(32,18);not null" json:"total"`
	// 平台佣金，卖家实收 = Total - Commission
	Commission decimal.Decimal `gorm:"column:commission;type:decimal(32,18);not null" json:"commission"`
	// 状态
	Status EscrowStatus `gorm:"column:status;type:varchar(16);not null;default:'IN_ESCROW'" json:"status"`
	// 退款原因
	RefundReason string `gorm:"column:refund_reason;type:varchar(255)" json:"refund_reason"`
	// 终结时间
	ResolvedAt *time.Time `gorm:"column:resolved_at" json:"resolved_at"`

	fsm *fsm.Machine[string, string]
}

// TableName 表名
func (EscrowOrder) TableName() string {
	return "wallet_escrow_orders"
}

// NewEscrowOrder 创建托管订单
func NewEscrowOrder(orderID, buyerID, sellerID string, total, commission decimal.Decimal) (*EscrowOrder, error) {
	if !total.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if commission.IsNegative() || commission.GreaterThanOrEqual(total) {
		return nil, ErrInvalidCommission
	}
	o := &EscrowOrder{
		OrderID:         orderID,
		BuyerAccountID:  buyerID,
		SellerAccountID: sellerID,
		Total:           total,
		Commission:      commission,
		Status:          EscrowStatusHeld,
	}
	o.initFSM()
	return o, nil
}

func (o *EscrowOrder) initFSM() {
	m := fsm.NewMachine[string, string](string(o.Status))
	m.AddTransition(string(EscrowStatusHeld), "RELEASE", string(EscrowStatusReleased))
	m.AddTransition(string(EscrowStatusHeld), "REFUND", string(EscrowStatusRefunded))
	o.fsm = m
}

// InitFSM 确保状态机已初始化（从仓储加载后调用）
func (o *EscrowOrder) InitFSM() {
	if o.fsm == nil {
		o.initFSM()
	}
}

// SellerAmount 卖家实收金额
func (o *EscrowOrder) SellerAmount() decimal.Decimal {
	return o.Total.Sub(o.Commission)
}

// Release 托管放款给卖家
func (o *EscrowOrder) Release(ctx context.Context) error {
	o.InitFSM()
	if err := o.fsm.Trigger(ctx, "RELEASE"); err != nil {
		return ErrEscrowResolved
	}
	o.Status = EscrowStatusReleased
	now := time.Now()
	o.ResolvedAt = &now
	return nil
}

// Refund 托管退款给买家
func (o *EscrowOrder) Refund(ctx context.Context, reason string) error {
	o.InitFSM()
	if err := o.fsm.Trigger(ctx, "REFUND"); err != nil {
		return ErrEscrowResolved
	}
	o.Status = EscrowStatusRefunded
	o.RefundReason = reason
	now := time.Now()
	o.ResolvedAt = &now
	return nil
}
