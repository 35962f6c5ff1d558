package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EntryDirection 流水方向
type EntryDirection string

const (
	DirectionCredit EntryDirection = "CREDIT" // 入账
	DirectionDebit  EntryDirection = "DEBIT"  // 出账
)

// EntryCategory 流水类别
type EntryCategory string

const (
	CategoryPayment       EntryCategory = "PAYMENT"        // 普通收付款
	CategoryOrderPayment  EntryCategory = "ORDER_PAYMENT"  // 订单支付（进入托管）
	CategoryEscrowRelease EntryCategory = "ESCROW_RELEASE" // 托管放款
	CategoryEscrowRefund  EntryCategory = "ESCROW_REFUND"  // 托管退款
	CategoryReferral      EntryCategory = "REFERRAL"       // 推荐奖励
	CategorySubscription  EntryCategory = "SUBSCRIPTION"   // 订阅扣费
	CategoryAdjustment    EntryCategory = "ADJUSTMENT"     // 人工调账
)

// EntryStatus 流水状态
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "PENDING"
	EntryStatusCompleted EntryStatus = "COMPLETED"
	EntryStatusFailed    EntryStatus = "FAILED"
)

// JournalEntry 资金流水
// 只追加、不可变。Reference 建唯一索引：同一引用的已完成流水
// 即为幂等性的权威证明，余额变更与流水写入必须在同一事务内。
type JournalEntry struct {
	gorm.Model
	// 流水 ID (业务主键)
	EntryID string `gorm:"column:entry_id;type:varchar(32);uniqueIndex;not null" json:"entry_id"`
	// 幂等引用，调用方提供或派生，全局唯一
	Reference string `gorm:"column:reference;type:varchar(128);uniqueIndex;not null" json:"reference"`
	// 账户 ID
	AccountID string `gorm:"column:account_id;type:varchar(32);index;not null" json:"account_id"`
	// 方向
	Direction EntryDirection `gorm:"column:direction;type:varchar(10);not null" json:"direction"`
	// 类别
	Category EntryCategory `gorm:"column:category;type:varchar(20);not null" json:"category"`
	// 状态
	Status EntryStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	// 金额（恒为正，方向由 Direction 表达）
	Amount decimal.Decimal `gorm:"column:amount;type:decimal(32,18);not null" json:"amount"`
	// 变动前可用余额快照
	BalanceBefore decimal.Decimal `gorm:"column:balance_before;type:decimal(32,18);not null" json:"balance_before"`
	// 变动后可用余额快照
	BalanceAfter decimal.Decimal `gorm:"column:balance_after;type:decimal(32,18);not null" json:"balance_after"`
	// 对手方账户 ID（托管操作时记录）
	CounterpartyID string `gorm:"column:counterparty_id;type:varchar(32);index" json:"counterparty_id"`
	// 关联订单 ID
	OrderID string `gorm:"column:order_id;type:varchar(64);index" json:"order_id"`
	// 附加信息 (JSON)
	Metadata string `gorm:"column:metadata;type:varchar(1024)" json:"metadata"`
	// 完成时间
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at"`
}

// TableName 表名
func (JournalEntry) TableName() string {
	return "wallet_journal"
}
