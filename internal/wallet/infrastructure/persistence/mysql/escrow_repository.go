package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/pkg/contextx"
	"github.com/wyfcoding/walletledger/internal/wallet/domain"
	"gorm.io/gorm"
)

// escrowOrderRepository 托管订单仓储实现
type escrowOrderRepository struct {
	db *gorm.DB
}

// NewEscrowOrderRepository 创建并返回一个新的 escrowOrderRepository 实例。
func NewEscrowOrderRepository(db *gorm.DB) domain.EscrowOrderRepository {
	return &escrowOrderRepository{db: db}
}

func (r *escrowOrderRepository) Create(ctx context.Context, order *domain.EscrowOrder) error {
	return r.getDB(ctx).WithContext(ctx).Create(order).Error
}

func (r *escrowOrderRepository) Get(ctx context.Context, orderID string) (*domain.EscrowOrder, error) {
	var order domain.EscrowOrder
	if err := r.getDB(ctx).WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	order.InitFSM()
	return &order, nil
}

// Transition 条件状态翻转：UPDATE ... WHERE order_id = ? AND status = ?
// RowsAffected == 0 说明另一个事务已经翻转了状态，调用方据此
// 在同一事务内重读并返回幂等结果。
func (r *escrowOrderRepository) Transition(ctx context.Context, order *domain.EscrowOrder, from domain.EscrowStatus) (bool, error) {
	result := r.getDB(ctx).WithContext(ctx).Model(&domain.EscrowOrder{}).
		Where("order_id = ? AND status = ?", order.OrderID, from).
		Updates(map[string]any{
			"status":        order.Status,
			"refund_reason": order.RefundReason,
			"resolved_at":   order.ResolvedAt,
		})

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *escrowOrderRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}
