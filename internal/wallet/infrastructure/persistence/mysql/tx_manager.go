package mysql

import (
	"context"

	"github.com/wyfcoding/pkg/contextx"
	"github.com/wyfcoding/walletledger/internal/wallet/domain"
	"gorm.io/gorm"
)

// txManager gorm 事务管理实现
// fn 内通过 contextx 携带事务句柄，仓储 getDB(ctx) 自动复用，
// 一个 WithTx 调用即引擎的一个原子作用域。
type txManager struct {
	db *gorm.DB
}

// NewTxManager 创建并返回一个新的 txManager 实例。
func NewTxManager(db *gorm.DB) domain.TxManager {
	return &txManager{db: db}
}

func (m *txManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		txCtx := contextx.WithTx(ctx, tx)
		return fn(txCtx)
	})
}
