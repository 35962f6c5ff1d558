package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/pkg/contextx"
	"github.com/wyfcoding/walletledger/internal/wallet/domain"
	"gorm.io/gorm"
)

// accountRepository 钱包账户仓储实现
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository 创建并返回一个新的 accountRepository 实例。
func NewAccountRepository(db *gorm.DB) domain.AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	var account domain.Account
	if err := r.getDB(ctx).WithContext(ctx).Where("account_id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetOrCreate 获取账户，不存在时惰性创建
func (r *accountRepository) GetOrCreate(ctx context.Context, accountID, userID, currency string) (*domain.Account, error) {
	account, err := r.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}

	account = domain.NewAccount(accountID, userID, currency)
	if err := r.getDB(ctx).WithContext(ctx).Create(account).Error; err != nil {
		// 并发创建：唯一索引冲突后重读
		existing, getErr := r.Get(ctx, accountID)
		if getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return account, nil
}

// Save 保存账户（带乐观锁）
func (r *accountRepository) Save(ctx context.Context, account *domain.Account) error {
	db := r.getDB(ctx)

	if account.ID == 0 {
		return db.WithContext(ctx).Create(account).Error
	}

	currentVersion := account.Version
	result := db.WithContext(ctx).Model(&domain.Account{}).
		Where("account_id = ? AND version = ?", account.AccountID, currentVersion).
		Updates(map[string]any{
			"available":   account.Available,
			"pending":     account.Pending,
			"locked":      account.Locked,
			"lock_reason": account.LockReason,
			"version":     currentVersion + 1,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}

	account.Version = currentVersion + 1
	account.UpdatedAt = time.Now()
	return nil
}

func (r *accountRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}
