package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/pkg/contextx"
	"github.com/wyfcoding/walletledger/internal/wallet/domain"
	"gorm.io/gorm"
)

// journalRepository 资金流水仓储实现，只追加
type journalRepository struct {
	db *gorm.DB
}

// NewJournalRepository 创建并返回一个新的 journalRepository 实例。
func NewJournalRepository(db *gorm.DB) domain.JournalRepository {
	return &journalRepository{db: db}
}

func (r *journalRepository) Create(ctx context.Context, entry *domain.JournalEntry) error {
	return r.getDB(ctx).WithContext(ctx).Create(entry).Error
}

func (r *journalRepository) GetByReference(ctx context.Context, reference string) (*domain.JournalEntry, error) {
	var entry domain.JournalEntry
	if err := r.getDB(ctx).WithContext(ctx).Where("reference = ?", reference).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *journalRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.JournalEntry, int64, error) {
	db := r.getDB(ctx).WithContext(ctx).Model(&domain.JournalEntry{}).Where("account_id = ?", accountID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []*domain.JournalEntry
	if err := db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *journalRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}
