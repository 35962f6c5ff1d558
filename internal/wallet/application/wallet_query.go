package application

import (
	"context"
	"log/slog"

	"github.com/wyfcoding/walletledger/internal/wallet/domain"
)

// 账户详情携带的最近流水窗口大小
const recentJournalWindow = 20

// WalletQueryService 处理钱包相关的读操作。
// 余额查询走短 TTL 读缓存；缓存永远不参与扣款决策。
type WalletQueryService struct {
	accounts domain.AccountRepository
	journal  domain.JournalRepository
	cache    domain.BalanceCache
}

func NewWalletQueryService(
	accounts domain.AccountRepository,
	journal domain.JournalRepository,
	cache domain.BalanceCache,
) *WalletQueryService {
	return &WalletQueryService{
		accounts: accounts,
		journal:  journal,
		cache:    cache,
	}
}

// GetBalance 查询账户余额（读穿缓存）
func (s *WalletQueryService) GetBalance(ctx context.Context, accountID string) (*AccountDTO, error) {
	cached, err := s.cache.Get(ctx, accountID)
	if err != nil {
		// 缓存故障降级为权威读
		slog.WarnContext(ctx, "balance cache read failed", "account_id", accountID, "error", err)
	}
	if cached != nil {
		return toAccountDTO(cached), nil
	}

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}

	if err := s.cache.Set(ctx, account); err != nil {
		slog.WarnContext(ctx, "balance cache write failed", "account_id", accountID, "error", err)
	}
	return toAccountDTO(account), nil
}

// GetAccount 查询账户详情，含最近流水窗口
func (s *WalletQueryService) GetAccount(ctx context.Context, accountID string) (*AccountDetailDTO, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}

	entries, _, err := s.journal.ListByAccount(ctx, accountID, recentJournalWindow, 0)
	if err != nil {
		return nil, err
	}

	detail := &AccountDetailDTO{Account: *toAccountDTO(account)}
	detail.Recent = make([]JournalEntryDTO, len(entries))
	for i, e := range entries {
		detail.Recent[i] = toJournalEntryDTO(e)
	}
	return detail, nil
}

// GetJournal 查询账户流水分页列表
func (s *WalletQueryService) GetJournal(ctx context.Context, accountID string, limit, offset int) ([]JournalEntryDTO, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	entries, total, err := s.journal.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]JournalEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toJournalEntryDTO(e)
	}
	return dtos, total, nil
}
