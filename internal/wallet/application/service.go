package application

import "context"

// WalletService 作为钱包账本操作的门面。
type WalletService struct {
	Command *WalletCommandService
	Query   *WalletQueryService
	Payment *PaymentService
}

// NewWalletService 创建并返回一个新的 WalletService 门面实例。
func NewWalletService(command *WalletCommandService, query *WalletQueryService, payment *PaymentService) *WalletService {
	return &WalletService{
		Command: command,
		Query:   query,
		Payment: payment,
	}
}

// --- 写操作（委托给 Command） ---

func (s *WalletService) Credit(ctx context.Context, cmd CreditCommand) (*MutationResult, error) {
	return s.Command.Credit(ctx, cmd)
}

func (s *WalletService) Debit(ctx context.Context, cmd DebitCommand) (*MutationResult, error) {
	return s.Command.Debit(ctx, cmd)
}

func (s *WalletService) ProcessOrderPayment(ctx context.Context, cmd OrderPaymentCommand) (*PaymentResult, error) {
	return s.Command.ProcessOrderPayment(ctx, cmd)
}

func (s *WalletService) ReleaseEscrow(ctx context.Context, cmd ReleaseEscrowCommand) (*ReleaseResult, error) {
	return s.Command.ReleaseEscrow(ctx, cmd)
}

func (s *WalletService) RefundEscrow(ctx context.Context, cmd RefundEscrowCommand) (*RefundResult, error) {
	return s.Command.RefundEscrow(ctx, cmd)
}

func (s *WalletService) LockAccount(ctx context.Context, cmd LockAccountCommand) error {
	return s.Command.LockAccount(ctx, cmd)
}

func (s *WalletService) UnlockAccount(ctx context.Context, accountID string) error {
	return s.Command.UnlockAccount(ctx, accountID)
}

// --- 网关操作（委托给 Payment） ---

func (s *WalletService) ConfirmTopup(ctx context.Context, cmd TopupConfirmCommand) (*MutationResult, error) {
	return s.Payment.ConfirmTopup(ctx, cmd)
}

func (s *WalletService) Withdraw(ctx context.Context, cmd WithdrawCommand) (*WithdrawResult, error) {
	return s.Payment.Withdraw(ctx, cmd)
}

// --- 读操作（委托给 Query） ---

func (s *WalletService) GetBalance(ctx context.Context, accountID string) (*AccountDTO, error) {
	return s.Query.GetBalance(ctx, accountID)
}

func (s *WalletService) GetAccount(ctx context.Context, accountID string) (*AccountDetailDTO, error) {
	return s.Query.GetAccount(ctx, accountID)
}

func (s *WalletService) GetJournal(ctx context.Context, accountID string, limit, offset int) ([]JournalEntryDTO, int64, error) {
	return s.Query.GetJournal(ctx, accountID, limit, offset)
}
