package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/walletledger/internal/wallet/domain"
)

// PaymentService 位于账本核心之上，对接支付网关：
// 核验入账来源、发起出金。网关交互永远发生在账本事务之外。
type PaymentService struct {
	gateway domain.FundsGateway
	wallet  *WalletCommandService
}

func NewPaymentService(gateway domain.FundsGateway, wallet *WalletCommandService) *PaymentService {
	return &PaymentService{gateway: gateway, wallet: wallet}
}

// TopupConfirmCommand 充值确认命令（网关回调或轮询触发）
type TopupConfirmCommand struct {
	AccountID string
	UserID    string
	Currency  string
	// 网关侧支付引用，同时作为账本幂等引用
	Reference string
}

// ConfirmTopup 核验网关支付并入账。
// 金额以网关核验结果为准，不信任调用方传入。
func (s *PaymentService) ConfirmTopup(ctx context.Context, cmd TopupConfirmCommand) (*MutationResult, error) {
	verification, err := s.gateway.VerifyPayment(ctx, cmd.Reference)
	if err != nil {
		return nil, fmt.Errorf("verify payment %s: %w", cmd.Reference, err)
	}
	if !verification.Success {
		return nil, domain.ErrPaymentNotVerified
	}

	return s.wallet.Credit(ctx, CreditCommand{
		AccountID: cmd.AccountID,
		UserID:    cmd.UserID,
		Currency:  cmd.Currency,
		Amount:    verification.Amount,
		Reference: cmd.Reference,
		Category:  domain.CategoryPayment,
		Metadata:  map[string]any{"payer_identity": verification.PayerIdentity},
	})
}

// WithdrawCommand 出金命令
type WithdrawCommand struct {
	AccountID string
	Amount    decimal.Decimal
	Currency  string
	Recipient string
	Reference string
}

// WithdrawResult 出金结果
type WithdrawResult struct {
	AlreadyProcessed bool            `json:"already_processed"`
	GatewayReference string          `json:"gateway_reference,omitempty"`
	NewBalance       decimal.Decimal `json:"new_balance"`
}

// Withdraw 扣款后发起网关出金。
// 扣款沿用账本幂等引用；出金发起失败时写入冲正入账，余额回到扣款前。
// 扣款重试命中幂等时不重复发起出金，网关侧引用由对账流程补齐。
func (s *PaymentService) Withdraw(ctx context.Context, cmd WithdrawCommand) (*WithdrawResult, error) {
	res, err := s.wallet.Debit(ctx, DebitCommand{
		AccountID:   cmd.AccountID,
		Amount:      cmd.Amount,
		Reference:   cmd.Reference,
		Description: "withdrawal to " + cmd.Recipient,
		Category:    domain.CategoryPayment,
		Metadata:    map[string]any{"recipient": cmd.Recipient},
	})
	if err != nil {
		return nil, err
	}
	if res.AlreadyProcessed {
		return &WithdrawResult{AlreadyProcessed: true, NewBalance: res.NewBalance}, nil
	}

	gatewayRef, err := s.gateway.InitiateTransfer(ctx, &domain.TransferRequest{
		Recipient: cmd.Recipient,
		Amount:    cmd.Amount,
		Currency:  cmd.Currency,
	})
	if err != nil {
		slog.WarnContext(ctx, "transfer initiation failed, reversing debit",
			"account_id", cmd.AccountID, "reference", cmd.Reference, "error", err)
		if _, revErr := s.wallet.Credit(ctx, CreditCommand{
			AccountID: cmd.AccountID,
			Amount:    cmd.Amount,
			Reference: "reversal:" + cmd.Reference,
			Category:  domain.CategoryAdjustment,
			Metadata:  map[string]any{"reversal_of": cmd.Reference},
		}); revErr != nil {
			// 冲正失败留待对账流程处理
			slog.ErrorContext(ctx, "withdrawal reversal failed",
				"account_id", cmd.AccountID, "reference", cmd.Reference, "error", revErr)
		}
		return nil, fmt.Errorf("initiate transfer %s: %w", cmd.Reference, err)
	}

	return &WithdrawResult{GatewayReference: gatewayRef, NewBalance: res.NewBalance}, nil
}
