package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentVerification 支付网关核验结果
type PaymentVerification struct {
	Success       bool
	Amount        decimal.Decimal
	PayerIdentity string
}

// TransferRequest 出金请求参数
type TransferRequest struct {
	Recipient string
	Amount    decimal.Decimal
	Currency  string
}

// FundsGateway 定义支付网关接口。
// 由上游业务在调用 Credit/Debit 之前使用，账本引擎本身绝不调用。
type FundsGateway interface {
	// VerifyPayment 按引用核验一笔网关支付
	VerifyPayment(ctx context.Context, reference string) (*PaymentVerification, error)
	// InitiateTransfer 发起出金，返回网关引用
	InitiateTransfer(ctx context.Context, req *TransferRequest) (string, error)
}
