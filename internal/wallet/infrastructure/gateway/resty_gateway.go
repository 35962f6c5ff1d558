package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/walletledger/internal/wallet/domain"
)

const defaultTimeout = 5 * time.Second

// RestyFundsGateway 通过 HTTP 调用外部支付网关。
type RestyFundsGateway struct {
	client *resty.Client
}

func NewRestyFundsGateway(baseURL, apiKey string) *RestyFundsGateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetRetryCount(2).
		SetHeader("Authorization", "Bearer "+apiKey)
	return &RestyFundsGateway{client: client}
}

type verifyResponse struct {
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	PayerIdentity string `json:"payer_identity"`
}

// VerifyPayment 按引用核验一笔网关支付
func (g *RestyFundsGateway) VerifyPayment(ctx context.Context, reference string) (*domain.PaymentVerification, error) {
	var body verifyResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/v1/payments/" + reference)
	if err != nil {
		return nil, fmt.Errorf("gateway verify request: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return &domain.PaymentVerification{Success: false}, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("gateway verify: status %d", resp.StatusCode())
	}

	if body.Status != "succeeded" {
		return &domain.PaymentVerification{Success: false}, nil
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		return nil, fmt.Errorf("gateway verify: parse amount %q: %w", body.Amount, err)
	}
	return &domain.PaymentVerification{
		Success:       true,
		Amount:        amount,
		PayerIdentity: body.PayerIdentity,
	}, nil
}

type transferRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

type transferResponse struct {
	TransferID string `json:"transfer_id"`
}

// InitiateTransfer 发起出金，返回网关引用
func (g *RestyFundsGateway) InitiateTransfer(ctx context.Context, req *domain.TransferRequest) (string, error) {
	var body transferResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(transferRequest{
			Recipient: req.Recipient,
			Amount:    req.Amount.String(),
			Currency:  req.Currency,
		}).
		SetResult(&body).
		Post("/v1/transfers")
	if err != nil {
		return "", fmt.Errorf("gateway transfer request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("gateway transfer: status %d", resp.StatusCode())
	}
	if body.TransferID == "" {
		return "", fmt.Errorf("gateway transfer: empty transfer id")
	}
	return body.TransferID, nil
}
