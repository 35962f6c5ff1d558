package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/response"
	"github.com/wyfcoding/walletledger/internal/wallet/application"
	"github.com/wyfcoding/walletledger/internal/wallet/domain"
)

// WalletHandler HTTP 处理器
type WalletHandler struct {
	service *application.WalletService
}

// NewWalletHandler 创建 HTTP 处理器
func NewWalletHandler(service *application.WalletService) *WalletHandler {
	return &WalletHandler{service: service}
}

// RegisterRoutes 注册路由
func (h *WalletHandler) RegisterRoutes(router *gin.RouterGroup) {
	wallet := router.Group("/v1/wallet")
	{
		wallet.GET("/accounts/:id/balance", h.GetBalance)
		wallet.GET("/accounts/:id", h.GetAccount)
		wallet.GET("/accounts/:id/journal", h.GetJournal)
		wallet.POST("/credit", h.Credit)
		wallet.POST("/debit", h.Debit)
		wallet.POST("/orders/payment", h.ProcessOrderPayment)
		wallet.POST("/orders/:id/release", h.ReleaseEscrow)
		wallet.POST("/orders/:id/refund", h.RefundEscrow)
		wallet.POST("/accounts/:id/lock", h.LockAccount)
		wallet.POST("/accounts/:id/unlock", h.UnlockAccount)
		wallet.POST("/topup/confirm", h.ConfirmTopup)
		wallet.POST("/accounts/:id/withdraw", h.Withdraw)
	}
}

// CreditRequest 入账请求
type CreditRequest struct {
	AccountID string         `json:"account_id" binding:"required"`
	UserID    string         `json:"user_id"`
	Currency  string         `json:"currency"`
	Amount    string         `json:"amount" binding:"required"`
	Reference string         `json:"reference" binding:"required"`
	Category  string         `json:"category"`
	Metadata  map[string]any `json:"metadata"`
}

// Credit 入账
func (h *WalletHandler) Credit(c *gin.Context) {
	var req CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid amount", "")
		return
	}

	result, err := h.service.Credit(c.Request.Context(), application.CreditCommand{
		AccountID: req.AccountID,
		UserID:    req.UserID,
		Currency:  req.Currency,
		Amount:    amount,
		Reference: req.Reference,
		Category:  domain.EntryCategory(req.Category),
		Metadata:  req.Metadata,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// DebitRequest 扣款请求
type DebitRequest struct {
	AccountID   string         `json:"account_id" binding:"required"`
	Amount      string         `json:"amount" binding:"required"`
	Reference   string         `json:"reference" binding:"required"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Metadata    map[string]any `json:"metadata"`
}

// Debit 扣款
func (h *WalletHandler) Debit(c *gin.Context) {
	var req DebitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid amount", "")
		return
	}

	result, err := h.service.Debit(c.Request.Context(), application.DebitCommand{
		AccountID:   req.AccountID,
		Amount:      amount,
		Reference:   req.Reference,
		Description: req.Description,
		Category:    domain.EntryCategory(req.Category),
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// OrderPaymentRequest 订单支付请求
type OrderPaymentRequest struct {
	OrderID         string `json:"order_id" binding:"required"`
	BuyerAccountID  string `json:"buyer_account_id" binding:"required"`
	SellerAccountID string `json:"seller_account_id" binding:"required"`
	SellerUserID    string `json:"seller_user_id"`
	Currency        string `json:"currency"`
	Total           string `json:"total" binding:"required"`
	Commission      string `json:"commission" binding:"required"`
}

// ProcessOrderPayment 订单支付（资金进入托管）
func (h *WalletHandler) ProcessOrderPayment(c *gin.Context) {
	var req OrderPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	total, err := decimal.NewFromString(req.Total)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid total", "")
		return
	}
	commission, err := decimal.NewFromString(req.Commission)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid commission", "")
		return
	}

	result, err := h.service.ProcessOrderPayment(c.Request.Context(), application.OrderPaymentCommand{
		OrderID:         req.OrderID,
		BuyerAccountID:  req.BuyerAccountID,
		SellerAccountID: req.SellerAccountID,
		SellerUserID:    req.SellerUserID,
		Currency:        req.Currency,
		Total:           total,
		Commission:      commission,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ReleaseEscrow 托管放款
func (h *WalletHandler) ReleaseEscrow(c *gin.Context) {
	orderID := c.Param("id")
	if orderID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "order_id is required", "")
		return
	}

	result, err := h.service.ReleaseEscrow(c.Request.Context(), application.ReleaseEscrowCommand{OrderID: orderID})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// RefundRequest 托管退款请求
type RefundRequest struct {
	Reason string `json:"reason"`
}

// RefundEscrow 托管退款
func (h *WalletHandler) RefundEscrow(c *gin.Context) {
	orderID := c.Param("id")
	if orderID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "order_id is required", "")
		return
	}
	var req RefundRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.service.RefundEscrow(c.Request.Context(), application.RefundEscrowCommand{
		OrderID: orderID,
		Reason:  req.Reason,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// GetBalance 查询余额
func (h *WalletHandler) GetBalance(c *gin.Context) {
	dto, err := h.service.GetBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, dto)
}

// GetAccount 查询账户详情（含最近流水）
func (h *WalletHandler) GetAccount(c *gin.Context) {
	dto, err := h.service.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, dto)
}

// GetJournal 查询流水分页列表
func (h *WalletHandler) GetJournal(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, total, err := h.service.GetJournal(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"entries": entries, "total": total})
}

// LockRequest 冻结请求
type LockRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// LockAccount 冻结账户
func (h *WalletHandler) LockAccount(c *gin.Context) {
	var req LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	if err := h.service.LockAccount(c.Request.Context(), application.LockAccountCommand{
		AccountID: c.Param("id"),
		Reason:    req.Reason,
	}); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"locked": true})
}

// UnlockAccount 解冻账户
func (h *WalletHandler) UnlockAccount(c *gin.Context) {
	if err := h.service.UnlockAccount(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"locked": false})
}

// TopupConfirmRequest 充值确认请求
type TopupConfirmRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	UserID    string `json:"user_id"`
	Currency  string `json:"currency"`
	Reference string `json:"reference" binding:"required"`
}

// ConfirmTopup 核验网关支付并入账
func (h *WalletHandler) ConfirmTopup(c *gin.Context) {
	var req TopupConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	result, err := h.service.ConfirmTopup(c.Request.Context(), application.TopupConfirmCommand{
		AccountID: req.AccountID,
		UserID:    req.UserID,
		Currency:  req.Currency,
		Reference: req.Reference,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// WithdrawRequest 出金请求
type WithdrawRequest struct {
	Amount    string `json:"amount" binding:"required"`
	Currency  string `json:"currency"`
	Recipient string `json:"recipient" binding:"required"`
	Reference string `json:"reference" binding:"required"`
}

// Withdraw 出金
func (h *WalletHandler) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid amount", "")
		return
	}

	result, err := h.service.Withdraw(c.Request.Context(), application.WithdrawCommand{
		AccountID: c.Param("id"),
		Amount:    amount,
		Currency:  req.Currency,
		Recipient: req.Recipient,
		Reference: req.Reference,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// writeError 领域错误到 HTTP 状态码的映射
func (h *WalletHandler) writeError(c *gin.Context, err error) {
	var insufficient *domain.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		response.ErrorWithStatus(c, http.StatusUnprocessableEntity, insufficient.Error(), "")
	case errors.Is(err, domain.ErrAccountLocked):
		response.ErrorWithStatus(c, http.StatusLocked, err.Error(), "")
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrOrderNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrLockHeld):
		response.ErrorWithStatus(c, http.StatusConflict, err.Error(), "")
	case errors.Is(err, domain.ErrEscrowResolved):
		response.ErrorWithStatus(c, http.StatusConflict, err.Error(), "")
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidCommission):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, domain.ErrPaymentNotVerified):
		response.ErrorWithStatus(c, http.StatusUnprocessableEntity, err.Error(), "")
	default:
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
	}
}
