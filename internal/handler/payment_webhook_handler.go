package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/hitoshi/encore/internal/model"
	"github.com/hitoshi/encore/internal/repository"
)

// webhookSecretHeader は決済イベント受信エンドポイントの共有シークレットヘッダー。
const webhookSecretHeader = "X-Webhook-Secret"

// PaymentEventIngester は決済イベント1件の取り込みインターフェース。
type PaymentEventIngester interface {
	Reconcile(ctx context.Context, event model.PaymentEvent) (*repository.SaleUpsertResult, error)
}

// PaymentWebhookHandler は決済プロバイダーからのイベント通知を受け付ける
// HTTPハンドラー。セッション認証の外に置かれ、共有シークレットで保護される。
type PaymentWebhookHandler struct {
	ingester PaymentEventIngester
	secret   string
}

// NewPaymentWebhookHandler はPaymentWebhookHandlerを生成する。
// secretが空の場合、シークレット検証はスキップされる（開発環境向け）。
func NewPaymentWebhookHandler(ingester PaymentEventIngester, secret string) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{
		ingester: ingester,
		secret:   secret,
	}
}

// paymentEventRequest は決済イベント通知リクエストのボディ。
type paymentEventRequest struct {
	BuyerEmail      string    `json:"buyer_email"`
	CustomerEmail   string    `json:"customer_email"`
	CustomerName    string    `json:"customer_name"`
	ProductID       string    `json:"product_id"`
	ProductName     string    `json:"product_name"`
	AmountEur       float64   `json:"amount_eur"`
	PaymentIntentID string    `json:"payment_intent_id"`
	SessionID       string    `json:"session_id"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// HandleEvent は決済イベント1件を取り込む。
// 同一外部IDの再送は既存売上の更新になる（冪等）。
// POST /webhooks/payment
func (h *PaymentWebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		provided := r.Header.Get(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	var req paymentEventRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := h.ingester.Reconcile(r.Context(), model.PaymentEvent{
		BuyerEmail:      req.BuyerEmail,
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		ProductID:       req.ProductID,
		ProductName:     req.ProductName,
		AmountEur:       req.AmountEur,
		PaymentIntentID: req.PaymentIntentID,
		SessionID:       req.SessionID,
		ProviderStatus:  req.Status,
		CreatedAt:       createdAt,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sale_id": result.Sale.ID,
		"status":  string(result.Sale.Status),
		"created": result.Created,
	})
}
