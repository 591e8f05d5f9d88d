// Package payment は決済プロバイダー（Stripe）のイベントフィード取得を提供する。
// チェックアウトセッションと決済インテントの一覧APIを呼び出し、
// 取り込み用の正規化前イベントに変換する。
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hitoshi/encore/internal/model"
)

const (
	// defaultBaseURL はStripe APIのベースURL。
	defaultBaseURL = "https://api.stripe.com"
	// maxPageSize は1リクエストあたりの最大取得件数（Stripeの上限）。
	maxPageSize = 100
)

// StripeClient はStripe APIのクライアント。
type StripeClient struct {
	httpClient *http.Client
	apiKey     string
	logger     *slog.Logger
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewStripeClient はStripeClientの新しいインスタンスを生成する。
func NewStripeClient(httpClient *http.Client, apiKey string, logger *slog.Logger) *StripeClient {
	return &StripeClient{
		httpClient: httpClient,
		apiKey:     apiKey,
		logger:     logger,
		baseURL:    defaultBaseURL,
	}
}

// stripeList はStripeの一覧レスポンスの共通エンベロープ。
type stripeList struct {
	Data    []json.RawMessage `json:"data"`
	HasMore bool              `json:"has_more"`
}

// checkoutSession はチェックアウトセッションの取り込みに必要なフィールド。
type checkoutSession struct {
	ID              string            `json:"id"`
	AmountTotal     int64             `json:"amount_total"` // セント単位
	Created         int64             `json:"created"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *customerDetails  `json:"customer_details"`
	Metadata        map[string]string `json:"metadata"`
	PaymentIntent   string            `json:"payment_intent"`
	PaymentStatus   string            `json:"payment_status"`
}

type customerDetails struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// paymentIntent は決済インテントの取り込みに必要なフィールド。
type paymentIntent struct {
	ID           string            `json:"id"`
	Amount       int64             `json:"amount"` // セント単位
	Created      int64             `json:"created"`
	ReceiptEmail string            `json:"receipt_email"`
	Metadata     map[string]string `json:"metadata"`
	Status       string            `json:"status"`
}

// ListCheckoutSessionEvents はチェックアウトセッションを1ページ分取得して
// 取り込み用イベントに変換する。戻り値は(イベント列, 次ページカーソル, 続きの有無)。
func (c *StripeClient) ListCheckoutSessionEvents(ctx context.Context, startingAfter string, limit int) ([]model.PaymentEvent, string, bool, error) {
	raws, hasMore, err := c.list(ctx, "/v1/checkout/sessions", startingAfter, limit)
	if err != nil {
		return nil, "", false, err
	}

	events := make([]model.PaymentEvent, 0, len(raws))
	var lastID string
	for _, raw := range raws {
		// パースに失敗したアイテムでもカーソルは前進させる。
		// 末尾のアイテムが壊れていた場合に同じページを再取得し続けないため。
		if id := rawItemID(raw); id != "" {
			lastID = id
		}

		var sess checkoutSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			c.logger.Error("チェックアウトセッションのパースに失敗しました",
				slog.String("error", err.Error()),
			)
			continue
		}

		email := sess.CustomerEmail
		name := ""
		if sess.CustomerDetails != nil {
			if sess.CustomerDetails.Email != "" {
				email = sess.CustomerDetails.Email
			}
			name = sess.CustomerDetails.Name
		}

		events = append(events, model.PaymentEvent{
			BuyerEmail:      email,
			CustomerEmail:   email,
			CustomerName:    name,
			ProductID:       sess.Metadata["productId"],
			ProductName:     sess.Metadata["productName"],
			AmountEur:       float64(sess.AmountTotal) / 100,
			PaymentIntentID: sess.PaymentIntent,
			SessionID:       sess.ID,
			ProviderStatus:  sess.PaymentStatus,
			CreatedAt:       time.Unix(sess.Created, 0).UTC(),
		})
	}

	return events, lastID, hasMore, nil
}

// ListPaymentIntentEvents は決済インテントを1ページ分取得して
// 取り込み用イベントに変換する。戻り値は(イベント列, 次ページカーソル, 続きの有無)。
func (c *StripeClient) ListPaymentIntentEvents(ctx context.Context, startingAfter string, limit int) ([]model.PaymentEvent, string, bool, error) {
	raws, hasMore, err := c.list(ctx, "/v1/payment_intents", startingAfter, limit)
	if err != nil {
		return nil, "", false, err
	}

	events := make([]model.PaymentEvent, 0, len(raws))
	var lastID string
	for _, raw := range raws {
		if id := rawItemID(raw); id != "" {
			lastID = id
		}

		var pi paymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			c.logger.Error("決済インテントのパースに失敗しました",
				slog.String("error", err.Error()),
			)
			continue
		}

		events = append(events, model.PaymentEvent{
			BuyerEmail:      pi.ReceiptEmail,
			CustomerEmail:   pi.ReceiptEmail,
			ProductID:       pi.Metadata["productId"],
			ProductName:     pi.Metadata["productName"],
			AmountEur:       float64(pi.Amount) / 100,
			PaymentIntentID: pi.ID,
			ProviderStatus:  pi.Status,
			CreatedAt:       time.Unix(pi.Created, 0).UTC(),
		})
	}

	return events, lastID, hasMore, nil
}

// rawItemID は一覧アイテムのidフィールドだけを取り出す。
// 本体のパースに失敗したアイテムを読み飛ばす際のカーソル前進に使う。
func rawItemID(raw json.RawMessage) string {
	var item struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return ""
	}
	return item.ID
}

// list は一覧APIを呼び出してエンベロープを解いた生データを返す。
func (c *StripeClient) list(ctx context.Context, path, startingAfter string, limit int) ([]json.RawMessage, bool, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	reqURL, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, false, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}

	q := reqURL.Query()
	q.Set("limit", strconv.Itoa(limit))
	if startingAfter != "" {
		q.Set("starting_after", startingAfter)
	}
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, false, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Stripe APIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Stripe APIがエラーステータスを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, false, fmt.Errorf("Stripe APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var envelope stripeList
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return envelope.Data, envelope.HasMore, nil
}
