// Package sales は決済イベントの取り込み（売上・参加登録の冪等アップサート）と
// バックフィルジョブを提供する。
package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/encore/internal/metrics"
	"github.com/hitoshi/encore/internal/model"
	"github.com/hitoshi/encore/internal/repository"
)

// ticketProductPrefix はチケット商品のproduct idプレフィックス。
// "ticket-<concertId>" 形式でコンサートを参照する。
const ticketProductPrefix = "ticket-"

// SpendCrediter は初回PAID遷移時の購入額クレジットのインターフェース。
type SpendCrediter interface {
	// CreditSpend は累計購入額を加算してティアを再計算する。
	CreditSpend(ctx context.Context, userID string, amountEur float64) (*model.TierProgress, error)
}

// Reconciler は決済イベントを売上レコードへ冪等に取り込む。
// 同一外部IDのイベント再取り込みは既存行の更新になり、
// チケット売上のPAID遷移では参加登録も同一トランザクションで更新する。
type Reconciler struct {
	userRepo    repository.UserRepository
	saleRepo    repository.SaleRepository
	concertRepo repository.ConcertRepository
	spend       SpendCrediter
	collector   metrics.MetricsCollector
}

// NewReconciler はReconcilerを生成する。
func NewReconciler(
	userRepo repository.UserRepository,
	saleRepo repository.SaleRepository,
	concertRepo repository.ConcertRepository,
	spend SpendCrediter,
	collector metrics.MetricsCollector,
) *Reconciler {
	return &Reconciler{
		userRepo:    userRepo,
		saleRepo:    saleRepo,
		concertRepo: concertRepo,
		spend:       spend,
		collector:   collector,
	}
}

// MapProviderStatus はプロバイダーのステータス語彙を内部ステータスへ変換する。
// 大文字小文字を区別せず、未知の値（空を含む）はPENDINGになる。
func MapProviderStatus(providerStatus string) model.SaleStatus {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "succeeded", "paid":
		return model.SaleStatusPaid
	case "canceled", "requires_payment_method", "unpaid":
		return model.SaleStatusFailed
	default:
		return model.SaleStatusPending
	}
}

// NormalizeEmail はメールアドレスを正規化（trim + 小文字化）する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DeriveItemType はproduct idのプレフィックスから商品種別を導出する。
func DeriveItemType(productID string) model.ItemType {
	if strings.HasPrefix(productID, ticketProductPrefix) {
		return model.ItemTypeTicket
	}
	return model.ItemTypeMerch
}

// Reconcile は1件の決済イベントを取り込む。
// メールアドレスが不正（@なし）な場合はValidationErrorを返し、
// バッチ呼び出し元はそのイベントだけをスキップして続行する。
func (r *Reconciler) Reconcile(ctx context.Context, event model.PaymentEvent) (*repository.SaleUpsertResult, error) {
	buyerEmail := NormalizeEmail(event.BuyerEmail)
	customerEmail := NormalizeEmail(event.CustomerEmail)
	if buyerEmail == "" {
		buyerEmail = customerEmail
	}

	if !strings.Contains(buyerEmail, "@") {
		r.collector.RecordSaleSkipped("invalid_email")
		return nil, model.NewValidationError("メールアドレスが不正です")
	}

	if event.PaymentIntentID == "" && event.SessionID == "" {
		r.collector.RecordSaleSkipped("missing_external_id")
		return nil, model.NewValidationError("決済イベントに外部IDがありません")
	}

	// 初めて観測したメールアドレスのユーザーを遅延作成する
	user, err := r.userRepo.UpsertByEmail(ctx, buyerEmail, event.CustomerName, "", "stripe")
	if err != nil {
		return nil, fmt.Errorf("購入ユーザーのアップサートに失敗しました: %w", err)
	}

	status := MapProviderStatus(event.ProviderStatus)
	sale := &model.Sale{
		CreatedAt:       event.CreatedAt,
		UserEmail:       buyerEmail,
		CustomerEmail:   customerEmail,
		CustomerName:    event.CustomerName,
		ProductID:       event.ProductID,
		ProductName:     event.ProductName,
		ItemType:        DeriveItemType(event.ProductID),
		AmountEur:       event.AmountEur,
		Status:          status,
		StripeSessionID: event.SessionID,
		PaymentIntentID: event.PaymentIntentID,
	}

	// PAIDのチケット売上で参照先コンサートが存在する場合のみ参加登録を組み立てる。
	// コンサート不在はエラーではなく登録なしの取り込みになる。
	var reg *model.ConcertRegistration
	if status == model.SaleStatusPaid && sale.ItemType == model.ItemTypeTicket {
		concertID := strings.TrimPrefix(event.ProductID, ticketProductPrefix)
		concert, err := r.concertRepo.FindByID(ctx, concertID)
		if err != nil {
			return nil, fmt.Errorf("コンサートの取得に失敗しました: %w", err)
		}
		if concert != nil {
			reg = &model.ConcertRegistration{
				UserEmail: buyerEmail,
				UserName:  event.CustomerName,
				Status:    model.RegistrationStatusPurchased,
				Source:    model.RegistrationSourcePurchase,
				ConcertID: concert.ID,
			}
		}
	}

	result, err := r.saleRepo.UpsertWithRegistration(ctx, sale, reg)
	if err != nil {
		return nil, fmt.Errorf("売上のアップサートに失敗しました: %w", err)
	}

	// 初めてPAIDへ遷移したイベントだけが購入額としてクレジットされる
	if result.FirstPaid && r.spend != nil {
		if _, err := r.spend.CreditSpend(ctx, user.ID, event.AmountEur); err != nil {
			return nil, fmt.Errorf("購入額のクレジットに失敗しました: %w", err)
		}
	}

	r.collector.RecordSaleImported()
	slog.Info("payment event reconciled",
		slog.String("sale_id", result.Sale.ID),
		slog.String("user_email", buyerEmail),
		slog.String("status", string(result.Sale.Status)),
		slog.Bool("created", result.Created),
		slog.Bool("first_paid", result.FirstPaid),
	)

	return result, nil
}
