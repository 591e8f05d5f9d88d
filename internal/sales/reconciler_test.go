package sales

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/encore/internal/metrics"
	"github.com/hitoshi/encore/internal/model"
	"github.com/hitoshi/encore/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	upsertByEmailFn func(ctx context.Context, email, name, pictureURL, provider string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	return nil
}
func (m *mockUserRepo) UpsertByEmail(ctx context.Context, email, name, pictureURL, provider string) (*model.User, error) {
	if m.upsertByEmailFn != nil {
		return m.upsertByEmailFn(ctx, email, name, pictureURL, provider)
	}
	return &model.User{ID: "user-1", Email: email, Name: name}, nil
}
func (m *mockUserRepo) SetOnboarded(ctx context.Context, id string, onboarded bool) error {
	return nil
}

type mockSaleRepo struct {
	upsertFn func(ctx context.Context, sale *model.Sale, reg *model.ConcertRegistration) (*repository.SaleUpsertResult, error)
}

func (m *mockSaleRepo) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*model.Sale, error) {
	return nil, nil
}
func (m *mockSaleRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.Sale, error) {
	return nil, nil
}
func (m *mockSaleRepo) UpsertWithRegistration(ctx context.Context, sale *model.Sale, reg *model.ConcertRegistration) (*repository.SaleUpsertResult, error) {
	return m.upsertFn(ctx, sale, reg)
}
func (m *mockSaleRepo) ListByUserEmail(ctx context.Context, email string, limit int) ([]*model.Sale, error) {
	return nil, nil
}

type mockConcertRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Concert, error)
}

func (m *mockConcertRepo) FindByID(ctx context.Context, id string) (*model.Concert, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockConcertRepo) List(ctx context.Context, activeOnly bool) ([]*model.Concert, error) {
	return nil, nil
}
func (m *mockConcertRepo) Create(ctx context.Context, concert *model.Concert) error { return nil }
func (m *mockConcertRepo) Update(ctx context.Context, concert *model.Concert) error { return nil }

type spendCall struct {
	userID    string
	amountEur float64
}

type mockSpendCrediter struct {
	calls []spendCall
}

func (m *mockSpendCrediter) CreditSpend(ctx context.Context, userID string, amountEur float64) (*model.TierProgress, error) {
	m.calls = append(m.calls, spendCall{userID: userID, amountEur: amountEur})
	return &model.TierProgress{UserID: userID}, nil
}

func paidEvent() model.PaymentEvent {
	return model.PaymentEvent{
		BuyerEmail:      "Fan@Example.COM ",
		CustomerEmail:   "fan@example.com",
		CustomerName:    "Alex Fan",
		ProductID:       "merch-tote",
		ProductName:     "Tote Bag",
		AmountEur:       25,
		PaymentIntentID: "pi_123",
		ProviderStatus:  "succeeded",
		CreatedAt:       time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

// --- テスト ---

// TestMapProviderStatus はプロバイダー語彙から内部ステータスへの変換を検証する。
func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		in   string
		want model.SaleStatus
	}{
		{"succeeded", model.SaleStatusPaid},
		{"paid", model.SaleStatusPaid},
		{"PAID", model.SaleStatusPaid},
		{" Succeeded ", model.SaleStatusPaid},
		{"canceled", model.SaleStatusFailed},
		{"requires_payment_method", model.SaleStatusFailed},
		{"unpaid", model.SaleStatusFailed},
		{"processing", model.SaleStatusPending},
		{"", model.SaleStatusPending},
	}

	for _, tt := range tests {
		if got := MapProviderStatus(tt.in); got != tt.want {
			t.Errorf("MapProviderStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestDeriveItemType はproduct idプレフィックスからの種別導出を検証する。
func TestDeriveItemType(t *testing.T) {
	if got := DeriveItemType("ticket-abc"); got != model.ItemTypeTicket {
		t.Errorf("DeriveItemType(ticket-abc) = %q, want ticket", got)
	}
	if got := DeriveItemType("tote-bag"); got != model.ItemTypeMerch {
		t.Errorf("DeriveItemType(tote-bag) = %q, want merch", got)
	}
	if got := DeriveItemType(""); got != model.ItemTypeMerch {
		t.Errorf("DeriveItemType(empty) = %q, want merch", got)
	}
}

// TestReconcile_NormalizesEmail はメールアドレスの正規化と売上の組み立てを検証する。
func TestReconcile_NormalizesEmail(t *testing.T) {
	var gotSale *model.Sale
	saleRepo := &mockSaleRepo{
		upsertFn: func(ctx context.Context, sale *model.Sale, reg *model.ConcertRegistration) (*repository.SaleUpsertResult, error) {
			gotSale = sale
			return &repository.SaleUpsertResult{Sale: sale, Created: true, FirstPaid: true}, nil
		},
	}

	r := NewReconciler(&mockUserRepo{}, saleRepo, &mockConcertRepo{}, nil, metrics.NopCollector{})

	result, err := r.Reconcile(context.Background(), paidEvent())
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if !result.Created {
		t.Error("Created = false, want true")
	}
	if gotSale.UserEmail != "fan@example.com" {
		t.Errorf("UserEmail = %q, want normalized %q", gotSale.UserEmail, "fan@example.com")
	}
	if gotSale.Status != model.SaleStatusPaid {
		t.Errorf("Status = %q, want PAID", gotSale.Status)
	}
	if gotSale.ItemType != model.ItemTypeMerch {
		t.Errorf("ItemType = %q, want merch", gotSale.ItemType)
	}
}

// TestReconcile_InvalidEmail は@を含まないメールアドレスの拒否を検証する。
func TestReconcile_InvalidEmail(t *testing.T) {
	r := NewReconciler(&mockUserRepo{}, &mockSaleRepo{}, &mockConcertRepo{}, nil, metrics.NopCollector{})

	event := paidEvent()
	event.BuyerEmail = "not-an-email"
	event.CustomerEmail = ""

	_, err := r.Reconcile(context.Background(), event)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeValidation {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeValidation)
	}
}

// TestReconcile_MissingExternalID は外部IDなしイベントの拒否を検証する。
func TestReconcile_MissingExternalID(t *testing.T) {
	r := NewReconciler(&mockUserRepo{}, &mockSaleRepo{}, &mockConcertRepo{}, nil, metrics.NopCollector{})

	event := paidEvent()
	event.PaymentIntentID = ""
	event.SessionID = ""

	_, err := r.Reconcile(context.Background(), event)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// TestReconcile_BuyerEmailFallback はbuyer emailが空の場合にcustomer emailへ
// フォールバックすることを検証する。
func TestReconcile_BuyerEmailFallback(t *testing.T) {
	var gotSale *model.Sale
	saleRepo := &mockSaleRepo{
		upsertFn: func(ctx context.Context, sale *model.Sale, reg *model.ConcertRegistration) (*repository.SaleUpsertResult, error) {
			gotSale = sale
			return &repository.SaleUpsertResult{Sale: sale}, nil
		},
	}

	r := NewReconciler(&mockUserRepo{}, saleRepo, &mockConcertRepo{}, nil, metrics.NopCollector{})

	event := paidEvent()
	event.BuyerEmail = ""

	if _, err := r.Reconcile(context.Background(), event); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if gotSale.UserEmail != "fan@example.com" {
		t.Errorf("UserEmail = %q, want fallback to customer email", gotSale.UserEmail)
	}
}

// TestReconcile_TicketBuildsRegistration はPAIDチケット売上で参加登録が
// 組み立てられることを検証する。
func TestReconcile_TicketBuildsRegistration(t *testing.T) {
	var gotReg *model.ConcertRegistration
	saleRepo := &mockSaleRepo{
		upsertFn: func(ctx context.Context, sale *model.Sale, reg *model.ConcertRegistration) (*repository.SaleUpsertResult, error) {
			gotReg = reg
			return &repository.SaleUpsertResult{Sale: sale, FirstPaid: true}, nil
		},
	}
	concertRepo := &mockConcertRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Concert, error) {
			if id != "summer-fest" {
				t.Errorf("FindByID concertID = %q, want %q", id, "summer-fest")
			}
			return &model.Concert{ID: id, Title: "Summer Fest"}, nil
		},
	}

	r := NewReconciler(&mockUserRepo{}, saleRepo, concertRepo, nil, metrics.NopCollector{})

	event := paidEvent()
	event.ProductID = "ticket-summer-fest"

	if _, err := r.Reconcile(context.Background(), event); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if gotReg == nil {
		t.Fatal("expected registration, got nil")
	}
	if gotReg.ConcertID != "summer-fest" || gotReg.UserEmail != "fan@example.com" {
		t.Errorf("registration = %+v, want concert summer-fest for fan@example.com", gotReg)
	}
	if gotReg.Status != model.RegistrationStatusPurchased || gotReg.Source != model.RegistrationSourcePurchase {
		t.Errorf("registration status/source = %q/%q, want PURCHASED/PURCHASE", gotReg.Status, gotReg.Source)
	}
}

// TestReconcile_TicketUnknownConcert は参照先コンサート不在時に
// 登録なしで取り込まれることを検証する。
func TestReconcile_TicketUnknownConcert(t *testing.T) {
	var gotReg *model.ConcertRegistration
	regSeen := false
	saleRepo := &mockSaleRepo{
		upsertFn: func(ctx context.Context, sale *model.Sale, reg *model.ConcertRegistration) (*repository.SaleUpsertResult, error) {
			gotReg = reg
			regSeen = true
			return &repository.SaleUpsertResult{Sale: sale}, nil
		},
	}

	r := NewReconciler(&mockUserRepo{}, saleRepo, &mockConcertRepo{}, nil, metrics.NopCollector{})

	event := paidEvent()
	event.ProductID = "ticket-unknown"

	if _, err := r.Reconcile(context.Background(), event); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if !regSeen || gotReg != nil {
		t.Errorf("expected upsert with nil registration, got %+v", gotReg)
	}
}

// TestReconcile_PendingTicketNoRegistration はPAID以外のチケット売上では
// 参加登録が作られないことを検証する。
func TestReconcile_PendingTicketNoRegistration(t *testing.T) {
	concertLookups := 0
	concertRepo := &mockConcertRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Concert, error) {
			concertLookups++
			return &model.Concert{ID: id}, nil
		},
	}
	saleRepo := &mockSaleRepo{
		upsertFn: func(ctx context.Context, sale *model.Sale, reg *model.ConcertRegistration) (*repository.SaleUpsertResult, error) {
			if reg != nil {
				t.Error("registration should be nil for non-PAID sales")
			}
			return &repository.SaleUpsertResult{Sale: sale}, nil
		},
	}

	r := NewReconciler(&mockUserRepo{}, saleRepo, concertRepo, nil, metrics.NopCollector{})

	event := paidEvent()
	event.ProductID = "ticket-summer-fest"
	event.ProviderStatus = "processing"

	if _, err := r.Reconcile(context.Background(), event); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if concertLookups != 0 {
		t.Errorf("concert lookups = %d, want 0", concertLookups)
	}
}

// TestReconcile_CreditsSpendOnFirstPaid は初回PAID遷移時のみ購入額が
// クレジットされることを検証する。
func TestReconcile_CreditsSpendOnFirstPaid(t *testing.T) {
	firstPaid := true
	saleRepo := &mockSaleRepo{
		upsertFn: func(ctx context.Context, sale *model.Sale, reg *model.ConcertRegistration) (*repository.SaleUpsertResult, error) {
			return &repository.SaleUpsertResult{Sale: sale, FirstPaid: firstPaid}, nil
		},
	}
	spend := &mockSpendCrediter{}

	r := NewReconciler(&mockUserRepo{}, saleRepo, &mockConcertRepo{}, spend, metrics.NopCollector{})

	// 1回目: 初回PAID遷移でクレジットされる
	if _, err := r.Reconcile(context.Background(), paidEvent()); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if len(spend.calls) != 1 {
		t.Fatalf("expected 1 credit call, got %d", len(spend.calls))
	}
	if spend.calls[0].userID != "user-1" || spend.calls[0].amountEur != 25 {
		t.Errorf("credit call = %+v, want user-1 / 25", spend.calls[0])
	}

	// 2回目: 同一イベントの再取り込みではクレジットされない
	firstPaid = false
	if _, err := r.Reconcile(context.Background(), paidEvent()); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if len(spend.calls) != 1 {
		t.Errorf("expected credit calls to stay at 1, got %d", len(spend.calls))
	}
}
