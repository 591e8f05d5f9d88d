package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/encore/internal/model"
	"github.com/hitoshi/encore/internal/security"
)

// --- モック ---

type mockItemRepo struct {
	items   map[string]*model.StoreItem
	listFn  func(ctx context.Context, activeOnly bool) ([]*model.StoreItem, error)
	created []*model.StoreItem
	updated []*model.StoreItem
}

func (m *mockItemRepo) FindByID(ctx context.Context, id string) (*model.StoreItem, error) {
	return m.items[id], nil
}
func (m *mockItemRepo) List(ctx context.Context, activeOnly bool) ([]*model.StoreItem, error) {
	if m.listFn != nil {
		return m.listFn(ctx, activeOnly)
	}
	return nil, nil
}
func (m *mockItemRepo) Create(ctx context.Context, item *model.StoreItem) error {
	m.created = append(m.created, item)
	return nil
}
func (m *mockItemRepo) Update(ctx context.Context, item *model.StoreItem) error {
	m.updated = append(m.updated, item)
	return nil
}

type mockConcertRepo struct {
	concerts map[string]*model.Concert
	created  []*model.Concert
}

func (m *mockConcertRepo) FindByID(ctx context.Context, id string) (*model.Concert, error) {
	return m.concerts[id], nil
}
func (m *mockConcertRepo) List(ctx context.Context, activeOnly bool) ([]*model.Concert, error) {
	return nil, nil
}
func (m *mockConcertRepo) Create(ctx context.Context, concert *model.Concert) error {
	m.created = append(m.created, concert)
	return nil
}
func (m *mockConcertRepo) Update(ctx context.Context, concert *model.Concert) error { return nil }

type mockLiveRepo struct {
	lives   map[string]*model.Live
	created []*model.Live
}

func (m *mockLiveRepo) FindByID(ctx context.Context, id string) (*model.Live, error) {
	return m.lives[id], nil
}
func (m *mockLiveRepo) List(ctx context.Context, activeOnly bool) ([]*model.Live, error) {
	return nil, nil
}
func (m *mockLiveRepo) Create(ctx context.Context, live *model.Live) error {
	m.created = append(m.created, live)
	return nil
}
func (m *mockLiveRepo) Update(ctx context.Context, live *model.Live) error { return nil }
func (m *mockLiveRepo) UpsertByFeedGUID(ctx context.Context, live *model.Live) (bool, error) {
	return false, nil
}

func artist() *model.User {
	return &model.User{ID: "artist-1", Role: model.RoleArtist}
}

func fan() *model.User {
	return &model.User{ID: "fan-1", Role: model.RoleFan}
}

func newTestService(items *mockItemRepo, concerts *mockConcertRepo, lives *mockLiveRepo) *Service {
	return NewService(items, concerts, lives, security.NewContentSanitizer())
}

// --- テスト ---

// TestCreateStoreItem_SanitizesDescription は説明文HTMLのサニタイズを検証する。
func TestCreateStoreItem_SanitizesDescription(t *testing.T) {
	items := &mockItemRepo{}
	svc := newTestService(items, &mockConcertRepo{}, &mockLiveRepo{})

	item := &model.StoreItem{
		Name:        "Tour Tee",
		PriceEur:    30,
		Description: `<p>limited</p><script>alert("x")</script>`,
	}

	got, err := svc.CreateStoreItem(context.Background(), artist(), item)
	if err != nil {
		t.Fatalf("CreateStoreItem returned error: %v", err)
	}
	if strings.Contains(got.Description, "<script>") {
		t.Errorf("Description should be sanitized, got %q", got.Description)
	}
	if !strings.Contains(got.Description, "limited") {
		t.Errorf("benign content should survive, got %q", got.Description)
	}
	if len(items.created) != 1 {
		t.Errorf("created items = %d, want 1", len(items.created))
	}
}

// TestCreateStoreItem_ForbiddenForFan は一般ユーザーの編集拒否を検証する。
func TestCreateStoreItem_ForbiddenForFan(t *testing.T) {
	svc := newTestService(&mockItemRepo{}, &mockConcertRepo{}, &mockLiveRepo{})

	_, err := svc.CreateStoreItem(context.Background(), fan(), &model.StoreItem{Name: "x", PriceEur: 1})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}

	_, err = svc.CreateStoreItem(context.Background(), nil, &model.StoreItem{Name: "x", PriceEur: 1})
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeForbidden {
		t.Fatalf("expected FORBIDDEN for nil actor, got %v", err)
	}
}

// TestCreateStoreItem_Validation は必須項目と価格の検証を行う。
func TestCreateStoreItem_Validation(t *testing.T) {
	svc := newTestService(&mockItemRepo{}, &mockConcertRepo{}, &mockLiveRepo{})

	var apiErr *model.APIError
	if _, err := svc.CreateStoreItem(context.Background(), artist(), &model.StoreItem{PriceEur: 1}); !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Errorf("expected validation error for empty name, got %v", err)
	}
	if _, err := svc.CreateStoreItem(context.Background(), artist(), &model.StoreItem{Name: "x", PriceEur: -1}); !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Errorf("expected validation error for negative price, got %v", err)
	}
}

// TestUpdateStoreItem_NotFound は存在しない商品の更新拒否を検証する。
func TestUpdateStoreItem_NotFound(t *testing.T) {
	svc := newTestService(&mockItemRepo{}, &mockConcertRepo{}, &mockLiveRepo{})

	_, err := svc.UpdateStoreItem(context.Background(), artist(), &model.StoreItem{ID: "missing", Name: "x"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeItemNotFound {
		t.Fatalf("expected ITEM_NOT_FOUND, got %v", err)
	}
}

// TestListStoreItems_Visibility は一般向け一覧が有効な商品のみになることを検証する。
func TestListStoreItems_Visibility(t *testing.T) {
	var gotActiveOnly bool
	items := &mockItemRepo{
		listFn: func(ctx context.Context, activeOnly bool) ([]*model.StoreItem, error) {
			gotActiveOnly = activeOnly
			return nil, nil
		},
	}
	svc := newTestService(items, &mockConcertRepo{}, &mockLiveRepo{})

	if _, err := svc.ListStoreItems(context.Background(), false); err != nil {
		t.Fatalf("ListStoreItems returned error: %v", err)
	}
	if !gotActiveOnly {
		t.Error("fan listing should query active items only")
	}

	if _, err := svc.ListStoreItems(context.Background(), true); err != nil {
		t.Fatalf("ListStoreItems returned error: %v", err)
	}
	if gotActiveOnly {
		t.Error("staff listing should include inactive items")
	}
}

// TestGetConcert_NotFound は存在しないコンサートの参照を検証する。
func TestGetConcert_NotFound(t *testing.T) {
	svc := newTestService(&mockItemRepo{}, &mockConcertRepo{}, &mockLiveRepo{})

	_, err := svc.GetConcert(context.Background(), "missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeConcertNotFound {
		t.Fatalf("expected CONCERT_NOT_FOUND, got %v", err)
	}
}

// TestCreateConcert_RequiresStartsAt は開催日時必須の検証を行う。
func TestCreateConcert_RequiresStartsAt(t *testing.T) {
	concerts := &mockConcertRepo{}
	svc := newTestService(&mockItemRepo{}, concerts, &mockLiveRepo{})

	_, err := svc.CreateConcert(context.Background(), artist(), &model.Concert{Title: "Summer Fest"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Fatalf("expected validation error for zero StartsAt, got %v", err)
	}

	concert := &model.Concert{Title: "Summer Fest", StartsAt: time.Now().Add(30 * 24 * time.Hour)}
	if _, err := svc.CreateConcert(context.Background(), artist(), concert); err != nil {
		t.Fatalf("CreateConcert returned error: %v", err)
	}
	if len(concerts.created) != 1 {
		t.Errorf("created concerts = %d, want 1", len(concerts.created))
	}
}

// TestCreateLive_Sanitizes はライブ作成時のサニタイズを検証する。
func TestCreateLive_Sanitizes(t *testing.T) {
	lives := &mockLiveRepo{}
	svc := newTestService(&mockItemRepo{}, &mockConcertRepo{}, lives)

	live := &model.Live{
		Title:       "Acoustic Night",
		Description: `<img src=x onerror=alert(1)>`,
	}

	got, err := svc.CreateLive(context.Background(), artist(), live)
	if err != nil {
		t.Fatalf("CreateLive returned error: %v", err)
	}
	if strings.Contains(got.Description, "onerror") {
		t.Errorf("event handler should be stripped, got %q", got.Description)
	}
}

// TestGetLive_NotFound は存在しないライブの参照を検証する。
func TestGetLive_NotFound(t *testing.T) {
	svc := newTestService(&mockItemRepo{}, &mockConcertRepo{}, &mockLiveRepo{})

	_, err := svc.GetLive(context.Background(), "missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeLiveNotFound {
		t.Fatalf("expected LIVE_NOT_FOUND, got %v", err)
	}
}
