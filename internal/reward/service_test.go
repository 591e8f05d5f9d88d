package reward

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/encore/internal/metrics"
	"github.com/hitoshi/encore/internal/model"
	"github.com/lib/pq"
)

// --- モック ---

type mockAssetRepo struct {
	findByIDFn   func(ctx context.Context, id string) (*model.NftAsset, error)
	findByCodeFn func(ctx context.Context, code string) (*model.NftAsset, error)
	listFn       func(ctx context.Context, activeOnly bool) ([]*model.NftAsset, error)
}

func (m *mockAssetRepo) FindByID(ctx context.Context, id string) (*model.NftAsset, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockAssetRepo) FindByCode(ctx context.Context, code string) (*model.NftAsset, error) {
	if m.findByCodeFn != nil {
		return m.findByCodeFn(ctx, code)
	}
	return nil, nil
}
func (m *mockAssetRepo) FindActiveByTierLevel(ctx context.Context, tierLevel int) (*model.NftAsset, error) {
	return nil, nil
}
func (m *mockAssetRepo) List(ctx context.Context, activeOnly bool) ([]*model.NftAsset, error) {
	if m.listFn != nil {
		return m.listFn(ctx, activeOnly)
	}
	return nil, nil
}

type mockGrantRepo struct {
	findByIDFn        func(ctx context.Context, id string) (*model.NftGrant, error)
	findActiveFn      func(ctx context.Context, userID, assetID string, originType model.GrantOrigin, originRef string) (*model.NftGrant, error)
	createFn          func(ctx context.Context, grant *model.NftGrant) error
	markMintedCalls   int
	markFailedReasons []string
}

func (m *mockGrantRepo) FindByID(ctx context.Context, id string) (*model.NftGrant, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockGrantRepo) FindActiveByTuple(ctx context.Context, userID, assetID string, originType model.GrantOrigin, originRef string) (*model.NftGrant, error) {
	if m.findActiveFn != nil {
		return m.findActiveFn(ctx, userID, assetID, originType, originRef)
	}
	return nil, nil
}
func (m *mockGrantRepo) Create(ctx context.Context, grant *model.NftGrant) error {
	if m.createFn != nil {
		return m.createFn(ctx, grant)
	}
	return nil
}
func (m *mockGrantRepo) ListByUser(ctx context.Context, userID string) ([]*model.NftGrant, error) {
	return nil, nil
}
func (m *mockGrantRepo) MarkMinted(ctx context.Context, id string, mintedAt time.Time) error {
	m.markMintedCalls++
	return nil
}
func (m *mockGrantRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	m.markFailedReasons = append(m.markFailedReasons, reason)
	return nil
}

type mockWalletRepo struct {
	wallet   *model.CustodialWallet
	createFn func(ctx context.Context, wallet *model.CustodialWallet) error
	created  []*model.CustodialWallet
}

func (m *mockWalletRepo) FindByUserID(ctx context.Context, userID string) (*model.CustodialWallet, error) {
	return m.wallet, nil
}
func (m *mockWalletRepo) Create(ctx context.Context, wallet *model.CustodialWallet) error {
	if m.createFn != nil {
		return m.createFn(ctx, wallet)
	}
	m.created = append(m.created, wallet)
	return nil
}

type mockCollectibleRepo struct {
	createFn      func(ctx context.Context, c *model.NftCollectible) error
	findByGrantFn func(ctx context.Context, grantID string) (*model.NftCollectible, error)
	existsFn      func(ctx context.Context, userID, assetID string) (bool, error)
	nextTokenIDFn func(ctx context.Context) (int64, error)
	created       []*model.NftCollectible
}

func (m *mockCollectibleRepo) Create(ctx context.Context, c *model.NftCollectible) error {
	if m.createFn != nil {
		return m.createFn(ctx, c)
	}
	m.created = append(m.created, c)
	return nil
}
func (m *mockCollectibleRepo) FindByGrantID(ctx context.Context, grantID string) (*model.NftCollectible, error) {
	if m.findByGrantFn != nil {
		return m.findByGrantFn(ctx, grantID)
	}
	return nil, nil
}
func (m *mockCollectibleRepo) ListByUser(ctx context.Context, userID string) ([]*model.NftCollectible, error) {
	return nil, nil
}
func (m *mockCollectibleRepo) ExistsByUserAndAsset(ctx context.Context, userID, assetID string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, userID, assetID)
	}
	return false, nil
}
func (m *mockCollectibleRepo) NextTokenID(ctx context.Context) (int64, error) {
	if m.nextTokenIDFn != nil {
		return m.nextTokenIDFn(ctx)
	}
	return 42, nil
}

func newTestService(assets *mockAssetRepo, grants *mockGrantRepo, wallets *mockWalletRepo, collectibles *mockCollectibleRepo) *Service {
	return NewService(assets, grants, wallets, collectibles, metrics.NopCollector{}, ServiceConfig{ChainID: 68840142})
}

// --- テスト ---

// TestCreateGrant_ReturnsExisting は既存グラントがある場合に新規作成せず
// 既存を返すことを検証する。
func TestCreateGrant_ReturnsExisting(t *testing.T) {
	existing := &model.NftGrant{ID: "grant-1", UserID: "user-1", Status: model.GrantStatusPending}
	grants := &mockGrantRepo{
		findActiveFn: func(ctx context.Context, userID, assetID string, originType model.GrantOrigin, originRef string) (*model.NftGrant, error) {
			return existing, nil
		},
		createFn: func(ctx context.Context, grant *model.NftGrant) error {
			t.Error("Create should not be called when an active grant exists")
			return nil
		},
	}

	svc := newTestService(&mockAssetRepo{}, grants, &mockWalletRepo{}, &mockCollectibleRepo{})

	got, err := svc.CreateGrant(context.Background(), "user-1", "asset-1", model.GrantOriginTier, "tier-1")
	if err != nil {
		t.Fatalf("CreateGrant returned error: %v", err)
	}
	if got.ID != "grant-1" {
		t.Errorf("ID = %q, want existing grant-1", got.ID)
	}
}

// TestCreateGrant_New は新規グラントがPENDINGで作成されることを検証する。
func TestCreateGrant_New(t *testing.T) {
	var created *model.NftGrant
	grants := &mockGrantRepo{
		createFn: func(ctx context.Context, grant *model.NftGrant) error {
			created = grant
			return nil
		},
	}

	svc := newTestService(&mockAssetRepo{}, grants, &mockWalletRepo{}, &mockCollectibleRepo{})

	got, err := svc.CreateGrant(context.Background(), "user-1", "asset-1", model.GrantOriginFullLive, "live-1")
	if err != nil {
		t.Fatalf("CreateGrant returned error: %v", err)
	}
	if created == nil {
		t.Fatal("expected grant to be created")
	}
	if got.Status != model.GrantStatusPending {
		t.Errorf("Status = %q, want PENDING", got.Status)
	}
	if got.OriginType != model.GrantOriginFullLive || got.OriginRef != "live-1" {
		t.Errorf("origin = %q/%q, want FULL_LIVE/live-1", got.OriginType, got.OriginRef)
	}
	if got.ID == "" {
		t.Error("ID should be assigned")
	}
}

// TestCreateGrant_UniqueViolationFallback は並行作成のユニーク制約違反で
// 既存グラントへフォールバックすることを検証する。
func TestCreateGrant_UniqueViolationFallback(t *testing.T) {
	winner := &model.NftGrant{ID: "grant-winner", UserID: "user-1"}
	lookups := 0
	grants := &mockGrantRepo{
		findActiveFn: func(ctx context.Context, userID, assetID string, originType model.GrantOrigin, originRef string) (*model.NftGrant, error) {
			lookups++
			if lookups == 1 {
				// 1回目の検索時点ではまだ存在しない
				return nil, nil
			}
			return winner, nil
		},
		createFn: func(ctx context.Context, grant *model.NftGrant) error {
			return &pq.Error{Code: "23505"}
		},
	}

	svc := newTestService(&mockAssetRepo{}, grants, &mockWalletRepo{}, &mockCollectibleRepo{})

	got, err := svc.CreateGrant(context.Background(), "user-1", "asset-1", model.GrantOriginTier, "tier-2")
	if err != nil {
		t.Fatalf("CreateGrant returned error: %v", err)
	}
	if got.ID != "grant-winner" {
		t.Errorf("ID = %q, want winner of the race", got.ID)
	}
}

// TestClaimGrant_Success はクレーム成功時のミントとMINTED遷移を検証する。
func TestClaimGrant_Success(t *testing.T) {
	grants := &mockGrantRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.NftGrant, error) {
			return &model.NftGrant{ID: id, UserID: "user-1", AssetID: "asset-1", Status: model.GrantStatusPending}, nil
		},
	}
	assets := &mockAssetRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.NftAsset, error) {
			return &model.NftAsset{ID: id, Code: "tier-1", Active: true}, nil
		},
	}
	wallets := &mockWalletRepo{}
	collectibles := &mockCollectibleRepo{}

	svc := newTestService(assets, grants, wallets, collectibles)

	result, err := svc.ClaimGrant(context.Background(), "user-1", "grant-1")
	if err != nil {
		t.Fatalf("ClaimGrant returned error: %v", err)
	}
	if result.Grant.Status != model.GrantStatusMinted {
		t.Errorf("grant Status = %q, want MINTED", result.Grant.Status)
	}
	if result.Collectible == nil {
		t.Fatal("expected collectible")
	}
	if result.Collectible.TokenID != 42 {
		t.Errorf("TokenID = %d, want 42", result.Collectible.TokenID)
	}
	if result.Collectible.ChainID != 68840142 {
		t.Errorf("ChainID = %d, want 68840142", result.Collectible.ChainID)
	}
	if grants.markMintedCalls != 1 {
		t.Errorf("MarkMinted calls = %d, want 1", grants.markMintedCalls)
	}
	// 初回クレームでウォレットが遅延生成される
	if len(wallets.created) != 1 {
		t.Errorf("wallets created = %d, want 1", len(wallets.created))
	}
}

// TestClaimGrant_AlreadyMinted は再クレームが元のコレクティブルを返すことを検証する。
func TestClaimGrant_AlreadyMinted(t *testing.T) {
	mintedAt := time.Now().UTC()
	grants := &mockGrantRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.NftGrant, error) {
			return &model.NftGrant{ID: id, UserID: "user-1", Status: model.GrantStatusMinted, MintedAt: &mintedAt}, nil
		},
	}
	collectibles := &mockCollectibleRepo{
		findByGrantFn: func(ctx context.Context, grantID string) (*model.NftCollectible, error) {
			return &model.NftCollectible{ID: "col-1", GrantID: grantID, TokenID: 7}, nil
		},
		nextTokenIDFn: func(ctx context.Context) (int64, error) {
			t.Error("NextTokenID should not be called on re-claim")
			return 0, nil
		},
	}

	svc := newTestService(&mockAssetRepo{}, grants, &mockWalletRepo{}, collectibles)

	result, err := svc.ClaimGrant(context.Background(), "user-1", "grant-1")
	if err != nil {
		t.Fatalf("ClaimGrant returned error: %v", err)
	}
	if result.Collectible == nil || result.Collectible.TokenID != 7 {
		t.Errorf("expected original collectible with token 7, got %+v", result.Collectible)
	}
	if grants.markMintedCalls != 0 {
		t.Errorf("MarkMinted calls = %d, want 0", grants.markMintedCalls)
	}
}

// TestClaimGrant_OtherUsersGrant は他ユーザーのグラント指定がNotFoundになることを検証する。
func TestClaimGrant_OtherUsersGrant(t *testing.T) {
	grants := &mockGrantRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.NftGrant, error) {
			return &model.NftGrant{ID: id, UserID: "someone-else"}, nil
		},
	}

	svc := newTestService(&mockAssetRepo{}, grants, &mockWalletRepo{}, &mockCollectibleRepo{})

	_, err := svc.ClaimGrant(context.Background(), "user-1", "grant-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeGrantNotFound {
		t.Fatalf("expected GRANT_NOT_FOUND, got %v", err)
	}
}

// TestClaimGrant_InactiveAsset は無効アセットでFAILED遷移とInvalidAssetエラーを検証する。
func TestClaimGrant_InactiveAsset(t *testing.T) {
	grants := &mockGrantRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.NftGrant, error) {
			return &model.NftGrant{ID: id, UserID: "user-1", AssetID: "asset-retired", Status: model.GrantStatusPending}, nil
		},
	}
	assets := &mockAssetRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.NftAsset, error) {
			return &model.NftAsset{ID: id, Active: false}, nil
		},
	}

	svc := newTestService(assets, grants, &mockWalletRepo{}, &mockCollectibleRepo{})

	_, err := svc.ClaimGrant(context.Background(), "user-1", "grant-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidAsset {
		t.Fatalf("expected INVALID_ASSET, got %v", err)
	}
	if len(grants.markFailedReasons) != 1 {
		t.Errorf("MarkFailed calls = %d, want 1", len(grants.markFailedReasons))
	}
}

// TestClaimGrant_SoftMintFailure はミント失敗がエラーではなく
// FAILEDグラント付きの結果として返ることを検証する。
func TestClaimGrant_SoftMintFailure(t *testing.T) {
	grants := &mockGrantRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.NftGrant, error) {
			return &model.NftGrant{ID: id, UserID: "user-1", AssetID: "asset-1", Status: model.GrantStatusPending}, nil
		},
	}
	assets := &mockAssetRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.NftAsset, error) {
			return &model.NftAsset{ID: id, Active: true}, nil
		},
	}
	collectibles := &mockCollectibleRepo{
		nextTokenIDFn: func(ctx context.Context) (int64, error) {
			return 0, errors.New("sequence unavailable")
		},
	}

	svc := newTestService(assets, grants, &mockWalletRepo{}, collectibles)

	result, err := svc.ClaimGrant(context.Background(), "user-1", "grant-1")
	if err != nil {
		t.Fatalf("soft failure should not return error, got %v", err)
	}
	if result.Grant.Status != model.GrantStatusFailed {
		t.Errorf("grant Status = %q, want FAILED", result.Grant.Status)
	}
	if result.Collectible != nil {
		t.Error("collectible should be nil on mint failure")
	}
	if len(grants.markFailedReasons) != 1 {
		t.Fatalf("MarkFailed calls = %d, want 1", len(grants.markFailedReasons))
	}
}

// TestEnsureWallet_ReusesExisting は既存ウォレットの再利用を検証する。
func TestEnsureWallet_ReusesExisting(t *testing.T) {
	wallets := &mockWalletRepo{
		wallet: &model.CustodialWallet{ID: "w-1", UserID: "user-1", Address: "0xabc"},
	}
	grants := &mockGrantRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.NftGrant, error) {
			return &model.NftGrant{ID: id, UserID: "user-1", AssetID: "asset-1", Status: model.GrantStatusPending}, nil
		},
	}
	assets := &mockAssetRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.NftAsset, error) {
			return &model.NftAsset{ID: id, Active: true}, nil
		},
	}

	svc := newTestService(assets, grants, wallets, &mockCollectibleRepo{})

	result, err := svc.ClaimGrant(context.Background(), "user-1", "grant-1")
	if err != nil {
		t.Fatalf("ClaimGrant returned error: %v", err)
	}
	if result.Collectible.WalletAddress != "0xabc" {
		t.Errorf("WalletAddress = %q, want existing 0xabc", result.Collectible.WalletAddress)
	}
	if len(wallets.created) != 0 {
		t.Errorf("wallets created = %d, want 0", len(wallets.created))
	}
}

// TestHasCollectibleByAssetCode はコード解決と保有判定を検証する。
func TestHasCollectibleByAssetCode(t *testing.T) {
	assets := &mockAssetRepo{
		findByCodeFn: func(ctx context.Context, code string) (*model.NftAsset, error) {
			if code == "superfan-pass" {
				return &model.NftAsset{ID: "asset-sp", Code: code, Active: true}, nil
			}
			return nil, nil
		},
	}
	collectibles := &mockCollectibleRepo{
		existsFn: func(ctx context.Context, userID, assetID string) (bool, error) {
			return assetID == "asset-sp", nil
		},
	}

	svc := newTestService(assets, &mockGrantRepo{}, &mockWalletRepo{}, collectibles)

	has, err := svc.HasCollectibleByAssetCode(context.Background(), "user-1", "superfan-pass")
	if err != nil {
		t.Fatalf("HasCollectibleByAssetCode returned error: %v", err)
	}
	if !has {
		t.Error("expected true for owned asset")
	}

	// 未知のコードはエラーではなくfalse
	has, err = svc.HasCollectibleByAssetCode(context.Background(), "user-1", "unknown-code")
	if err != nil {
		t.Fatalf("HasCollectibleByAssetCode returned error: %v", err)
	}
	if has {
		t.Error("expected false for unknown code")
	}
}
