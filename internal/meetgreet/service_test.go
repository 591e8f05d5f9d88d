package meetgreet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/encore/internal/metrics"
	"github.com/hitoshi/encore/internal/model"
)

// --- モック ---

type mockMeetRepo struct {
	activeEvent      *model.MeetGreetEvent
	eventsByID       map[string]*model.MeetGreetEvent
	access           *model.MeetGreetAccess
	createAccessFn   func(ctx context.Context, access *model.MeetGreetAccess) error
	markUsedFn       func(ctx context.Context, id string, usedAt time.Time) (bool, error)
	expiredAccessIDs []string
	createdEvents    []*model.MeetGreetEvent
}

func (m *mockMeetRepo) FindActiveEvent(ctx context.Context) (*model.MeetGreetEvent, error) {
	return m.activeEvent, nil
}
func (m *mockMeetRepo) FindEventByID(ctx context.Context, id string) (*model.MeetGreetEvent, error) {
	return m.eventsByID[id], nil
}
func (m *mockMeetRepo) CreateEvent(ctx context.Context, event *model.MeetGreetEvent) error {
	m.createdEvents = append(m.createdEvents, event)
	return nil
}
func (m *mockMeetRepo) FindAccessByUserID(ctx context.Context, userID string) (*model.MeetGreetAccess, error) {
	return m.access, nil
}
func (m *mockMeetRepo) FindAccessByID(ctx context.Context, id string) (*model.MeetGreetAccess, error) {
	if m.access != nil && m.access.ID == id {
		return m.access, nil
	}
	return nil, nil
}
func (m *mockMeetRepo) CreateAccess(ctx context.Context, access *model.MeetGreetAccess) error {
	if m.createAccessFn != nil {
		return m.createAccessFn(ctx, access)
	}
	m.access = access
	return nil
}
func (m *mockMeetRepo) MarkAccessUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	if m.markUsedFn != nil {
		return m.markUsedFn(ctx, id, usedAt)
	}
	if m.access != nil && m.access.ID == id && m.access.Status != model.AccessStatusUsed {
		m.access.Status = model.AccessStatusUsed
		m.access.UsedAt = &usedAt
		return true, nil
	}
	return false, nil
}
func (m *mockMeetRepo) MarkAccessExpired(ctx context.Context, id string) error {
	m.expiredAccessIDs = append(m.expiredAccessIDs, id)
	if m.access != nil && m.access.ID == id && m.access.Status != model.AccessStatusUsed {
		m.access.Status = model.AccessStatusExpired
	}
	return nil
}

type mockCollectibleChecker struct {
	owns bool
	err  error
}

func (m *mockCollectibleChecker) HasCollectibleByAssetCode(ctx context.Context, userID, code string) (bool, error) {
	return m.owns, m.err
}

func activeEvent() *model.MeetGreetEvent {
	return &model.MeetGreetEvent{
		ID:        "event-1",
		Title:     "Backstage Night",
		EventDate: time.Now().Add(24 * time.Hour),
		Active:    true,
	}
}

func newService(repo *mockMeetRepo, owns bool) *Service {
	issuer := NewTokenIssuer(testSecret, time.Minute)
	return NewService(repo, &mockCollectibleChecker{owns: owns}, issuer, metrics.NopCollector{}, ServiceConfig{})
}

// --- テスト ---

// TestGetPass_LockedWithoutCollectible は対象コレクティブル未所持でLOCKEDを検証する。
func TestGetPass_LockedWithoutCollectible(t *testing.T) {
	repo := &mockMeetRepo{activeEvent: activeEvent()}
	svc := newService(repo, false)

	pass, err := svc.GetPass(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetPass returned error: %v", err)
	}
	if pass.Status != model.PassStatusLocked {
		t.Errorf("Status = %q, want LOCKED", pass.Status)
	}
	if pass.CanGenerateQr {
		t.Error("CanGenerateQr should be false when locked")
	}
	if repo.access != nil {
		t.Error("access should not be created while locked")
	}
}

// TestGetPass_LockedWithoutActiveEvent は有効イベント不在でLOCKEDを検証する。
func TestGetPass_LockedWithoutActiveEvent(t *testing.T) {
	repo := &mockMeetRepo{}
	svc := newService(repo, true)

	pass, err := svc.GetPass(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetPass returned error: %v", err)
	}
	if pass.Status != model.PassStatusLocked {
		t.Errorf("Status = %q, want LOCKED", pass.Status)
	}
}

// TestGetPass_CreatesAccessLazily は資格があればアクセス記録が遅延生成されVALIDになることを検証する。
func TestGetPass_CreatesAccessLazily(t *testing.T) {
	repo := &mockMeetRepo{activeEvent: activeEvent()}
	svc := newService(repo, true)

	pass, err := svc.GetPass(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetPass returned error: %v", err)
	}
	if pass.Status != model.PassStatusValid {
		t.Errorf("Status = %q, want VALID", pass.Status)
	}
	if !pass.CanGenerateQr {
		t.Error("CanGenerateQr should be true for valid pass")
	}
	if repo.access == nil {
		t.Fatal("access should be lazily created")
	}
	if repo.access.EventID != "event-1" || repo.access.Status != model.AccessStatusValid {
		t.Errorf("access = %+v, want VALID bound to event-1", repo.access)
	}
}

// TestGetPass_ExpiresAfterEventDate はイベント日時経過でEXPIREDへ遷移することを検証する。
func TestGetPass_ExpiresAfterEventDate(t *testing.T) {
	past := activeEvent()
	past.EventDate = time.Now().Add(-time.Hour)
	repo := &mockMeetRepo{
		activeEvent: past,
		access: &model.MeetGreetAccess{
			ID: "access-1", UserID: "user-1", EventID: "event-1", Status: model.AccessStatusValid,
		},
	}
	svc := newService(repo, true)

	pass, err := svc.GetPass(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetPass returned error: %v", err)
	}
	if pass.Status != model.PassStatusExpired {
		t.Errorf("Status = %q, want EXPIRED", pass.Status)
	}
	if len(repo.expiredAccessIDs) != 1 {
		t.Errorf("MarkAccessExpired calls = %d, want 1", len(repo.expiredAccessIDs))
	}
}

// TestGetPass_UsedIsTerminal はUSEDがイベント日時経過後も維持されることを検証する。
func TestGetPass_UsedIsTerminal(t *testing.T) {
	past := activeEvent()
	past.EventDate = time.Now().Add(-time.Hour)
	usedAt := time.Now().Add(-2 * time.Hour)
	repo := &mockMeetRepo{
		activeEvent: past,
		access: &model.MeetGreetAccess{
			ID: "access-1", UserID: "user-1", EventID: "event-1",
			Status: model.AccessStatusUsed, UsedAt: &usedAt,
		},
	}
	svc := newService(repo, true)

	pass, err := svc.GetPass(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetPass returned error: %v", err)
	}
	if pass.Status != model.PassStatusUsed {
		t.Errorf("Status = %q, want USED even after event date", pass.Status)
	}
}

// TestCreateQrToken_RequiresValid はVALID以外でのQR発行拒否を検証する。
func TestCreateQrToken_RequiresValid(t *testing.T) {
	repo := &mockMeetRepo{}
	svc := newService(repo, false)

	_, _, err := svc.CreateQrToken(context.Background(), "user-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidState {
		t.Fatalf("expected INVALID_STATE, got %v", err)
	}
}

// TestRedeemQrToken_Roundtrip は発行から照合までの一連の流れを検証する。
func TestRedeemQrToken_Roundtrip(t *testing.T) {
	repo := &mockMeetRepo{activeEvent: activeEvent()}
	svc := newService(repo, true)

	token, _, err := svc.CreateQrToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CreateQrToken returned error: %v", err)
	}

	result, err := svc.RedeemQrToken(context.Background(), token)
	if err != nil {
		t.Fatalf("RedeemQrToken returned error: %v", err)
	}
	if result.Status != model.PassStatusUsed {
		t.Errorf("Status = %q, want USED", result.Status)
	}
	if result.AlreadyUsed {
		t.Error("AlreadyUsed = true, want false on first redeem")
	}
	if repo.access.Status != model.AccessStatusUsed {
		t.Errorf("access Status = %q, want USED", repo.access.Status)
	}
}

// TestRedeemQrToken_SecondScan は二重スキャンがALREADY_USEDの成功結果になることを検証する。
func TestRedeemQrToken_SecondScan(t *testing.T) {
	repo := &mockMeetRepo{activeEvent: activeEvent()}
	svc := newService(repo, true)

	token, _, err := svc.CreateQrToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CreateQrToken returned error: %v", err)
	}

	first, err := svc.RedeemQrToken(context.Background(), token)
	if err != nil {
		t.Fatalf("first redeem returned error: %v", err)
	}

	second, err := svc.RedeemQrToken(context.Background(), token)
	if err != nil {
		t.Fatalf("second redeem returned error: %v", err)
	}
	if !second.AlreadyUsed {
		t.Error("AlreadyUsed = false, want true on second scan")
	}
	if !second.UsedAt.Equal(first.UsedAt) {
		t.Errorf("UsedAt = %v, want first entry time %v", second.UsedAt, first.UsedAt)
	}
}

// TestRedeemQrToken_InvalidToken は検証失敗が単一の不透明なエラーになることを検証する。
func TestRedeemQrToken_InvalidToken(t *testing.T) {
	repo := &mockMeetRepo{activeEvent: activeEvent()}
	svc := newService(repo, true)

	_, err := svc.RedeemQrToken(context.Background(), "not-a-token")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTokenInvalid {
		t.Fatalf("expected TOKEN_INVALID_OR_EXPIRED, got %v", err)
	}
}

// TestRedeemQrToken_AccessMismatch はトークンが指すアクセス記録が
// 現在の記録と一致しない場合の拒否を検証する。
func TestRedeemQrToken_AccessMismatch(t *testing.T) {
	repo := &mockMeetRepo{
		activeEvent: activeEvent(),
		access: &model.MeetGreetAccess{
			ID: "access-current", UserID: "user-1", EventID: "event-1", Status: model.AccessStatusValid,
		},
	}
	svc := newService(repo, true)

	// 別のアクセスIDに束縛されたトークン
	token, _, err := svc.tokens.Issue("user-1", "event-1", "access-stale")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	_, err = svc.RedeemQrToken(context.Background(), token)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAccessNotFound {
		t.Fatalf("expected ACCESS_NOT_FOUND, got %v", err)
	}
}

// TestRedeemQrToken_ConcurrentLoss は並行照合で先を越された場合に
// ALREADY_USEDへフォールバックすることを検証する。
func TestRedeemQrToken_ConcurrentLoss(t *testing.T) {
	firstEntry := time.Now().Add(-time.Minute).UTC()
	repo := &mockMeetRepo{
		activeEvent: activeEvent(),
		access: &model.MeetGreetAccess{
			ID: "access-1", UserID: "user-1", EventID: "event-1", Status: model.AccessStatusValid,
		},
	}
	repo.markUsedFn = func(ctx context.Context, id string, usedAt time.Time) (bool, error) {
		// 別のゲートが直前にUSEDへ遷移させた
		repo.access.Status = model.AccessStatusUsed
		repo.access.UsedAt = &firstEntry
		return false, nil
	}
	svc := newService(repo, true)

	token, _, err := svc.tokens.Issue("user-1", "event-1", "access-1")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	result, err := svc.RedeemQrToken(context.Background(), token)
	if err != nil {
		t.Fatalf("RedeemQrToken returned error: %v", err)
	}
	if !result.AlreadyUsed {
		t.Error("AlreadyUsed = false, want true when losing the race")
	}
	if !result.UsedAt.Equal(firstEntry) {
		t.Errorf("UsedAt = %v, want first entry %v", result.UsedAt, firstEntry)
	}
}

// TestCreateEvent はイベント作成とタイトル必須の検証を行う。
func TestCreateEvent(t *testing.T) {
	repo := &mockMeetRepo{}
	svc := newService(repo, true)

	event, err := svc.CreateEvent(context.Background(), "Backstage Night", time.Now().Add(48*time.Hour))
	if err != nil {
		t.Fatalf("CreateEvent returned error: %v", err)
	}
	if !event.Active {
		t.Error("Active = false, want true")
	}
	if len(repo.createdEvents) != 1 {
		t.Errorf("created events = %d, want 1", len(repo.createdEvents))
	}

	_, err = svc.CreateEvent(context.Background(), "", time.Now())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Fatalf("expected validation error for empty title, got %v", err)
	}
}
