package meetgreet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/encore/internal/metrics"
	"github.com/hitoshi/encore/internal/model"
	"github.com/hitoshi/encore/internal/repository"
	"github.com/lib/pq"
)

// CollectibleChecker は対象コレクティブルの保有確認のインターフェース。
type CollectibleChecker interface {
	// HasCollectibleByAssetCode は指定コードのアセットのコレクティブルを
	// ユーザーが保有しているかを返す。コード未知・無効はfalse。
	HasCollectibleByAssetCode(ctx context.Context, userID, code string) (bool, error)
}

// PassInfo はgetPassクエリの結果を表す。
// LOCKEDは永続化されない導出状態のため、AccessはLOCKED時nilになりうる。
type PassInfo struct {
	Status        model.PassStatus
	CanGenerateQr bool
	Event         *model.MeetGreetEvent
	Access        *model.MeetGreetAccess
}

// RedeemResult はQRトークン照合の成功結果を表す。
type RedeemResult struct {
	Status      model.PassStatus // USED固定
	AlreadyUsed bool             // 2回目以降の照合だった場合true
	UsedAt      time.Time        // 最初の入場時刻
}

// ServiceConfig はミート&グリートサービスの設定。
type ServiceConfig struct {
	PassAssetCode string // 入場資格となるコレクティブルのアセットコード
}

// Service はミート&グリート入場権の状態管理とQRトークンの発行・照合を提供する。
// 状態遷移は LOCKED → VALID → USED、VALID → EXPIRED。
// LOCKEDは照会のたびに再計算される導出ゲートで永続化されない。
type Service struct {
	meetRepo     repository.MeetGreetRepository
	collectibles CollectibleChecker
	tokens       *TokenIssuer
	collector    metrics.MetricsCollector
	config       ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	meetRepo repository.MeetGreetRepository,
	collectibles CollectibleChecker,
	tokens *TokenIssuer,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if config.PassAssetCode == "" {
		config.PassAssetCode = "superfan-pass"
	}
	return &Service{
		meetRepo:     meetRepo,
		collectibles: collectibles,
		tokens:       tokens,
		collector:    collector,
		config:       config,
	}
}

// GetPass はユーザーの入場パス状態を返す。
// 対象コレクティブル未所持・有効イベント不在・アセット無効のいずれかでLOCKED。
// 資格がある場合は現在有効なイベントに紐付くアクセス記録を遅延生成する。
func (s *Service) GetPass(ctx context.Context, userID string) (*PassInfo, error) {
	owns, err := s.collectibles.HasCollectibleByAssetCode(ctx, userID, s.config.PassAssetCode)
	if err != nil {
		return nil, fmt.Errorf("コレクティブル保有確認に失敗しました: %w", err)
	}
	if !owns {
		return &PassInfo{Status: model.PassStatusLocked}, nil
	}

	activeEvent, err := s.meetRepo.FindActiveEvent(ctx)
	if err != nil {
		return nil, fmt.Errorf("有効イベントの取得に失敗しました: %w", err)
	}
	if activeEvent == nil {
		return &PassInfo{Status: model.PassStatusLocked}, nil
	}

	access, err := s.meetRepo.FindAccessByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("アクセス記録の取得に失敗しました: %w", err)
	}

	if access == nil {
		access, err = s.createAccess(ctx, userID, activeEvent.ID)
		if err != nil {
			return nil, err
		}
	}

	// アクセス記録は作成時点のイベントに束縛されたままになる
	boundEvent := activeEvent
	if access.EventID != activeEvent.ID {
		boundEvent, err = s.meetRepo.FindEventByID(ctx, access.EventID)
		if err != nil {
			return nil, fmt.Errorf("束縛イベントの取得に失敗しました: %w", err)
		}
		if boundEvent == nil {
			return &PassInfo{Status: model.PassStatusLocked}, nil
		}
	}

	// USEDは一度設定されたら戻らない
	if access.Status == model.AccessStatusUsed {
		return &PassInfo{Status: model.PassStatusUsed, Event: boundEvent, Access: access}, nil
	}

	// イベント日時経過で失効する
	if time.Now().After(boundEvent.EventDate) {
		if access.Status != model.AccessStatusExpired {
			if err := s.meetRepo.MarkAccessExpired(ctx, access.ID); err != nil {
				return nil, fmt.Errorf("アクセス記録の失効に失敗しました: %w", err)
			}
			access.Status = model.AccessStatusExpired
		}
		return &PassInfo{Status: model.PassStatusExpired, Event: boundEvent, Access: access}, nil
	}

	return &PassInfo{
		Status:        model.PassStatusValid,
		CanGenerateQr: true,
		Event:         boundEvent,
		Access:        access,
	}, nil
}

// createAccess はアクセス記録を遅延生成する。
// 並行生成はuser_idのユニーク制約違反を再取得で解決する。
func (s *Service) createAccess(ctx context.Context, userID, eventID string) (*model.MeetGreetAccess, error) {
	access := &model.MeetGreetAccess{
		ID:       uuid.New().String(),
		UserID:   userID,
		EventID:  eventID,
		Status:   model.AccessStatusValid,
		IssuedAt: time.Now().UTC(),
	}

	if err := s.meetRepo.CreateAccess(ctx, access); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			existing, findErr := s.meetRepo.FindAccessByUserID(ctx, userID)
			if findErr != nil {
				return nil, fmt.Errorf("競合後のアクセス記録再取得に失敗しました: %w", findErr)
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("アクセス記録の作成に失敗しました: %w", err)
	}

	slog.Info("meet greet access created",
		slog.String("user_id", userID),
		slog.String("event_id", eventID),
	)

	return access, nil
}

// CreateQrToken は現在VALIDなパスに対して短命のQRトークンを発行する。
// VALID以外の状態ではInvalidStateエラーを返す。
func (s *Service) CreateQrToken(ctx context.Context, userID string) (string, time.Time, error) {
	pass, err := s.GetPass(ctx, userID)
	if err != nil {
		return "", time.Time{}, err
	}
	if pass.Status != model.PassStatusValid {
		return "", time.Time{}, model.NewInvalidStateError(fmt.Sprintf("パスの状態が %s です", pass.Status))
	}

	token, expiresAt, err := s.tokens.Issue(userID, pass.Access.EventID, pass.Access.ID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("QRトークンの発行に失敗しました: %w", err)
	}

	s.collector.RecordQrIssued()
	return token, expiresAt, nil
}

// RedeemQrToken はQRトークンを照合して入場を記録する。
// 検証失敗は原因を区別しない単一のエラーになる。
// 既にUSEDのパスに対する再照合はエラーではなくALREADY_USEDの成功結果を返す
// （入場ゲートの二重スキャンを許容する）。
func (s *Service) RedeemQrToken(ctx context.Context, tokenString string) (*RedeemResult, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		s.collector.RecordQrRedeemed("invalid_token")
		return nil, model.NewTokenInvalidError()
	}

	userID := claims.Subject

	pass, err := s.GetPass(ctx, userID)
	if err != nil {
		return nil, err
	}
	if pass.Status == model.PassStatusLocked || pass.Status == model.PassStatusExpired {
		s.collector.RecordQrRedeemed("rejected")
		return nil, model.NewInvalidStateError(fmt.Sprintf("パスの状態が %s です", pass.Status))
	}

	// トークンは発行時点のアクセス記録に束縛されている。
	// 記録が差し替わっていた場合は照合を拒否する。
	access := pass.Access
	if access == nil || access.ID != claims.AccessID || access.EventID != claims.EventID {
		s.collector.RecordQrRedeemed("access_mismatch")
		return nil, model.NewAccessNotFoundError()
	}

	if access.Status == model.AccessStatusUsed {
		s.collector.RecordQrRedeemed("already_used")
		usedAt := time.Time{}
		if access.UsedAt != nil {
			usedAt = *access.UsedAt
		}
		return &RedeemResult{Status: model.PassStatusUsed, AlreadyUsed: true, UsedAt: usedAt}, nil
	}

	now := time.Now().UTC()
	transitioned, err := s.meetRepo.MarkAccessUsed(ctx, access.ID, now)
	if err != nil {
		return nil, fmt.Errorf("アクセス記録のUSED遷移に失敗しました: %w", err)
	}

	// 並行照合で先を越された場合は最初の入場時刻を引いてALREADY_USEDにする
	if !transitioned {
		current, err := s.meetRepo.FindAccessByID(ctx, access.ID)
		if err != nil {
			return nil, fmt.Errorf("アクセス記録の再取得に失敗しました: %w", err)
		}
		usedAt := now
		if current != nil && current.UsedAt != nil {
			usedAt = *current.UsedAt
		}
		s.collector.RecordQrRedeemed("already_used")
		return &RedeemResult{Status: model.PassStatusUsed, AlreadyUsed: true, UsedAt: usedAt}, nil
	}

	s.collector.RecordQrRedeemed("used")
	slog.Info("meet greet pass redeemed",
		slog.String("user_id", userID),
		slog.String("access_id", access.ID),
	)

	return &RedeemResult{Status: model.PassStatusUsed, UsedAt: now}, nil
}

// CreateEvent は運営スタッフ向けにイベントを作成する。
func (s *Service) CreateEvent(ctx context.Context, title string, eventDate time.Time) (*model.MeetGreetEvent, error) {
	if title == "" {
		return nil, model.NewValidationError("タイトルは必須です")
	}

	event := &model.MeetGreetEvent{
		ID:        uuid.New().String(),
		Title:     title,
		EventDate: eventDate,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.meetRepo.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("イベントの作成に失敗しました: %w", err)
	}

	return event, nil
}
