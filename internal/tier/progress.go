package tier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/encore/internal/model"
	"github.com/hitoshi/encore/internal/repository"
)

// GrantCreator はティア到達・ライブ完走に伴うグラント発行のインターフェース。
type GrantCreator interface {
	// CreateGrant は同一起源タプルに対して冪等にグラントを作成する。
	CreateGrant(ctx context.Context, userID, assetID string, originType model.GrantOrigin, originRef string) (*model.NftGrant, error)
}

// ProgressConfig は進捗サービスの設定。
type ProgressConfig struct {
	FullLiveAssetCode string // ライブ完走グラントの対象アセットコード
}

// ProgressService はティア進捗イベントの適用とティア昇格に伴う
// グラント発行を提供する。
type ProgressService struct {
	progressRepo repository.TierProgressRepository
	liveRepo     repository.LiveRepository
	assetRepo    repository.NftAssetRepository
	grants       GrantCreator
	config       ProgressConfig
}

// NewProgressService はProgressServiceを生成する。
func NewProgressService(
	progressRepo repository.TierProgressRepository,
	liveRepo repository.LiveRepository,
	assetRepo repository.NftAssetRepository,
	grants GrantCreator,
	config ProgressConfig,
) *ProgressService {
	if config.FullLiveAssetCode == "" {
		config.FullLiveAssetCode = "full-live"
	}
	return &ProgressService{
		progressRepo: progressRepo,
		liveRepo:     liveRepo,
		assetRepo:    assetRepo,
		grants:       grants,
		config:       config,
	}
}

// GetStatus はユーザーの現在の進捗とティアごとの判定結果を返す。
// 進捗行は遅延作成される。
func (s *ProgressService) GetStatus(ctx context.Context, userID string) (*model.TierProgress, []model.TierStatus, error) {
	progress, err := s.progressRepo.EnsureForUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("ティア進捗の取得に失敗しました: %w", err)
	}
	return progress, Evaluate(progress.Attendance, progress.SpendEur), nil
}

// RecordFullLiveView はライブ完走視聴を記録する。
// 視聴回数を1加算してティアを再計算し、完走グラントを冪等に発行する。
// 同一ライブの2回目以降の完走は視聴回数には加算されるが、
// グラントは起源タプルの重複排除により増えない。
func (s *ProgressService) RecordFullLiveView(ctx context.Context, userID, liveID string) (*model.TierProgress, error) {
	live, err := s.liveRepo.FindByID(ctx, liveID)
	if err != nil {
		return nil, fmt.Errorf("ライブの取得に失敗しました: %w", err)
	}
	if live == nil || !live.Active {
		return nil, model.NewLiveNotFoundError(liveID)
	}

	progress, err := s.progressRepo.AddProgress(ctx, userID, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("視聴回数の加算に失敗しました: %w", err)
	}

	if err := s.applyTier(ctx, userID, progress); err != nil {
		return nil, err
	}

	// ライブ完走グラント（起源タプルで冪等）
	if s.grants != nil {
		asset, err := s.assetRepo.FindByCode(ctx, s.config.FullLiveAssetCode)
		if err != nil {
			return nil, fmt.Errorf("完走グラント対象アセットの検索に失敗しました: %w", err)
		}
		if asset != nil && asset.Active {
			if _, err := s.grants.CreateGrant(ctx, userID, asset.ID, model.GrantOriginFullLive, liveID); err != nil {
				return nil, fmt.Errorf("完走グラントの発行に失敗しました: %w", err)
			}
		}
	}

	slog.Info("full live view recorded",
		slog.String("user_id", userID),
		slog.String("live_id", liveID),
		slog.Int("attendance", progress.Attendance),
	)

	return progress, nil
}

// CreditSpend は累計購入額を加算してティアを再計算する。
// 売上取り込みで初めてPAIDへ遷移したイベントから呼ばれる。
func (s *ProgressService) CreditSpend(ctx context.Context, userID string, amountEur float64) (*model.TierProgress, error) {
	if amountEur <= 0 {
		progress, err := s.progressRepo.EnsureForUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("ティア進捗の取得に失敗しました: %w", err)
		}
		return progress, nil
	}

	progress, err := s.progressRepo.AddProgress(ctx, userID, 0, amountEur)
	if err != nil {
		return nil, fmt.Errorf("購入額の加算に失敗しました: %w", err)
	}

	if err := s.applyTier(ctx, userID, progress); err != nil {
		return nil, err
	}

	return progress, nil
}

// applyTier は進捗からティアを再計算し、上がった場合のみ永続化して
// 昇格ティアに対応するグラントを発行する。ティアは決して下がらない。
func (s *ProgressService) applyTier(ctx context.Context, userID string, progress *model.TierProgress) error {
	newTier := HighestUnlocked(Evaluate(progress.Attendance, progress.SpendEur))
	if newTier <= progress.Tier {
		return nil
	}

	if err := s.progressRepo.RaiseTier(ctx, userID, newTier); err != nil {
		return fmt.Errorf("ティアの昇格に失敗しました: %w", err)
	}

	slog.Info("tier raised",
		slog.String("user_id", userID),
		slog.Int("from", progress.Tier),
		slog.Int("to", newTier),
	)

	// 昇格で通過した各ティアのグラントを冪等に発行する
	if s.grants != nil {
		for level := progress.Tier + 1; level <= newTier; level++ {
			asset, err := s.assetRepo.FindActiveByTierLevel(ctx, level)
			if err != nil {
				return fmt.Errorf("ティア対応アセットの検索に失敗しました: %w", err)
			}
			if asset == nil {
				continue
			}
			originRef := fmt.Sprintf("tier-%d", level)
			if _, err := s.grants.CreateGrant(ctx, userID, asset.ID, model.GrantOriginTier, originRef); err != nil {
				return fmt.Errorf("ティアグラントの発行に失敗しました: %w", err)
			}
		}
	}

	progress.Tier = newTier
	return nil
}
