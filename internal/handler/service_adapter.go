package handler

import (
	"context"
	"fmt"

	"github.com/hitoshi/encore/internal/model"
	"github.com/hitoshi/encore/internal/repository"
	"github.com/hitoshi/encore/internal/tier"
)

// OnboardingCompleter はオンボーディング完了フラグ設定のインターフェース。
type OnboardingCompleter interface {
	CompleteOnboarding(ctx context.Context, userID string) error
}

// ProfileServiceAdapter はティア進捗サービスと売上リポジトリを
// ProfileServiceInterface に適合させるアダプタ。
// 購入履歴は売上がメールアドレスをキーに記録されるため、
// ユーザーIDからメールアドレスを解決してから検索する。
type ProfileServiceAdapter struct {
	progress   *tier.ProgressService
	onboarding OnboardingCompleter
	userRepo   repository.UserRepository
	saleRepo   repository.SaleRepository
}

// NewProfileServiceAdapter はProfileServiceAdapterを生成する。
func NewProfileServiceAdapter(
	progress *tier.ProgressService,
	onboarding OnboardingCompleter,
	userRepo repository.UserRepository,
	saleRepo repository.SaleRepository,
) *ProfileServiceAdapter {
	return &ProfileServiceAdapter{
		progress:   progress,
		onboarding: onboarding,
		userRepo:   userRepo,
		saleRepo:   saleRepo,
	}
}

// GetTierStatus はユーザーの進捗とティアごとの判定結果を返す。
func (a *ProfileServiceAdapter) GetTierStatus(ctx context.Context, userID string) (*model.TierProgress, []model.TierStatus, error) {
	return a.progress.GetStatus(ctx, userID)
}

// RecordFullLiveView はライブ完走視聴を記録する。
func (a *ProfileServiceAdapter) RecordFullLiveView(ctx context.Context, userID, liveID string) (*model.TierProgress, error) {
	return a.progress.RecordFullLiveView(ctx, userID, liveID)
}

// CompleteOnboarding はオンボーディング完了フラグを設定する。
func (a *ProfileServiceAdapter) CompleteOnboarding(ctx context.Context, userID string) error {
	return a.onboarding.CompleteOnboarding(ctx, userID)
}

// ListPurchases はユーザーの購入履歴を作成日時降順で返す。
func (a *ProfileServiceAdapter) ListPurchases(ctx context.Context, userID string, limit int) ([]*model.Sale, error) {
	user, err := a.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return a.saleRepo.ListByUserEmail(ctx, user.Email, limit)
}

// compile-time interface check
var _ ProfileServiceInterface = (*ProfileServiceAdapter)(nil)
