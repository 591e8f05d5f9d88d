// Package catalog はバンド運営が管理するカタログ（グッズ・コンサート・配信ライブ）の
// ドメインロジックを提供する。
package catalog

import (
	"context"
	"fmt"

	"github.com/hitoshi/encore/internal/model"
	"github.com/hitoshi/encore/internal/repository"
	"github.com/hitoshi/encore/internal/security"
)

// Service はカタログの参照と運営スタッフ向けの編集を提供する。
// 説明文のHTMLは保存前にサニタイズされる。
type Service struct {
	itemRepo    repository.StoreItemRepository
	concertRepo repository.ConcertRepository
	liveRepo    repository.LiveRepository
	sanitizer   security.ContentSanitizerService
}

// NewService はServiceを生成する。
func NewService(
	itemRepo repository.StoreItemRepository,
	concertRepo repository.ConcertRepository,
	liveRepo repository.LiveRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		itemRepo:    itemRepo,
		concertRepo: concertRepo,
		liveRepo:    liveRepo,
		sanitizer:   sanitizer,
	}
}

// requireArtist は運営スタッフ権限を要求する。
func requireArtist(user *model.User) error {
	if user == nil || user.Role != model.RoleArtist {
		return model.NewForbiddenError()
	}
	return nil
}

// ListStoreItems は商品一覧を返す。一般ユーザーには有効な商品のみ見せる。
func (s *Service) ListStoreItems(ctx context.Context, includeInactive bool) ([]*model.StoreItem, error) {
	return s.itemRepo.List(ctx, !includeInactive)
}

// GetStoreItem は指定IDの商品を返す。
func (s *Service) GetStoreItem(ctx context.Context, id string) (*model.StoreItem, error) {
	item, err := s.itemRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(id)
	}
	return item, nil
}

// CreateStoreItem は商品を作成する。運営スタッフのみ実行できる。
func (s *Service) CreateStoreItem(ctx context.Context, actor *model.User, item *model.StoreItem) (*model.StoreItem, error) {
	if err := requireArtist(actor); err != nil {
		return nil, err
	}
	if item.Name == "" {
		return nil, model.NewValidationError("商品名は必須です")
	}
	if item.PriceEur < 0 {
		return nil, model.NewValidationError("価格は0以上である必要があります")
	}

	item.Description = s.sanitizer.Sanitize(item.Description)
	if err := s.itemRepo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("商品の作成に失敗しました: %w", err)
	}
	return item, nil
}

// UpdateStoreItem は商品を更新する。運営スタッフのみ実行できる。
func (s *Service) UpdateStoreItem(ctx context.Context, actor *model.User, item *model.StoreItem) (*model.StoreItem, error) {
	if err := requireArtist(actor); err != nil {
		return nil, err
	}

	existing, err := s.itemRepo.FindByID(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, model.NewItemNotFoundError(item.ID)
	}
	if item.PriceEur < 0 {
		return nil, model.NewValidationError("価格は0以上である必要があります")
	}

	item.Description = s.sanitizer.Sanitize(item.Description)
	if err := s.itemRepo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("商品の更新に失敗しました: %w", err)
	}
	return item, nil
}

// ListConcerts はコンサート一覧を開催日時昇順で返す。
func (s *Service) ListConcerts(ctx context.Context, includeInactive bool) ([]*model.Concert, error) {
	return s.concertRepo.List(ctx, !includeInactive)
}

// GetConcert は指定IDのコンサートを返す。
func (s *Service) GetConcert(ctx context.Context, id string) (*model.Concert, error) {
	concert, err := s.concertRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if concert == nil {
		return nil, model.NewConcertNotFoundError(id)
	}
	return concert, nil
}

// CreateConcert はコンサートを作成する。運営スタッフのみ実行できる。
func (s *Service) CreateConcert(ctx context.Context, actor *model.User, concert *model.Concert) (*model.Concert, error) {
	if err := requireArtist(actor); err != nil {
		return nil, err
	}
	if concert.Title == "" {
		return nil, model.NewValidationError("タイトルは必須です")
	}
	if concert.StartsAt.IsZero() {
		return nil, model.NewValidationError("開催日時は必須です")
	}

	concert.Description = s.sanitizer.Sanitize(concert.Description)
	if err := s.concertRepo.Create(ctx, concert); err != nil {
		return nil, fmt.Errorf("コンサートの作成に失敗しました: %w", err)
	}
	return concert, nil
}

// UpdateConcert はコンサートを更新する。運営スタッフのみ実行できる。
func (s *Service) UpdateConcert(ctx context.Context, actor *model.User, concert *model.Concert) (*model.Concert, error) {
	if err := requireArtist(actor); err != nil {
		return nil, err
	}

	existing, err := s.concertRepo.FindByID(ctx, concert.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, model.NewConcertNotFoundError(concert.ID)
	}

	concert.Description = s.sanitizer.Sanitize(concert.Description)
	if err := s.concertRepo.Update(ctx, concert); err != nil {
		return nil, fmt.Errorf("コンサートの更新に失敗しました: %w", err)
	}
	return concert, nil
}

// ListLives はライブ一覧を返す。
func (s *Service) ListLives(ctx context.Context, includeInactive bool) ([]*model.Live, error) {
	return s.liveRepo.List(ctx, !includeInactive)
}

// GetLive は指定IDのライブを返す。
func (s *Service) GetLive(ctx context.Context, id string) (*model.Live, error) {
	live, err := s.liveRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if live == nil {
		return nil, model.NewLiveNotFoundError(id)
	}
	return live, nil
}

// CreateLive はライブを作成する。運営スタッフのみ実行できる。
func (s *Service) CreateLive(ctx context.Context, actor *model.User, live *model.Live) (*model.Live, error) {
	if err := requireArtist(actor); err != nil {
		return nil, err
	}
	if live.Title == "" {
		return nil, model.NewValidationError("タイトルは必須です")
	}

	live.Description = s.sanitizer.Sanitize(live.Description)
	if err := s.liveRepo.Create(ctx, live); err != nil {
		return nil, fmt.Errorf("ライブの作成に失敗しました: %w", err)
	}
	return live, nil
}

// UpdateLive はライブを更新する。運営スタッフのみ実行できる。
func (s *Service) UpdateLive(ctx context.Context, actor *model.User, live *model.Live) (*model.Live, error) {
	if err := requireArtist(actor); err != nil {
		return nil, err
	}

	existing, err := s.liveRepo.FindByID(ctx, live.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, model.NewLiveNotFoundError(live.ID)
	}

	live.Description = s.sanitizer.Sanitize(live.Description)
	if err := s.liveRepo.Update(ctx, live); err != nil {
		return nil, fmt.Errorf("ライブの更新に失敗しました: %w", err)
	}
	return live, nil
}
