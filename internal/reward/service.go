// Package reward はNFTグラントの発行とクレーム（ミント）のドメインロジックを提供する。
package reward

import (
	"context"
	"crypto/rand"
	"encoding/hex"
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

// ClaimResult はクレーム結果を表す。
// ミントがソフト失敗した場合、GrantはFAILEDでCollectibleはnilになる。
type ClaimResult struct {
	Grant       *model.NftGrant
	Collectible *model.NftCollectible
}

// ServiceConfig はリワードサービスの設定。
type ServiceConfig struct {
	ChainID int64 // コレクティブルに記録するチェーンID
}

// Service はグラントの冪等な発行と、クレームによるミントを提供する。
type Service struct {
	assetRepo       repository.NftAssetRepository
	grantRepo       repository.NftGrantRepository
	walletRepo      repository.WalletRepository
	collectibleRepo repository.CollectibleRepository
	collector       metrics.MetricsCollector
	config          ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	assetRepo repository.NftAssetRepository,
	grantRepo repository.NftGrantRepository,
	walletRepo repository.WalletRepository,
	collectibleRepo repository.CollectibleRepository,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	return &Service{
		assetRepo:       assetRepo,
		grantRepo:       grantRepo,
		walletRepo:      walletRepo,
		collectibleRepo: collectibleRepo,
		collector:       collector,
		config:          config,
	}
}

// CreateGrant は(userId, assetId, originType, originRef)に対して高々1件の
// FAILED以外のグラントを保証する冪等な作成操作。
// 既存グラントがあればそれを返す。並行作成はユニーク制約違反を
// 既存グラントの再取得で解決する。
func (s *Service) CreateGrant(ctx context.Context, userID, assetID string, originType model.GrantOrigin, originRef string) (*model.NftGrant, error) {
	existing, err := s.grantRepo.FindActiveByTuple(ctx, userID, assetID, originType, originRef)
	if err != nil {
		return nil, fmt.Errorf("既存グラントの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	grant := &model.NftGrant{
		ID:         uuid.New().String(),
		UserID:     userID,
		AssetID:    assetID,
		OriginType: originType,
		OriginRef:  originRef,
		Status:     model.GrantStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.grantRepo.Create(ctx, grant); err != nil {
		// 並行作成との競合: ユニーク制約違反なら既存グラントへフォールバック
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			existing, findErr := s.grantRepo.FindActiveByTuple(ctx, userID, assetID, originType, originRef)
			if findErr != nil {
				return nil, fmt.Errorf("競合後のグラント再取得に失敗しました: %w", findErr)
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("グラントの作成に失敗しました: %w", err)
	}

	s.collector.RecordGrantCreated(string(originType))
	slog.Info("nft grant created",
		slog.String("grant_id", grant.ID),
		slog.String("user_id", userID),
		slog.String("origin_type", string(originType)),
		slog.String("origin_ref", originRef),
	)

	return grant, nil
}

// ClaimGrant はグラントをクレームしてミントを実行する。
// 既にMINTEDの場合は元のコレクティブルと共に返す（冪等）。
// アセットが無効な場合はグラントをFAILEDにしてInvalidAssetエラーを返す。
// ミント処理中の予期しない失敗はグラントをFAILEDにして記録し、
// エラーとしては伝播させない（ソフト失敗）。
func (s *Service) ClaimGrant(ctx context.Context, userID, grantID string) (*ClaimResult, error) {
	grant, err := s.grantRepo.FindByID(ctx, grantID)
	if err != nil {
		return nil, fmt.Errorf("グラントの取得に失敗しました: %w", err)
	}
	// 他ユーザーのグラントは存在有無を区別せずNotFoundにする
	if grant == nil || grant.UserID != userID {
		return nil, model.NewGrantNotFoundError(grantID)
	}

	if grant.Status == model.GrantStatusMinted {
		collectible, err := s.collectibleRepo.FindByGrantID(ctx, grant.ID)
		if err != nil {
			return nil, fmt.Errorf("既存コレクティブルの取得に失敗しました: %w", err)
		}
		return &ClaimResult{Grant: grant, Collectible: collectible}, nil
	}

	// アセット解決の失敗はハード失敗としてそのまま伝播する
	asset, err := s.assetRepo.FindByID(ctx, grant.AssetID)
	if err != nil {
		return nil, fmt.Errorf("アセットの取得に失敗しました: %w", err)
	}
	if asset == nil || !asset.Active {
		if markErr := s.grantRepo.MarkFailed(ctx, grant.ID, "asset inactive or unknown"); markErr != nil {
			slog.Error("failed to mark grant as failed",
				slog.String("grant_id", grant.ID),
				slog.String("error", markErr.Error()),
			)
		}
		s.collector.RecordMintFailure()
		return nil, model.NewInvalidAssetError(grant.AssetID)
	}

	collectible, err := s.mint(ctx, grant, asset)
	if err != nil {
		// ソフト失敗: グラントをFAILEDにして理由を記録し、エラーは返さない
		if markErr := s.grantRepo.MarkFailed(ctx, grant.ID, err.Error()); markErr != nil {
			slog.Error("failed to mark grant as failed",
				slog.String("grant_id", grant.ID),
				slog.String("error", markErr.Error()),
			)
		}
		s.collector.RecordMintFailure()
		slog.Error("mint failed",
			slog.String("grant_id", grant.ID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)

		failed := *grant
		failed.Status = model.GrantStatusFailed
		failed.ErrorReason = err.Error()
		return &ClaimResult{Grant: &failed}, nil
	}

	mintedAt := collectible.MintedAt
	if err := s.grantRepo.MarkMinted(ctx, grant.ID, mintedAt); err != nil {
		return nil, fmt.Errorf("グラントのMINTED遷移に失敗しました: %w", err)
	}

	s.collector.RecordMintSuccess()
	slog.Info("grant claimed and minted",
		slog.String("grant_id", grant.ID),
		slog.String("user_id", userID),
		slog.Int64("token_id", collectible.TokenID),
	)

	minted := *grant
	minted.Status = model.GrantStatusMinted
	minted.MintedAt = &mintedAt
	minted.ErrorReason = ""
	return &ClaimResult{Grant: &minted, Collectible: collectible}, nil
}

// mint はウォレットの遅延生成、トークンID採番、コレクティブル作成を行う。
func (s *Service) mint(ctx context.Context, grant *model.NftGrant, asset *model.NftAsset) (*model.NftCollectible, error) {
	wallet, err := s.ensureWallet(ctx, grant.UserID)
	if err != nil {
		return nil, err
	}

	tokenID, err := s.collectibleRepo.NextTokenID(ctx)
	if err != nil {
		return nil, err
	}

	txHash, err := generateTxHash()
	if err != nil {
		return nil, err
	}

	collectible := &model.NftCollectible{
		ID:            uuid.New().String(),
		UserID:        grant.UserID,
		WalletAddress: wallet.Address,
		AssetID:       asset.ID,
		GrantID:       grant.ID,
		TokenID:       tokenID,
		TxHash:        txHash,
		ChainID:       s.config.ChainID,
		MintStatus:    model.MintStatusMinted,
		MintedAt:      time.Now().UTC(),
	}

	if err := s.collectibleRepo.Create(ctx, collectible); err != nil {
		return nil, err
	}

	return collectible, nil
}

// ensureWallet はユーザーのカストディアルウォレットを取得し、なければ生成する。
// 並行生成はuser_idのユニーク制約違反を再取得で解決する。
func (s *Service) ensureWallet(ctx context.Context, userID string) (*model.CustodialWallet, error) {
	wallet, err := s.walletRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ウォレットの取得に失敗しました: %w", err)
	}
	if wallet != nil {
		return wallet, nil
	}

	address, err := generateWalletAddress()
	if err != nil {
		return nil, fmt.Errorf("ウォレットアドレスの生成に失敗しました: %w", err)
	}

	wallet = &model.CustodialWallet{
		ID:        uuid.New().String(),
		UserID:    userID,
		Address:   address,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.walletRepo.Create(ctx, wallet); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			existing, findErr := s.walletRepo.FindByUserID(ctx, userID)
			if findErr != nil {
				return nil, fmt.Errorf("競合後のウォレット再取得に失敗しました: %w", findErr)
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("ウォレットの作成に失敗しました: %w", err)
	}

	slog.Info("custodial wallet created",
		slog.String("user_id", userID),
		slog.String("address", address),
	)

	return wallet, nil
}

// HasCollectibleByAssetCode はユーザーが指定コードのアセットの
// コレクティブルを保有しているかを返す。
// コードが未知または無効な場合はエラーではなくfalseを返す。
func (s *Service) HasCollectibleByAssetCode(ctx context.Context, userID, code string) (bool, error) {
	asset, err := s.assetRepo.FindByCode(ctx, code)
	if err != nil {
		return false, fmt.Errorf("アセットの検索に失敗しました: %w", err)
	}
	if asset == nil || !asset.Active {
		return false, nil
	}
	return s.collectibleRepo.ExistsByUserAndAsset(ctx, userID, asset.ID)
}

// ListGrants は指定ユーザーのグラント一覧を返す。
func (s *Service) ListGrants(ctx context.Context, userID string) ([]*model.NftGrant, error) {
	return s.grantRepo.ListByUser(ctx, userID)
}

// ListCollectibles は指定ユーザーのコレクティブル一覧を返す。
func (s *Service) ListCollectibles(ctx context.Context, userID string) ([]*model.NftCollectible, error) {
	return s.collectibleRepo.ListByUser(ctx, userID)
}

// ListAssets は有効なアセットカタログの一覧を返す。
func (s *Service) ListAssets(ctx context.Context) ([]*model.NftAsset, error) {
	return s.assetRepo.List(ctx, true)
}

// generateTxHash は32バイトの疑似トランザクションハッシュを生成する。
func generateTxHash() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("トランザクションハッシュの生成に失敗しました: %w", err)
	}
	return "0x" + hex.EncodeToString(b), nil
}

// generateWalletAddress は20バイトの疑似チェーンアドレスを生成する。
func generateWalletAddress() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b), nil
}
