package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/encore/internal/middleware"
	"github.com/hitoshi/encore/internal/model"
	"github.com/hitoshi/encore/internal/reward"
)

// RewardServiceInterface はリワードハンドラーが必要とするサービスインターフェース。
type RewardServiceInterface interface {
	// ListAssets は有効なアセットカタログの一覧を返す。
	ListAssets(ctx context.Context) ([]*model.NftAsset, error)
	// ListGrants はユーザーのグラント一覧を返す。
	ListGrants(ctx context.Context, userID string) ([]*model.NftGrant, error)
	// ClaimGrant はグラントをクレームしてミントを実行する。
	ClaimGrant(ctx context.Context, userID, grantID string) (*reward.ClaimResult, error)
	// ListCollectibles はユーザーのコレクティブル一覧を返す。
	ListCollectibles(ctx context.Context, userID string) ([]*model.NftCollectible, error)
}

// RewardHandler はNFT特典（アセット・グラント・コレクティブル）のHTTPハンドラー。
type RewardHandler struct {
	service RewardServiceInterface
}

// NewRewardHandler はRewardHandlerを生成する。
func NewRewardHandler(service RewardServiceInterface) *RewardHandler {
	return &RewardHandler{service: service}
}

// assetResponse はNFTアセットのAPIレスポンス。
type assetResponse struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Rarity      string `json:"rarity"`
	TierLevel   *int   `json:"tier_level,omitempty"`
}

// grantResponse はNFTグラントのAPIレスポンス。
type grantResponse struct {
	ID          string     `json:"id"`
	AssetID     string     `json:"asset_id"`
	OriginType  string     `json:"origin_type"`
	OriginRef   string     `json:"origin_ref"`
	Status      string     `json:"status"`
	ErrorReason string     `json:"error_reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	MintedAt    *time.Time `json:"minted_at,omitempty"`
}

// collectibleResponse はNFTコレクティブルのAPIレスポンス。
type collectibleResponse struct {
	ID            string    `json:"id"`
	AssetID       string    `json:"asset_id"`
	GrantID       string    `json:"grant_id"`
	WalletAddress string    `json:"wallet_address"`
	TokenID       int64     `json:"token_id"`
	TxHash        string    `json:"tx_hash"`
	ChainID       int64     `json:"chain_id"`
	MintStatus    string    `json:"mint_status"`
	MintedAt      time.Time `json:"minted_at"`
}

// claimResponse はグラントクレームのAPIレスポンス。
// ミントがソフト失敗した場合はgrantがFAILEDでcollectibleが省略される。
type claimResponse struct {
	Grant       grantResponse        `json:"grant"`
	Collectible *collectibleResponse `json:"collectible,omitempty"`
}

// ListAssets は有効なアセットカタログの一覧を取得する。
// GET /api/rewards/assets
func (h *RewardHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.service.ListAssets(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]assetResponse, len(assets))
	for i, asset := range assets {
		results[i] = assetResponse{
			ID:          asset.ID,
			Code:        asset.Code,
			Name:        asset.Name,
			Description: asset.Description,
			ImageURL:    asset.ImageURL,
			Rarity:      string(asset.Rarity),
			TierLevel:   asset.TierLevel,
		}
	}
	writeJSON(w, http.StatusOK, results)
}

// ListGrants はユーザーのグラント一覧を取得する。
// GET /api/rewards/grants
func (h *RewardHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	grants, err := h.service.ListGrants(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]grantResponse, len(grants))
	for i, grant := range grants {
		results[i] = toGrantResponse(grant)
	}
	writeJSON(w, http.StatusOK, results)
}

// ClaimGrant はグラントをクレームしてミントを実行する。
// POST /api/rewards/grants/{id}/claim
func (h *RewardHandler) ClaimGrant(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	grantID := chi.URLParam(r, "id")

	result, err := h.service.ClaimGrant(r.Context(), userID, grantID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := claimResponse{Grant: toGrantResponse(result.Grant)}
	if result.Collectible != nil {
		c := toCollectibleResponse(result.Collectible)
		resp.Collectible = &c
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListCollectibles はユーザーのコレクティブル一覧を取得する。
// GET /api/rewards/collectibles
func (h *RewardHandler) ListCollectibles(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	collectibles, err := h.service.ListCollectibles(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]collectibleResponse, len(collectibles))
	for i, c := range collectibles {
		results[i] = toCollectibleResponse(c)
	}
	writeJSON(w, http.StatusOK, results)
}

func toGrantResponse(grant *model.NftGrant) grantResponse {
	return grantResponse{
		ID:          grant.ID,
		AssetID:     grant.AssetID,
		OriginType:  string(grant.OriginType),
		OriginRef:   grant.OriginRef,
		Status:      string(grant.Status),
		ErrorReason: grant.ErrorReason,
		CreatedAt:   grant.CreatedAt,
		MintedAt:    grant.MintedAt,
	}
}

func toCollectibleResponse(c *model.NftCollectible) collectibleResponse {
	return collectibleResponse{
		ID:            c.ID,
		AssetID:       c.AssetID,
		GrantID:       c.GrantID,
		WalletAddress: c.WalletAddress,
		TokenID:       c.TokenID,
		TxHash:        c.TxHash,
		ChainID:       c.ChainID,
		MintStatus:    string(c.MintStatus),
		MintedAt:      c.MintedAt,
	}
}
