package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/encore/internal/middleware"
	"github.com/hitoshi/encore/internal/model"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	// GetTierStatus はユーザーの進捗とティアごとの判定結果を返す。
	GetTierStatus(ctx context.Context, userID string) (*model.TierProgress, []model.TierStatus, error)
	// RecordFullLiveView はライブ完走視聴を記録する。
	RecordFullLiveView(ctx context.Context, userID, liveID string) (*model.TierProgress, error)
	// CompleteOnboarding はオンボーディング完了フラグを設定する。
	CompleteOnboarding(ctx context.Context, userID string) error
	// ListPurchases はユーザーの購入履歴を作成日時降順で返す。
	ListPurchases(ctx context.Context, userID string, limit int) ([]*model.Sale, error)
}

// ProfileHandler はログインユーザー自身の情報（ティア進捗・購入履歴）のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// tierStatusEntry はティアごとの判定結果のAPIレスポンス。
type tierStatusEntry struct {
	Tier     int    `json:"tier"`
	Name     string `json:"name"`
	Unlocked bool   `json:"unlocked"`
	Reason   string `json:"reason"`
}

// tierStatusResponse はティア進捗照会のAPIレスポンス。
type tierStatusResponse struct {
	Attendance int               `json:"attendance"`
	SpendEur   float64           `json:"spend_eur"`
	Tier       int               `json:"tier"`
	Tiers      []tierStatusEntry `json:"tiers"`
}

// saleResponse は購入履歴1件のAPIレスポンス。
type saleResponse struct {
	ID          string     `json:"id"`
	ProductID   string     `json:"product_id"`
	ProductName string     `json:"product_name"`
	ItemType    string     `json:"item_type"`
	AmountEur   float64    `json:"amount_eur"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

// GetTierStatus はユーザーのティア進捗を取得する。
// GET /api/me/tier
func (h *ProfileHandler) GetTierStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	progress, statuses, err := h.service.GetTierStatus(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTierStatusResponse(progress, statuses))
}

// CompleteOnboarding はオンボーディング完了フラグを設定する。
// PATCH /api/me/onboarding
func (h *ProfileHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.CompleteOnboarding(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"onboarded": true})
}

// ListPurchases はユーザーの購入履歴を取得する。
// GET /api/me/purchases
func (h *ProfileHandler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	sales, err := h.service.ListPurchases(r.Context(), userID, 100)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]saleResponse, len(sales))
	for i, sale := range sales {
		results[i] = saleResponse{
			ID:          sale.ID,
			ProductID:   sale.ProductID,
			ProductName: sale.ProductName,
			ItemType:    string(sale.ItemType),
			AmountEur:   sale.AmountEur,
			Status:      string(sale.Status),
			CreatedAt:   sale.CreatedAt,
			PaidAt:      sale.PaidAt,
		}
	}

	writeJSON(w, http.StatusOK, results)
}

// WatchLive はライブ完走視聴を記録する。
// POST /api/lives/{id}/watch
func (h *ProfileHandler) WatchLive(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	liveID := chi.URLParam(r, "id")

	progress, err := h.service.RecordFullLiveView(r.Context(), userID, liveID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"attendance": progress.Attendance,
		"tier":       progress.Tier,
	})
}

// toTierStatusResponse はドメインの進捗と判定結果をAPIレスポンスに変換する。
func toTierStatusResponse(progress *model.TierProgress, statuses []model.TierStatus) tierStatusResponse {
	entries := make([]tierStatusEntry, len(statuses))
	for i, st := range statuses {
		entries[i] = tierStatusEntry{
			Tier:     st.Tier,
			Name:     st.Name,
			Unlocked: st.Unlocked,
			Reason:   st.Reason,
		}
	}
	return tierStatusResponse{
		Attendance: progress.Attendance,
		SpendEur:   progress.SpendEur,
		Tier:       progress.Tier,
		Tiers:      entries,
	}
}
