package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/encore/internal/middleware"
	"github.com/hitoshi/encore/internal/model"
)

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	ListStoreItems(ctx context.Context, includeInactive bool) ([]*model.StoreItem, error)
	GetStoreItem(ctx context.Context, id string) (*model.StoreItem, error)
	CreateStoreItem(ctx context.Context, actor *model.User, item *model.StoreItem) (*model.StoreItem, error)
	UpdateStoreItem(ctx context.Context, actor *model.User, item *model.StoreItem) (*model.StoreItem, error)

	ListConcerts(ctx context.Context, includeInactive bool) ([]*model.Concert, error)
	GetConcert(ctx context.Context, id string) (*model.Concert, error)
	CreateConcert(ctx context.Context, actor *model.User, concert *model.Concert) (*model.Concert, error)
	UpdateConcert(ctx context.Context, actor *model.User, concert *model.Concert) (*model.Concert, error)

	ListLives(ctx context.Context, includeInactive bool) ([]*model.Live, error)
	GetLive(ctx context.Context, id string) (*model.Live, error)
	CreateLive(ctx context.Context, actor *model.User, live *model.Live) (*model.Live, error)
	UpdateLive(ctx context.Context, actor *model.User, live *model.Live) (*model.Live, error)
}

// UserFetcher は認証済みユーザーの取得に必要なインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFetcher interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// RegistrationListerInterface はコンサート参加登録一覧の取得インターフェース。
type RegistrationListerInterface interface {
	ListByConcert(ctx context.Context, concertID string) ([]*model.ConcertRegistration, error)
}

// CatalogHandler はカタログ（グッズ・コンサート・配信ライブ）のHTTPハンドラー。
// 作成・更新は運営スタッフ（artist）のみ実行できる。
type CatalogHandler struct {
	service       CatalogServiceInterface
	users         UserFetcher
	registrations RegistrationListerInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface, users UserFetcher, registrations RegistrationListerInterface) *CatalogHandler {
	return &CatalogHandler{
		service:       service,
		users:         users,
		registrations: registrations,
	}
}

// --- リクエスト・レスポンス型 ---

// storeItemRequest は商品作成・更新リクエストのボディ。
type storeItemRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	PriceEur    float64 `json:"price_eur"`
	ImageURL    string  `json:"image_url"`
	Active      *bool   `json:"active"`
}

// storeItemResponse は商品のAPIレスポンス。
type storeItemResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceEur    float64   `json:"price_eur"`
	ImageURL    string    `json:"image_url"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// concertRequest はコンサート作成・更新リクエストのボディ。
type concertRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Venue       string    `json:"venue"`
	StartsAt    time.Time `json:"starts_at"`
	Active      *bool     `json:"active"`
}

// concertResponse はコンサートのAPIレスポンス。
type concertResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Venue       string    `json:"venue"`
	StartsAt    time.Time `json:"starts_at"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// liveRequest はライブ作成・更新リクエストのボディ。
type liveRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	VideoURL    string     `json:"video_url"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	Active      *bool      `json:"active"`
}

// liveResponse は配信ライブのAPIレスポンス。
type liveResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	VideoURL    string     `json:"video_url"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
}

// registrationResponse はコンサート参加登録のAPIレスポンス。
type registrationResponse struct {
	ID        string    `json:"id"`
	UserEmail string    `json:"user_email"`
	UserName  string    `json:"user_name"`
	Status    string    `json:"status"`
	Source    string    `json:"source"`
	ConcertID string    `json:"concert_id"`
	SaleID    string    `json:"sale_id"`
	CreatedAt time.Time `json:"created_at"`
}

// currentActor はリクエストコンテキストの認証済みユーザーを取得する。
func (h *CatalogHandler) currentActor(r *http.Request) (*model.User, error) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		return nil, err
	}
	return h.users.FindByID(r.Context(), userID)
}

// isArtist は運営スタッフかどうかを返す。
// 一覧系エンドポイントでincludeInactiveを許可するかの判定に使う。
func isArtist(user *model.User) bool {
	return user != nil && user.Role == model.RoleArtist
}

// --- 商品 ---

// ListStoreItems は商品一覧を取得する。運営スタッフには無効な商品も見える。
// GET /api/items
func (h *CatalogHandler) ListStoreItems(w http.ResponseWriter, r *http.Request) {
	actor, err := h.currentActor(r)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	items, err := h.service.ListStoreItems(r.Context(), isArtist(actor))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]storeItemResponse, len(items))
	for i, item := range items {
		results[i] = toStoreItemResponse(item)
	}
	writeJSON(w, http.StatusOK, results)
}

// GetStoreItem は商品詳細を取得する。
// GET /api/items/{id}
func (h *CatalogHandler) GetStoreItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetStoreItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStoreItemResponse(item))
}

// CreateStoreItem は商品を作成する。
// POST /api/items
func (h *CatalogHandler) CreateStoreItem(w http.ResponseWriter, r *http.Request) {
	actor, err := h.currentActor(r)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req storeItemRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	item := &model.StoreItem{
		Name:        req.Name,
		Description: req.Description,
		PriceEur:    req.PriceEur,
		ImageURL:    req.ImageURL,
		Active:      req.Active == nil || *req.Active,
	}

	created, err := h.service.CreateStoreItem(r.Context(), actor, item)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStoreItemResponse(created))
}

// UpdateStoreItem は商品を更新する。
// PUT /api/items/{id}
func (h *CatalogHandler) UpdateStoreItem(w http.ResponseWriter, r *http.Request) {
	actor, err := h.currentActor(r)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req storeItemRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	item := &model.StoreItem{
		ID:          chi.URLParam(r, "id"),
		Name:        req.Name,
		Description: req.Description,
		PriceEur:    req.PriceEur,
		ImageURL:    req.ImageURL,
		Active:      req.Active == nil || *req.Active,
	}

	updated, err := h.service.UpdateStoreItem(r.Context(), actor, item)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStoreItemResponse(updated))
}

// --- コンサート ---

// ListConcerts はコンサート一覧を取得する。
// GET /api/concerts
func (h *CatalogHandler) ListConcerts(w http.ResponseWriter, r *http.Request) {
	actor, err := h.currentActor(r)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	concerts, err := h.service.ListConcerts(r.Context(), isArtist(actor))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]concertResponse, len(concerts))
	for i, concert := range concerts {
		results[i] = toConcertResponse(concert)
	}
	writeJSON(w, http.StatusOK, results)
}

// GetConcert はコンサート詳細を取得する。
// GET /api/concerts/{id}
func (h *CatalogHandler) GetConcert(w http.ResponseWriter, r *http.Request) {
	concert, err := h.service.GetConcert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConcertResponse(concert))
}

// CreateConcert はコンサートを作成する。
// POST /api/concerts
func (h *CatalogHandler) CreateConcert(w http.ResponseWriter, r *http.Request) {
	actor, err := h.currentActor(r)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req concertRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	concert := &model.Concert{
		Title:       req.Title,
		Description: req.Description,
		Venue:       req.Venue,
		StartsAt:    req.StartsAt,
		Active:      req.Active == nil || *req.Active,
	}

	created, err := h.service.CreateConcert(r.Context(), actor, concert)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConcertResponse(created))
}

// UpdateConcert はコンサートを更新する。
// PUT /api/concerts/{id}
func (h *CatalogHandler) UpdateConcert(w http.ResponseWriter, r *http.Request) {
	actor, err := h.currentActor(r)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req concertRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	concert := &model.Concert{
		ID:          chi.URLParam(r, "id"),
		Title:       req.Title,
		Description: req.Description,
		Venue:       req.Venue,
		StartsAt:    req.StartsAt,
		Active:      req.Active == nil || *req.Active,
	}

	updated, err := h.service.UpdateConcert(r.Context(), actor, concert)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConcertResponse(updated))
}

// ListRegistrations はコンサートの参加登録一覧を取得する。運営スタッフのみ。
// GET /api/concerts/{id}/registrations
func (h *CatalogHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	actor, err := h.currentActor(r)
	if err != nil {
		writeUnauthorized(w)
		return
	}
	if !isArtist(actor) {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		return
	}

	regs, err := h.registrations.ListByConcert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]registrationResponse, len(regs))
	for i, reg := range regs {
		results[i] = registrationResponse{
			ID:        reg.ID,
			UserEmail: reg.UserEmail,
			UserName:  reg.UserName,
			Status:    string(reg.Status),
			Source:    string(reg.Source),
			ConcertID: reg.ConcertID,
			SaleID:    reg.SaleID,
			CreatedAt: reg.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, results)
}

// --- ライブ ---

// ListLives はライブ一覧を取得する。
// GET /api/lives
func (h *CatalogHandler) ListLives(w http.ResponseWriter, r *http.Request) {
	actor, err := h.currentActor(r)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	lives, err := h.service.ListLives(r.Context(), isArtist(actor))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]liveResponse, len(lives))
	for i, live := range lives {
		results[i] = toLiveResponse(live)
	}
	writeJSON(w, http.StatusOK, results)
}

// GetLive はライブ詳細を取得する。
// GET /api/lives/{id}
func (h *CatalogHandler) GetLive(w http.ResponseWriter, r *http.Request) {
	live, err := h.service.GetLive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLiveResponse(live))
}

// CreateLive はライブを作成する。
// POST /api/lives
func (h *CatalogHandler) CreateLive(w http.ResponseWriter, r *http.Request) {
	actor, err := h.currentActor(r)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req liveRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	live := &model.Live{
		Title:       req.Title,
		Description: req.Description,
		VideoURL:    req.VideoURL,
		StartsAt:    req.StartsAt,
		Active:      req.Active == nil || *req.Active,
	}

	created, err := h.service.CreateLive(r.Context(), actor, live)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLiveResponse(created))
}

// UpdateLive はライブを更新する。
// PUT /api/lives/{id}
func (h *CatalogHandler) UpdateLive(w http.ResponseWriter, r *http.Request) {
	actor, err := h.currentActor(r)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req liveRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	live := &model.Live{
		ID:          chi.URLParam(r, "id"),
		Title:       req.Title,
		Description: req.Description,
		VideoURL:    req.VideoURL,
		StartsAt:    req.StartsAt,
		Active:      req.Active == nil || *req.Active,
	}

	updated, err := h.service.UpdateLive(r.Context(), actor, live)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLiveResponse(updated))
}

// --- ヘルパー関数 ---

func toStoreItemResponse(item *model.StoreItem) storeItemResponse {
	return storeItemResponse{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		PriceEur:    item.PriceEur,
		ImageURL:    item.ImageURL,
		Active:      item.Active,
		CreatedAt:   item.CreatedAt,
	}
}

func toConcertResponse(concert *model.Concert) concertResponse {
	return concertResponse{
		ID:          concert.ID,
		Title:       concert.Title,
		Description: concert.Description,
		Venue:       concert.Venue,
		StartsAt:    concert.StartsAt,
		Active:      concert.Active,
		CreatedAt:   concert.CreatedAt,
	}
}

func toLiveResponse(live *model.Live) liveResponse {
	return liveResponse{
		ID:          live.ID,
		Title:       live.Title,
		Description: live.Description,
		VideoURL:    live.VideoURL,
		StartsAt:    live.StartsAt,
		Active:      live.Active,
		CreatedAt:   live.CreatedAt,
	}
}
