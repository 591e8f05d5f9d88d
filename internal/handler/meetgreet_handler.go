package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/encore/internal/meetgreet"
	"github.com/hitoshi/encore/internal/middleware"
	"github.com/hitoshi/encore/internal/model"
)

// MeetGreetServiceInterface はミート&グリートハンドラーが必要とするサービスインターフェース。
type MeetGreetServiceInterface interface {
	// GetPass はユーザーの入場パス状態を返す。
	GetPass(ctx context.Context, userID string) (*meetgreet.PassInfo, error)
	// CreateQrToken は現在VALIDなパスに対して短命のQRトークンを発行する。
	CreateQrToken(ctx context.Context, userID string) (string, time.Time, error)
	// RedeemQrToken はQRトークンを照合して入場を記録する。
	RedeemQrToken(ctx context.Context, tokenString string) (*meetgreet.RedeemResult, error)
	// CreateEvent はイベントを作成する。
	CreateEvent(ctx context.Context, title string, eventDate time.Time) (*model.MeetGreetEvent, error)
}

// MeetGreetHandler はミート&グリート入場権のHTTPハンドラー。
type MeetGreetHandler struct {
	service MeetGreetServiceInterface
	users   UserFetcher
}

// NewMeetGreetHandler はMeetGreetHandlerを生成する。
func NewMeetGreetHandler(service MeetGreetServiceInterface, users UserFetcher) *MeetGreetHandler {
	return &MeetGreetHandler{
		service: service,
		users:   users,
	}
}

// meetGreetEventResponse はイベントのAPIレスポンス。
type meetGreetEventResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	EventDate time.Time `json:"event_date"`
	Active    bool      `json:"active"`
}

// passResponse は入場パス状態のAPIレスポンス。
type passResponse struct {
	Status        string                  `json:"status"`
	CanGenerateQr bool                    `json:"can_generate_qr"`
	Event         *meetGreetEventResponse `json:"event,omitempty"`
	UsedAt        *time.Time              `json:"used_at,omitempty"`
}

// qrTokenResponse はQRトークン発行のAPIレスポンス。
type qrTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// redeemRequest はQRトークン照合リクエストのボディ。
type redeemRequest struct {
	Token string `json:"token"`
}

// redeemResponse はQRトークン照合のAPIレスポンス。
type redeemResponse struct {
	Status      string    `json:"status"`
	AlreadyUsed bool      `json:"already_used"`
	UsedAt      time.Time `json:"used_at"`
}

// createEventRequest はイベント作成リクエストのボディ。
type createEventRequest struct {
	Title     string    `json:"title"`
	EventDate time.Time `json:"event_date"`
}

// GetPass はユーザーの入場パス状態を取得する。
// GET /api/meetgreet/pass
func (h *MeetGreetHandler) GetPass(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	pass, err := h.service.GetPass(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := passResponse{
		Status:        string(pass.Status),
		CanGenerateQr: pass.CanGenerateQr,
	}
	if pass.Event != nil {
		resp.Event = &meetGreetEventResponse{
			ID:        pass.Event.ID,
			Title:     pass.Event.Title,
			EventDate: pass.Event.EventDate,
			Active:    pass.Event.Active,
		}
	}
	if pass.Access != nil {
		resp.UsedAt = pass.Access.UsedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateQrToken は短命のQRトークンを発行する。
// POST /api/meetgreet/qr-token
func (h *MeetGreetHandler) CreateQrToken(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	token, expiresAt, err := h.service.CreateQrToken(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, qrTokenResponse{Token: token, ExpiresAt: expiresAt})
}

// Redeem はQRトークンを照合して入場を記録する。
// POST /api/meetgreet/redeem
func (h *MeetGreetHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	if req.Token == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("トークンは必須です"))
		return
	}

	result, err := h.service.RedeemQrToken(r.Context(), req.Token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, redeemResponse{
		Status:      string(result.Status),
		AlreadyUsed: result.AlreadyUsed,
		UsedAt:      result.UsedAt,
	})
}

// CreateEvent はイベントを作成する。運営スタッフのみ実行できる。
// POST /api/meetgreet/events
func (h *MeetGreetHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	actor, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !isArtist(actor) {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		return
	}

	var req createEventRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	event, err := h.service.CreateEvent(r.Context(), req.Title, req.EventDate)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, meetGreetEventResponse{
		ID:        event.ID,
		Title:     event.Title,
		EventDate: event.EventDate,
		Active:    event.Active,
	})
}
