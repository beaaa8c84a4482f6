package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/matiquelmec/tarjetas-server/internal/card"
	"github.com/matiquelmec/tarjetas-server/internal/linkpreview"
	"github.com/matiquelmec/tarjetas-server/internal/middleware"
	"github.com/matiquelmec/tarjetas-server/internal/model"
)

// CardServiceInterface は名刺ハンドラーが必要とするサービスインターフェース。
type CardServiceInterface interface {
	// CreateCard はプラン制限と入力検証を通して名刺を作成する。
	CreateCard(ctx context.Context, userID string, status model.AccountStatus, input card.CardInput) (*model.Card, error)
	// ListCards はユーザーの名刺サマリー一覧を返す。
	ListCards(ctx context.Context, userID string) ([]model.CardSummary, error)
	// GetCard は所有権を検証して名刺を取得する。
	GetCard(ctx context.Context, userID, cardID string) (*model.Card, error)
	// UpdateCard は所有権を検証して名刺を更新する。
	UpdateCard(ctx context.Context, userID, cardID string, input card.CardInput) (*model.Card, error)
	// DeleteCard は所有権を検証して名刺を削除する。
	DeleteCard(ctx context.Context, userID, cardID string) error
}

// LinkPreviewInterface はリンクプレビュー取得のインターフェース。
type LinkPreviewInterface interface {
	Fetch(ctx context.Context, inputURL string) (*linkpreview.Preview, error)
}

// CardHandler は名刺管理のHTTPハンドラー。
type CardHandler struct {
	service CardServiceInterface
	preview LinkPreviewInterface
}

// NewCardHandler はCardHandlerを生成する。
func NewCardHandler(service CardServiceInterface, preview LinkPreviewInterface) *CardHandler {
	return &CardHandler{
		service: service,
		preview: preview,
	}
}

// cardResponse は名刺詳細のAPIレスポンス。
type cardResponse struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Name       string    `json:"name"`
	Profession string    `json:"profession"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Website    string    `json:"website"`
	Bio        string    `json:"bio"`
	Views      int       `json:"views"`
	Clicks     int       `json:"clicks"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// ListCards はユーザーの名刺一覧を返す。
// GET /api/cards
// レスポンスは常にJSON配列（名刺が無い場合は空配列）。
func (h *CardHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	summaries, err := h.service.ListCards(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if summaries == nil {
		summaries = []model.CardSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// CreateCard は名刺を作成する。
// POST /api/cards
func (h *CardHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var input card.CardInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("リクエストボディの解析に失敗しました"))
		return
	}

	created, err := h.service.CreateCard(r.Context(), claims.UserID, claims.Status, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toCardResponse(created))
}

// GetCard は名刺詳細を取得する。
// GET /api/cards/:id
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	cardID := chi.URLParam(r, "id")

	c, err := h.service.GetCard(r.Context(), userID, cardID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toCardResponse(c))
}

// UpdateCard は名刺を更新する。
// PUT /api/cards/:id
func (h *CardHandler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	cardID := chi.URLParam(r, "id")

	var input card.CardInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("リクエストボディの解析に失敗しました"))
		return
	}

	updated, err := h.service.UpdateCard(r.Context(), userID, cardID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toCardResponse(updated))
}

// DeleteCard は名刺を削除する。
// DELETE /api/cards/:id
func (h *CardHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	cardID := chi.URLParam(r, "id")

	if err := h.service.DeleteCard(r.Context(), userID, cardID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PreviewLink はWebサイトURLのリンクプレビューを取得する。
// GET /api/link-preview?url=https://example.com
// 取得先はSSRF検証を通過した公開URLに限定される。
func (h *CardHandler) PreviewLink(w http.ResponseWriter, r *http.Request) {
	inputURL := r.URL.Query().Get("url")
	if inputURL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	preview, err := h.preview.Fetch(r.Context(), inputURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(preview)
}

// --- ヘルパー関数 ---

// toCardResponse はmodel.CardからAPIレスポンスに変換する。
func toCardResponse(c *model.Card) cardResponse {
	return cardResponse{
		ID:         c.ID,
		Title:      c.Title,
		Name:       c.Name,
		Profession: c.Profession,
		Email:      c.Email,
		Phone:      c.Phone,
		Website:    c.Website,
		Bio:        c.Bio,
		Views:      c.Views,
		Clicks:     c.Clicks,
		IsActive:   c.IsActive,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, middleware.StatusCodeForAPIError(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
