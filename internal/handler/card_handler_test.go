package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/matiquelmec/tarjetas-server/internal/card"
	"github.com/matiquelmec/tarjetas-server/internal/linkpreview"
	"github.com/matiquelmec/tarjetas-server/internal/middleware"
	"github.com/matiquelmec/tarjetas-server/internal/model"
)

// --- モック定義 ---

type mockCardService struct {
	createCardFn func(ctx context.Context, userID string, status model.AccountStatus, input card.CardInput) (*model.Card, error)
	listCardsFn  func(ctx context.Context, userID string) ([]model.CardSummary, error)
	getCardFn    func(ctx context.Context, userID, cardID string) (*model.Card, error)
	updateCardFn func(ctx context.Context, userID, cardID string, input card.CardInput) (*model.Card, error)
	deleteCardFn func(ctx context.Context, userID, cardID string) error
}

func (m *mockCardService) CreateCard(ctx context.Context, userID string, status model.AccountStatus, input card.CardInput) (*model.Card, error) {
	if m.createCardFn != nil {
		return m.createCardFn(ctx, userID, status, input)
	}
	return nil, nil
}

func (m *mockCardService) ListCards(ctx context.Context, userID string) ([]model.CardSummary, error) {
	if m.listCardsFn != nil {
		return m.listCardsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockCardService) GetCard(ctx context.Context, userID, cardID string) (*model.Card, error) {
	if m.getCardFn != nil {
		return m.getCardFn(ctx, userID, cardID)
	}
	return nil, nil
}

func (m *mockCardService) UpdateCard(ctx context.Context, userID, cardID string, input card.CardInput) (*model.Card, error) {
	if m.updateCardFn != nil {
		return m.updateCardFn(ctx, userID, cardID, input)
	}
	return nil, nil
}

func (m *mockCardService) DeleteCard(ctx context.Context, userID, cardID string) error {
	if m.deleteCardFn != nil {
		return m.deleteCardFn(ctx, userID, cardID)
	}
	return nil
}

type mockLinkPreview struct {
	fetchFn func(ctx context.Context, inputURL string) (*linkpreview.Preview, error)
}

func (m *mockLinkPreview) Fetch(ctx context.Context, inputURL string) (*linkpreview.Preview, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, inputURL)
	}
	return nil, nil
}

// --- compile-time interface checks ---
var (
	_ CardServiceInterface = (*mockCardService)(nil)
	_ LinkPreviewInterface = (*mockLinkPreview)(nil)
)

// --- テストヘルパー ---

// withClaims はテスト用にリクエストコンテキストにセッションクレームを注入するヘルパー。
func withClaims(r *http.Request, userID string, status model.AccountStatus) *http.Request {
	ctx := middleware.ContextWithClaims(r.Context(), middleware.SessionClaims{
		SessionID: "session-" + userID,
		UserID:    userID,
		Status:    status,
		Email:     userID + "@example.com",
	})
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// --- GET /api/cards テスト ---

func TestCardHandler_ListCards_ReturnsSummaries(t *testing.T) {
	svc := &mockCardService{
		listCardsFn: func(ctx context.Context, userID string) ([]model.CardSummary, error) {
			return []model.CardSummary{
				{ID: "card-1", Title: "Mi Tarjeta", Name: "Ana García"},
			}, nil
		},
	}
	h := NewCardHandler(svc, &mockLinkPreview{})

	req := httptest.NewRequest(http.MethodGet, "/api/cards", nil)
	req = withClaims(req, "user-1", model.StatusTrial)
	w := httptest.NewRecorder()

	h.ListCards(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var summaries []model.CardSummary
	if err := json.NewDecoder(w.Body).Decode(&summaries); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != "card-1" {
		t.Errorf("summaries = %+v, want one card-1", summaries)
	}
}

// TestCardHandler_ListCards_Empty は名刺が無い場合にnullではなく
// 空配列が返ることを検証する。
func TestCardHandler_ListCards_Empty(t *testing.T) {
	h := NewCardHandler(&mockCardService{}, &mockLinkPreview{})

	req := httptest.NewRequest(http.MethodGet, "/api/cards", nil)
	req = withClaims(req, "user-1", model.StatusTrial)
	w := httptest.NewRecorder()

	h.ListCards(w, req)

	body := w.Body.String()
	if body != "[]\n" {
		t.Errorf("body = %q, want empty JSON array", body)
	}
}

func TestCardHandler_ListCards_NoClaims_ReturnsUnauthorized(t *testing.T) {
	h := NewCardHandler(&mockCardService{}, &mockLinkPreview{})

	req := httptest.NewRequest(http.MethodGet, "/api/cards", nil)
	w := httptest.NewRecorder()

	h.ListCards(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- POST /api/cards テスト ---

func TestCardHandler_CreateCard_Success(t *testing.T) {
	svc := &mockCardService{
		createCardFn: func(ctx context.Context, userID string, status model.AccountStatus, input card.CardInput) (*model.Card, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want %q", userID, "user-1")
			}
			if status != model.StatusTrial {
				t.Errorf("status = %q, want %q", status, model.StatusTrial)
			}
			return &model.Card{ID: "card-new", UserID: userID, Title: input.Title, IsActive: true}, nil
		},
	}
	h := NewCardHandler(svc, &mockLinkPreview{})

	body := `{"title": "Mi Tarjeta", "name": "Ana García", "profession": "Abogada"}`
	req := httptest.NewRequest(http.MethodPost, "/api/cards", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req = withClaims(req, "user-1", model.StatusTrial)
	w := httptest.NewRecorder()

	h.CreateCard(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	var resp cardResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "card-new" || resp.Title != "Mi Tarjeta" {
		t.Errorf("response = %+v, want created card", resp)
	}
}

func TestCardHandler_CreateCard_LimitReached_ReturnsForbidden(t *testing.T) {
	svc := &mockCardService{
		createCardFn: func(ctx context.Context, userID string, status model.AccountStatus, input card.CardInput) (*model.Card, error) {
			return nil, model.NewCardLimitError(1)
		},
	}
	h := NewCardHandler(svc, &mockLinkPreview{})

	body := `{"title": "Otra Tarjeta", "name": "Ana García"}`
	req := httptest.NewRequest(http.MethodPost, "/api/cards", bytes.NewBufferString(body))
	req = withClaims(req, "user-1", model.StatusTrial)
	w := httptest.NewRecorder()

	h.CreateCard(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	errResp := parseAPIErrorResponse(t, w)
	if errResp["code"] != model.ErrCodeCardLimit {
		t.Errorf("code = %q, want %q", errResp["code"], model.ErrCodeCardLimit)
	}
}

func TestCardHandler_CreateCard_InvalidJSON_ReturnsBadRequest(t *testing.T) {
	h := NewCardHandler(&mockCardService{}, &mockLinkPreview{})

	req := httptest.NewRequest(http.MethodPost, "/api/cards", bytes.NewBufferString("{invalid"))
	req = withClaims(req, "user-1", model.StatusTrial)
	w := httptest.NewRecorder()

	h.CreateCard(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// --- GET/PUT/DELETE /api/cards/:id テスト ---

func TestCardHandler_GetCard_NotFound(t *testing.T) {
	svc := &mockCardService{
		getCardFn: func(ctx context.Context, userID, cardID string) (*model.Card, error) {
			return nil, model.NewCardNotFoundError(cardID)
		},
	}
	h := NewCardHandler(svc, &mockLinkPreview{})

	req := httptest.NewRequest(http.MethodGet, "/api/cards/missing", nil)
	req = withClaims(req, "user-1", model.StatusTrial)
	req = withChiURLParam(req, "id", "missing")
	w := httptest.NewRecorder()

	h.GetCard(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestCardHandler_UpdateCard_Success(t *testing.T) {
	svc := &mockCardService{
		updateCardFn: func(ctx context.Context, userID, cardID string, input card.CardInput) (*model.Card, error) {
			if cardID != "card-1" {
				t.Errorf("cardID = %q, want %q", cardID, "card-1")
			}
			return &model.Card{ID: cardID, UserID: userID, Title: input.Title}, nil
		},
	}
	h := NewCardHandler(svc, &mockLinkPreview{})

	body := `{"title": "Título Nuevo", "name": "Ana García"}`
	req := httptest.NewRequest(http.MethodPut, "/api/cards/card-1", bytes.NewBufferString(body))
	req = withClaims(req, "user-1", model.StatusTrial)
	req = withChiURLParam(req, "id", "card-1")
	w := httptest.NewRecorder()

	h.UpdateCard(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestCardHandler_DeleteCard_Success(t *testing.T) {
	deleted := ""
	svc := &mockCardService{
		deleteCardFn: func(ctx context.Context, userID, cardID string) error {
			deleted = cardID
			return nil
		},
	}
	h := NewCardHandler(svc, &mockLinkPreview{})

	req := httptest.NewRequest(http.MethodDelete, "/api/cards/card-1", nil)
	req = withClaims(req, "user-1", model.StatusTrial)
	req = withChiURLParam(req, "id", "card-1")
	w := httptest.NewRecorder()

	h.DeleteCard(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if deleted != "card-1" {
		t.Errorf("deleted = %q, want %q", deleted, "card-1")
	}
}

// --- GET /api/link-preview テスト ---

func TestCardHandler_PreviewLink_Success(t *testing.T) {
	svc := &mockLinkPreview{
		fetchFn: func(ctx context.Context, inputURL string) (*linkpreview.Preview, error) {
			return &linkpreview.Preview{
				URL:   inputURL,
				Title: "Example Site",
			}, nil
		},
	}
	h := NewCardHandler(&mockCardService{}, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/link-preview?url=https://example.com", nil)
	req = withClaims(req, "user-1", model.StatusTrial)
	w := httptest.NewRecorder()

	h.PreviewLink(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var preview linkpreview.Preview
	if err := json.NewDecoder(w.Body).Decode(&preview); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if preview.Title != "Example Site" {
		t.Errorf("title = %q, want %q", preview.Title, "Example Site")
	}
}

func TestCardHandler_PreviewLink_SSRFBlocked(t *testing.T) {
	svc := &mockLinkPreview{
		fetchFn: func(ctx context.Context, inputURL string) (*linkpreview.Preview, error) {
			return nil, model.NewSSRFBlockedError()
		},
	}
	h := NewCardHandler(&mockCardService{}, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/link-preview?url=http://169.254.169.254/", nil)
	req = withClaims(req, "user-1", model.StatusTrial)
	w := httptest.NewRecorder()

	h.PreviewLink(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCardHandler_PreviewLink_MissingURL(t *testing.T) {
	h := NewCardHandler(&mockCardService{}, &mockLinkPreview{})

	req := httptest.NewRequest(http.MethodGet, "/api/link-preview", nil)
	req = withClaims(req, "user-1", model.StatusTrial)
	w := httptest.NewRecorder()

	h.PreviewLink(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
