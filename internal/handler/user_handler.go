package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/matiquelmec/tarjetas-server/internal/middleware"
	"github.com/matiquelmec/tarjetas-server/internal/model"
	"github.com/matiquelmec/tarjetas-server/internal/userdata"
)

// UserEnsurer はUser Recordの遅延作成インターフェース。
// 既存ユーザーの場合は何も作成しない（冪等）。
type UserEnsurer interface {
	EnsureUser(ctx context.Context, ident *model.Identity) (*model.User, bool, error)
}

// PlanServiceInterface はプラン制限の導出インターフェース。
type PlanServiceInterface interface {
	LimitsFor(ctx context.Context, userID string, status model.AccountStatus) (*model.PlanLimits, error)
}

// UserDataStore はユーザーデータの共有キャッシュインターフェース。
type UserDataStore interface {
	EnsureFresh(ctx context.Context, sessionID string, force bool) userdata.Snapshot
	Loading() bool
}

// WithdrawServiceInterface は退会処理のインターフェース。
type WithdrawServiceInterface interface {
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	ensurer  UserEnsurer
	planSvc  PlanServiceInterface
	dataStore UserDataStore
	withdraw WithdrawServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(
	ensurer UserEnsurer,
	planSvc PlanServiceInterface,
	dataStore UserDataStore,
	withdraw WithdrawServiceInterface,
) *UserHandler {
	return &UserHandler{
		ensurer:   ensurer,
		planSvc:   planSvc,
		dataStore: dataStore,
		withdraw:  withdraw,
	}
}

// ensureUserResponse はPOST /api/user/ensure のレスポンス。
type ensureUserResponse struct {
	UserID  string `json:"userId"`
	Status  string `json:"status"`
	Created bool   `json:"created"`
}

// userDataResponse はGET /api/user/data のレスポンス。
type userDataResponse struct {
	userdata.Snapshot
	Loading bool `json:"loading"`
}

// ensureUserRequest はPOST /api/user/ensure の任意ボディ。
// 表示名・アバターの補完にのみ使い、emailはセッションのクレームが優先される。
type ensureUserRequest struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// EnsureUser はセッションのアイデンティティに対応するUser Recordの存在を保証する。
// POST /api/user/ensure
// 未登録ならトライアル既定値で作成する。既存なら何もしない（冪等）。
func (h *UserHandler) EnsureUser(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	// ボディは任意（欠損・不正は無視してクレームのみで続行）
	var req ensureUserRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	user, created, err := h.ensurer.EnsureUser(r.Context(), &model.Identity{
		ProviderUserID: claims.UserID,
		Email:          claims.Email,
		Name:           req.Name,
		Image:          req.Image,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ensureUserResponse{
		UserID:  user.ID,
		Status:  string(user.Status),
		Created: created,
	})
}

// GetPlanLimits は現在のアカウント状態から導出されるプラン制限を返す。
// GET /api/user/plan-limits
func (h *UserHandler) GetPlanLimits(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	limits, err := h.planSvc.LimitsFor(r.Context(), claims.UserID, claims.Status)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(limits)
}

// GetUserData はキャッシュされたユーザーデータ（名刺一覧・プラン制限）を返す。
// GET /api/user/data?refresh=true
// refresh=true の場合は鮮度ウィンドウを無視して再取得する。
func (h *UserHandler) GetUserData(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	force := r.URL.Query().Get("refresh") == "true"
	snapshot := h.dataStore.EnsureFresh(r.Context(), claims.SessionID, force)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(userDataResponse{
		Snapshot: snapshot,
		Loading:  h.dataStore.Loading(),
	})
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.withdraw.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
