package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matiquelmec/tarjetas-server/internal/model"
	"github.com/matiquelmec/tarjetas-server/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn       func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn    func(ctx context.Context, email string) (*model.User, error)
	createFn         func(ctx context.Context, user *model.User) (*model.User, error)
	updateStatusFn   func(ctx context.Context, id string, status model.AccountStatus) error
	deleteByIDFn     func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) (*model.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return user, nil
}

func (m *mockUserRepo) UpdateStatus(ctx context.Context, id string, status model.AccountStatus) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status)
	}
	return nil
}

func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockSessionRepo struct {
	createFn         func(ctx context.Context, session *model.Session) error
	findByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn     func(ctx context.Context, id string) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*model.Identity, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*model.Identity, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)

func newTestService(userRepo *mockUserRepo, sessionRepo *mockSessionRepo) *Service {
	return NewService(&mockOAuthProvider{}, userRepo, sessionRepo, nil, ServiceConfig{
		SessionMaxAge: 2592000,
		TrialDays:     7,
		BaseURL:       "https://app.example.com",
	})
}

// --- テスト ---

// TestEnrichToken_NewUser_CreatesTrialUser は未登録emailのエンリッチメントが
// TRIAL状態かつトライアル終了日=開始日+7日のユーザーをちょうど1件作成することを検証する。
func TestEnrichToken_NewUser_CreatesTrialUser(t *testing.T) {
	ctx := context.Background()

	var createdUser *model.User
	createCalls := 0

	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, nil
		},
		createFn: func(ctx context.Context, user *model.User) (*model.User, error) {
			createCalls++
			createdUser = user
			return user, nil
		},
	}

	svc := newTestService(userRepo, &mockSessionRepo{})

	ident := &model.Identity{
		ProviderUserID: "google-user-123",
		Email:          "nuevo@example.com",
		Name:           "Nuevo Usuario",
		Image:          "https://example.com/avatar.png",
		Provider:       "google",
	}

	claims, outcome := svc.EnrichToken(ctx, TokenClaims{}, ident)

	if outcome != OutcomeCreated {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeCreated)
	}
	if createCalls != 1 {
		t.Errorf("create calls = %d, want 1", createCalls)
	}
	if createdUser == nil {
		t.Fatal("expected user to be created")
	}
	if createdUser.Status != model.StatusTrial {
		t.Errorf("status = %q, want %q", createdUser.Status, model.StatusTrial)
	}
	wantEnd := createdUser.TrialStartDate.AddDate(0, 0, 7)
	if !createdUser.TrialEndDate.Equal(wantEnd) {
		t.Errorf("trialEndDate = %v, want trialStartDate + 7 days (%v)", createdUser.TrialEndDate, wantEnd)
	}
	if !createdUser.IsFirstYear {
		t.Error("isFirstYear = false, want true")
	}
	if createdUser.Name != "Nuevo Usuario" {
		t.Errorf("name = %q, want %q", createdUser.Name, "Nuevo Usuario")
	}
	if claims.UserID != createdUser.ID {
		t.Errorf("claims.UserID = %q, want %q", claims.UserID, createdUser.ID)
	}
	if claims.Status != model.StatusTrial {
		t.Errorf("claims.Status = %q, want %q", claims.Status, model.StatusTrial)
	}
	if claims.Email != "nuevo@example.com" {
		t.Errorf("claims.Email = %q, want %q", claims.Email, "nuevo@example.com")
	}
}

// TestEnrichToken_NewUser_EmptyNameAndImage_UsesDefaults は表示名・アバターが
// 空の場合にデフォルト値が使われることを検証する。
func TestEnrichToken_NewUser_EmptyNameAndImage_UsesDefaults(t *testing.T) {
	ctx := context.Background()

	var createdUser *model.User
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) (*model.User, error) {
			createdUser = user
			return user, nil
		},
	}

	svc := newTestService(userRepo, &mockSessionRepo{})

	_, _ = svc.EnrichToken(ctx, TokenClaims{}, &model.Identity{
		Email:    "sin-nombre@example.com",
		Provider: "google",
	})

	if createdUser == nil {
		t.Fatal("expected user to be created")
	}
	if createdUser.Name != model.DefaultUserName {
		t.Errorf("name = %q, want default %q", createdUser.Name, model.DefaultUserName)
	}
	if createdUser.Image != model.DefaultUserImage {
		t.Errorf("image = %q, want default %q", createdUser.Image, model.DefaultUserImage)
	}
}

// TestEnrichToken_ExistingUser_NoCreate は登録済みemailのエンリッチメントが
// 作成を行わず、既存レコードのIDをクレームに書き込むことを検証する。
func TestEnrichToken_ExistingUser_NoCreate(t *testing.T) {
	ctx := context.Background()

	existing := &model.User{
		ID:     "user-existing-1",
		Email:  "conocido@example.com",
		Status: model.StatusActive,
	}

	createCalls := 0
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return existing, nil
		},
		createFn: func(ctx context.Context, user *model.User) (*model.User, error) {
			createCalls++
			return user, nil
		},
	}

	svc := newTestService(userRepo, &mockSessionRepo{})

	claims, outcome := svc.EnrichToken(ctx, TokenClaims{}, &model.Identity{
		Email:    "conocido@example.com",
		Provider: "google",
	})

	if outcome != OutcomeExisting {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeExisting)
	}
	if createCalls != 0 {
		t.Errorf("create calls = %d, want 0", createCalls)
	}
	if claims.UserID != "user-existing-1" {
		t.Errorf("claims.UserID = %q, want %q", claims.UserID, "user-existing-1")
	}
	if claims.Status != model.StatusActive {
		t.Errorf("claims.Status = %q, want %q", claims.Status, model.StatusActive)
	}
}

// TestEnrichToken_StoreError_DegradedFallback は永続化層の障害時に
// 劣化クレーム（userIdは非空）が返り、認証フローが完了することを検証する。
func TestEnrichToken_StoreError_DegradedFallback(t *testing.T) {
	ctx := context.Background()

	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := newTestService(userRepo, &mockSessionRepo{})

	claims, outcome := svc.EnrichToken(ctx, TokenClaims{}, &model.Identity{
		ProviderUserID: "google-user-999",
		Email:          "caido@example.com",
		Provider:       "google",
	})

	if outcome != OutcomeDegraded {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeDegraded)
	}
	if claims.UserID == "" {
		t.Error("expected non-empty userId in degraded claims")
	}
	if claims.UserID != "google-user-999" {
		t.Errorf("claims.UserID = %q, want provider user ID", claims.UserID)
	}
	if claims.Status != model.StatusTrial {
		t.Errorf("claims.Status = %q, want %q", claims.Status, model.StatusTrial)
	}
}

// TestEnrichToken_StoreError_NoProviderID_FallsBackToEmail はIdP発行IDが
// ない場合の劣化クレームがemailをuserIdとすることを検証する。
func TestEnrichToken_StoreError_NoProviderID_FallsBackToEmail(t *testing.T) {
	ctx := context.Background()

	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := newTestService(userRepo, &mockSessionRepo{})

	claims, _ := svc.EnrichToken(ctx, TokenClaims{}, &model.Identity{
		Email:    "sin-id@example.com",
		Provider: "development",
	})

	if claims.UserID != "sin-id@example.com" {
		t.Errorf("claims.UserID = %q, want email fallback", claims.UserID)
	}
}

// TestEnrichToken_Refresh_LeavesClaimsUntouched はアイデンティティ不在の
// リフレッシュ呼び出しが既存クレームを変更せず、再検索もしないことを検証する。
func TestEnrichToken_Refresh_LeavesClaimsUntouched(t *testing.T) {
	ctx := context.Background()

	lookupCalls := 0
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			lookupCalls++
			return nil, nil
		},
	}

	svc := newTestService(userRepo, &mockSessionRepo{})

	prev := TokenClaims{
		UserID: "user-prev",
		Status: model.StatusActive,
		Email:  "prev@example.com",
	}

	claims, outcome := svc.EnrichToken(ctx, prev, nil)

	if outcome != OutcomeRefresh {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeRefresh)
	}
	if claims != prev {
		t.Errorf("claims = %+v, want unchanged %+v", claims, prev)
	}
	if lookupCalls != 0 {
		t.Errorf("lookup calls = %d, want 0 on refresh", lookupCalls)
	}
}

// TestMaterializeSession_Defaults はクレームが欠けたトークンのマテリアライズが
// デフォルト値で補完されることを検証する。
func TestMaterializeSession_Defaults(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockSessionRepo{})

	su := svc.MaterializeSession(TokenClaims{})

	if su.ID != "dev-user" {
		t.Errorf("ID = %q, want %q", su.ID, "dev-user")
	}
	if su.Status != string(model.StatusTrial) {
		t.Errorf("Status = %q, want %q", su.Status, model.StatusTrial)
	}
}

// TestMaterializeSession_CopiesClaims はクレームがそのままセッションユーザーに
// コピーされることを検証する。
func TestMaterializeSession_CopiesClaims(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockSessionRepo{})

	su := svc.MaterializeSession(TokenClaims{
		UserID: "user-1",
		Status: model.StatusActive,
		Email:  "u@example.com",
	})

	if su.ID != "user-1" || su.Status != "ACTIVE" || su.Email != "u@example.com" {
		t.Errorf("unexpected session user: %+v", su)
	}
}

// TestResolveRedirect はリダイレクト解決のオープンリダイレクト防止を検証する。
func TestResolveRedirect(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockSessionRepo{})

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"relative path resolves against base", "/dashboard", "https://app.example.com/dashboard"},
		{"relative deep path", "/create?step=2", "https://app.example.com/create?step=2"},
		{"same-origin absolute allowed", "https://app.example.com/cards/1", "https://app.example.com/cards/1"},
		{"foreign origin forced to default", "https://evil.example.com/x", "https://app.example.com/dashboard"},
		{"scheme mismatch forced to default", "http://app.example.com/x", "https://app.example.com/dashboard"},
		{"protocol-relative forced to default", "//evil.example.com/x", "https://app.example.com/dashboard"},
		{"empty target goes to default", "", "https://app.example.com/dashboard"},
		{"garbage forced to default", "::not a url::", "https://app.example.com/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.ResolveRedirect(tt.target)
			if got != tt.want {
				t.Errorf("ResolveRedirect(%q) = %q, want %q", tt.target, got, tt.want)
			}
		})
	}
}

// TestHandleCallback_IssuesEnrichedSession はコールバック処理が
// エンリッチ済みクレームを載せたセッションを発行することを検証する。
func TestHandleCallback_IssuesEnrichedSession(t *testing.T) {
	ctx := context.Background()

	existing := &model.User{
		ID:     "user-55",
		Email:  "callback@example.com",
		Status: model.StatusTrial,
	}

	var savedSession *model.Session
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return existing, nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			savedSession = session
			return nil
		},
	}

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*model.Identity, error) {
			return &model.Identity{
				ProviderUserID: "google-user-55",
				Email:          "callback@example.com",
				Provider:       "google",
			}, nil
		},
	}

	svc := NewService(provider, userRepo, sessionRepo, nil, ServiceConfig{
		SessionMaxAge: 2592000,
		TrialDays:     7,
		BaseURL:       "https://app.example.com",
	})

	session, err := svc.HandleCallback(ctx, "auth-code")
	if err != nil {
		t.Fatalf("HandleCallback returned error: %v", err)
	}
	if session.UserID != "user-55" {
		t.Errorf("session.UserID = %q, want %q", session.UserID, "user-55")
	}
	if session.Status != model.StatusTrial {
		t.Errorf("session.Status = %q, want %q", session.Status, model.StatusTrial)
	}
	if savedSession == nil {
		t.Fatal("expected session to be persisted")
	}
	if savedSession.ID == "" {
		t.Error("expected non-empty session ID")
	}
	wantExpiry := time.Now().Add(2592000 * time.Second)
	if savedSession.ExpiresAt.Before(wantExpiry.Add(-time.Minute)) ||
		savedSession.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("session expiry = %v, want ~30 days from now", savedSession.ExpiresAt)
	}
}

// TestHandleCallback_ExchangeError_Fails は認可コード交換の失敗が
// エラーとして返ることを検証する（IdP障害はスコープ外、フレームワークが表面化）。
func TestHandleCallback_ExchangeError_Fails(t *testing.T) {
	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*model.Identity, error) {
			return nil, errors.New("invalid code")
		},
	}

	svc := NewService(provider, &mockUserRepo{}, &mockSessionRepo{}, nil, ServiceConfig{TrialDays: 7})

	if _, err := svc.HandleCallback(context.Background(), "bad-code"); err == nil {
		t.Fatal("expected error for failed code exchange")
	}
}

// TestHandleCallback_StoreDown_StillIssuesSession は永続化層の障害時にも
// 劣化クレームでセッションが発行されることを検証する。
func TestHandleCallback_StoreDown_StillIssuesSession(t *testing.T) {
	ctx := context.Background()

	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, errors.New("connection refused")
		},
	}

	var savedSession *model.Session
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			savedSession = session
			return nil
		},
	}

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*model.Identity, error) {
			return &model.Identity{
				ProviderUserID: "google-user-77",
				Email:          "degradado@example.com",
				Provider:       "google",
			}, nil
		},
	}

	svc := NewService(provider, userRepo, sessionRepo, nil, ServiceConfig{
		SessionMaxAge: 2592000,
		TrialDays:     7,
		BaseURL:       "https://app.example.com",
	})

	session, err := svc.HandleCallback(ctx, "auth-code")
	if err != nil {
		t.Fatalf("HandleCallback should not fail when user store is down: %v", err)
	}
	if session.UserID != "google-user-77" {
		t.Errorf("session.UserID = %q, want degraded fallback", session.UserID)
	}
	if savedSession == nil {
		t.Fatal("expected session to be persisted")
	}
}

// TestHandleDevLogin はAllowDevLogin有効時に任意メールでログインできることを検証する。
func TestHandleDevLogin(t *testing.T) {
	ctx := context.Background()

	var createdUser *model.User
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) (*model.User, error) {
			createdUser = user
			return user, nil
		},
	}

	svc := NewService(&mockOAuthProvider{}, userRepo, &mockSessionRepo{}, nil, ServiceConfig{
		SessionMaxAge: 2592000,
		TrialDays:     7,
		BaseURL:       "http://localhost:8080",
		AllowDevLogin: true,
	})

	session, err := svc.HandleDevLogin(ctx, "dev@example.com")
	if err != nil {
		t.Fatalf("HandleDevLogin returned error: %v", err)
	}
	if session == nil {
		t.Fatal("expected session")
	}
	if createdUser == nil {
		t.Fatal("expected user to be created")
	}
	if createdUser.Name != model.DefaultUserName {
		t.Errorf("name = %q, want default %q", createdUser.Name, model.DefaultUserName)
	}
}

// TestHandleDevLogin_Disabled は無効化時に開発用ログインが拒否されることを検証する。
func TestHandleDevLogin_Disabled(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockSessionRepo{})

	if _, err := svc.HandleDevLogin(context.Background(), "dev@example.com"); err == nil {
		t.Fatal("expected error when dev login is disabled")
	}
}

// TestEnsureUser_Idempotent は同一emailへのEnsureUserが2回目以降
// 作成を行わないことを検証する。
func TestEnsureUser_Idempotent(t *testing.T) {
	ctx := context.Background()

	var stored *model.User
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return stored, nil
		},
		createFn: func(ctx context.Context, user *model.User) (*model.User, error) {
			stored = user
			return user, nil
		},
	}

	svc := newTestService(userRepo, &mockSessionRepo{})

	ident := &model.Identity{Email: "idem@example.com", Provider: "google"}

	first, created, err := svc.EnsureUser(ctx, ident)
	if err != nil || !created {
		t.Fatalf("first EnsureUser: created=%v err=%v", created, err)
	}

	second, created, err := svc.EnsureUser(ctx, ident)
	if err != nil {
		t.Fatalf("second EnsureUser: %v", err)
	}
	if created {
		t.Error("second EnsureUser should not create")
	}
	if second.ID != first.ID {
		t.Errorf("second ID = %q, want %q", second.ID, first.ID)
	}
}
