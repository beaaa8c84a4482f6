// Package auth はセッションエンリッチメントとOAuth認証フローを提供する。
//
// セッションエンリッチメントは、外部IdPで認証されたアイデンティティを
// emailキーの永続ユーザーレコードに対応付け（初回はトライアル既定値で
// 遅延作成）、安定した内部IDとアカウント状態をトークンに埋め込む。
// 永続化層が利用できない場合も認証フローは失敗させず、
// 劣化トークンにフォールバックする（可用性優先）。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matiquelmec/tarjetas-server/internal/model"
	"github.com/matiquelmec/tarjetas-server/internal/repository"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、認証済みアイデンティティを取得する。
	ExchangeCode(ctx context.Context, code string) (*model.Identity, error)
}

// TokenClaims はセッショントークンに埋め込まれるクレームを表す。
// トークン発行・リフレッシュのたびにUser Recordから導出され、
// それ自体は真実の源ではない。
type TokenClaims struct {
	UserID string
	Status model.AccountStatus
	Email  string
}

// EnrichmentOutcome はエンリッチメントの結果種別を表す。
// 「常に成功するが劣化しうる」契約を暗黙の副作用ではなく
// 監査可能な戻り値として表現する。
type EnrichmentOutcome string

const (
	// OutcomeExisting は既存ユーザーのクレームが導出されたことを示す。
	OutcomeExisting EnrichmentOutcome = "existing"
	// OutcomeCreated は新規ユーザーが作成されたことを示す。
	OutcomeCreated EnrichmentOutcome = "created"
	// OutcomeDegraded は永続化層の障害により劣化クレームに
	// フォールバックしたことを示す。
	OutcomeDegraded EnrichmentOutcome = "degraded"
	// OutcomeRefresh はアイデンティティ不在のリフレッシュ呼び出しで
	// 既存クレームがそのまま維持されたことを示す。
	OutcomeRefresh EnrichmentOutcome = "refresh"
)

// セッションマテリアライズ時のデフォルト値。
// トークンにクレームが欠けていてもリクエストを失敗させないために使う。
const (
	fallbackUserID = "dev-user"
	fallbackStatus = model.StatusTrial
)

// defaultLandingPath は認証後のデフォルト遷移先。
// オープンリダイレクト防止で拒否されたURLもここに強制される。
const defaultLandingPath = "/dashboard"

// EnrichmentMetrics はエンリッチメント結果のメトリクス記録インターフェース。
type EnrichmentMetrics interface {
	RecordEnrichment(outcome string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int    // セッション有効期間（秒）
	TrialDays     int    // トライアル期間（日）
	BaseURL       string // リダイレクト解決の基準URL
	AllowDevLogin bool   // 開発用ログイン（任意メール）を許可するか
}

// Service はセッションエンリッチメントと認証フローのビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	metrics     EnrichmentMetrics
	config      ServiceConfig
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	metrics EnrichmentMetrics,
	config ServiceConfig,
) *Service {
	if config.TrialDays <= 0 {
		config.TrialDays = 7
	}
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		metrics:     metrics,
		config:      config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// EnrichToken はトークン発行・リフレッシュ時のクレーム導出を行う。
//
// identが存在する場合（ログインリクエスト）はemailでUser Recordを検索し、
// 未登録なら トライアル既定値で作成したうえで、userId/status/emailを
// クレームに書き込む。identが存在しない場合（純粋なリフレッシュ）は
// 既存クレームに手を付けず再検索もしない。
//
// 検索・作成が失敗しても認証フローは失敗させない: アイデンティティ自身の
// ID（なければemail）をuserIdとする劣化クレームを返す。次回の成功した
// エンリッチメントまで、userIdが永続レコードと一致しない可能性がある。
func (s *Service) EnrichToken(ctx context.Context, claims TokenClaims, ident *model.Identity) (TokenClaims, EnrichmentOutcome) {
	if ident == nil {
		// リフレッシュ: 再検索せず既存クレームを維持する
		s.recordOutcome(OutcomeRefresh)
		return claims, OutcomeRefresh
	}

	user, created, err := s.EnsureUser(ctx, ident)
	if err != nil {
		slog.Error("session enrichment degraded: user store unavailable",
			slog.String("email", ident.Email),
			slog.String("error", err.Error()),
		)
		degraded := TokenClaims{
			UserID: degradedUserID(ident),
			Status: model.StatusTrial,
			Email:  ident.Email,
		}
		s.recordOutcome(OutcomeDegraded)
		return degraded, OutcomeDegraded
	}

	claims.UserID = user.ID
	claims.Status = user.Status
	claims.Email = user.Email

	outcome := OutcomeExisting
	if created {
		outcome = OutcomeCreated
	}
	s.recordOutcome(outcome)
	return claims, outcome
}

// EnsureUser はemailキーのUser Recordの存在を保証する。
// 未登録の場合はトライアル既定値（status=TRIAL, トライアル終了日=now+TrialDays,
// isFirstYear=true）で作成する。表示名・アバターが空の場合はデフォルト値を使う。
// 戻り値のboolは新規作成されたかどうかを示す。
// 同一emailの同時初回ログインの一意性はリポジトリ側の制約で収束する。
func (s *Service) EnsureUser(ctx context.Context, ident *model.Identity) (*model.User, bool, error) {
	existing, err := s.userRepo.FindByEmail(ctx, ident.Email)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	now := time.Now()
	name := ident.Name
	if name == "" {
		name = model.DefaultUserName
	}
	image := ident.Image
	if image == "" {
		image = model.DefaultUserImage
	}

	newUser := &model.User{
		ID:             uuid.New().String(),
		Email:          ident.Email,
		Name:           name,
		Image:          image,
		Status:         model.StatusTrial,
		TrialStartDate: now,
		TrialEndDate:   now.AddDate(0, 0, s.config.TrialDays),
		IsFirstYear:    true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	user, err := s.userRepo.Create(ctx, newUser)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	created := user.ID == newUser.ID
	if created {
		slog.Info("new user created",
			slog.String("user_id", user.ID),
			slog.String("email", user.Email),
			slog.String("provider", ident.Provider),
		)
	}

	return user, created, nil
}

// MaterializeSession はトークンのクレームからセッションユーザー表現を構築する。
// クレームが欠けていてもデフォルト値で補完し、決してエラーを返さない。
func (s *Service) MaterializeSession(claims TokenClaims) model.SessionUser {
	userID := claims.UserID
	if userID == "" {
		userID = fallbackUserID
	}
	status := claims.Status
	if status == "" {
		status = fallbackStatus
	}
	return model.SessionUser{
		ID:     userID,
		Email:  claims.Email,
		Status: string(status),
	}
}

// ResolveRedirect は認証成功後の遷移先URLを解決する。
// 相対URLはBaseURLに対して解決し、絶対URLは同一オリジンの場合のみ許可する。
// それ以外はデフォルトの遷移先に強制する（オープンリダイレクト防止）。
func (s *Service) ResolveRedirect(target string) string {
	base := strings.TrimSuffix(s.config.BaseURL, "/")

	if target == "" {
		return base + defaultLandingPath
	}

	if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") {
		return base + target
	}

	parsed, err := url.Parse(target)
	if err == nil && parsed.IsAbs() {
		baseParsed, baseErr := url.Parse(base)
		if baseErr == nil && sameOrigin(parsed, baseParsed) {
			return target
		}
	}

	return base + defaultLandingPath
}

// sameOrigin は2つのURLのスキームとホストが一致するかを判定する。
func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 認可コードの交換に成功したアイデンティティでトークンをエンリッチし、
// クレームを載せた永続セッションを作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	ident, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	return s.loginWithIdentity(ctx, ident)
}

// HandleDevLogin は開発用ログインを処理する。
// AllowDevLoginが有効な場合のみ、任意のメールアドレスでログインできる。
func (s *Service) HandleDevLogin(ctx context.Context, email string) (*model.Session, error) {
	if !s.config.AllowDevLogin {
		return nil, fmt.Errorf("development login is disabled")
	}
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	ident := &model.Identity{
		ProviderUserID: "dev-user-1",
		Email:          email,
		Name:           model.DefaultUserName,
		Image:          model.DefaultUserImage,
		Provider:       "development",
	}

	return s.loginWithIdentity(ctx, ident)
}

// loginWithIdentity はアイデンティティからエンリッチ済みセッションを発行する。
// エンリッチメントは劣化しても成功するため、ここで認証が失敗するのは
// セッションの永続化に失敗した場合のみ。
func (s *Service) loginWithIdentity(ctx context.Context, ident *model.Identity) (*model.Session, error) {
	claims, outcome := s.EnrichToken(ctx, TokenClaims{}, ident)

	if outcome == OutcomeDegraded {
		slog.Warn("issuing session with degraded claims",
			slog.String("user_id", claims.UserID),
		)
	}

	session, err := s.createSession(ctx, claims)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", claims.UserID),
		slog.String("provider", ident.Provider),
		slog.String("outcome", string(outcome)),
	)

	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のセッションユーザー表現を取得する。
// User Recordの取得に失敗してもセッションのクレームから劣化表現を返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.SessionUser, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	su := s.MaterializeSession(TokenClaims{
		UserID: session.UserID,
		Status: session.Status,
		Email:  session.Email,
	})

	// 表示名・アバターはUser Recordから補完する（取得失敗は無視）
	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err == nil && user != nil {
		su.Name = user.Name
		su.Image = user.Image
		su.Status = string(user.Status)
	}

	return &su, nil
}

// createSession はエンリッチ済みクレームを載せたセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, claims TokenClaims) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    claims.UserID,
		Status:    claims.Status,
		Email:     claims.Email,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// degradedUserID は劣化クレーム用のuserIdを導出する。
// IdP発行のIDを優先し、なければemailを使う。
func degradedUserID(ident *model.Identity) string {
	if ident.ProviderUserID != "" {
		return ident.ProviderUserID
	}
	return ident.Email
}

// recordOutcome はメトリクスが設定されている場合のみ結果を記録する。
func (s *Service) recordOutcome(outcome EnrichmentOutcome) {
	if s.metrics != nil {
		s.metrics.RecordEnrichment(string(outcome))
	}
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
