// Package apiclient はバックエンドAPIのHTTPクライアントを提供する。
// セッションクッキーを付与して名刺一覧・プラン制限を取得し、
// クライアントデータキャッシュのフェッチ層として機能する。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/matiquelmec/tarjetas-server/internal/model"
)

// SessionCookieName はセッションIDを運ぶクッキー名。
const SessionCookieName = "session_id"

// Client はバックエンドAPIのクライアント。
// すべてのリクエストにセッションクッキーを付与する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// GetCards は名刺一覧を取得する。
//
// エラーステータスや配列でないレスポンスは空リストとして扱う
// （呼び出し元のキャッシュが空リストで上書きする）。
// ネットワークレベルの失敗のみエラーを返す。
func (c *Client) GetCards(ctx context.Context, sessionID string) ([]model.CardSummary, error) {
	resp, err := c.get(ctx, "/api/cards", sessionID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("cards fetch returned error status",
			slog.Int("http_status", resp.StatusCode),
		)
		return []model.CardSummary{}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read cards response: %w", err)
	}

	// 配列でないレスポンス（エラーオブジェクト等）は空リストとして扱う
	var cards []model.CardSummary
	if err := json.Unmarshal(body, &cards); err != nil {
		c.logger.Warn("cards response is not an array, treating as empty",
			slog.String("error", err.Error()),
		)
		return []model.CardSummary{}, nil
	}

	if cards == nil {
		cards = []model.CardSummary{}
	}
	return cards, nil
}

// GetPlanLimits はプラン制限を取得する。
//
// エラーステータスや不正なレスポンスはnil（不在）として扱う
// （呼び出し元のキャッシュがプラン制限不在で上書きする）。
// ネットワークレベルの失敗のみエラーを返す。
func (c *Client) GetPlanLimits(ctx context.Context, sessionID string) (*model.PlanLimits, error) {
	resp, err := c.get(ctx, "/api/user/plan-limits", sessionID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("plan limits fetch returned error status",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, nil
	}

	var limits model.PlanLimits
	if err := json.NewDecoder(resp.Body).Decode(&limits); err != nil {
		c.logger.Warn("failed to parse plan limits response, treating as absent",
			slog.String("error", err.Error()),
		)
		return nil, nil
	}

	return &limits, nil
}

// EnsureUser はユーザーレコードの存在保証を依頼する。
// 失敗してもログに残すだけで呼び出し元のフローは止めない。
func (c *Client) EnsureUser(ctx context.Context, sessionID string) {
	reqURL := c.baseURL + "/api/user/ensure"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(nil))
	if err != nil {
		c.logger.Warn("failed to create ensure-user request",
			slog.String("error", err.Error()),
		)
		return
	}
	c.setSessionCookie(req, sessionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("ensure-user request failed",
			slog.String("error", err.Error()),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("ensure-user returned error status",
			slog.Int("http_status", resp.StatusCode),
		)
	}
}

// get はセッションクッキー付きのGETリクエストを実行する。
func (c *Client) get(ctx context.Context, path, sessionID string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setSessionCookie(req, sessionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("api request failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	return resp, nil
}

// setSessionCookie はリクエストにセッションクッキーを付与する。
func (c *Client) setSessionCookie(req *http.Request, sessionID string) {
	if sessionID == "" {
		return
	}
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionID})
}
