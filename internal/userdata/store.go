// Package userdata はユーザーデータ（名刺一覧・プラン制限）の共有キャッシュを提供する。
//
// キャッシュエントリはコンテキスト全体で1つだけ共有され、鮮度ウィンドウ内の
// 再取得を重複排除する。2つのリソースは並行フェッチされ、片方の失敗は
// もう片方を中断しない（リソース単位の劣化）。アンビエントなグローバル変数
// ではなく、明示的に注入されるシングルトンとして所有される。
package userdata

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/matiquelmec/tarjetas-server/internal/model"
)

// DefaultFreshnessWindow はキャッシュの鮮度ウィンドウのデフォルト値。
// このウィンドウ内の ensure-fresh はネットワーク呼び出しを行わない。
const DefaultFreshnessWindow = 30 * time.Second

// Fetcher はキャッシュが使用するリソース取得インターフェース。
// 各メソッドはネットワークレベルの失敗のみエラーを返し、
// アプリケーションレベルの失敗（エラーステータス、不正ペイロード）は
// 空・不在値への劣化として扱う。
type Fetcher interface {
	GetCards(ctx context.Context, sessionID string) ([]model.CardSummary, error)
	GetPlanLimits(ctx context.Context, sessionID string) (*model.PlanLimits, error)
}

// CacheMetrics はキャッシュ動作のメトリクス記録インターフェース。
type CacheMetrics interface {
	RecordCacheLookup(hit bool)
	RecordResourceFetch(resource string, ok bool)
}

// entry は共有キャッシュエントリ。
// 成功したフェッチのたびに全体が上書きされる（部分マージなし）。
type entry struct {
	cards      []model.CardSummary
	planLimits *model.PlanLimits
	lastFetch  time.Time
}

// Snapshot はコンシューマーに返すキャッシュの読み取りビュー。
type Snapshot struct {
	Cards      []model.CardSummary `json:"cards"`
	PlanLimits *model.PlanLimits   `json:"planLimits,omitempty"`
	Fresh      bool                `json:"fresh"`
}

// Store はユーザーデータの共有キャッシュ。
type Store struct {
	fetcher Fetcher
	logger  *slog.Logger
	metrics CacheMetrics
	window  time.Duration

	mu      sync.Mutex
	entry   *entry
	loading bool

	// テスト用に差し替え可能な現在時刻
	now func() time.Time
}

// NewStore はStoreを生成する。windowが0以下の場合はデフォルト値を使う。
// metricsはnilでもよい。
func NewStore(fetcher Fetcher, logger *slog.Logger, metrics CacheMetrics, window time.Duration) *Store {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	return &Store{
		fetcher: fetcher,
		logger:  logger,
		metrics: metrics,
		window:  window,
		now:     time.Now,
	}
}

// EnsureFresh はキャッシュの鮮度を保証し、現在のスナップショットを返す。
//
// セッションが未解決の場合はネットワーク呼び出しなしで空の結果を返す。
// forceがfalseで、エントリが存在し鮮度ウィンドウ内の場合は
// キャッシュからそのまま返す（重複排除）。それ以外は2つのリソースを
// 並行フェッチし、完了後にエントリ全体を上書きする。
//
// どちらかのフェッチがネットワークレベルで失敗した場合（全体失敗）は
// エントリを変更せず、前回のキャッシュ値（あれば）をそのまま返す。
func (s *Store) EnsureFresh(ctx context.Context, sessionID string, force bool) Snapshot {
	if sessionID == "" {
		return Snapshot{Cards: []model.CardSummary{}}
	}

	s.mu.Lock()
	if !force && s.entry != nil && s.now().Sub(s.entry.lastFetch) < s.window {
		snap := s.snapshotLocked(true)
		s.mu.Unlock()
		s.recordLookup(true)
		return snap
	}
	s.loading = true
	s.mu.Unlock()
	s.recordLookup(false)

	var (
		wg       sync.WaitGroup
		cards    []model.CardSummary
		limits   *model.PlanLimits
		cardsErr error
		planErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		cards, cardsErr = s.fetcher.GetCards(ctx, sessionID)
		s.recordFetch("cards", cardsErr == nil)
	}()
	go func() {
		defer wg.Done()
		limits, planErr = s.fetcher.GetPlanLimits(ctx, sessionID)
		s.recordFetch("plan_limits", planErr == nil)
	}()
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false

	if cardsErr != nil || planErr != nil {
		// 全体失敗: 前回のキャッシュ値を変更せず維持する
		s.logger.Error("user data fetch failed, keeping stale cache",
			slog.Any("cards_error", cardsErr),
			slog.Any("plan_limits_error", planErr),
		)
		return s.snapshotLocked(false)
	}

	if cards == nil {
		cards = []model.CardSummary{}
	}
	s.entry = &entry{
		cards:      cards,
		planLimits: limits,
		lastFetch:  s.now(),
	}

	s.logger.Info("user data cache refreshed",
		slog.Int("card_count", len(cards)),
		slog.Bool("plan_limits_present", limits != nil),
		slog.Bool("forced", force),
	)

	return s.snapshotLocked(true)
}

// Refetch は鮮度ウィンドウを無視して必ず再取得する。
func (s *Store) Refetch(ctx context.Context, sessionID string) Snapshot {
	return s.EnsureFresh(ctx, sessionID, true)
}

// Loading はフェッチが進行中かどうかを返す。
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// snapshotLocked は現在のエントリからスナップショットを構築する。
// s.muを保持した状態で呼ぶこと。エントリのスライスはコピーして返す。
func (s *Store) snapshotLocked(fresh bool) Snapshot {
	if s.entry == nil {
		return Snapshot{Cards: []model.CardSummary{}, Fresh: false}
	}
	cards := make([]model.CardSummary, len(s.entry.cards))
	copy(cards, s.entry.cards)
	return Snapshot{
		Cards:      cards,
		PlanLimits: s.entry.planLimits,
		Fresh:      fresh,
	}
}

func (s *Store) recordLookup(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(hit)
	}
}

func (s *Store) recordFetch(resource string, ok bool) {
	if s.metrics != nil {
		s.metrics.RecordResourceFetch(resource, ok)
	}
}
