// Package trial はトライアル失効処理の定期ジョブを提供する。
// トライアル終了日を過ぎたTRIALアカウントをEXPIREDに更新する。
// 課金によるstatusの変更はこのジョブの対象外。
package trial

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ExpiryMetrics は失効処理件数のメトリクス記録インターフェース。
type ExpiryMetrics interface {
	RecordTrialsExpired(count int)
}

// ExpiryJob はトライアル失効処理の定期ジョブ。
// 冪等: 既にEXPIREDのアカウントや失効対象がない場合でもエラーにならない。
type ExpiryJob struct {
	db      Executor
	logger  *slog.Logger
	metrics ExpiryMetrics
}

// NewExpiryJob は新しいExpiryJobを生成する。metricsはnilでもよい。
func NewExpiryJob(db Executor, logger *slog.Logger, metrics ExpiryMetrics) *ExpiryJob {
	return &ExpiryJob{
		db:      db,
		logger:  logger,
		metrics: metrics,
	}
}

// Run はトライアル終了日を過ぎたTRIALアカウントをEXPIREDに更新する。
func (j *ExpiryJob) Run(ctx context.Context) error {
	start := time.Now()

	query := `UPDATE users
	          SET status = 'EXPIRED', updated_at = now()
	          WHERE status = 'TRIAL' AND trial_end_date < now()`
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("trial expiry job failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to expire trials: %w", err)
	}

	expiredCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("failed to get expired count",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to get expired count: %w", err)
	}

	if j.metrics != nil && expiredCount > 0 {
		j.metrics.RecordTrialsExpired(int(expiredCount))
	}

	duration := time.Since(start)
	j.logger.Info("trial expiry job completed",
		slog.Int64("expired_count", expiredCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// RunPeriodically は指定間隔でRunを繰り返し実行する。
// コンテキストのキャンセルで停止する。起動直後にも1回実行する。
func (j *ExpiryJob) RunPeriodically(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("trial expiry run failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("trial expiry run failed", slog.String("error", err.Error()))
			}
		case <-ctx.Done():
			j.logger.Info("trial expiry worker stopped")
			return
		}
	}
}
