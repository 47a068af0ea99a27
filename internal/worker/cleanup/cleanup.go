// Package cleanup は期限切れ管理者セッションの削除ジョブを提供する。
// サーバー自体はバックグラウンドジョブを持たないため、
// `loyalty cleanup` サブコマンドとして外部スケジューラから起動する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPurger は期限切れセッションの一括削除を抽象化するインターフェース。
// repository.SessionRepositoryが実装する。
type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time, idleTimeout time.Duration) (int64, error)
}

// PurgeRecorder は削除件数のメトリクス記録インターフェース。
type PurgeRecorder interface {
	RecordSessionsPurged(n int64)
}

// CleanupJob は絶対期限切れまたは無操作タイムアウトしたセッションを削除するジョブ。
// 冪等であり、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	sessions    SessionPurger
	logger      *slog.Logger
	metrics     PurgeRecorder
	IdleTimeout time.Duration // 無操作タイムアウト。0以下なら絶対期限のみで判定
	now         func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。metricsはnilでもよい。
func NewCleanupJob(sessions SessionPurger, logger *slog.Logger, idleTimeout time.Duration, metrics PurgeRecorder) *CleanupJob {
	return &CleanupJob{
		sessions:    sessions,
		logger:      logger,
		metrics:     metrics,
		IdleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Run は期限切れセッションを削除し、削除件数を返す。
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	start := j.now()

	deleted, err := j.sessions.DeleteExpired(ctx, start.UTC(), j.IdleTimeout)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("idle_timeout", j.IdleTimeout),
		)
		return 0, fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordSessionsPurged(deleted)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Duration("idle_timeout", j.IdleTimeout),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return deleted, nil
}
