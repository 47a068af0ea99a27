package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/loyalty/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用した管理者セッションリポジトリ。
type PostgresSessionRepo struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB, timeout time.Duration) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db, timeout: timeout}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.AdminSession) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_sessions (id, created_at, expires_at, last_seen_at)
		 VALUES ($1, $2, $3, $4)`,
		session.ID, session.CreatedAt, session.ExpiresAt, session.LastSeenAt,
	)
	if err != nil {
		return translateError("failed to create session", err)
	}
	return nil
}

// Touch は有効なセッションのlast_seen_atを更新して返す。
// 有効性の判定と更新を1つのUPDATE文で行う。
func (r *PostgresSessionRepo) Touch(ctx context.Context, id string, now time.Time, idleTimeout time.Duration) (*model.AdminSession, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	session := &model.AdminSession{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE admin_sessions
		 SET last_seen_at = GREATEST(last_seen_at, $2)
		 WHERE id = $1 AND expires_at > $2 AND last_seen_at >= $3
		 RETURNING id, created_at, expires_at, last_seen_at`,
		id, now, idleCutoff(now, idleTimeout),
	).Scan(&session.ID, &session.CreatedAt, &session.ExpiresAt, &session.LastSeenAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, translateError("failed to touch session", err)
	}
	return session, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM admin_sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return translateError("failed to delete session", err)
	}
	return nil
}

// DeleteExpired は期限切れまたは無操作タイムアウトのセッションを削除する。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context, now time.Time, idleTimeout time.Duration) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM admin_sessions WHERE expires_at <= $1 OR last_seen_at < $2`,
		now, idleCutoff(now, idleTimeout),
	)
	if err != nil {
		return 0, translateError("failed to delete expired sessions", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, translateError("failed to get rows affected", err)
	}
	return n, nil
}

// idleCutoff は無操作タイムアウトの境界時刻を返す。
// idleTimeoutが0以下の場合は無操作タイムアウトを無効とする。
func idleCutoff(now time.Time, idleTimeout time.Duration) time.Time {
	if idleTimeout <= 0 {
		return time.Time{}
	}
	return now.Add(-idleTimeout)
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
