package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hitoshi/loyalty/internal/model"
	"github.com/lib/pq"
)

// PostgreSQLのSQLSTATE。
const (
	// uniqueViolation は一意制約違反。
	uniqueViolation = pq.ErrorCode("23505")
	// queryCanceled は実行中の文がキャンセルされたことを表す。
	// lib/pqはコンテキストの期限切れで実行中のクエリを止めるとこのコードを返す。
	queryCanceled = pq.ErrorCode("57014")
)

// DefaultTimeout はストア操作のデフォルト制限時間。
const DefaultTimeout = 3 * time.Second

// withTimeout はストア操作用の制限時間付きコンテキストを返す。
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// translateError はドライバーエラーをmodelのセンチネルエラーに変換する。
// opは失敗した操作名で、ログ用のラップに使う。
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, model.ErrTimeout)
	case errors.As(err, &pqErr) && pqErr.Code == queryCanceled:
		return fmt.Errorf("%s: %w: %v", op, model.ErrTimeout, err)
	case errors.As(err, &pqErr) && pqErr.Code == uniqueViolation:
		return fmt.Errorf("%s: %w", op, model.ErrConflict)
	case isConnectionError(err):
		return fmt.Errorf("%s: %w: %v", op, model.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isConnectionError はDBへの接続自体に失敗したエラーかどうかを判定する。
func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
