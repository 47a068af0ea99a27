package model

import "time"

// AdminSession は認証済み管理者ブラウザのサーバーサイドセッションを表す。
// ExpiresAtは絶対期限、LastSeenAtは無操作タイムアウトの判定に使う。
type AdminSession struct {
	ID         string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastSeenAt time.Time
}

// IsActive はnow時点でセッションが有効かどうかを返す。
// 絶対期限を過ぎているか、最終アクセスからidleTimeout以上経過している場合は無効。
func (s *AdminSession) IsActive(now time.Time, idleTimeout time.Duration) bool {
	if s == nil {
		return false
	}
	if !now.Before(s.ExpiresAt) {
		return false
	}
	if idleTimeout > 0 && now.Sub(s.LastSeenAt) > idleTimeout {
		return false
	}
	return true
}
