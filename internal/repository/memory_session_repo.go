package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/loyalty/internal/model"
)

// MemorySessionRepo はプロセス内メモリに管理者セッションを保持するリポジトリ。
type MemorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]model.AdminSession
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{sessions: make(map[string]model.AdminSession)}
}

// Create はセッションを作成する。
func (r *MemorySessionRepo) Create(ctx context.Context, session *model.AdminSession) error {
	if err := ctx.Err(); err != nil {
		return translateError("failed to create session", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return fmt.Errorf("failed to create session: %w", model.ErrConflict)
	}
	r.sessions[session.ID] = *session
	return nil
}

// Touch は有効なセッションのlast_seen_atを更新して返す。
// 無効なセッションは検出時に削除する。
func (r *MemorySessionRepo) Touch(ctx context.Context, id string, now time.Time, idleTimeout time.Duration) (*model.AdminSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, translateError("failed to touch session", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if !s.IsActive(now, idleTimeout) {
		delete(r.sessions, id)
		return nil, model.ErrNotFound
	}

	if now.After(s.LastSeenAt) {
		s.LastSeenAt = now
	}
	r.sessions[id] = s
	return &s, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *MemorySessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return translateError("failed to delete session", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

// DeleteExpired は期限切れまたは無操作タイムアウトのセッションを削除する。
func (r *MemorySessionRepo) DeleteExpired(ctx context.Context, now time.Time, idleTimeout time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, translateError("failed to delete expired sessions", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.sessions {
		if !s.IsActive(now, idleTimeout) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len は保持しているセッション数を返す。テスト用。
func (r *MemorySessionRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// compile-time interface check
var _ SessionRepository = (*MemorySessionRepo)(nil)
