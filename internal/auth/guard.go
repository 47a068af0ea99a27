// Package auth は管理者パスワードによるログインとセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/loyalty/internal/model"
	"github.com/hitoshi/loyalty/internal/repository"
)

const (
	// DefaultSessionMaxAge はセッションの絶対有効期間のデフォルト値（8時間）。
	DefaultSessionMaxAge = 8 * time.Hour
	// DefaultIdleTimeout は無操作タイムアウトのデフォルト値。
	DefaultIdleTimeout = 30 * time.Minute

	sessionTokenBytes = 32
)

// LoginRecorder はログイン結果のメトリクス記録インターフェース。
type LoginRecorder interface {
	RecordAdminLogin(success bool)
}

// GuardConfig は管理者ガードの設定。
type GuardConfig struct {
	Password      string        // 管理者パスワード（ログ出力しない）
	SessionMaxAge time.Duration // 絶対有効期間
	IdleTimeout   time.Duration // 無操作タイムアウト。0以下なら無効
}

// Guard は管理者セッションの発行・検証・破棄を行う。
// 状態はすべてSessionRepositoryに保持し、Guard自体は不変。
type Guard struct {
	repo         repository.SessionRepository
	passwordHash [sha256.Size]byte
	maxAge       time.Duration
	idleTimeout  time.Duration
	metrics      LoginRecorder
	now          func() time.Time
}

// NewGuard はGuardを生成する。metricsはnilでもよい。
func NewGuard(repo repository.SessionRepository, cfg GuardConfig, metrics LoginRecorder) *Guard {
	maxAge := cfg.SessionMaxAge
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	return &Guard{
		repo:         repo,
		passwordHash: sha256.Sum256([]byte(cfg.Password)),
		maxAge:       maxAge,
		idleTimeout:  cfg.IdleTimeout,
		metrics:      metrics,
		now:          time.Now,
	}
}

// Login はパスワードを検証し、成功すれば新しいセッションを発行する。
// 不一致の場合はmodel.ErrInvalidCredentialsを返す。
func (g *Guard) Login(ctx context.Context, password string) (*model.AdminSession, error) {
	// 長さの違いで比較時間が変わらないよう、両辺をハッシュしてから比較する
	given := sha256.Sum256([]byte(password))
	if subtle.ConstantTimeCompare(given[:], g.passwordHash[:]) != 1 {
		g.recordLogin(false)
		slog.Warn("管理者ログインに失敗しました")
		return nil, model.ErrInvalidCredentials
	}

	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("セッショントークンの生成に失敗しました: %w", err)
	}

	now := g.now().UTC()
	session := &model.AdminSession{
		ID:         token,
		CreatedAt:  now,
		ExpiresAt:  now.Add(g.maxAge),
		LastSeenAt: now,
	}
	if err := g.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("セッションの保存に失敗しました: %w", err)
	}

	g.recordLogin(true)
	slog.Info("管理者がログインしました", slog.String("session", TokenPrefix(token)))
	return session, nil
}

// Session はトークンに対応する有効なセッションを返し、最終アクセス時刻を更新する。
// 空・未登録・期限切れ・無操作タイムアウトの場合はfalseを返す。
// ストアのエラーはログに記録し、未認証として扱う。
func (g *Guard) Session(ctx context.Context, token string) (*model.AdminSession, bool) {
	if token == "" {
		return nil, false
	}

	session, err := g.repo.Touch(ctx, token, g.now().UTC(), g.idleTimeout)
	if errors.Is(err, model.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		slog.Error("セッションの検証に失敗しました",
			slog.String("session", TokenPrefix(token)),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return session, true
}

// Check はトークンが有効な管理者セッションかどうかを返す。エラーは返さない。
func (g *Guard) Check(ctx context.Context, token string) bool {
	_, ok := g.Session(ctx, token)
	return ok
}

// Logout はセッションを破棄する。既に無効なトークンや空のトークンでもエラーにしない。
func (g *Guard) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := g.repo.DeleteByID(ctx, token); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	slog.Info("管理者がログアウトしました", slog.String("session", TokenPrefix(token)))
	return nil
}

func (g *Guard) recordLogin(success bool) {
	if g.metrics != nil {
		g.metrics.RecordAdminLogin(success)
	}
}

// TokenPrefix はログ出力用にトークンの先頭8文字だけを返す。
func TokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}

// generateSessionToken は暗号的に安全なセッショントークンを生成する。
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
