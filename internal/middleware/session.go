// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"

	"github.com/hitoshi/loyalty/internal/model"
)

// SessionCookieName は管理者セッショントークンを保持するCookieの名前。
const SessionCookieName = "admin_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// adminSessionContextKey はリクエストコンテキストに管理者セッションを格納するためのキー。
var adminSessionContextKey = contextKey("admin_session")

// SessionChecker は管理者セッションの検証に必要なインターフェース。
// auth.Guardが実装する。
type SessionChecker interface {
	Session(ctx context.Context, token string) (*model.AdminSession, bool)
}

// SessionTokenFromRequest はCookieから管理者セッショントークンを取得する。
// Cookieがない場合は空文字を返す。
func SessionTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// NewAdminMiddleware はHTTP Only Cookieから管理者セッションを読み取り、
// 有効性を検証するミドルウェアを返す。
// 有効なセッションをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewAdminMiddleware(checker SessionChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionTokenFromRequest(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			session, ok := checker.Session(r.Context(), token)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			markAdmin(r.Context())
			next.ServeHTTP(w, r.WithContext(ContextWithAdminSession(r.Context(), session)))
		})
	}
}

// AdminSessionFromContext はリクエストコンテキストから管理者セッションを取得する。
// 管理者ミドルウェアを通過したリクエストでのみ有効。
func AdminSessionFromContext(ctx context.Context) (*model.AdminSession, bool) {
	session, ok := ctx.Value(adminSessionContextKey).(*model.AdminSession)
	if !ok || session == nil {
		return nil, false
	}
	return session, true
}

// ContextWithAdminSession はコンテキストに管理者セッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAdminSession(ctx context.Context, session *model.AdminSession) context.Context {
	return context.WithValue(ctx, adminSessionContextKey, session)
}
