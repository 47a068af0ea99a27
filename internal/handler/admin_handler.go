package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/loyalty/internal/middleware"
	"github.com/hitoshi/loyalty/internal/model"
)

// AdminGuardInterface は管理者ハンドラーが必要とするセッションガードのインターフェース。
// auth.Guardが実装する。
type AdminGuardInterface interface {
	middleware.SessionChecker
	Login(ctx context.Context, password string) (*model.AdminSession, error)
	Check(ctx context.Context, token string) bool
	Logout(ctx context.Context, token string) error
}

// AdminHandlerConfig は管理者ハンドラーの設定。
type AdminHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
}

// AdminHandler は管理者ログイン関連のHTTPハンドラー。
type AdminHandler struct {
	guard  AdminGuardInterface
	config AdminHandlerConfig
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(guard AdminGuardInterface, config AdminHandlerConfig) *AdminHandler {
	return &AdminHandler{
		guard:  guard,
		config: config,
	}
}

// loginRequest は管理者ログインリクエストのボディ。
type loginRequest struct {
	Password string `json:"password"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type checkResponse struct {
	IsAdmin bool `json:"isAdmin"`
}

// Login はパスワードを検証し、セッションCookieを発行する。
// POST /api/admin/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError())
		return
	}

	session, err := h.guard.Login(r.Context(), req.Password)
	if errors.Is(err, model.ErrInvalidCredentials) {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.setSessionCookie(w, session.ID, session.ExpiresAt)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// Logout はセッションを破棄し、Cookieをクリアする。
// POST /api/admin/logout
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionTokenFromRequest(r); token != "" {
		if err := h.guard.Logout(r.Context(), token); err != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// Check は現在のリクエストが管理者セッションを持つかを返す。
// 失敗時もエラーにはせず、isAdmin=falseを返す。
// GET /api/admin/check
func (h *AdminHandler) Check(w http.ResponseWriter, r *http.Request) {
	ok := h.guard.Check(r.Context(), middleware.SessionTokenFromRequest(r))
	writeJSON(w, http.StatusOK, checkResponse{IsAdmin: ok})
}

func (h *AdminHandler) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AdminHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
