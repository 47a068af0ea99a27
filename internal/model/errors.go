// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ストア層・認証層が返すセンチネルエラー。
// 呼び出し側はerrors.Isで判定する。
var (
	// ErrNotFound は対象レコードが存在しないことを表す。
	ErrNotFound = errors.New("not found")
	// ErrConflict は同一電話番号の顧客が既に存在することを表す。
	ErrConflict = errors.New("conflict")
	// ErrInvalidCredentials は管理者パスワードが一致しないことを表す。
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTimeout はストア操作が制限時間内に完了しなかったことを表す。
	ErrTimeout = errors.New("store timeout")
	// ErrUnavailable はストアに到達できないことを表す。
	ErrUnavailable = errors.New("store unavailable")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, customer, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidPhone       = "INVALID_PHONE"
	ErrCodeInvalidName        = "INVALID_NAME"
	ErrCodeInvalidBody        = "INVALID_REQUEST_BODY"
	ErrCodeCustomerNotFound   = "CUSTOMER_NOT_FOUND"
	ErrCodeCustomerConflict   = "CUSTOMER_CONFLICT"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbiddenOrigin    = "FORBIDDEN_ORIGIN"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewInvalidPhoneError は電話番号の形式エラーを生成する。
func NewInvalidPhoneError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPhone,
		Message:  "Please enter a valid phone number.",
		Category: "validation",
		Action:   "Enter a phone number with 10 to 15 digits.",
	}
}

// NewInvalidNameError は氏名の形式エラーを生成する。
func NewInvalidNameError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidName,
		Message:  fmt.Sprintf("Please enter a valid name: %s.", reason),
		Category: "validation",
		Action:   "Enter your name using up to 100 characters.",
	}
}

// NewInvalidBodyError はリクエストボディの解析エラーを生成する。
func NewInvalidBodyError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBody,
		Message:  "The request body could not be read.",
		Category: "validation",
		Action:   "Send a JSON object with the required fields.",
	}
}

// NewCustomerNotFoundError は顧客未登録エラーを生成する。
func NewCustomerNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeCustomerNotFound,
		Message:  "Customer not found.",
		Category: "customer",
		Action:   "Register with your name and phone number.",
	}
}

// NewCustomerConflictError は同時登録の競合エラーを生成する。
// クライアントは電話番号での再検索または再送で回復できる。
func NewCustomerConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeCustomerConflict,
		Message:  "This phone number was registered at the same moment.",
		Category: "customer",
		Action:   "Please try again.",
	}
}

// NewInvalidCredentialsError は管理者ログイン失敗エラーを生成する。
// パスワード誤りとレート制限を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Incorrect password.",
		Category: "auth",
		Action:   "Check the password and try again.",
	}
}

// NewUnauthorizedError は管理者セッションが無い場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Admin login required.",
		Category: "auth",
		Action:   "Log in to the admin dashboard.",
	}
}

// NewForbiddenOriginError は許可されていないオリジンからの状態変更リクエストのエラーを生成する。
func NewForbiddenOriginError() *APIError {
	return &APIError{
		Code:     ErrCodeForbiddenOrigin,
		Message:  "This request origin is not allowed.",
		Category: "auth",
		Action:   "Open the app from its official address.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewServiceUnavailableError はストア障害時の再試行可能エラーを生成する。
// 内部の詳細はログのみに記録する。
func NewServiceUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeServiceUnavailable,
		Message:  "The service is temporarily unavailable.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}

// NewInternalError は内部エラーの汎用レスポンスを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}
