// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizer は来店客が入力した表示名からHTMLマークアップと制御文字を取り除き、
// 管理画面にそのまま表示できるプレーンテキストに整える。
package security

import (
	"errors"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNameLength は表示名の最大文字数（rune数）。
const MaxNameLength = 100

// 表示名の検証エラー。
var (
	ErrNameEmpty   = errors.New("name is empty")
	ErrNameTooLong = errors.New("name is too long")
)

// NameSanitizer は表示名の正規化機能を提供する。
// bluemondayのStrictPolicyはスレッドセーフなので、1インスタンスを共有してよい。
type NameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerを生成する。
func NewNameSanitizer() *NameSanitizer {
	return &NameSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize は表示名を正規化して返す。
// 全タグを除去し、エンティティをデコードし、制御文字を除き、連続する空白を1つにまとめる。
// 結果が空ならErrNameEmpty、MaxNameLengthを超える場合はErrNameTooLongを返す。
func (s *NameSanitizer) Sanitize(raw string) (string, error) {
	stripped := html.UnescapeString(s.policy.Sanitize(raw))

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, stripped)

	name := strings.Join(strings.Fields(cleaned), " ")
	if name == "" {
		return "", ErrNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}
