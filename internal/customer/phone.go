package customer

import (
	"strings"

	"github.com/hitoshi/loyalty/internal/model"
)

// 正規化後の電話番号の桁数制限。
// 上限はE.164の最大桁数に合わせる。
const (
	MinPhoneDigits = 10
	MaxPhoneDigits = 15
)

// NormalizePhone は電話番号から数字以外の文字を取り除く。
// 桁数がMinPhoneDigits未満またはMaxPhoneDigitsを超える場合はINVALID_PHONEエラーを返す。
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if len(digits) < MinPhoneDigits || len(digits) > MaxPhoneDigits {
		return "", model.NewInvalidPhoneError()
	}
	return digits, nil
}
