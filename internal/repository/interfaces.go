// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/loyalty/internal/model"
)

// CustomerRepository は顧客データの永続化インターフェース。
// 電話番号の一意性はストア側で原子的に保証する。
type CustomerRepository interface {
	// FindByPhone は正規化済み電話番号で顧客を検索する。見つからない場合はmodel.ErrNotFoundを返す。
	FindByPhone(ctx context.Context, phone string) (*model.Customer, error)

	// FindByID は指定IDの顧客を取得する。見つからない場合はmodel.ErrNotFoundを返す。
	FindByID(ctx context.Context, id string) (*model.Customer, error)

	// Create は来店回数1で顧客を作成する。
	// 同じ電話番号の顧客が既に存在する場合はmodel.ErrConflictを返す。
	Create(ctx context.Context, name, phone string, now time.Time) (*model.Customer, error)

	// IncrementVisit は来店回数を1加算し、updated_atをnowに更新する。
	// updated_atは単調非減少とする。存在しない場合はmodel.ErrNotFoundを返す。
	IncrementVisit(ctx context.Context, id string, now time.Time) (*model.Customer, error)

	// ListAll は全顧客を作成順で返す。
	ListAll(ctx context.Context) ([]*model.Customer, error)

	// Stats は顧客数と来店回数の合計を返す。
	Stats(ctx context.Context) (model.CustomerStats, error)
}

// SessionRepository は管理者セッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.AdminSession) error

	// Touch は有効なセッションのlast_seen_atをnowに更新して返す。
	// 期限切れ、無操作タイムアウト、未登録の場合はmodel.ErrNotFoundを返す。
	// 判定と更新は1操作で行い、同一トークンの並行検証でも競合しない。
	Touch(ctx context.Context, id string, now time.Time, idleTimeout time.Duration) (*model.AdminSession, error)

	// DeleteByID は指定IDのセッションを削除する。存在しなくてもエラーにしない。
	DeleteByID(ctx context.Context, id string) error

	// DeleteExpired は期限切れまたは無操作タイムアウトのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time, idleTimeout time.Duration) (int64, error)
}
