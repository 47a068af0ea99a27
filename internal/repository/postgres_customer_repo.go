package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/loyalty/internal/model"
)

const customerColumns = `id, name, phone_number, visits, created_at, updated_at`

// PostgresCustomerRepo はPostgreSQLを使用した顧客リポジトリ。
type PostgresCustomerRepo struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresCustomerRepo はPostgresCustomerRepoを生成する。
// timeoutは1操作あたりの制限時間で、0以下の場合はDefaultTimeoutを使う。
func NewPostgresCustomerRepo(db *sql.DB, timeout time.Duration) *PostgresCustomerRepo {
	return &PostgresCustomerRepo{db: db, timeout: timeout}
}

// FindByPhone は正規化済み電話番号で顧客を検索する。見つからない場合はmodel.ErrNotFoundを返す。
func (r *PostgresCustomerRepo) FindByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	c, err := scanCustomer(r.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE phone_number = $1`,
		phone,
	))
	if err != nil {
		return nil, translateError("failed to find customer by phone", err)
	}
	return c, nil
}

// FindByID は指定IDの顧客を取得する。見つからない場合はmodel.ErrNotFoundを返す。
func (r *PostgresCustomerRepo) FindByID(ctx context.Context, id string) (*model.Customer, error) {
	// UUID形式でないIDはキャストエラーになるため、問い合わせ前に弾く
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to find customer by ID: %w", model.ErrNotFound)
	}

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	c, err := scanCustomer(r.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, translateError("failed to find customer by ID", err)
	}
	return c, nil
}

// Create は来店回数1で顧客を作成する。
// UNIQUE(phone_number)制約違反はmodel.ErrConflictに変換する。
func (r *PostgresCustomerRepo) Create(ctx context.Context, name, phone string, now time.Time) (*model.Customer, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	c, err := scanCustomer(r.db.QueryRowContext(ctx,
		`INSERT INTO customers (id, name, phone_number, visits, created_at, updated_at)
		 VALUES ($1, $2, $3, 1, $4, $4)
		 RETURNING `+customerColumns,
		uuid.New().String(), name, phone, now,
	))
	if err != nil {
		return nil, translateError("failed to create customer", err)
	}
	return c, nil
}

// IncrementVisit は来店回数を1加算する。
// updated_atはGREATESTで既存値より小さくならないようにする。
func (r *PostgresCustomerRepo) IncrementVisit(ctx context.Context, id string, now time.Time) (*model.Customer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to increment visit: %w", model.ErrNotFound)
	}

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	c, err := scanCustomer(r.db.QueryRowContext(ctx,
		`UPDATE customers
		 SET visits = visits + 1, updated_at = GREATEST(updated_at, $2)
		 WHERE id = $1
		 RETURNING `+customerColumns,
		id, now,
	))
	if err != nil {
		return nil, translateError("failed to increment visit", err)
	}
	return c, nil
}

// ListAll は全顧客を作成順（seq昇順）で返す。
func (r *PostgresCustomerRepo) ListAll(ctx context.Context) ([]*model.Customer, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM customers ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, translateError("failed to list customers", err)
	}
	defer rows.Close()

	customers := []*model.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, translateError("failed to scan customer", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("failed to iterate customers", err)
	}

	return customers, nil
}

// Stats は顧客数と来店回数の合計を返す。
func (r *PostgresCustomerRepo) Stats(ctx context.Context) (model.CustomerStats, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var stats model.CustomerStats
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(visits), 0) FROM customers`,
	).Scan(&stats.TotalCustomers, &stats.TotalVisits)
	if err != nil {
		return model.CustomerStats{}, translateError("failed to aggregate customers", err)
	}
	return stats, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCustomer は1行をCustomerに読み込む。行が無い場合はmodel.ErrNotFoundを返す。
func scanCustomer(row rowScanner) (*model.Customer, error) {
	c := &model.Customer{}
	err := row.Scan(&c.ID, &c.Name, &c.PhoneNumber, &c.Visits, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// compile-time interface check
var _ CustomerRepository = (*PostgresCustomerRepo)(nil)
