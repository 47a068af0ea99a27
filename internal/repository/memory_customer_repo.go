package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/loyalty/internal/model"
)

// MemoryCustomerRepo はプロセス内メモリに顧客を保持するリポジトリ。
// STORE_DRIVER=memory でのローカル起動とテストで使用する。
// 全操作を1つのミューテックスで直列化し、電話番号の一意性を保証する。
type MemoryCustomerRepo struct {
	mu      sync.RWMutex
	byID    map[string]*model.Customer
	byPhone map[string]string
	order   []string
}

// NewMemoryCustomerRepo はMemoryCustomerRepoを生成する。
func NewMemoryCustomerRepo() *MemoryCustomerRepo {
	return &MemoryCustomerRepo{
		byID:    make(map[string]*model.Customer),
		byPhone: make(map[string]string),
	}
}

// FindByPhone は正規化済み電話番号で顧客を検索する。
func (r *MemoryCustomerRepo) FindByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, translateError("failed to find customer by phone", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPhone[phone]
	if !ok {
		return nil, model.ErrNotFound
	}
	return copyCustomer(r.byID[id]), nil
}

// FindByID は指定IDの顧客を取得する。
func (r *MemoryCustomerRepo) FindByID(ctx context.Context, id string) (*model.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, translateError("failed to find customer by ID", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return copyCustomer(c), nil
}

// Create は来店回数1で顧客を作成する。同じ電話番号が存在する場合はmodel.ErrConflictを返す。
func (r *MemoryCustomerRepo) Create(ctx context.Context, name, phone string, now time.Time) (*model.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, translateError("failed to create customer", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byPhone[phone]; exists {
		return nil, fmt.Errorf("failed to create customer: %w", model.ErrConflict)
	}

	c := &model.Customer{
		ID:          uuid.New().String(),
		Name:        name,
		PhoneNumber: phone,
		Visits:      1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.byID[c.ID] = c
	r.byPhone[phone] = c.ID
	r.order = append(r.order, c.ID)

	return copyCustomer(c), nil
}

// IncrementVisit は来店回数を1加算する。updated_atは既存値より小さくしない。
func (r *MemoryCustomerRepo) IncrementVisit(ctx context.Context, id string, now time.Time) (*model.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, translateError("failed to increment visit", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("failed to increment visit: %w", model.ErrNotFound)
	}
	c.Visits++
	if now.After(c.UpdatedAt) {
		c.UpdatedAt = now
	}
	return copyCustomer(c), nil
}

// ListAll は全顧客を作成順で返す。
func (r *MemoryCustomerRepo) ListAll(ctx context.Context) ([]*model.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, translateError("failed to list customers", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	customers := make([]*model.Customer, 0, len(r.order))
	for _, id := range r.order {
		customers = append(customers, copyCustomer(r.byID[id]))
	}
	return customers, nil
}

// Stats は顧客数と来店回数の合計を返す。
func (r *MemoryCustomerRepo) Stats(ctx context.Context) (model.CustomerStats, error) {
	if err := ctx.Err(); err != nil {
		return model.CustomerStats{}, translateError("failed to aggregate customers", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := model.CustomerStats{TotalCustomers: len(r.order)}
	for _, c := range r.byID {
		stats.TotalVisits += c.Visits
	}
	return stats, nil
}

// copyCustomer は呼び出し側が内部状態を書き換えられないようにコピーを返す。
func copyCustomer(c *model.Customer) *model.Customer {
	cp := *c
	return &cp
}

// compile-time interface check
var _ CustomerRepository = (*MemoryCustomerRepo)(nil)
