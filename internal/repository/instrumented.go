package repository

import (
	"context"
	"time"

	"github.com/hitoshi/loyalty/internal/model"
)

// LatencyObserver はストア操作のレイテンシ記録インターフェース。
type LatencyObserver interface {
	ObserveStoreLatency(operation string, duration time.Duration)
}

// InstrumentedCustomerRepo はCustomerRepositoryの各操作のレイテンシを記録するデコレーター。
type InstrumentedCustomerRepo struct {
	next     CustomerRepository
	observer LatencyObserver
}

// NewInstrumentedCustomerRepo はInstrumentedCustomerRepoを生成する。
func NewInstrumentedCustomerRepo(next CustomerRepository, observer LatencyObserver) *InstrumentedCustomerRepo {
	return &InstrumentedCustomerRepo{next: next, observer: observer}
}

func (r *InstrumentedCustomerRepo) observe(operation string, start time.Time) {
	r.observer.ObserveStoreLatency(operation, time.Since(start))
}

// FindByPhone は正規化済み電話番号で顧客を検索する。
func (r *InstrumentedCustomerRepo) FindByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	defer r.observe("find_by_phone", time.Now())
	return r.next.FindByPhone(ctx, phone)
}

// FindByID は指定IDの顧客を取得する。
func (r *InstrumentedCustomerRepo) FindByID(ctx context.Context, id string) (*model.Customer, error) {
	defer r.observe("find_by_id", time.Now())
	return r.next.FindByID(ctx, id)
}

// Create は顧客を作成する。
func (r *InstrumentedCustomerRepo) Create(ctx context.Context, name, phone string, now time.Time) (*model.Customer, error) {
	defer r.observe("create", time.Now())
	return r.next.Create(ctx, name, phone, now)
}

// IncrementVisit は来店回数を1加算する。
func (r *InstrumentedCustomerRepo) IncrementVisit(ctx context.Context, id string, now time.Time) (*model.Customer, error) {
	defer r.observe("increment_visit", time.Now())
	return r.next.IncrementVisit(ctx, id, now)
}

// ListAll は全顧客を作成順で返す。
func (r *InstrumentedCustomerRepo) ListAll(ctx context.Context) ([]*model.Customer, error) {
	defer r.observe("list_all", time.Now())
	return r.next.ListAll(ctx)
}

// Stats は顧客数と来店回数の合計を返す。
func (r *InstrumentedCustomerRepo) Stats(ctx context.Context) (model.CustomerStats, error) {
	defer r.observe("stats", time.Now())
	return r.next.Stats(ctx)
}

// InstrumentedSessionRepo はSessionRepositoryの各操作のレイテンシを記録するデコレーター。
type InstrumentedSessionRepo struct {
	next     SessionRepository
	observer LatencyObserver
}

// NewInstrumentedSessionRepo はInstrumentedSessionRepoを生成する。
func NewInstrumentedSessionRepo(next SessionRepository, observer LatencyObserver) *InstrumentedSessionRepo {
	return &InstrumentedSessionRepo{next: next, observer: observer}
}

func (r *InstrumentedSessionRepo) observe(operation string, start time.Time) {
	r.observer.ObserveStoreLatency(operation, time.Since(start))
}

// Create はセッションを作成する。
func (r *InstrumentedSessionRepo) Create(ctx context.Context, session *model.AdminSession) error {
	defer r.observe("session_create", time.Now())
	return r.next.Create(ctx, session)
}

// Touch は有効なセッションのlast_seen_atを更新して返す。
func (r *InstrumentedSessionRepo) Touch(ctx context.Context, id string, now time.Time, idleTimeout time.Duration) (*model.AdminSession, error) {
	defer r.observe("session_touch", time.Now())
	return r.next.Touch(ctx, id, now, idleTimeout)
}

// DeleteByID は指定IDのセッションを削除する。
func (r *InstrumentedSessionRepo) DeleteByID(ctx context.Context, id string) error {
	defer r.observe("session_delete", time.Now())
	return r.next.DeleteByID(ctx, id)
}

// DeleteExpired は期限切れセッションを削除する。
func (r *InstrumentedSessionRepo) DeleteExpired(ctx context.Context, now time.Time, idleTimeout time.Duration) (int64, error) {
	defer r.observe("session_delete_expired", time.Now())
	return r.next.DeleteExpired(ctx, now, idleTimeout)
}

// compile-time interface check
var (
	_ CustomerRepository = (*InstrumentedCustomerRepo)(nil)
	_ SessionRepository  = (*InstrumentedSessionRepo)(nil)
)
