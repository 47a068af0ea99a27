package customer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/loyalty/internal/model"
	"github.com/hitoshi/loyalty/internal/repository"
)

// --- モック定義 ---

type mockCustomerRepo struct {
	findByPhoneFn    func(ctx context.Context, phone string) (*model.Customer, error)
	findByIDFn       func(ctx context.Context, id string) (*model.Customer, error)
	createFn         func(ctx context.Context, name, phone string, now time.Time) (*model.Customer, error)
	incrementVisitFn func(ctx context.Context, id string, now time.Time) (*model.Customer, error)
}

func (m *mockCustomerRepo) FindByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	if m.findByPhoneFn != nil {
		return m.findByPhoneFn(ctx, phone)
	}
	return nil, model.ErrNotFound
}

func (m *mockCustomerRepo) FindByID(ctx context.Context, id string) (*model.Customer, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, model.ErrNotFound
}

func (m *mockCustomerRepo) Create(ctx context.Context, name, phone string, now time.Time) (*model.Customer, error) {
	if m.createFn != nil {
		return m.createFn(ctx, name, phone, now)
	}
	return &model.Customer{ID: "new", Name: name, PhoneNumber: phone, Visits: 1, CreatedAt: now, UpdatedAt: now}, nil
}

func (m *mockCustomerRepo) IncrementVisit(ctx context.Context, id string, now time.Time) (*model.Customer, error) {
	if m.incrementVisitFn != nil {
		return m.incrementVisitFn(ctx, id, now)
	}
	return nil, model.ErrNotFound
}

func (m *mockCustomerRepo) ListAll(_ context.Context) ([]*model.Customer, error) {
	return nil, nil
}

func (m *mockCustomerRepo) Stats(_ context.Context) (model.CustomerStats, error) {
	return model.CustomerStats{}, nil
}

var _ repository.CustomerRepository = (*mockCustomerRepo)(nil)

type mockMetrics struct {
	mu       sync.Mutex
	created  int
	existing int
	visits   int
}

func (m *mockMetrics) RecordCustomerResolved(created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if created {
		m.created++
	} else {
		m.existing++
	}
}

func (m *mockMetrics) RecordVisitRecorded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visits++
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError with code %s", err, code)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %q, want %q", apiErr.Code, code)
	}
}

// --- Resolve ---

func TestResolve_NewThenExisting_SameCustomer(t *testing.T) {
	repo := repository.NewMemoryCustomerRepo()
	metrics := &mockMetrics{}
	svc := NewService(repo, nil, metrics, Config{})
	ctx := context.Background()

	first, created, err := svc.Resolve(ctx, "Asha", "9876543210")
	if err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	if !created {
		t.Error("first Resolve() should create a customer")
	}
	if first.Visits != 1 {
		t.Errorf("Visits = %d, want 1", first.Visits)
	}

	// 別名・別フォーマットでも同じ顧客として扱う
	second, created, err := svc.Resolve(ctx, "Someone Else", "(987) 654-3210")
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if created {
		t.Error("second Resolve() should not create a customer")
	}
	if second.ID != first.ID {
		t.Errorf("ID = %q, want %q", second.ID, first.ID)
	}
	if second.Visits != first.Visits {
		t.Errorf("Visits = %d, want %d (no increment on re-registration)", second.Visits, first.Visits)
	}
	if second.Name != "Asha" {
		t.Errorf("Name = %q, want %q", second.Name, "Asha")
	}

	list, _ := repo.ListAll(ctx)
	if len(list) != 1 {
		t.Errorf("store contains %d records, want 1", len(list))
	}
	if metrics.created != 1 || metrics.existing != 1 {
		t.Errorf("metrics created=%d existing=%d, want 1/1", metrics.created, metrics.existing)
	}
}

func TestResolve_ShortPhone_InvalidInputAndNoRecord(t *testing.T) {
	repo := repository.NewMemoryCustomerRepo()
	svc := NewService(repo, nil, nil, Config{})
	ctx := context.Background()

	for _, phone := range []string{"", "12345", "987-654-321"} {
		_, _, err := svc.Resolve(ctx, "Asha", phone)
		assertAPIErrorCode(t, err, model.ErrCodeInvalidPhone)
	}

	list, _ := repo.ListAll(ctx)
	if len(list) != 0 {
		t.Errorf("store contains %d records, want 0", len(list))
	}
}

func TestResolve_InvalidName_NoRecord(t *testing.T) {
	repo := repository.NewMemoryCustomerRepo()
	svc := NewService(repo, nil, nil, Config{})
	ctx := context.Background()

	_, _, err := svc.Resolve(ctx, "   ", "9876543210")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidName)

	list, _ := repo.ListAll(ctx)
	if len(list) != 0 {
		t.Errorf("store contains %d records, want 0", len(list))
	}
}

func TestResolve_SanitizesName(t *testing.T) {
	repo := repository.NewMemoryCustomerRepo()
	svc := NewService(repo, nil, nil, Config{})

	c, _, err := svc.Resolve(context.Background(), "  <b>Asha</b>  ", "9876543210")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if c.Name != "Asha" {
		t.Errorf("Name = %q, want %q", c.Name, "Asha")
	}
}

func TestResolve_ConcurrentSamePhone_SingleRecord(t *testing.T) {
	repo := repository.NewMemoryCustomerRepo()
	svc := NewService(repo, nil, nil, Config{})
	ctx := context.Background()

	const workers = 64
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _, err := svc.Resolve(ctx, "Asha", "+1 (555) 000-1111")
			if err != nil {
				t.Errorf("Resolve() error = %v", err)
				return
			}
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()

	list, _ := repo.ListAll(ctx)
	if len(list) != 1 {
		t.Fatalf("store contains %d records, want 1", len(list))
	}
	for i, id := range ids {
		if id != list[0].ID {
			t.Errorf("worker %d got ID %q, want %q", i, id, list[0].ID)
		}
	}
}

func TestResolve_ConflictFallsBackToWinner(t *testing.T) {
	winner := &model.Customer{ID: "winner", Name: "Asha", PhoneNumber: "9876543210", Visits: 1}
	lookups := 0
	repo := &mockCustomerRepo{
		findByPhoneFn: func(ctx context.Context, phone string) (*model.Customer, error) {
			lookups++
			if lookups == 1 {
				return nil, model.ErrNotFound
			}
			return winner, nil
		},
		createFn: func(ctx context.Context, name, phone string, now time.Time) (*model.Customer, error) {
			return nil, model.ErrConflict
		},
	}
	svc := NewService(repo, nil, nil, Config{})

	c, created, err := svc.Resolve(context.Background(), "Asha", "9876543210")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if created {
		t.Error("created should be false for the losing writer")
	}
	if c.ID != "winner" {
		t.Errorf("ID = %q, want %q", c.ID, "winner")
	}
}

func TestResolve_ConflictWithoutWinner_SurfacesConflict(t *testing.T) {
	repo := &mockCustomerRepo{
		createFn: func(ctx context.Context, name, phone string, now time.Time) (*model.Customer, error) {
			return nil, model.ErrConflict
		},
	}
	svc := NewService(repo, nil, nil, Config{})

	_, _, err := svc.Resolve(context.Background(), "Asha", "9876543210")
	assertAPIErrorCode(t, err, model.ErrCodeCustomerConflict)
}

func TestResolve_StoreTimeout_Propagates(t *testing.T) {
	repo := &mockCustomerRepo{
		findByPhoneFn: func(ctx context.Context, phone string) (*model.Customer, error) {
			return nil, model.ErrTimeout
		},
	}
	svc := NewService(repo, nil, nil, Config{})

	_, _, err := svc.Resolve(context.Background(), "Asha", "9876543210")
	if !errors.Is(err, model.ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

func TestResolve_UsesUTCTimestamps(t *testing.T) {
	repo := repository.NewMemoryCustomerRepo()
	svc := NewService(repo, nil, nil, Config{})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))
	svc.now = func() time.Time { return fixed }

	c, _, err := svc.Resolve(context.Background(), "Asha", "9876543210")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if c.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt location = %v, want UTC", c.CreatedAt.Location())
	}
	if !c.CreatedAt.Equal(fixed) || !c.UpdatedAt.Equal(fixed) {
		t.Errorf("timestamps = (%v, %v), want %v", c.CreatedAt, c.UpdatedAt, fixed)
	}
}

// --- FindByPhone ---

func TestFindByPhone_NotFound(t *testing.T) {
	svc := NewService(repository.NewMemoryCustomerRepo(), nil, nil, Config{})

	_, err := svc.FindByPhone(context.Background(), "9876543210")
	assertAPIErrorCode(t, err, model.ErrCodeCustomerNotFound)
}

func TestFindByPhone_NormalizesInput(t *testing.T) {
	repo := repository.NewMemoryCustomerRepo()
	svc := NewService(repo, nil, nil, Config{})
	ctx := context.Background()
	created, _, _ := svc.Resolve(ctx, "Asha", "9876543210")

	found, err := svc.FindByPhone(ctx, "987-654-3210")
	if err != nil {
		t.Fatalf("FindByPhone() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("ID = %q, want %q", found.ID, created.ID)
	}
}

// --- CheckIn ---

func TestCheckIn_IncrementsAfterCooldown(t *testing.T) {
	repo := repository.NewMemoryCustomerRepo()
	metrics := &mockMetrics{}
	svc := NewService(repo, nil, metrics, Config{VisitCooldown: 6 * time.Hour})
	ctx := context.Background()

	clock := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	c, _, _ := svc.Resolve(ctx, "Asha", "9876543210")

	// 登録直後のチェックインは同じ来店として扱う
	same, incremented, err := svc.CheckIn(ctx, c.ID)
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
	if incremented || same.Visits != 1 {
		t.Errorf("within cooldown: incremented=%v visits=%d, want false/1", incremented, same.Visits)
	}

	clock = clock.Add(7 * time.Hour)
	next, incremented, err := svc.CheckIn(ctx, c.ID)
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
	if !incremented || next.Visits != 2 {
		t.Errorf("after cooldown: incremented=%v visits=%d, want true/2", incremented, next.Visits)
	}
	if !next.UpdatedAt.Equal(clock) {
		t.Errorf("UpdatedAt = %v, want %v", next.UpdatedAt, clock)
	}
	if metrics.visits != 1 {
		t.Errorf("visits metric = %d, want 1", metrics.visits)
	}
}

func TestCheckIn_NoCooldown_IncrementsEveryTime(t *testing.T) {
	repo := repository.NewMemoryCustomerRepo()
	svc := NewService(repo, nil, nil, Config{})
	ctx := context.Background()
	c, _, _ := svc.Resolve(ctx, "Asha", "9876543210")

	const n = 5
	for i := 0; i < n; i++ {
		if _, _, err := svc.CheckIn(ctx, c.ID); err != nil {
			t.Fatalf("CheckIn() error = %v", err)
		}
	}

	got, _ := svc.FindByPhone(ctx, "9876543210")
	if got.Visits != 1+n {
		t.Errorf("Visits = %d, want %d", got.Visits, 1+n)
	}
}

func TestCheckIn_UnknownCustomer(t *testing.T) {
	svc := NewService(repository.NewMemoryCustomerRepo(), nil, nil, Config{})

	_, _, err := svc.CheckIn(context.Background(), "missing")
	assertAPIErrorCode(t, err, model.ErrCodeCustomerNotFound)
}

// --- List / Stats ---

func TestListAndStats(t *testing.T) {
	repo := repository.NewMemoryCustomerRepo()
	svc := NewService(repo, nil, nil, Config{})
	ctx := context.Background()

	a, _, _ := svc.Resolve(ctx, "A", "1111111111")
	svc.Resolve(ctx, "B", "2222222222")
	svc.CheckIn(ctx, a.ID)

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Name != "A" || list[1].Name != "B" {
		t.Errorf("List() = %+v, want [A B]", list)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalCustomers != 2 || stats.TotalVisits != 3 {
		t.Errorf("Stats() = %+v, want {2 3}", stats)
	}
}

func TestMaskPhone(t *testing.T) {
	if got := maskPhone("9876543210"); got != "****3210" {
		t.Errorf("maskPhone() = %q, want %q", got, "****3210")
	}
	if got := maskPhone("12"); got != "****" {
		t.Errorf("maskPhone() = %q, want %q", got, "****")
	}
}
