package handler

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/loyalty/internal/auth"
	"github.com/hitoshi/loyalty/internal/customer"
	"github.com/hitoshi/loyalty/internal/middleware"
	"github.com/hitoshi/loyalty/internal/repository"
)

// --- 統合テスト用サーバー構築ヘルパー ---

const integrationPassword = "integration-pw"

// newIntegrationServer はメモリストアと実サービスで構成したテストサーバーを返す。
func newIntegrationServer(t *testing.T, rlConfig middleware.RateLimiterConfig) *httptest.Server {
	t.Helper()

	customers := repository.NewMemoryCustomerRepo()
	sessions := repository.NewMemorySessionRepo()

	rl := middleware.NewRateLimiter(rlConfig, nil)
	t.Cleanup(rl.Stop)

	deps := &RouterDeps{
		CORSAllowedOrigin: "http://localhost:3000",
		AllowedOrigins:    []string{"http://localhost:3000"},
		RateLimiter:       rl,
		CustomerService:   customer.NewService(customers, nil, nil, customer.Config{VisitCooldown: time.Hour}),
		Guard: auth.NewGuard(sessions, auth.GuardConfig{
			Password:      integrationPassword,
			SessionMaxAge: time.Hour,
			IdleTimeout:   10 * time.Minute,
		}, nil),
	}

	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)
	return srv
}

// newClient はCookieを保持するHTTPクライアントを返す。
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}
	return &http.Client{Jar: jar}
}

func doRequest(t *testing.T, client *http.Client, method, url, body string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body == "" {
		req, err = http.NewRequest(method, url, nil)
	} else {
		req, err = http.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func checkIsAdmin(t *testing.T, client *http.Client, baseURL string) bool {
	t.Helper()
	resp := doRequest(t, client, http.MethodGet, baseURL+"/api/admin/check", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check status = %d, want 200", resp.StatusCode)
	}
	return decodeBody[checkResponse](t, resp).IsAdmin
}

// --- 統合テスト ---

func TestIntegration_WelcomeFlow_RegisterThenLookup(t *testing.T) {
	srv := newIntegrationServer(t, middleware.DefaultRateLimiterConfig())
	client := newClient(t)

	// 未登録の電話番号は404
	resp := doRequest(t, client, http.MethodGet, srv.URL+"/api/customers/phone/9876543210", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("lookup before register status = %d, want 404", resp.StatusCode)
	}
	if got := decodeBody[middleware.ErrorResponseBody](t, resp).Code; got != "CUSTOMER_NOT_FOUND" {
		t.Errorf("code = %q, want CUSTOMER_NOT_FOUND", got)
	}

	// 登録
	resp = doRequest(t, client, http.MethodPost, srv.URL+"/api/customers",
		`{"name":"Asha","phoneNumber":"(987) 654-3210"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}
	created := decodeBody[customerResponse](t, resp)
	if created.PhoneNumber != "9876543210" || created.Visits != 1 || created.Name != "Asha" {
		t.Errorf("created = %+v", created)
	}

	// 同じ番号で再登録しても同じ顧客が返り、来店回数は増えない
	resp = doRequest(t, client, http.MethodPost, srv.URL+"/api/customers",
		`{"name":"Someone Else","phoneNumber":"9876543210"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("second register status = %d, want 201", resp.StatusCode)
	}
	again := decodeBody[customerResponse](t, resp)
	if again.ID != created.ID || again.Name != "Asha" || again.Visits != 1 {
		t.Errorf("second register = %+v, want same customer as %+v", again, created)
	}

	// 登録後は検索できる
	resp = doRequest(t, client, http.MethodGet, srv.URL+"/api/customers/phone/9876543210", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lookup status = %d, want 200", resp.StatusCode)
	}
	if got := decodeBody[customerResponse](t, resp); got.ID != created.ID {
		t.Errorf("lookup id = %q, want %q", got.ID, created.ID)
	}
}

func TestIntegration_Register_ValidationErrors(t *testing.T) {
	srv := newIntegrationServer(t, middleware.DefaultRateLimiterConfig())
	client := newClient(t)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"short phone", `{"name":"Asha","phoneNumber":"12345"}`, "INVALID_PHONE"},
		{"too long phone", `{"name":"Asha","phoneNumber":"1234567890123456"}`, "INVALID_PHONE"},
		{"empty name", `{"name":"  ","phoneNumber":"9876543210"}`, "INVALID_NAME"},
		{"markup only name", `{"name":"<script></script>","phoneNumber":"9876543210"}`, "INVALID_NAME"},
		{"malformed json", `{"name":`, "INVALID_REQUEST_BODY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, client, http.MethodPost, srv.URL+"/api/customers", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if got := decodeBody[middleware.ErrorResponseBody](t, resp).Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestIntegration_ConcurrentRegister_SingleCustomer(t *testing.T) {
	srv := newIntegrationServer(t, middleware.DefaultRateLimiterConfig())

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Post(srv.URL+"/api/customers", "application/json",
				strings.NewReader(`{"name":"Asha","phoneNumber":"9876543210"}`))
			if err != nil {
				t.Errorf("POST error = %v", err)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				t.Errorf("status = %d, want 201", resp.StatusCode)
				return
			}
			var c customerResponse
			if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
				t.Errorf("decode error = %v", err)
				return
			}
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("ids[%d] = %q, want %q", i, ids[i], ids[0])
		}
	}
}

func TestIntegration_CheckIn_RespectsCooldown(t *testing.T) {
	srv := newIntegrationServer(t, middleware.DefaultRateLimiterConfig())
	client := newClient(t)

	resp := doRequest(t, client, http.MethodPost, srv.URL+"/api/customers",
		`{"name":"Asha","phoneNumber":"9876543210"}`)
	created := decodeBody[customerResponse](t, resp)

	// 登録直後のチェックインはクールダウン中なので加算されない
	resp = doRequest(t, client, http.MethodPost, srv.URL+"/api/customers/"+created.ID+"/visits", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check-in status = %d, want 200", resp.StatusCode)
	}
	if got := decodeBody[customerResponse](t, resp).Visits; got != 1 {
		t.Errorf("visits = %d, want 1", got)
	}

	resp = doRequest(t, client, http.MethodPost, srv.URL+"/api/customers/unknown-id/visits", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown check-in status = %d, want 404", resp.StatusCode)
	}
}

func TestIntegration_AdminFlow_LoginListLogout(t *testing.T) {
	srv := newIntegrationServer(t, middleware.DefaultRateLimiterConfig())
	client := newClient(t)

	doRequest(t, client, http.MethodPost, srv.URL+"/api/customers", `{"name":"Asha","phoneNumber":"9876543210"}`)
	doRequest(t, client, http.MethodPost, srv.URL+"/api/customers", `{"name":"Ravi","phoneNumber":"9123456780"}`)

	if checkIsAdmin(t, client, srv.URL) {
		t.Fatal("isAdmin before login = true, want false")
	}

	// 未ログインでは一覧を取得できない
	resp := doRequest(t, client, http.MethodGet, srv.URL+"/api/customers", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("list before login status = %d, want 401", resp.StatusCode)
	}

	resp = doRequest(t, client, http.MethodPost, srv.URL+"/api/admin/login",
		`{"password":"`+integrationPassword+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	if !decodeBody[successResponse](t, resp).Success {
		t.Error("login success = false, want true")
	}

	if !checkIsAdmin(t, client, srv.URL) {
		t.Fatal("isAdmin after login = false, want true")
	}

	resp = doRequest(t, client, http.MethodGet, srv.URL+"/api/customers", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want 200", resp.StatusCode)
	}
	list := decodeBody[[]customerResponse](t, resp)
	if len(list) != 2 || list[0].Name != "Asha" || list[1].Name != "Ravi" {
		t.Errorf("list = %+v, want Asha then Ravi", list)
	}

	resp = doRequest(t, client, http.MethodGet, srv.URL+"/api/admin/stats", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", resp.StatusCode)
	}
	stats := decodeBody[statsResponse](t, resp)
	if stats.TotalCustomers != 2 || stats.TotalVisits != 2 || stats.AverageVisits != 1 {
		t.Errorf("stats = %+v", stats)
	}

	resp = doRequest(t, client, http.MethodPost, srv.URL+"/api/admin/logout", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", resp.StatusCode)
	}

	if checkIsAdmin(t, client, srv.URL) {
		t.Error("isAdmin after logout = true, want false")
	}
	resp = doRequest(t, client, http.MethodGet, srv.URL+"/api/customers", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("list after logout status = %d, want 401", resp.StatusCode)
	}
}

func TestIntegration_WrongPassword_NotAdmin(t *testing.T) {
	srv := newIntegrationServer(t, middleware.DefaultRateLimiterConfig())
	client := newClient(t)

	resp := doRequest(t, client, http.MethodPost, srv.URL+"/api/admin/login", `{"password":"wrong"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login status = %d, want 401", resp.StatusCode)
	}
	if got := decodeBody[middleware.ErrorResponseBody](t, resp).Code; got != "INVALID_CREDENTIALS" {
		t.Errorf("code = %q, want INVALID_CREDENTIALS", got)
	}
	if len(resp.Cookies()) != 0 {
		t.Errorf("cookies = %v, want none", resp.Cookies())
	}

	if checkIsAdmin(t, client, srv.URL) {
		t.Error("isAdmin after failed login = true, want false")
	}
}

func TestIntegration_LoginRateLimit_IndistinguishableFromWrongPassword(t *testing.T) {
	cfg := middleware.DefaultRateLimiterConfig()
	cfg.LoginRate = middleware.PerMinute(1)
	cfg.LoginBurst = 1
	srv := newIntegrationServer(t, cfg)
	client := newClient(t)

	first := doRequest(t, client, http.MethodPost, srv.URL+"/api/admin/login", `{"password":"wrong"}`)
	firstBody := decodeBody[middleware.ErrorResponseBody](t, first)

	// 制限中は正しいパスワードでも同じ401が返る
	second := doRequest(t, client, http.MethodPost, srv.URL+"/api/admin/login",
		`{"password":"`+integrationPassword+`"}`)
	if second.StatusCode != http.StatusUnauthorized {
		t.Fatalf("limited login status = %d, want 401", second.StatusCode)
	}
	if second.Header.Get("Retry-After") != "" {
		t.Error("limited login should not expose Retry-After")
	}
	if got := decodeBody[middleware.ErrorResponseBody](t, second); got != firstBody {
		t.Errorf("limited body = %+v, want %+v", got, firstBody)
	}
	if checkIsAdmin(t, client, srv.URL) {
		t.Error("isAdmin after limited login = true, want false")
	}
}

func TestIntegration_LoginAttempts_NotSubjectToGeneralLimit(t *testing.T) {
	cfg := middleware.DefaultRateLimiterConfig()
	cfg.GeneralRate = middleware.PerMinute(3)
	cfg.GeneralBurst = 3
	cfg.LoginRate = middleware.PerMinute(10)
	cfg.LoginBurst = 10
	srv := newIntegrationServer(t, cfg)
	client := newClient(t)

	// 一般制限を超える回数でも、ログイン制限内なら常に同じ401
	var firstBody middleware.ErrorResponseBody
	for i := 0; i < 5; i++ {
		resp := doRequest(t, client, http.MethodPost, srv.URL+"/api/admin/login", `{"password":"wrong"}`)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, resp.StatusCode)
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			t.Errorf("attempt %d: Retry-After = %q, want none", i+1, ra)
		}
		body := decodeBody[middleware.ErrorResponseBody](t, resp)
		if i == 0 {
			firstBody = body
		} else if body != firstBody {
			t.Errorf("attempt %d: body = %+v, want %+v", i+1, body, firstBody)
		}
	}

	// ログイン試行は一般制限の枠を消費しない
	for i := 0; i < 3; i++ {
		if checkIsAdmin(t, client, srv.URL) {
			t.Fatal("isAdmin after failed logins = true, want false")
		}
	}
	resp := doRequest(t, client, http.MethodGet, srv.URL+"/api/admin/check", "")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("4th check status = %d, want 429", resp.StatusCode)
	}
}

func TestIntegration_ForeignOrigin_Rejected(t *testing.T) {
	srv := newIntegrationServer(t, middleware.DefaultRateLimiterConfig())
	client := newClient(t)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/admin/login",
		strings.NewReader(`{"password":"`+integrationPassword+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://evil.example")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if checkIsAdmin(t, client, srv.URL) {
		t.Error("isAdmin after rejected login = true, want false")
	}
}
