package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/loyalty/internal/model"
)

// CustomerServiceInterface は顧客ハンドラーが必要とするサービスインターフェース。
type CustomerServiceInterface interface {
	// Resolve は電話番号で顧客を名寄せし、未登録なら作成する。boolは新規作成かどうか。
	Resolve(ctx context.Context, name, rawPhone string) (*model.Customer, bool, error)
	// FindByPhone は電話番号で顧客を検索する。
	FindByPhone(ctx context.Context, rawPhone string) (*model.Customer, error)
	// CheckIn は来店を記録する。boolは来店回数を加算したかどうか。
	CheckIn(ctx context.Context, customerID string) (*model.Customer, bool, error)
	// List は全顧客を登録順で返す。
	List(ctx context.Context) ([]*model.Customer, error)
	// Stats は顧客数と来店回数の集計を返す。
	Stats(ctx context.Context) (model.CustomerStats, error)
}

// CustomerHandler は顧客関連のHTTPハンドラー。
type CustomerHandler struct {
	service CustomerServiceInterface
}

// NewCustomerHandler はCustomerHandlerを生成する。
func NewCustomerHandler(service CustomerServiceInterface) *CustomerHandler {
	return &CustomerHandler{service: service}
}

// resolveCustomerRequest は顧客登録リクエストのボディ。
type resolveCustomerRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
}

// customerResponse は顧客情報のAPIレスポンス。
type customerResponse struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phoneNumber"`
	Visits      int       `json:"visits"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// statsResponse は管理画面の集計レスポンス。
type statsResponse struct {
	TotalCustomers int     `json:"totalCustomers"`
	TotalVisits    int     `json:"totalVisits"`
	AverageVisits  float64 `json:"averageVisits"`
}

func toCustomerResponse(c *model.Customer) customerResponse {
	return customerResponse{
		ID:          c.ID,
		Name:        c.Name,
		PhoneNumber: c.PhoneNumber,
		Visits:      c.Visits,
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
	}
}

// GetByPhone は電話番号で顧客を取得する。
// GET /api/customers/phone/{phone}
func (h *CustomerHandler) GetByPhone(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.FindByPhone(r.Context(), chi.URLParam(r, "phone"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

// Resolve は顧客を登録する。既に登録済みの電話番号なら既存の顧客を返す。
// POST /api/customers
func (h *CustomerHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveCustomerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError())
		return
	}

	c, _, err := h.service.Resolve(r.Context(), req.Name, req.PhoneNumber)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerResponse(c))
}

// CheckIn は来店を記録する。
// POST /api/customers/{id}/visits
func (h *CustomerHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	c, _, err := h.service.CheckIn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

// List は全顧客を登録順で返す。管理者のみ。
// GET /api/customers
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	customers, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]customerResponse, len(customers))
	for i, c := range customers {
		resp[i] = toCustomerResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Stats は顧客数と来店回数の集計を返す。管理者のみ。
// GET /api/admin/stats
func (h *CustomerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		TotalCustomers: stats.TotalCustomers,
		TotalVisits:    stats.TotalVisits,
		AverageVisits:  stats.AverageVisits(),
	})
}
