// Package httpapi is the localhost surface the kiosk UI talks to. It only
// decodes, calls the service and encodes; the sync engine never lives
// here.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"kiospos/kiosk/internal/domain"
	"kiospos/kiosk/internal/service"
	"kiospos/kiosk/internal/syncer"
)

type API struct {
	service        *service.Service
	managerPINHash []byte
}

// New hashes the manager PIN once at startup. An empty PIN disables the
// destructive-operation check (single-operator kiosks without a manager).
func New(svc *service.Service, managerPIN string) *API {
	api := &API{service: svc}
	if managerPIN != "" {
		if hash, err := bcrypt.GenerateFromPassword([]byte(managerPIN), bcrypt.DefaultCost); err == nil {
			api.managerPINHash = hash
		}
	}
	return api
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", a.handleListProducts)
		r.Post("/products", a.handleCreateProduct)
		r.Get("/products/{id}", a.handleGetProduct)
		r.Put("/products/{id}", a.handleUpdateProduct)
		r.Delete("/products/{id}", a.handleDeleteProduct)

		r.Get("/invoices", a.handleListInvoices)
		r.Post("/invoices", a.handleCreateInvoice)
		r.Get("/invoices/{id}", a.handleGetInvoice)
		r.Put("/invoices/{id}", a.handleUpdateInvoice)
		r.Post("/invoices/{id}/payments", a.handleAddPayment)
		r.With(a.requireManagerPIN).Delete("/invoices/{id}", a.handleDeleteInvoice)
		r.With(a.requireManagerPIN).Post("/invoices/{id}/return", a.handleReturnInvoice)

		r.Get("/expenses", a.handleListExpenses)
		r.Post("/expenses", a.handleCreateExpense)
		r.Delete("/expenses/{id}", a.handleDeleteExpense)

		r.Get("/sync/status", a.handleSyncStatus)
		r.Post("/sync/now", a.handleSyncNow)
	})

	return r
}

func (a *API) requireManagerPIN(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.managerPINHash != nil {
			pin := r.Header.Get("X-Manager-PIN")
			if err := bcrypt.CompareHashAndPassword(a.managerPINHash, []byte(pin)); err != nil {
				writeError(w, http.StatusForbidden, errors.New("manager PIN required"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.service.ListProducts(r.Context()))
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.EditProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.RemoveProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (a *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.service.ListInvoices(r.Context()))
}

func (a *API) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req domain.InvoiceCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	invoice, err := a.service.CreateInvoice(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, invoice)
}

func (a *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := a.service.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (a *API) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var req domain.InvoiceUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	invoice, err := a.service.EditInvoice(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (a *API) handleAddPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	invoice, err := a.service.AddPayment(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (a *API) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := a.service.RemoveInvoice(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (a *API) handleReturnInvoice(w http.ResponseWriter, r *http.Request) {
	if err := a.service.ReturnInvoice(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"returned": true})
}

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.service.ListExpenses(r.Context()))
}

func (a *API) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req domain.ExpenseCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	expense, err := a.service.CreateExpense(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (a *API) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := a.service.RemoveExpense(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (a *API) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.service.Status(r.Context()))
}

func (a *API) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.SyncNow(r.Context())
	switch {
	case errors.Is(err, syncer.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, syncer.ErrSyncInProgress):
		// Another pass is draining; report current status instead.
		writeJSON(w, http.StatusAccepted, a.service.Status(r.Context()))
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
