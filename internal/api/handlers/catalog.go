package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"advisy/internal/core"
	"advisy/internal/types"
)

// CatalogStore is the read-only access contract for the shared insurance
// catalog. The catalog is not tenant-scoped.
type CatalogStore interface {
	ListCompanies(ctx context.Context) ([]*types.InsuranceCompany, error)
	GetCompany(ctx context.Context, id string) (*types.InsuranceCompany, error)
	ListProducts(ctx context.Context, category string) ([]*types.CatalogEntry, error)
	GetProduct(ctx context.Context, id string) (*types.CatalogEntry, error)
}

// CatalogHandler serves the shared carrier and product catalog.
type CatalogHandler struct {
	catalog CatalogStore
	logger  *slog.Logger
}

func NewCatalogHandler(catalog CatalogStore, l *slog.Logger) *CatalogHandler {
	if l == nil {
		l = slog.Default()
	}
	return &CatalogHandler{catalog: catalog, logger: l}
}

// RegisterRoutes mounts insurance catalog routes.
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Route("/catalog", func(r chi.Router) {
		r.Get("/companies", h.ListCompanies)
		r.Get("/companies/{id}", h.GetCompany)
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)
	})
}

// ListCompanies handles GET /v1/catalog/companies.
func (h *CatalogHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.catalog.ListCompanies(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: companies})
}

// GetCompany handles GET /v1/catalog/companies/{id}.
func (h *CatalogHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "company ID")
	if !ok {
		return
	}

	company, err := h.catalog.GetCompany(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: company})
}

// ListProducts handles GET /v1/catalog/products?category=... Each entry joins
// the product with its carrier.
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	entries, err := h.catalog.ListProducts(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: entries})
}

// GetProduct handles GET /v1/catalog/products/{id}.
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "product ID")
	if !ok {
		return
	}

	entry, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: entry})
}
