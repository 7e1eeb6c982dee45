package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kioskolabs/kiosko-sync/internal/inventory"
	"github.com/kioskolabs/kiosko-sync/internal/models"
	"github.com/kioskolabs/kiosko-sync/internal/sales"
	"github.com/kioskolabs/kiosko-sync/internal/store"
	"github.com/kioskolabs/kiosko-sync/internal/syncer"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Connectivity is the read-only slice of the monitor the API reports on.
type Connectivity interface {
	IsOnline() bool
}

// Handler is the terminal-local HTTP surface: the boundary the cart UI
// talks to. It never blocks on the network; sales commit locally and
// the sync engine reconciles in the background.
type Handler struct {
	recorder   *sales.Recorder
	inventory  *inventory.Service
	engine     *syncer.Engine
	store      *store.Store
	conn       Connectivity
	terminalID string
	logger     *slog.Logger
}

func NewHandler(
	recorder *sales.Recorder,
	inv *inventory.Service,
	engine *syncer.Engine,
	s *store.Store,
	conn Connectivity,
	terminalID string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		recorder:   recorder,
		inventory:  inv,
		engine:     engine,
		store:      s,
		conn:       conn,
		terminalID: terminalID,
		logger:     logger,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sales", h.createSale)
		r.Get("/sales", h.listSales)
		r.Get("/sales/{id}/receipt", h.receipt)

		r.Get("/inventory", h.listInventory)
		r.Put("/inventory/{id}", h.upsertProduct)
		r.Delete("/inventory/{id}", h.deleteProduct)

		r.Post("/sync/trigger", h.triggerSync)
		r.Get("/sync/status", h.syncStatus)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type createSaleRequest struct {
	Items []models.LineItem `json:"items"`
	Total float64           `json:"total"`
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sale, err := h.recorder.CreateSale(r.Context(), req.Items, req.Total, h.terminalID)
	if err != nil {
		if isInputError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("Sale creation failed", "error", err)
		http.Error(w, "failed to commit sale", http.StatusInternalServerError)
		return
	}

	// The cart is committed locally; nudge the engine so an online
	// terminal syncs without waiting for the next tick.
	h.engine.TriggerSync()

	writeJSON(w, http.StatusCreated, sale)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.GetAll(r.Context(), models.CollectionSales)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]models.SaleRecord, 0, len(records))
	for _, rec := range records {
		sale, err := models.UnmarshalSale(rec.Payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, sale)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.store.Get(r.Context(), models.CollectionSales, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "sale not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sale, err := models.UnmarshalSale(rec.Payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out, err := sales.EncodeReceipt(sale)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=windows-1252")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (h *Handler) listInventory(w http.ResponseWriter, r *http.Request) {
	products, err := h.inventory.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) upsertProduct(w http.ResponseWriter, r *http.Request) {
	var p models.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p.ID = chi.URLParam(r, "id")

	saved, err := h.inventory.Upsert(r.Context(), p)
	if err != nil {
		if isInputError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	h.engine.TriggerSync()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": h.engine.Status()})
}

func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	backlog, err := h.store.Count(r.Context(), models.CollectionSyncQueue)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  h.engine.Status(),
		"online":  h.conn.IsOnline(),
		"backlog": backlog,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func isInputError(err error) bool {
	return errors.Is(err, sales.ErrEmptyCart) ||
		errors.Is(err, sales.ErrInvalidTotal) ||
		errors.Is(err, sales.ErrInvalidLineItem) ||
		errors.Is(err, sales.ErrMissingTerminal) ||
		errors.Is(err, inventory.ErrMissingSKU)
}
