package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/warungku/backend/internal/entity"
	"github.com/warungku/backend/internal/gateway"
	"github.com/warungku/backend/internal/service"
)

// Handler handles HTTP requests for the ordering backend.
type Handler struct {
	checkoutSvc  *service.CheckoutService
	reconcileSvc *service.ReconcileService
	orderSvc     *service.OrderService
}

func NewHandler(checkoutSvc *service.CheckoutService, reconcileSvc *service.ReconcileService, orderSvc *service.OrderService) *Handler {
	return &Handler{
		checkoutSvc:  checkoutSvc,
		reconcileSvc: reconcileSvc,
		orderSvc:     orderSvc,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.handleGetProducts)
	mux.HandleFunc("POST /api/checkout", h.handleCheckout)
	mux.HandleFunc("POST /api/payments/notification", h.handleNotification)
	mux.HandleFunc("POST /api/orders/{id}/finalize", h.handleFinalize)
	mux.HandleFunc("DELETE /api/orders/{id}", h.handleCancel)
	mux.HandleFunc("PATCH /api/orders/{id}/status", h.handleSetStatus)
	mux.HandleFunc("POST /api/orders", h.handleCreateStaffOrder)
	mux.HandleFunc("GET /api/orders", h.handleGetOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.handleGetOrder)
}

func (h *Handler) handleGetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.orderSvc.GetProducts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.checkoutSvc.Checkout(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handleNotification is the gateway webhook. Per the gateway contract, any
// authenticated notification is acknowledged with 200 even when nothing
// matches it; a retry storm helps nobody. Only a bad signature is rejected.
func (h *Handler) handleNotification(w http.ResponseWriter, r *http.Request) {
	var n gateway.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.reconcileSvc.HandleNotification(r.Context(), &n); err != nil {
		if errors.Is(err, entity.ErrSignature) {
			slog.Warn("Rejected unauthenticated notification", "payment_id", n.OrderID)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
		slog.Error("Failed to process notification", "payment_id", n.OrderID, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	order, err := h.reconcileSvc.Finalize(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.checkoutSvc.CancelUnpaid(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.orderSvc.SetStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) handleCreateStaffOrder(w http.ResponseWriter, r *http.Request) {
	var req service.StaffOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.orderSvc.CreateStaffOrder(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderSvc.GetRecentOrders(r.Context(), 50)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, entity.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, entity.ErrDependency):
		slog.Error("Dependency failure", "err", err)
		http.Error(w, "upstream dependency failed", http.StatusBadGateway)
	default:
		slog.Error("Request failed", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// EnableCORS is a middleware to allow the React frontend to connect.
func EnableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
