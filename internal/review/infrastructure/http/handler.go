package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmehra2102/storefront/internal/auth"
	"github.com/dmehra2102/storefront/internal/review/application"
	"github.com/dmehra2102/storefront/internal/review/domain"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	authn   func(http.Handler) http.Handler
}

func NewHandler(log *slog.Logger, service *application.Service, authn func(http.Handler) http.Handler) *Handler {
	return &Handler{log: log, service: service, authn: authn}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/{productId}", h.listForProduct)

	r.Group(func(r chi.Router) {
		r.Use(h.authn)
		r.Post("/", h.addReview)
		r.With(auth.RequireRole(auth.RoleAdmin)).Delete("/{id}", h.deleteReview)
	})
	return r
}

type addReviewReq struct {
	ProductID int64  `json:"product_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

func (h *Handler) addReview(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var req addReviewReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid body"})
		return
	}

	rv, err := h.service.Add(r.Context(), id.UserID, req.ProductID, req.Rating, req.Comment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "Review added successfully", "review": rv})
}

func (h *Handler) listForProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid productId"})
		return
	}
	reviews, err := h.service.ListForProduct(r.Context(), productID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "reviews": reviews})
}

func (h *Handler) deleteReview(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid id"})
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Review deleted"})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotVerifiedBuyer):
		writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "Only verified buyers who have received this product can leave a review."})
	case errors.Is(err, domain.ErrDuplicateReview):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "You have already reviewed this product"})
	case errors.Is(err, domain.ErrInvalidRating):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Rating must be between 1 and 5"})
	case errors.Is(err, domain.ErrInvalidProduct):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "product_id is required"})
	case errors.Is(err, domain.ErrReviewNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Review not found"})
	default:
		h.log.Error("review request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Internal Server Error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
