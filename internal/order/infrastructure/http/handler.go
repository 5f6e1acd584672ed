package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront/internal/auth"
	"github.com/dmehra2102/storefront/internal/order/application"
	"github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/pkg/artifact"
	"github.com/dmehra2102/storefront/pkg/idempotency"
	"github.com/dmehra2102/storefront/pkg/tracing"
)

// errInvalidBody marks a request envelope that could not be decoded at all.
// Cart problems are reported by domain.ParseLineItems instead.
var errInvalidBody = errors.New("invalid body")

// ProofStore persists an uploaded payment proof and returns an opaque reference to it.
type ProofStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
}

type Handler struct {
	log     *slog.Logger
	service *application.Service
	proofs  ProofStore
	authn   func(http.Handler) http.Handler
	idem    *idempotency.Store
	tracer  trace.Tracer
}

// NewHandler wires the order routes. idem may be nil, which disables Idempotency-Key handling.
func NewHandler(log *slog.Logger, service *application.Service, proofs ProofStore, authn func(http.Handler) http.Handler, idem *idempotency.Store) *Handler {
	return &Handler{
		log:     log,
		service: service,
		proofs:  proofs,
		authn:   authn,
		idem:    idem,
		tracer:  otel.Tracer("order-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.authn)

	r.With(h.idempotent).Post("/", h.createOrder)
	r.Get("/my-orders", h.myOrders)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleAdmin))
		r.Get("/admin/all", h.listAll)
		r.Get("/admin/user/{userId}", h.ordersByUser)
		r.Put("/admin/{id}/status", h.changeStatus)
		r.Delete("/admin/{id}", h.deleteOrder)
		r.Get("/{id}/items", h.orderItems)
	})

	return r
}

func (h *Handler) idempotent(next http.Handler) http.Handler {
	if h.idem == nil {
		return next
	}
	return h.idem.Middleware(h.log, func(r *http.Request) string {
		id, _ := auth.FromContext(r.Context())
		return "orders:" + strconv.FormatInt(id.UserID, 10)
	})(next)
}

type createOrderReq struct {
	Items             json.RawMessage `json:"items"`
	Address           string          `json:"address"`
	PhoneNumber       string          `json:"phone_number"`
	PaymentScreenshot string          `json:"payment_screenshot"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	id, _ := auth.FromContext(ctx)
	span.SetAttributes(attribute.Int64("user.id", id.UserID))

	in, err := h.decodePlaceOrder(ctx, r)
	if errors.Is(err, errInvalidBody) {
		span.RecordError(err)
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid body"})
		return
	}
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	in.UserID = id.UserID

	traceparent := r.Header.Get(tracing.TraceparentHeader)
	if traceparent == "" {
		traceparent = tracing.Traceparent(ctx)
	}

	o, err := h.service.PlaceOrder(ctx, in, traceparent)
	if err != nil {
		h.writeError(w, span, err)
		return
	}

	span.SetAttributes(attribute.Int64("order.id", o.ID))
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Order placed successfully!",
		"orderId": o.ID,
	})
}

// decodePlaceOrder reads a JSON or multipart checkout. An uploaded proof is only
// stored once the rest of the cart has passed validation.
func (h *Handler) decodePlaceOrder(ctx context.Context, r *http.Request) (domain.PlaceOrderInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req createOrderReq
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			return domain.PlaceOrderInput{}, fmt.Errorf("%w: %v", errInvalidBody, err)
		}
		items, err := domain.ParseLineItems(req.Items)
		if err != nil {
			return domain.PlaceOrderInput{}, err
		}
		return domain.PlaceOrderInput{
			Items:        items,
			Address:      req.Address,
			PhoneNumber:  req.PhoneNumber,
			PaymentProof: req.PaymentScreenshot,
		}, nil
	}

	if err := r.ParseMultipartForm(artifact.MaxSize); err != nil {
		return domain.PlaceOrderInput{}, fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	items, err := domain.ParseLineItems([]byte(r.FormValue("items")))
	if err != nil {
		return domain.PlaceOrderInput{}, err
	}
	in := domain.PlaceOrderInput{
		Items:        items,
		Address:      r.FormValue("address"),
		PhoneNumber:  r.FormValue("phone_number"),
		PaymentProof: r.FormValue("payment_screenshot"),
	}

	file, header, err := r.FormFile("payment_screenshot")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return domain.PlaceOrderInput{}, unreadableProof(err)
	}
	defer file.Close()

	in.PaymentProof = header.Filename
	if err := in.Validate(); err != nil {
		return domain.PlaceOrderInput{}, err
	}
	ref, err := h.proofs.Save(ctx, header.Filename, file)
	if errors.Is(err, artifact.ErrUnsupportedFormat) || errors.Is(err, artifact.ErrTooLarge) {
		return domain.PlaceOrderInput{}, domain.ErrInvalidPaymentProof
	}
	if err != nil {
		return domain.PlaceOrderInput{}, err
	}
	in.PaymentProof = ref
	return in, nil
}

// unreadableProof reports a payment proof part that was sent but could not be opened.
func unreadableProof(err error) error {
	return &domain.Error{Kind: domain.KindInvalidPaymentProof, Message: domain.ErrInvalidPaymentProof.Message, Err: err}
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	orders, err := h.service.ListForUser(r.Context(), id.UserID)
	if err != nil {
		h.writeError(w, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": nonNil(orders)})
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListAll(r.Context())
	if err != nil {
		h.writeError(w, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": nonNil(orders)})
}

func (h *Handler) ordersByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	orders, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": nonNil(orders)})
}

func (h *Handler) orderItems(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	items, err := h.service.Items(r.Context(), orderID)
	if err != nil {
		h.writeError(w, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "items": nonNil(items)})
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ChangeOrderStatus")
	defer span.End()

	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid body"})
		return
	}

	o, err := h.service.ChangeStatus(ctx, orderID, req.Status, tracing.Traceparent(ctx))
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Order status updated", "order": o})
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteOrder")
	defer span.End()

	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(ctx, orderID, tracing.Traceparent(ctx)); err != nil {
		h.writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Order deleted successfully"})
}

// writeError maps a failure to the storefront's {success:false, message} shape.
// Unclassified errors are logged and hidden behind a generic message.
func (h *Handler) writeError(w http.ResponseWriter, span trace.Span, err error) {
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.KindOf(err)))
	}

	var de *domain.Error
	switch {
	case domain.IsClientError(err) && errors.As(err, &de):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": de.Message, "kind": de.Kind})
	case domain.KindOf(err) == domain.KindOrderNotFound && errors.As(err, &de):
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": de.Message, "kind": de.Kind})
	case domain.IsTransient(err) && errors.As(err, &de):
		h.log.Warn("transient store failure", "kind", de.Kind, "err", err)
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "message": de.Message, "kind": de.Kind})
	default:
		h.log.Error("order request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Internal Server Error"})
	}
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, param)), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid " + param})
		return 0, false
	}
	return id, true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
