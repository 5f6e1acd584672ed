package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/storefront/internal/auth"
	"github.com/dmehra2102/storefront/internal/order/application"
	"github.com/dmehra2102/storefront/internal/order/domain"
	orderhttp "github.com/dmehra2102/storefront/internal/order/infrastructure/http"
	"github.com/dmehra2102/storefront/internal/order/infrastructure/memory"
	"github.com/dmehra2102/storefront/pkg/artifact"
	"github.com/dmehra2102/storefront/pkg/logging"
)

const secret = "test-secret"

type fixture struct {
	srv       *httptest.Server
	store     *memory.Store
	uploadDir string
	verifier  *auth.Verifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.NewWithWriter(io.Discard, "error")
	store := memory.New()
	store.PutProduct(domain.Product{ID: 7, Name: "Blue Scarf", Price: decimal.RequireFromString("10.00"), Stock: 5})
	store.PutCustomer(1, memory.Customer{Name: "Asha", Email: "asha@example.com"})

	dir := t.TempDir()
	proofs, err := artifact.NewLocalStore(dir, "uploads")
	require.NoError(t, err)

	v := auth.NewVerifier(secret)
	h := orderhttp.NewHandler(log, application.NewService(log, store), proofs, auth.Authenticate(log, v), nil)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: store, uploadDir: dir, verifier: v}
}

func (f *fixture) token(t *testing.T, userID int64, role string) string {
	t.Helper()
	tok, err := f.verifier.Issue(userID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token, contentType string, body io.Reader) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, f.srv.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func TestCreateOrder_JSON(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/", f.token(t, 1, auth.RoleCustomer), "application/json", jsonBody(t, map[string]any{
		"items":              []map[string]any{{"id": 7, "quantity": 2, "price": 10}},
		"address":            "12 Lake Road",
		"phone_number":       "0123456789",
		"payment_screenshot": "https://cdn.example.com/proof.png",
	}))

	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Order placed successfully!", body["message"])
	orderID := int64(body["orderId"].(float64))

	o, ok := f.store.Order(orderID)
	require.True(t, ok)
	assert.Equal(t, int64(1), o.UserID)
	assert.Equal(t, "20.00", o.TotalAmount.StringFixed(2))
	p, _ := f.store.Product(7)
	assert.Equal(t, 3, p.Stock)
}

func TestCreateOrder_Multipart(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("items", `[{"id":7,"quantity":1}]`))
	require.NoError(t, mw.WriteField("address", "12 Lake Road"))
	require.NoError(t, mw.WriteField("phone_number", "0123456789"))
	fw, err := mw.CreateFormFile("payment_screenshot", "receipt.PNG")
	require.NoError(t, err)
	_, err = fw.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	status, body := f.do(t, http.MethodPost, "/", f.token(t, 1, auth.RoleCustomer), mw.FormDataContentType(), &buf)
	require.Equal(t, http.StatusCreated, status, body)

	o, ok := f.store.Order(int64(body["orderId"].(float64)))
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(o.PaymentScreenshot, "uploads/"), o.PaymentScreenshot)
	assert.True(t, strings.HasSuffix(o.PaymentScreenshot, ".png"), o.PaymentScreenshot)

	saved, err := os.ReadFile(filepath.Join(f.uploadDir, filepath.Base(o.PaymentScreenshot)))
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG fake", string(saved))
}

func TestCreateOrder_MultipartRejectsUnsupportedProof(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("items", `[{"id":7,"quantity":1}]`))
	require.NoError(t, mw.WriteField("address", "12 Lake Road"))
	require.NoError(t, mw.WriteField("phone_number", "0123456789"))
	fw, err := mw.CreateFormFile("payment_screenshot", "receipt.pdf")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("%PDF"))
	require.NoError(t, mw.Close())

	status, body := f.do(t, http.MethodPost, "/", f.token(t, 1, auth.RoleCustomer), mw.FormDataContentType(), &buf)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(domain.KindInvalidPaymentProof), body["kind"])
	assert.Zero(t, f.store.OrderCount())

	entries, err := os.ReadDir(f.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateOrder_ClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    map[string]any
		kind    domain.Kind
		message string
	}{
		{
			name:    "empty cart",
			body:    map[string]any{"items": []any{}, "address": "a", "phone_number": "1", "payment_screenshot": "p.png"},
			kind:    domain.KindEmptyCart,
			message: "Cart is empty",
		},
		{
			name:    "missing phone",
			body:    map[string]any{"items": []map[string]any{{"id": 7, "quantity": 1}}, "address": "a", "payment_screenshot": "p.png"},
			kind:    domain.KindMissingDeliveryInfo,
			message: "Address and phone are required",
		},
		{
			name: "insufficient stock",
			body: map[string]any{"items": []map[string]any{{"id": 7, "quantity": 6}}, "address": "a", "phone_number": "1", "payment_screenshot": "p.png"},
			kind: domain.KindInsufficientStock, message: "Insufficient stock for Blue Scarf",
		},
		{
			name: "unknown product",
			body: map[string]any{"items": []map[string]any{{"id": 404, "quantity": 1}}, "address": "a", "phone_number": "1", "payment_screenshot": "p.png"},
			kind: domain.KindProductNotFound, message: "Product with ID 404 not found",
		},
		{
			name: "malformed items",
			body: map[string]any{"items": map[string]any{"id": 7}, "address": "a", "phone_number": "1", "payment_screenshot": "p.png"},
			kind: domain.KindMalformedCart,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			status, body := f.do(t, http.MethodPost, "/", f.token(t, 1, auth.RoleCustomer), "application/json", jsonBody(t, tt.body))

			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, string(tt.kind), body["kind"])
			if tt.message != "" {
				assert.Equal(t, tt.message, body["message"])
			}
			p, _ := f.store.Product(7)
			assert.Equal(t, 5, p.Stock)
		})
	}
}

func TestCreateOrder_UndecodableEnvelopeIsNotACartError(t *testing.T) {
	for name, body := range map[string]string{
		"wrong field type": `{"items":[{"id":7,"quantity":1}],"address":5,"phone_number":"1","payment_screenshot":"p.png"}`,
		"not json":         `address=12+Lake+Road`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			status, resp := f.do(t, http.MethodPost, "/", f.token(t, 1, auth.RoleCustomer), "application/json", strings.NewReader(body))

			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "invalid body", resp["message"])
			assert.NotContains(t, resp, "kind")
			assert.Zero(t, f.store.OrderCount())
		})
	}
}

func TestCreateOrder_StoreFailureIsHidden(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("InsertOrder", errors.New("pq: relation \"orders\" does not exist"))

	status, body := f.do(t, http.MethodPost, "/", f.token(t, 1, auth.RoleCustomer), "application/json", jsonBody(t, map[string]any{
		"items": []map[string]any{{"id": 7, "quantity": 1}}, "address": "a", "phone_number": "1", "payment_screenshot": "p.png",
	}))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal Server Error", body["message"])
}

func TestCreateOrder_LockTimeoutIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("LockProduct", domain.Transient(domain.KindLockTimeout, context.DeadlineExceeded))

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/", jsonBody(t, map[string]any{
		"items": []map[string]any{{"id": 7, "quantity": 1}}, "address": "a", "phone_number": "1", "payment_screenshot": "p.png",
	}))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token(t, 1, auth.RoleCustomer))
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/my-orders", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Authentication required. Please log in.", body["message"])

	status, _ = f.do(t, http.MethodGet, "/my-orders", "not-a-jwt", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	expired, err := f.verifier.Issue(1, auth.RoleCustomer, -time.Minute)
	require.NoError(t, err)
	status, body = f.do(t, http.MethodGet, "/my-orders", expired, "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Session expired. Please log in again.", body["message"])

	status, body = f.do(t, http.MethodGet, "/admin/all", f.token(t, 1, auth.RoleCustomer), "", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Forbidden: Access restricted to admin", body["message"])
}

func TestListAndAdminRoutes(t *testing.T) {
	f := newFixture(t)
	customer := f.token(t, 1, auth.RoleCustomer)
	admin := f.token(t, 99, auth.RoleAdmin)

	status, body := f.do(t, http.MethodGet, "/my-orders", customer, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["orders"])

	status, body = f.do(t, http.MethodPost, "/", customer, "application/json", jsonBody(t, map[string]any{
		"items": []map[string]any{{"product_id": 7, "quantity": 1}}, "address": "a", "phone_number": "1", "payment_screenshot": "p.png",
	}))
	require.Equal(t, http.StatusCreated, status, body)
	orderID := int64(body["orderId"].(float64))

	status, body = f.do(t, http.MethodGet, "/my-orders", customer, "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["orders"], 1)
	first := body["orders"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(1), first["total_items"])
	assert.Equal(t, "pending", first["status"])

	status, body = f.do(t, http.MethodGet, "/admin/all", admin, "", nil)
	require.Equal(t, http.StatusOK, status)
	all := body["orders"].([]any)
	require.Len(t, all, 1)
	assert.Equal(t, "Asha", all[0].(map[string]any)["customer_name"])

	status, body = f.do(t, http.MethodGet, "/admin/user/1", admin, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["orders"], 1)

	status, body = f.do(t, http.MethodGet, "/"+itoa(orderID)+"/items", admin, "", nil)
	require.Equal(t, http.StatusOK, status)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Blue Scarf", items[0].(map[string]any)["name"])

	status, body = f.do(t, http.MethodPut, "/admin/"+itoa(orderID)+"/status", admin, "application/json", strings.NewReader(`{"status":"shipped"}`))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "shipped", body["order"].(map[string]any)["status"])

	status, body = f.do(t, http.MethodPut, "/admin/"+itoa(orderID)+"/status", admin, "application/json", strings.NewReader(`{"status":"teleported"}`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(domain.KindInvalidStatus), body["kind"])

	status, _ = f.do(t, http.MethodGet, "/admin/user/abc", admin, "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodDelete, "/admin/"+itoa(orderID), admin, "", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = f.do(t, http.MethodDelete, "/admin/"+itoa(orderID), admin, "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Order not found", body["message"])
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
