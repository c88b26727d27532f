package httpx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders/ordertest"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv   *httptest.Server
	svc   *orders.Service
	store *ordertest.Store
	hub   *notify.Hub
	mr    *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := ordertest.NewStore()
	cat := ordertest.NewCatalog()
	cat.Buyers[1] = orders.Buyer{ID: 1, Name: "Ann", Surname: "Lee", Phone: "+100", Address: "Main st 1"}
	cat.Sellers[10] = orders.Seller{ID: 10}
	cat.Products[100] = orders.Product{ID: 100, SellerID: 10, Price: decimal.RequireFromString("3.00")}
	cat.Products[200] = orders.Product{ID: 200, SellerID: 10, Price: decimal.RequireFromString("1.25")}

	hub := notify.NewHub(8)
	svc := &orders.Service{Store: store, Catalog: cat, Directory: cat, Publisher: hub, ServiceName: "test"}

	m := metrics.NewServerMetrics("test", prometheus.NewRegistry())
	r := NewRouter(m)
	(&OrdersHandler{Service: svc, Hub: hub, Redis: rdb, Metrics: m, Heartbeat: time.Hour}).Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, svc: svc, store: store, hub: hub, mr: mr}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

var validOrder = map[string]any{
	"seller_id":    10,
	"buyer_id":     1,
	"name":         "Ann",
	"surname":      "Lee",
	"phone_number": "+100",
	"address":      "Main st 1",
	"email":        "ann@example.com",
	"product_ids":  []int64{100, 200},
	"quantities":   []int{2, 1},
}

func TestCreateOrder(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/orders", validOrder)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	o := decode[orders.Order](t, resp)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.True(t, orders.ValidReceiptCode(o.ReceiptCode))
	assert.Equal(t, "7.25", o.Total.String())
	require.Len(t, o.Items, 2)
	assert.Equal(t, int64(100), o.Items[0].ProductID)
	assert.Equal(t, 2, o.Items[0].Quantity)
}

func TestCreateOrderWithItems(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/orders", map[string]any{
		"seller_id": 10, "buyer_id": 1,
		"items": []map[string]any{{"product_id": 200, "quantity": 4}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	o := decode[orders.Order](t, resp)
	assert.Equal(t, "Main st 1", o.Contact.Address, "contact falls back to the buyer profile")
}

func TestCreateOrderErrors(t *testing.T) {
	with := func(kv ...any) map[string]any {
		m := map[string]any{}
		for key, val := range validOrder {
			m[key] = val
		}
		for i := 0; i+1 < len(kv); i += 2 {
			m[kv[i].(string)] = kv[i+1]
		}
		return m
	}
	tests := []struct {
		name string
		body any
		code int
	}{
		{"empty product list", with("product_ids", []int64{}, "quantities", []int{}), http.StatusBadRequest},
		{"mismatched lists", with("quantities", []int{1}), http.StatusBadRequest},
		{"zero quantity", with("quantities", []int{0, 1}), http.StatusBadRequest},
		{"missing seller", with("seller_id", 0), http.StatusBadRequest},
		{"unknown seller", with("seller_id", 77), http.StatusNotFound},
		{"unknown product", with("product_ids", []int64{100, 999}), http.StatusNotFound},
		{"bad json", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			resp := e.do(t, http.MethodPost, "/orders", tt.body)
			assert.Equal(t, tt.code, resp.StatusCode)
			assert.Zero(t, e.store.Len(), "no order persisted")
		})
	}
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	e := newTestEnv(t)

	first := e.do(t, http.MethodPost, "/orders", validOrder, IdempotencyHeader, "abc")
	require.Equal(t, http.StatusCreated, first.StatusCode)
	a := decode[orders.Order](t, first)

	second := e.do(t, http.MethodPost, "/orders", validOrder, IdempotencyHeader, "abc")
	require.Equal(t, http.StatusOK, second.StatusCode)
	b := decode[orders.Order](t, second)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.ReceiptCode, b.ReceiptCode)
	assert.Equal(t, 1, e.store.Len())
}

func TestCreateOrderIdempotencyKeyInFlight(t *testing.T) {
	e := newTestEnv(t)
	key := fmt.Sprintf(redisx.KeyIdemOrderCreate, "busy")
	require.NoError(t, e.mr.Set(key, idemPending))

	resp := e.do(t, http.MethodPost, "/orders", validOrder, IdempotencyHeader, "busy")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Zero(t, e.store.Len(), "second request with a claimed key places nothing")
}

func TestCreateOrderIdempotencyKeyConcurrent(t *testing.T) {
	e := newTestEnv(t)

	const n = 8
	codes := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var buf bytes.Buffer
			_ = json.NewEncoder(&buf).Encode(validOrder)
			req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/orders", &buf)
			if err != nil {
				return
			}
			req.Header.Set(IdempotencyHeader, "same")
			resp, err := e.srv.Client().Do(req)
			if err != nil {
				return
			}
			_ = resp.Body.Close()
			codes <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(codes)

	created := 0
	for c := range codes {
		if c == http.StatusCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, e.store.Len())
}

func TestCreateOrderFailureReleasesIdempotencyKey(t *testing.T) {
	e := newTestEnv(t)
	bad := map[string]any{"seller_id": 10, "buyer_id": 1, "product_ids": []int64{999}, "quantities": []int{1}}

	resp := e.do(t, http.MethodPost, "/orders", bad, IdempotencyHeader, "retry-me")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, e.mr.Exists(fmt.Sprintf(redisx.KeyIdemOrderCreate, "retry-me")))

	resp = e.do(t, http.MethodPost, "/orders", validOrder, IdempotencyHeader, "retry-me")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestUpdateStatus(t *testing.T) {
	e := newTestEnv(t)
	o := decode[orders.Order](t, e.do(t, http.MethodPost, "/orders", validOrder))
	path := fmt.Sprintf("/orders/%d/status", o.ID)

	resp := e.do(t, http.MethodPatch, path, UpdateStatusReq{Status: "delivery"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = e.do(t, http.MethodPatch, path, UpdateStatusReq{Status: "accepted"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[orders.Order](t, resp)
	assert.Equal(t, orders.StatusAccepted, got.Status)
	assert.Equal(t, o.OrderNumber, got.OrderNumber)

	resp = e.do(t, http.MethodPatch, path, UpdateStatusReq{Status: "shipped"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPatch, "/orders/999/status", UpdateStatusReq{Status: "accepted"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOrderStatusCache(t *testing.T) {
	e := newTestEnv(t)
	o := decode[orders.Order](t, e.do(t, http.MethodPost, "/orders", validOrder))
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	path := fmt.Sprintf("/orders/%d/status", o.ID)

	resp := e.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, orders.StatusPending, decode[StatusResp](t, resp).Status)
	assert.False(t, e.mr.Exists(key), "a miss is not written back")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, e.mr.Set(key, `{"status":"prepare","updated_at":"2026-03-01T12:00:00Z"}`))
	resp = e.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cached := decode[StatusResp](t, resp)
	assert.Equal(t, orders.StatusPrepare, cached.Status, "served from cache")
	assert.True(t, at.Equal(cached.UpdatedAt))

	resp = e.do(t, http.MethodPatch, path, UpdateStatusReq{Status: "accepted"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, e.mr.Exists(key), "update invalidates the cache")

	resp = e.do(t, http.MethodGet, path, nil)
	assert.Equal(t, orders.StatusAccepted, decode[StatusResp](t, resp).Status)

	resp = e.do(t, http.MethodGet, "/orders/12345/status", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetAndListOrders(t *testing.T) {
	e := newTestEnv(t)
	o := decode[orders.Order](t, e.do(t, http.MethodPost, "/orders", validOrder))

	resp := e.do(t, http.MethodGet, fmt.Sprintf("/orders/%d", o.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, o.ReceiptCode, decode[orders.Order](t, resp).ReceiptCode)

	resp = e.do(t, http.MethodGet, "/orders?seller_id=10&status=pending", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]orders.Order](t, resp), 1)

	resp = e.do(t, http.MethodGet, "/orders?buyer_id=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]orders.Order](t, resp))

	resp = e.do(t, http.MethodGet, "/orders?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/orders/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatuses(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, http.MethodGet, "/statuses", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[[]StatusLabel](t, resp)
	require.Len(t, got, 8)
	assert.Equal(t, orders.StatusPending, got[0].Status)
	assert.Equal(t, orders.StatusRefunded, got[7].Status)
}

func TestOrderStats(t *testing.T) {
	e := newTestEnv(t)
	e.mr.HSet(fmt.Sprintf(redisx.KeySellerStats, 10), "pending", "3", "accepted", "1", "junk", "9")

	resp := e.do(t, http.MethodGet, "/sellers/10/order-stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[orders.Status]int64{"pending": 3, "accepted": 1}, decode[map[orders.Status]int64](t, resp))
}

func TestOrderUpdatesRequiresMatchingSeller(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/sellers/10/order-updates", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/sellers/10/order-updates", nil, SellerHeader, "11")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, e.hub.Subscribers(10))
}

func TestOrderUpdatesStream(t *testing.T) {
	e := newTestEnv(t)
	o := decode[orders.Order](t, e.do(t, http.MethodPost, "/orders", validOrder))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.srv.URL+"/sellers/10/order-updates", nil)
	require.NoError(t, err)
	req.Header.Set(SellerHeader, "10")
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Equal(t, 1, e.hub.Subscribers(10))

	_, err = e.svc.UpdateStatus(context.Background(), o.ID, orders.StatusAccepted)
	require.NoError(t, err)

	lines := make(chan string, 8)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	var event, data string
	timeout := time.After(2 * time.Second)
	for data == "" {
		select {
		case l, ok := <-lines:
			require.True(t, ok, "stream closed early")
			if v, found := strings.CutPrefix(l, "event: "); found {
				event = v
			}
			if v, found := strings.CutPrefix(l, "data: "); found {
				data = v
			}
		case <-timeout:
			t.Fatal("no event on stream")
		}
	}

	assert.Equal(t, orders.EventStatusChanged, event)
	var ev orders.Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, o.ID, ev.OrderID)
	assert.Equal(t, orders.StatusAccepted, ev.NewStatus)
	assert.Equal(t, orders.StatusPending, ev.OldStatus)

	cancel()
	require.Eventually(t, func() bool { return e.hub.Subscribers(10) == 0 }, 2*time.Second, 10*time.Millisecond,
		"disconnect deregisters the subscriber")
}
