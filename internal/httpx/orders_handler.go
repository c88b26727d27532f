package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	// SellerHeader carries the seller identity established by the gateway.
	// Subscriptions are only opened for the seller named here.
	SellerHeader = "X-Seller-Id"

	idemPending = "pending"
)

type OrdersHandler struct {
	Service *orders.Service
	Hub     *notify.Hub
	Redis   *redis.Client
	Metrics *metrics.ServerMetrics

	// Heartbeat is the interval of keep-alive comments on event streams.
	Heartbeat time.Duration
}

type CreateOrderReq struct {
	SellerID    int64                `json:"seller_id"`
	BuyerID     int64                `json:"buyer_id"`
	Name        string               `json:"name"`
	Surname     string               `json:"surname"`
	PhoneNumber string               `json:"phone_number"`
	Address     string               `json:"address"`
	Email       string               `json:"email"`
	ProductIDs  []int64              `json:"product_ids"`
	Quantities  []int                `json:"quantities"`
	Items       []orders.LineRequest `json:"items"`
}

type UpdateStatusReq struct {
	Status string `json:"status"`
}

type StatusResp struct {
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type StatusLabel struct {
	Status orders.Status `json:"status"`
	Label  string        `json:"label"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/status", h.getOrderStatus)
		r.Patch("/orders/{id}/status", h.updateStatus)
		r.Get("/statuses", h.statuses)
		r.Get("/sellers/{sellerID}/order-stats", h.orderStats)
	})
	// long-lived, no request timeout
	r.Get("/sellers/{sellerID}/order-updates", h.orderUpdates)
}

func (r CreateOrderReq) lines() ([]orders.LineRequest, error) {
	if len(r.Items) > 0 {
		if len(r.ProductIDs) > 0 || len(r.Quantities) > 0 {
			return nil, fmt.Errorf("%w: use either items or product_ids/quantities", orders.ErrInvalidArgument)
		}
		return r.Items, nil
	}
	return orders.ZipLines(r.ProductIDs, r.Quantities)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.SellerID == 0 || req.BuyerID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}
	lines, err := req.lines()
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// The key is claimed before placing the order; a retry sees either the
	// placeholder (still running) or the id of the order it produced.
	idemKey := ""
	if k := strings.TrimSpace(r.Header.Get(IdempotencyHeader)); k != "" {
		idemKey = fmt.Sprintf(redisx.KeyIdemOrderCreate, k)
		claimed, err := h.Redis.SetNX(ctx, idemKey, idemPending, redisx.TTLIdemPending).Result()
		if err != nil {
			writeError(w, err)
			return
		}
		if !claimed {
			h.replayOrder(ctx, w, idemKey)
			return
		}
	}

	o, err := h.Service.PlaceOrder(ctx, orders.PlaceOrderInput{
		BuyerID:  req.BuyerID,
		SellerID: req.SellerID,
		Contact: orders.Contact{
			Name:    req.Name,
			Surname: req.Surname,
			Phone:   req.PhoneNumber,
			Address: req.Address,
			Email:   req.Email,
		},
		Lines: lines,
	})
	if h.Metrics != nil {
		h.Metrics.OrdersPlaced.WithLabelValues(metrics.Outcome(err)).Inc()
	}
	if err != nil {
		if idemKey != "" {
			_ = h.Redis.Del(context.WithoutCancel(ctx), idemKey).Err()
		}
		writeError(w, err)
		return
	}

	if idemKey != "" {
		_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) replayOrder(ctx context.Context, w http.ResponseWriter, idemKey string) {
	v, err := h.Redis.Get(ctx, idemKey).Result()
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "request with this idempotency key is in progress"})
		return
	}
	o, err := h.Service.Order(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f orders.Filter
	var err error
	if f.SellerID, err = optionalID(q.Get("seller_id")); err != nil {
		writeError(w, err)
		return
	}
	if f.BuyerID, err = optionalID(q.Get("buyer_id")); err != nil {
		writeError(w, err)
		return
	}
	f.Status = orders.Status(q.Get("status"))
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Service.ListOrders(ctx, f)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Service.Order(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache, filled by the projector
	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	// 2) fallback DB; the projector owns the cache
	o, err := h.Service.Order(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResp{Status: o.Status, UpdatedAt: o.UpdatedAt})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req UpdateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	target := orders.Status(req.Status)
	o, err := h.Service.UpdateStatus(ctx, id, target)
	if h.Metrics != nil {
		label := string(target)
		if !target.Valid() {
			label = "invalid"
		}
		h.Metrics.StatusTransitions.WithLabelValues(label, metrics.Outcome(err)).Inc()
	}
	if err != nil {
		writeError(w, err)
		return
	}

	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, id)).Err()
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) statuses(w http.ResponseWriter, r *http.Request) {
	all := orders.Statuses()
	out := make([]StatusLabel, 0, len(all))
	for _, s := range all {
		out = append(out, StatusLabel{Status: s, Label: s.Label()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) orderStats(w http.ResponseWriter, r *http.Request) {
	sellerID, err := pathID(r, "sellerID")
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	raw, err := h.Redis.HGetAll(ctx, fmt.Sprintf(redisx.KeySellerStats, sellerID)).Result()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make(map[orders.Status]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || !orders.Status(k).Valid() {
			continue
		}
		out[orders.Status(k)] = n
	}
	writeJSON(w, http.StatusOK, out)
}

// orderUpdates streams the seller's order events as Server-Sent Events.
func (h *OrdersHandler) orderUpdates(w http.ResponseWriter, r *http.Request) {
	sellerID, err := pathID(r, "sellerID")
	if err != nil {
		writeError(w, err)
		return
	}
	if r.Header.Get(SellerHeader) != strconv.FormatInt(sellerID, 10) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not allowed to watch this seller"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	events, cancel := h.Hub.Subscribe(r.Context(), sellerID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	hb := h.Heartbeat
	if hb <= 0 {
		hb = 15 * time.Second
	}
	ticker := time.NewTicker(hb)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", orders.ErrInvalidArgument, name)
	}
	return id, nil
}

func optionalID(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", orders.ErrInvalidArgument, s)
	}
	return id, nil
}
