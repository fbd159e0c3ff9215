package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-orders-readpath/internal/metrics"
	"github.com/ariefcatur/go-orders-readpath/internal/orders"
	"github.com/ariefcatur/go-orders-readpath/internal/readcache"
)

const readEndpoint = "GET /orders"

type OrdersHandler struct {
	Reader  *orders.Reader
	Service *orders.Service
	Metrics *metrics.Recorder
	// WriteTimeout bounds each write request; zero means 10s.
	WriteTimeout time.Duration
}

type listResp struct {
	Success    bool           `json:"success"`
	Data       any    `json:"data"`
	Source     string `json:"source"`
	Cursor     string `json:"cursor,omitempty"`
	NextCursor string `json:"nextCursor,omitempty"`
	TotalCount *int   `json:"totalCount,omitempty"`
}

type errorResp struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type statusReq struct {
	Status orders.Status `json:"status"`
}

type transitionResp struct {
	OrderID    string        `json:"orderId"`
	From       orders.Status `json:"from,omitempty"`
	To         orders.Status `json:"to"`
	Commission *float64      `json:"commission,omitempty"`
	SellerID   string        `json:"sellerId,omitempty"`
	StatusOnly bool          `json:"statusOnly"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders", h.listOrders)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Patch("/orders/{id}", h.updateDetails)
	r.Post("/orders/{id}/installments/{n}/payments", h.recordPayment)
	r.Delete("/orders/{id}", h.moveToTrash)
	r.Delete("/orders/{id}/permanent", h.deleteOrder)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, orders.ErrInvalidStatus), errors.Is(err, orders.ErrInvalidPayment):
		code = http.StatusBadRequest
	case errors.Is(err, orders.ErrNotFound):
		code = http.StatusNotFound
	}
	writeJSON(w, code, errorResp{Error: err.Error()})
}

func parseQuery(r *http.Request) orders.Query {
	v := r.URL.Query()
	q := orders.Query{
		ID:           v.Get("id"),
		Cursor:       v.Get("cursor"),
		IncludeItems: isTruthy(v.Get("includeItems")),
		Search:       v.Get("search"),
	}
	switch limit := strings.TrimSpace(v.Get("limit")); {
	case strings.EqualFold(limit, "all"):
		q.All = true
	case limit != "":
		q.Limit, _ = strconv.Atoi(limit)
	}
	return q
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	q := parseQuery(r)
	res, err := h.Reader.Read(r.Context(), q)
	elapsed := time.Since(started).Milliseconds()
	w.Header().Set("X-Response-Ms", strconv.FormatInt(elapsed, 10))

	if err != nil {
		h.record(metrics.Sample{Name: readEndpoint, Ms: elapsed, OK: false, Meta: map[string]string{"error": err.Error()}})
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}

	cache := strings.ToUpper(string(res.Status))
	w.Header().Set("X-Cache", cache)
	h.record(metrics.Sample{Name: readEndpoint, Ms: elapsed, OK: true, Meta: map[string]string{"cache": cache, "source": res.Source}})

	page := res.Value
	var data any = page.Orders
	switch {
	case strings.TrimSpace(q.ID) != "":
		// A lookup by id answers with the order itself, or null.
		data = nil
		if len(page.Orders) > 0 {
			data = page.Orders[0]
		}
	case page.Orders == nil:
		data = []orders.Order{}
	}
	resp := listResp{
		Success:    true,
		Data:       data,
		Source:     res.Source,
		Cursor:     page.Cursor,
		NextCursor: page.NextCursor,
	}
	if strings.TrimSuffix(res.Source, readcache.StaleSuffix) == orders.SourceAll {
		total := page.TotalCount
		resp.TotalCount = &total
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrdersHandler) record(s metrics.Sample) {
	if h.Metrics != nil {
		h.Metrics.Record(s)
	}
}

func (h *OrdersHandler) writeContext(r *http.Request) (context.Context, context.CancelFunc) {
	d := h.WriteTimeout
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(r.Context(), d)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	ctx, cancel := h.writeContext(r)
	defer cancel()

	t, err := h.Service.UpdateStatus(ctx, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": transitionResp{
		OrderID:    t.OrderID,
		From:       t.From,
		To:         t.To,
		Commission: t.Commission,
		SellerID:   t.SellerID,
		StatusOnly: t.Bare,
	}})
}

func (h *OrdersHandler) updateDetails(w http.ResponseWriter, r *http.Request) {
	var p orders.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	ctx, cancel := h.writeContext(r)
	defer cancel()

	if err := h.Service.UpdateDetails(ctx, chi.URLParam(r, "id"), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *OrdersHandler) recordPayment(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid installment number"})
		return
	}
	var p orders.Payment
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	ctx, cancel := h.writeContext(r)
	defer cancel()

	inst, err := h.Service.RecordInstallmentPayment(ctx, chi.URLParam(r, "id"), n, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": inst})
}

func (h *OrdersHandler) moveToTrash(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.writeContext(r)
	defer cancel()

	if err := h.Service.MoveToTrash(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.writeContext(r)
	defer cancel()

	if err := h.Service.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
