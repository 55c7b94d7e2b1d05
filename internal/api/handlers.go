package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"opsbridge/internal/tiny"
	"opsbridge/pkg/middleware"
	"opsbridge/pkg/problems"
	"opsbridge/pkg/tokens"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type tenantView struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	TokenCached bool   `json:"token_cached"`
}

func (h *handlers) listTenants(w http.ResponseWriter, r *http.Request) {
	list, err := h.Registry.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]tenantView, 0, len(list))
	for _, t := range list {
		_, cached := h.Tokens.Get(r.Context(), t.ID)
		out = append(out, tenantView{ID: t.ID, DisplayName: t.DisplayName, TokenCached: cached})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": out})
}

func (h *handlers) refreshToken(w http.ResponseWriter, r *http.Request) {
	t := middleware.TenantFrom(r.Context())
	tok, err := h.Tokens.ForceRefresh(r.Context(), t)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := map[string]any{"tenant": t.ID, "refreshed": true}
	if exp, ok := tokens.Expiry(tok); ok {
		resp["expires_at"] = exp.UTC().Format(time.RFC3339)
	}
	h.Log.Infow("token refreshed via api", "tenant", t.ID, "actor", middleware.ActorSub(r.Context()))
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getProduct(w http.ResponseWriter, r *http.Request) {
	t := middleware.TenantFrom(r.Context())
	q := r.URL.Query()
	out, err := h.Tiny.GetProduct(r.Context(), t.ID, q.Get("filter"), q.Get("value"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getDeposits(w http.ResponseWriter, r *http.Request) {
	t := middleware.TenantFrom(r.Context())
	out, err := h.Tiny.GetStockDeposits(r.Context(), t.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type stockRequest struct {
	To        string          `json:"to"`
	Type      string          `json:"type"`
	Quantity  decimal.Decimal `json:"quantity"`
	DepositID int64           `json:"deposit_id"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (h *handlers) moveStock(w http.ResponseWriter, r *http.Request) {
	t := middleware.TenantFrom(r.Context())
	var body stockRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		problems.Write(w, problems.New(http.StatusBadRequest, "invalid-body", "Invalid request body", err.Error()))
		return
	}
	out, err := h.Tiny.MoveStock(r.Context(), tiny.StockMovement{
		From:      t.ID,
		To:        body.To,
		ProductID: chi.URLParam(r, "productID"),
		Type:      tiny.MovementType(body.Type),
		Quantity:  body.Quantity,
		DepositID: body.DepositID,
		UnitPrice: body.UnitPrice,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Log.Infow("stock moved via api", "tenant", t.ID, "product", chi.URLParam(r, "productID"), "result", fmt.Sprint(out["idLancamento"]))
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	p, retryAfter := ProblemFor(err)
	p.Instance = r.URL.Path
	if p.Status >= 500 {
		h.Log.Warnw("request failed", "path", r.URL.Path, "status", p.Status, "err", err, "reqid", middleware.RequestIDFrom(r.Context()))
	}
	if retryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprint(int(retryAfter.Seconds())))
	}
	problems.Write(w, p)
}
