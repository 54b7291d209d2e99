// Package api exposes read-only operator endpoints next to /metrics:
// open positions, realized P&L over a date range, and safety-limit usage.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"spot-trader/internal/execution"
	"spot-trader/internal/model"
	"spot-trader/internal/portfolio"
)

// Positions lists open positions.
type Positions interface {
	OpenPositions(ctx context.Context) ([]portfolio.Position, error)
}

// PnL aggregates realized P&L.
type PnL interface {
	CalculatePnl(ctx context.Context, from, to time.Time) (portfolio.PeriodPnl, error)
}

// LimitStatus reports safety-limit usage.
type LimitStatus interface {
	Status(ctx context.Context, symbol string) (execution.Status, error)
}

// Handlers are the backends of the router. Nil members disable their route.
type Handlers struct {
	Positions Positions
	PnL       PnL
	Limits    LimitStatus
	Symbol    string // default for /limits
	Location  *time.Location
	Now       func() time.Time
}

// NewRouter sets up the API routes.
func NewRouter(h Handlers, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	if h.Location == nil {
		h.Location = time.UTC
	}
	if h.Now == nil {
		h.Now = time.Now
	}
	r := &router{h: h, logger: logger.With("component", "api")}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.Positions != nil {
		mux.HandleFunc("GET /api/v1/positions", r.positions)
	}
	if h.PnL != nil {
		mux.HandleFunc("GET /api/v1/pnl", r.pnl)
	}
	if h.Limits != nil {
		mux.HandleFunc("GET /api/v1/limits", r.limits)
	}
	return mux
}

type router struct {
	h      Handlers
	logger *slog.Logger
}

func (r *router) positions(w http.ResponseWriter, req *http.Request) {
	ps, err := r.h.Positions.OpenPositions(req.Context())
	if err != nil {
		r.fail(w, "positions", err)
		return
	}
	if ps == nil {
		ps = []portfolio.Position{}
	}
	writeJSON(w, http.StatusOK, ps)
}

// pnl serves ?from=YYYY-MM-DD&to=YYYY-MM-DD, both inclusive days. Missing
// bounds default to today.
func (r *router) pnl(w http.ResponseWriter, req *http.Request) {
	now := r.h.Now().In(r.h.Location)
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, r.h.Location)

	from, err := r.day(req.URL.Query().Get("from"), today)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from: "+err.Error())
		return
	}
	to, err := r.day(req.URL.Query().Get("to"), today)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to: "+err.Error())
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}

	p, err := r.h.PnL.CalculatePnl(req.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		r.fail(w, "pnl", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (r *router) limits(w http.ResponseWriter, req *http.Request) {
	symbol := req.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = r.h.Symbol
	}
	st, err := r.h.Limits.Status(req.Context(), symbol)
	if err != nil {
		r.fail(w, "limits", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (r *router) day(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseInLocation(model.DateLayout, s, r.h.Location)
}

func (r *router) fail(w http.ResponseWriter, route string, err error) {
	r.logger.Error("request failed", "route", route, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
