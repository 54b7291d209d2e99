package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading bot.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CyclesTotal   *prometheus.CounterVec // labels: outcome=trade|no_trade|error
	CycleDuration prometheus.Histogram
	SignalsTotal  *prometheus.CounterVec // labels: signal
	OrdersTotal   *prometheus.CounterVec // labels: side, status

	// Exchange boundary
	GatewayRetries *prometheus.CounterVec // labels: op
	KlineCacheHits *prometheus.CounterVec // labels: result=hit|miss

	// Ledger
	PersistenceFailures prometheus.Counter
	RealizedPnL         prometheus.Counter
	UnmatchedSells      prometheus.Counter

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Live stream
	StreamClients prometheus.Gauge
	StreamDrops   prometheus.Counter
}

// NewMetrics registers all metrics with reg. A nil reg uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spottrader_cycles_total",
			Help: "Strategy execution cycles by outcome",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spottrader_cycle_duration_seconds",
			Help:    "Wall time of one strategy execution cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spottrader_signals_total",
			Help: "Signals produced by the strategy evaluator",
		}, []string{"signal"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spottrader_orders_total",
			Help: "Orders submitted to the exchange",
		}, []string{"side", "status"}),

		GatewayRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spottrader_gateway_retries_total",
			Help: "Retried exchange calls by operation",
		}, []string{"op"}),
		KlineCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spottrader_kline_cache_requests_total",
			Help: "Kline cache lookups by result",
		}, []string{"result"}),

		PersistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spottrader_persistence_failures_total",
			Help: "Executed trades that could not be written to the ledger",
		}),
		RealizedPnL: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spottrader_pnl_matches_total",
			Help: "Sell trades matched to a buy by the P&L engine",
		}),
		UnmatchedSells: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spottrader_unmatched_sells_total",
			Help: "Sell trades skipped because no buy could be matched",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spottrader_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spottrader_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spottrader_stream_clients",
			Help: "Connected live result stream clients",
		}),
		StreamDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spottrader_stream_drops_total",
			Help: "Messages dropped for slow stream clients",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.SignalsTotal,
		m.OrdersTotal,
		m.GatewayRetries,
		m.KlineCacheHits,
		m.PersistenceFailures,
		m.RealizedPnL,
		m.UnmatchedSells,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.StreamClients,
		m.StreamDrops,
	)

	return m
}

// ObserveCycle records the outcome and duration of one execution cycle.
func (m *Metrics) ObserveCycle(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// ObserveSignal counts a strategy signal.
func (m *Metrics) ObserveSignal(signal string) {
	if m == nil {
		return
	}
	m.SignalsTotal.WithLabelValues(signal).Inc()
}

// ObserveOrder counts a submitted order.
func (m *Metrics) ObserveOrder(side, status string) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(side, status).Inc()
}

// ObserveRetry counts a retried exchange call. Matches exchange.RetryHook.
func (m *Metrics) ObserveRetry(op string, _ int, _ error) {
	if m == nil {
		return
	}
	m.GatewayRetries.WithLabelValues(op).Inc()
}

// ObserveCache counts a kline cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.KlineCacheHits.WithLabelValues(result).Inc()
}

// IncPersistenceFailure counts a trade that could not be persisted.
func (m *Metrics) IncPersistenceFailure() {
	if m == nil {
		return
	}
	m.PersistenceFailures.Inc()
}

// ObserveMatch counts the outcome of a P&L match attempt.
func (m *Metrics) ObserveMatch(matched bool) {
	if m == nil {
		return
	}
	if matched {
		m.RealizedPnL.Inc()
		return
	}
	m.UnmatchedSells.Inc()
}

// ObserveBreaker mirrors a circuit breaker transition. States follow
// redis.State: 0=closed, 1=open, 2=half-open.
func (m *Metrics) ObserveBreaker(to int) {
	if m == nil {
		return
	}
	m.RedisCircuitBreakerState.Set(float64(to))
	if to == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// SetStreamClients mirrors the number of connected stream clients.
func (m *Metrics) SetStreamClients(n int) {
	if m == nil {
		return
	}
	m.StreamClients.Set(float64(n))
}

// IncStreamDrop counts a stream message dropped for a slow client.
func (m *Metrics) IncStreamDrop() {
	if m == nil {
		return
	}
	m.StreamDrops.Inc()
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	ExchangeOK     bool      `json:"exchange_ok"`
	LastCycleAt    time.Time `json:"last_cycle_at"`
	LastOutcome    string    `json:"last_outcome"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt:  time.Now(),
		ExchangeOK: true,
	}
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// RecordCycle stores the outcome of the latest execution cycle. An "error"
// outcome marks the exchange as unhealthy until the next good cycle.
func (h *HealthStatus) RecordCycle(outcome string, at time.Time) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.LastCycleAt = at
	h.LastOutcome = outcome
	h.ExchangeOK = outcome != "error"
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. rdb may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisDown := h.RedisEnabled && !h.RedisConnected
	if !h.SQLiteOK || !h.ExchangeOK || redisDown {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.SQLiteOK && !h.ExchangeOK {
		overallStatus = "unhealthy"
	}

	lastCycle := ""
	if !h.LastCycleAt.IsZero() {
		lastCycle = h.LastCycleAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		ExchangeOK      bool    `json:"exchange_ok"`
		LastCycleAt     string  `json:"last_cycle_at"`
		LastOutcome     string  `json:"last_outcome"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		ExchangeOK:      h.ExchangeOK,
		LastCycleAt:     lastCycle,
		LastOutcome:     h.LastOutcome,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz. Extra handlers
// (the live stream) can be mounted with Handle before Start.
type Server struct {
	health *HealthStatus
	addr   string
	mux    *http.ServeMux
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)

	return &Server{
		health: health,
		addr:   addr,
		mux:    mux,
		logger: logger.With("component", "metrics"),
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handle mounts an extra handler on the server mux.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
