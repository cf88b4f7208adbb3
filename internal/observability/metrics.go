package observability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/journey-tutor-backend/internal/platform/envutil"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	apiReqTotal *Counter
	apiReqError *Counter

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec
	llmCost     *CounterVec

	turns        *CounterVec
	turnLatency  *HistogramVec
	ratings      *HistogramVec
	fallbacks    *CounterVec
	promptLogs   *CounterVec
	streamsOpen  *Gauge
	reportsTotal *Counter

	pgStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

var (
	llmCostOnce           sync.Once
	llmCostInputPer1KUSD  float64
	llmCostOutputPer1KUSD float64
)

func llmCostRates() (float64, float64) {
	llmCostOnce.Do(func() {
		llmCostInputPer1KUSD = envutil.Float("LLM_COST_INPUT_PER_1K", 0)
		llmCostOutputPer1KUSD = envutil.Float("LLM_COST_OUTPUT_PER_1K", 0)
	})
	return llmCostInputPer1KUSD, llmCostOutputPer1KUSD
}

func scrapeInterval() time.Duration {
	return envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("jt_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"jt_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("jt_api_inflight_requests", "In-flight API requests."),
		apiReqTotal: NewCounter("jt_api_requests_total_all", "Total API requests (all)."),
		apiReqError: NewCounter("jt_api_requests_error_total", "Total API requests with 5xx status."),
		llmRequests: NewCounterVec("jt_llm_requests_total", "LLM requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
		llmLatency: NewHistogramVec(
			"jt_llm_request_duration_seconds",
			"LLM request latency in seconds by model/endpoint/status.",
			[]string{"model", "endpoint", "status"},
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		),
		llmTokens: NewCounterVec("jt_llm_tokens_total", "LLM tokens by model/direction.", []string{"model", "direction"}),
		llmCost:   NewCounterVec("jt_llm_cost_usd_total", "Estimated LLM cost (USD) by model/direction.", []string{"model", "direction"}),
		turns:     NewCounterVec("jt_journey_turns_total", "Conversation turns by kind/outcome.", []string{"kind", "outcome"}),
		turnLatency: NewHistogramVec(
			"jt_journey_turn_duration_seconds",
			"Conversation turn duration in seconds by kind.",
			[]string{"kind"},
			[]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		),
		ratings: NewHistogramVec(
			"jt_journey_step_rating",
			"Distribution of extracted step ratings.",
			[]string{},
			[]float64{1, 2, 3, 4, 5},
		),
		fallbacks:    NewCounterVec("jt_ai_fallback_total", "AI responses replaced by the fallback text, by prompt kind.", []string{"kind"}),
		promptLogs:   NewCounterVec("jt_prompt_log_writes_total", "Prompt log writes by backend/status.", []string{"backend", "status"}),
		streamsOpen:  NewGauge("jt_sse_streams_open", "Open SSE connections."),
		reportsTotal: NewCounter("jt_journey_reports_total", "Journey reports submitted."),
		pgStats:      NewGaugeVec("jt_postgres_stats", "Postgres connection stats.", []string{"metric"}),
		redisUp:      NewGauge("jt_redis_up", "Redis connectivity (1=up, 0=down)."),
		redisPing:    NewGauge("jt_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, metric := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight, m.apiReqTotal, m.apiReqError,
		m.llmRequests, m.llmLatency, m.llmTokens, m.llmCost,
		m.turns, m.turnLatency, m.ratings, m.fallbacks, m.promptLogs, m.streamsOpen, m.reportsTotal,
		m.pgStats, m.redisUp, m.redisPing,
	} {
		if err := metric.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
	m.apiReqTotal.Inc()
	if isServerErrorStatus(status) {
		m.apiReqError.Inc()
	}
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.streamsOpen.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.streamsOpen.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = orUnknown(model)
	endpoint = orUnknown(endpoint)
	status = strings.TrimSpace(status)
	if status == "" {
		status = "0"
	}
	m.llmRequests.Inc(model, endpoint, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, endpoint, status)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
	inputRate, outputRate := llmCostRates()
	if inputTokens > 0 && inputRate > 0 {
		m.llmCost.Add((float64(inputTokens)/1000.0)*inputRate, model, "input")
	}
	if outputTokens > 0 && outputRate > 0 {
		m.llmCost.Add((float64(outputTokens)/1000.0)*outputRate, model, "output")
	}
}

// ObserveTurn records one opening or submission turn; outcome is the progression action or "error".
func (m *Metrics) ObserveTurn(kind, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	kind = orUnknown(kind)
	m.turns.Inc(kind, orUnknown(outcome))
	if dur > 0 {
		m.turnLatency.Observe(dur.Seconds(), kind)
	}
}

func (m *Metrics) ObserveRating(rating int) {
	if m == nil {
		return
	}
	m.ratings.Observe(float64(rating))
}

func (m *Metrics) IncFallback(kind string) {
	if m == nil {
		return
	}
	m.fallbacks.Inc(orUnknown(kind))
}

func (m *Metrics) IncPromptLogWrite(backend, status string) {
	if m == nil {
		return
	}
	m.promptLogs.Inc(orUnknown(backend), orUnknown(status))
}

func (m *Metrics) IncReport() {
	if m == nil {
		return
	}
	m.reportsTotal.Inc()
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func orUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

func isServerErrorStatus(status string) bool {
	status = strings.TrimSpace(status)
	if len(status) < 3 {
		return false
	}
	_, err := strconv.Atoi(status)
	return err == nil && status[0] == '5'
}
