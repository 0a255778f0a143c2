package metrics

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// CartMetrics содержит метрики сервиса корзин.
type CartMetrics struct {
	// Счётчики операций
	cartsCreated prometheus.Counter
	operations   *prometheus.CounterVec
	discounts    *prometheus.CounterVec
	events       *prometheus.CounterVec

	// Распределение итоговых сумм
	cartTotal prometheus.Histogram

	activeCarts prometheus.Gauge

	httpDuration *prometheus.HistogramVec

	cleanupRuns        *prometheus.CounterVec
	cleanupDeleted     prometheus.Counter
	cleanupLastDeleted prometheus.Gauge
}

// NewCartMetrics регистрирует метрики в DefaultRegisterer.
func NewCartMetrics() *CartMetrics {
	return NewCartMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCartMetricsWithRegisterer регистрирует метрики в указанном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCartMetricsWithRegisterer(registerer prometheus.Registerer) *CartMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CartMetrics{
		cartsCreated: register(registerer, "shopcart_carts_created_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopcart_carts_created_total",
			Help: "Total number of carts created",
		})),
		operations: register(registerer, "shopcart_cart_operations_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopcart_cart_operations_total",
			Help: "Total number of cart operations grouped by operation and result",
		}, []string{"operation", "result"})),
		discounts: register(registerer, "shopcart_discounts_applied_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopcart_discounts_applied_total",
			Help: "Total number of computed summaries with a discount of the given type",
		}, []string{"type"})),
		events: register(registerer, "shopcart_events_published_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopcart_events_published_total",
			Help: "Total number of cart events handed to the broker grouped by result",
		}, []string{"result"})),
		cartTotal: register(registerer, "shopcart_cart_total_amount", prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shopcart_cart_total_amount",
			Help:    "Distribution of computed cart totals after discounts",
			Buckets: []float64{10, 25, 50, 100, 200, 500, 1000, 2500, 5000},
		})),
		activeCarts: register(registerer, "shopcart_active_carts", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shopcart_active_carts",
			Help: "Number of carts currently held by the store",
		})),
		httpDuration: register(registerer, "shopcart_http_request_duration_seconds", prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shopcart_http_request_duration_seconds",
			Help:    "Duration of REST API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"method", "route", "status"})),
		cleanupRuns: register(registerer, "shopcart_idempotency_cleanup_runs_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopcart_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result",
		}, []string{"result"})),
		cleanupDeleted: register(registerer, "shopcart_idempotency_cleanup_deleted_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopcart_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency records",
		})),
		cleanupLastDeleted: register(registerer, "shopcart_idempotency_cleanup_last_deleted", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shopcart_idempotency_cleanup_last_deleted",
			Help: "Number of deleted records during the last cleanup run",
		})),
	}
}

func register[T prometheus.Collector](registerer prometheus.Registerer, name string, collector T) T {
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

func resultLabel(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// RecordCartCreated увеличивает счётчик созданных корзин.
func (m *CartMetrics) RecordCartCreated() {
	m.cartsCreated.Inc()
}

// RecordOperation учитывает результат операции над корзиной.
func (m *CartMetrics) RecordOperation(operation string, err error) {
	m.operations.WithLabelValues(operation, resultLabel(err)).Inc()
}

// RecordDiscount учитывает применённую скидку.
func (m *CartMetrics) RecordDiscount(discountType string) {
	m.discounts.WithLabelValues(discountType).Inc()
}

// RecordEventPublished учитывает результат публикации события.
func (m *CartMetrics) RecordEventPublished(err error) {
	m.events.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveCartTotal записывает итог корзины.
func (m *CartMetrics) ObserveCartTotal(total float64) {
	m.cartTotal.Observe(total)
}

// SetActiveCarts выставляет число корзин в хранилище.
func (m *CartMetrics) SetActiveCarts(count int) {
	m.activeCarts.Set(float64(count))
}

// RecordHTTPRequest записывает длительность REST-запроса.
func (m *CartMetrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordIdempotencyCleanup учитывает один проход очистки idempotency-ключей.
func (m *CartMetrics) RecordIdempotencyCleanup(deleted int, err error) {
	m.cleanupRuns.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return
	}
	m.cleanupLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		m.cleanupDeleted.Add(float64(deleted))
	}
}
