package eventbus

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/netcode/internal/logging"
)

// MetricsExporter публикует счётчики шины телеметрии в Prometheus и
// поднимает отдельный /metrics эндпоинт. Работает поверх интерфейса
// EventBus: реализация шины (memory или JetStream) ему безразлична.
type MetricsExporter struct {
	bus  EventBus
	quit chan struct{}
	done chan struct{}
	srv  *http.Server

	published prometheus.Counter
	consumed  prometheus.Counter
	dropped   prometheus.Counter
	inflight  prometheus.Gauge
}

// NewMetricsExporter создаёт экспортер; HTTP-сервер запускается отдельно
// через StartHTTP.
func NewMetricsExporter(bus EventBus) *MetricsExporter {
	me := &MetricsExporter{
		bus:  bus,
		quit: make(chan struct{}),
		done: make(chan struct{}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcode",
			Subsystem: "eventbus",
			Name:      "events_published_total",
			Help:      "Телеметрических событий, опубликованных в шину.",
		}),
		consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcode",
			Subsystem: "eventbus",
			Name:      "events_consumed_total",
			Help:      "Телеметрических событий, доставленных подписчикам.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcode",
			Subsystem: "eventbus",
			Name:      "events_dropped_total",
			Help:      "Событий, отброшенных back-pressure или ошибкой публикации.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netcode",
			Subsystem: "eventbus",
			Name:      "events_inflight",
			Help:      "Событий в буфере шины, ещё не доставленных.",
		}),
	}

	me.published = registerCounter(me.published)
	me.consumed = registerCounter(me.consumed)
	me.dropped = registerCounter(me.dropped)
	me.inflight = registerGauge(me.inflight)
	return me
}

// Несколько экспортеров в одном процессе (тесты) используют один коллектор
func registerCounter(c prometheus.Counter) prometheus.Counter {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Counter)
		}
		panic(err)
	}
	return c
}

func registerGauge(g prometheus.Gauge) prometheus.Gauge {
	if err := prometheus.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Gauge)
		}
		panic(err)
	}
	return g
}

// StartHTTP запускает /metrics на указанном адресе (например, ":2112")
// и цикл опроса шины. Метод неблокирующий.
func (m *MetricsExporter) StartHTTP(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	m.srv = &http.Server{Addr: addr, Handler: mux}

	go func() {
		logging.Info("📈 Prometheus /metrics доступен по адресу %s", addr)
		if err := m.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Ошибка Prometheus HTTP сервера: %v", err)
		}
	}()
	go m.loop()
}

// Stop останавливает опрос шины и гасит HTTP-сервер
func (m *MetricsExporter) Stop() {
	close(m.quit)
	<-m.done

	if m.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.srv.Shutdown(ctx)
	}
}

// loop раз в секунду снимает Stats шины и переносит приращения в counters
func (m *MetricsExporter) loop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	defer close(m.done)

	var prev Stats
	for {
		select {
		case <-ticker.C:
			stats := m.bus.Metrics()

			if d := stats.Published - prev.Published; d > 0 {
				m.published.Add(float64(d))
			}
			if d := stats.Consumed - prev.Consumed; d > 0 {
				m.consumed.Add(float64(d))
			}
			if d := stats.Dropped - prev.Dropped; d > 0 {
				m.dropped.Add(float64(d))
			}
			m.inflight.Set(float64(stats.InFlight))

			prev = stats
		case <-m.quit:
			return
		}
	}
}
