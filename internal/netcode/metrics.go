package netcode

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ServerMetrics метрики Prometheus игрового сервера.
// Регистрируются в дефолтном регистре один раз на процесс.
type ServerMetrics struct {
	tickDuration     prometheus.Histogram
	tickErrors       prometheus.Counter
	queuedInputs     prometheus.Gauge
	connectedClients prometheus.Gauge
	clientRTT        *prometheus.GaugeVec
	lagCompClamped   prometheus.Counter
	actionsProcessed *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *ServerMetrics
)

// NewServerMetrics возвращает singleton метрик сервера
func NewServerMetrics() *ServerMetrics {
	metricsOnce.Do(func() {
		m := &ServerMetrics{
			tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "netcode",
				Name:      "tick_duration_seconds",
				Help:      "Длительность одного авторитетного тика.",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.0167, 0.025, 0.05, 0.1},
			}),
			tickErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "netcode",
				Name:      "tick_errors_total",
				Help:      "Количество тиков, отброшенных из-за паники Simulate.",
			}),
			queuedInputs: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "netcode",
				Name:      "queued_inputs",
				Help:      "Суммарное количество вводов в очередях на начало тика.",
			}),
			connectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "netcode",
				Name:      "connected_clients",
				Help:      "Текущее количество подключённых клиентов.",
			}),
			clientRTT: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "netcode",
				Name:      "client_rtt_ms",
				Help:      "Сглаженный RTT клиента в миллисекундах.",
			}, []string{"player_id"}),
			lagCompClamped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "netcode",
				Name:      "lag_comp_clamped_total",
				Help:      "Отмотки lag compensation, укороченные до границы истории.",
			}),
			actionsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "netcode",
				Name:      "actions_processed_total",
				Help:      "Обработанные дискретные действия по результату валидации.",
			}, []string{"result"}),
		}

		prometheus.MustRegister(
			m.tickDuration, m.tickErrors, m.queuedInputs,
			m.connectedClients, m.clientRTT, m.lagCompClamped, m.actionsProcessed,
		)
		metricsInstance = m
	})
	return metricsInstance
}
