package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.
// Содержит настройки симуляции, сети и шины событий.

type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Server     ServerConfig     `yaml:"server"`
	Smoothing  SmoothingConfig  `yaml:"smoothing"`
	EventBus   EventBusConfig   `yaml:"eventbus"`
}

// SimulationConfig параметры авторитетной симуляции
type SimulationConfig struct {
	TickRate            int     `yaml:"tick_rate"`             // Тиков в секунду (по умолчанию 60)
	SnapshotHistorySize int     `yaml:"snapshot_history_size"` // Размер кольцевого буфера снимков
	HandshakeTimeoutMs  int     `yaml:"handshake_timeout_ms"`  // Таймаут ожидания netcode:config
	ClockSyncIntervalMs int     `yaml:"clock_sync_interval_ms"`
	InterpolationDelay  float64 `yaml:"interpolation_delay_ms"` // Задержка интерполяции для lag compensation
}

// ServerConfig сетевые порты сервера
type ServerConfig struct {
	KCPPort     int `yaml:"kcp_port"`
	TCPPort     int `yaml:"tcp_port"`
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
}

// SmoothingConfig параметры графического сглаживания по умолчанию
type SmoothingConfig struct {
	InterpolationTicks int     `yaml:"interpolation_ticks"` // Начальное окно интерполяции
	TeleportThreshold  float64 `yaml:"teleport_threshold"`  // Дистанция мгновенного снапа
	ExtrapolationTicks int     `yaml:"extrapolation_ticks"` // Лимит экстраполяции для зрителей
}

// EventBusConfig настройки шины телеметрии
type EventBusConfig struct {
	URL       string `yaml:"url"`    // NATS URL; пусто — in-memory шина
	Stream    string `yaml:"stream"` // Имя JetStream потока
	Retention int    `yaml:"retention_hours"`
}

// GetKCPPort возвращает KCP порт с поддержкой fallback значений
func (s *ServerConfig) GetKCPPort() int {
	return getPortWithEnvFallback(s.KCPPort, "NETCODE_KCP_PORT", 7777)
}

// GetTCPPort возвращает TCP порт с поддержкой fallback значений
func (s *ServerConfig) GetTCPPort() int {
	return getPortWithEnvFallback(s.TCPPort, "NETCODE_TCP_PORT", 7778)
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "NETCODE_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "NETCODE_METRICS_PORT", 2112)
}

// GetTickRate возвращает частоту тиков, по умолчанию 60 Гц
func (c *SimulationConfig) GetTickRate() int {
	if c.TickRate > 0 {
		return c.TickRate
	}
	if envVal := os.Getenv("NETCODE_TICK_RATE"); envVal != "" {
		if rate, err := strconv.Atoi(envVal); err == nil && rate > 0 {
			return rate
		}
	}
	return 60
}

// TickIntervalMs возвращает длительность одного тика в миллисекундах
func (c *SimulationConfig) TickIntervalMs() float64 {
	return 1000.0 / float64(c.GetTickRate())
}

// GetSnapshotHistorySize возвращает размер истории снимков.
// По умолчанию 180 — три секунды на 60 Гц.
func (c *SimulationConfig) GetSnapshotHistorySize() int {
	if c.SnapshotHistorySize > 0 {
		return c.SnapshotHistorySize
	}
	return 180
}

// GetHandshakeTimeoutMs возвращает таймаут рукопожатия, по умолчанию 5000 мс
func (c *SimulationConfig) GetHandshakeTimeoutMs() int {
	if c.HandshakeTimeoutMs > 0 {
		return c.HandshakeTimeoutMs
	}
	return 5000
}

// GetClockSyncIntervalMs возвращает период clock sync пингов, по умолчанию 1000 мс
func (c *SimulationConfig) GetClockSyncIntervalMs() int {
	if c.ClockSyncIntervalMs > 0 {
		return c.ClockSyncIntervalMs
	}
	return 1000
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV NETCODE_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("NETCODE_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
