// Package api административный REST-интерфейс игрового сервера:
// health-проба, статус симуляции, инспекция исторических снимков и
// экспорт Prometheus-метрик.
package api

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/annel0/netcode/internal/logging"
	"github.com/annel0/netcode/internal/middleware"
)

// GameServerInfo то, что REST-слою нужно знать об игровом сервере.
// Интерфейс развязывает api от generic-параметров netcode.GameServer.
type GameServerInfo interface {
	CurrentTick() int64
	ConnectedClients() []string
	TickIntervalMs() float64
	Uptime() time.Duration
	SnapshotJSONAtTimestamp(t int64) ([]byte, bool)
}

// RestServer административный HTTP-сервер
type RestServer struct {
	router *gin.Engine
	server *http.Server
	game   GameServerInfo
	logger *logging.Logger
	port   string
}

// NewRestServer создаёт REST-сервер поверх игрового сервера
func NewRestServer(game GameServerInfo, port string) *RestServer {
	if port == "" {
		port = ":8088"
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New() // без стандартного logger/recovery
	router.Use(gin.Recovery())

	loggerMw := middleware.NewRequestLogger()
	router.Use(loggerMw.Handler())

	promMw := middleware.NewPrometheusMiddleware("netcode_api")
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	rs := &RestServer{
		router: router,
		game:   game,
		logger: logging.GetComponentLogger("rest_api"),
		port:   port,
	}
	rs.setupRoutes()
	return rs
}

func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	{
		api.GET("/status", rs.handleStatus)
		api.GET("/snapshot", rs.handleSnapshot)
	}
}

// handleHealth лёгкая проба живости для балансировщиков
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"tick":   rs.game.CurrentTick(),
	})
}

// handleStatus сводка состояния симуляции и процесса
func (rs *RestServer) handleStatus(c *gin.Context) {
	status := gin.H{
		"tick":           rs.game.CurrentTick(),
		"tickIntervalMs": rs.game.TickIntervalMs(),
		"clients":        rs.game.ConnectedClients(),
		"uptimeSeconds":  int64(rs.game.Uptime().Seconds()),
	}

	// Ресурсы процесса через gopsutil; ошибки не фатальны
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			status["cpuPercent"] = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			status["memoryRSS"] = mem.RSS
		}
	}

	c.JSON(http.StatusOK, status)
}

// handleSnapshot отдаёт исторический снимок, ближайший к ?timestamp=
// (Unix-миллисекунды); без параметра — текущее время
func (rs *RestServer) handleSnapshot(c *gin.Context) {
	timestamp := time.Now().UnixMilli()
	if raw := c.Query("timestamp"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "timestamp должен быть Unix-временем в миллисекундах"})
			return
		}
		timestamp = parsed
	}

	data, ok := rs.game.SnapshotJSONAtTimestamp(timestamp)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "история снимков пуста"})
		return
	}

	c.Data(http.StatusOK, "application/json", data)
}

// Start запускает HTTP-сервер в отдельной горутине
func (rs *RestServer) Start() {
	rs.server = &http.Server{
		Addr:    rs.port,
		Handler: rs.router,
	}

	go func() {
		rs.logger.Info("REST API запущен на %s", rs.port)
		if err := rs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rs.logger.Error("Ошибка REST сервера: %v", err)
		}
	}()
}

// Stop останавливает HTTP-сервер с учётом активных запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.server == nil {
		return nil
	}
	return rs.server.Shutdown(ctx)
}

// Router возвращает gin-роутер (для тестов через httptest)
func (rs *RestServer) Router() *gin.Engine {
	return rs.router
}
