package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/netcode/internal/api"
	"github.com/annel0/netcode/internal/config"
	"github.com/annel0/netcode/internal/eventbus"
	"github.com/annel0/netcode/internal/game"
	"github.com/annel0/netcode/internal/logging"
	"github.com/annel0/netcode/internal/netcode"
	"github.com/annel0/netcode/internal/network"

	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (или ENV NETCODE_CONFIG)")
	flag.Parse()

	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("🎮 Запуск netcode-сервера (платформер)...")

	// === КОНФИГУРАЦИЯ ===
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка чтения конфигурации: %v", err)
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	kcpAddr := fmt.Sprintf(":%d", cfg.Server.GetKCPPort())
	tcpAddr := fmt.Sprintf(":%d", cfg.Server.GetTCPPort())
	restPort := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	metricsPort := fmt.Sprintf(":%d", cfg.Server.GetMetricsPort())

	logging.Info("📡 Конфигурация: KCP=%s, TCP=%s, REST=%s, tick=%d Гц",
		kcpAddr, tcpAddr, restPort, cfg.Simulation.GetTickRate())

	// === ШИНА ТЕЛЕМЕТРИИ ===
	var bus eventbus.EventBus
	if cfg.EventBus.URL != "" {
		retention := time.Duration(cfg.EventBus.Retention) * time.Hour
		if retention <= 0 {
			retention = 24 * time.Hour
		}
		bus, err = eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream, retention)
		if err != nil {
			logging.Error("❌ NATS недоступен (%v), переключение на in-memory шину", err)
			bus = eventbus.NewMemoryBus(1024)
		}
	} else {
		bus = eventbus.NewMemoryBus(1024)
	}
	eventbus.Init(bus)
	_ = eventbus.StartLoggingListener(bus)

	busMetrics := eventbus.NewMetricsExporter(bus)
	busMetrics.StartHTTP(metricsPort)
	defer busMetrics.Stop()

	// === ИГРОВОЙ СЕРВЕР ===
	def := game.Def(cfg.Simulation.TickIntervalMs())
	def.SnapshotHistorySize = cfg.Simulation.GetSnapshotHistorySize()

	gameServer, err := netcode.NewGameServer(def)
	if err != nil {
		log.Fatalf("❌ Ошибка создания игрового сервера: %v", err)
	}
	if err := gameServer.Start(); err != nil {
		log.Fatalf("❌ Ошибка запуска игрового сервера: %v", err)
	}

	// === СЕТЕВОЙ СЛОЙ ===
	channelServer := network.NewChannelServer(nil, logging.GetNetworkLogger())
	channelServer.OnConnect(func(channel network.NetChannel) {
		playerID := uuid.NewString()
		if err := gameServer.AddClient(playerID, channel); err != nil {
			logging.Error("Ошибка подключения клиента %s: %v", playerID, err)
			_ = channel.Close()
		}
	})
	if err := channelServer.Start(kcpAddr, tcpAddr); err != nil {
		log.Fatalf("❌ Ошибка запуска сетевого слоя: %v", err)
	}

	// === REST API ===
	restServer := api.NewRestServer(gameServer, restPort)
	restServer.Start()

	logging.Info("✅ Все сервисы запущены и готовы принимать соединения")
	logging.Info("   🎮 Игровой трафик: KCP %s, TCP %s", kcpAddr, tcpAddr)
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   📈 Метрики: http://localhost%s/metrics", metricsPort)
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)

	// Ждём сигнала для завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info("📡 Получен сигнал %v, завершение работы...", sig)

	// === GRACEFUL SHUTDOWN ===
	channelServer.Stop()
	gameServer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := restServer.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}

	logging.Info("👋 Сервер успешно остановлен")
}

// GameServer платформера должен удовлетворять REST-контракту
var _ api.GameServerInfo = (*netcode.GameServer[game.World, game.Input, game.Action])(nil)
