// event-cli подписывается на шину телеметрии игрового сервера и печатает
// события в реальном времени. Работает напрямую с NATS JetStream.
//
// Использование:
//
//	event-cli -nats nats://127.0.0.1:4222 -cmd tail -types netcode.player_join
//	event-cli -cmd stats
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/netcode/internal/eventbus"
)

func main() {
	var (
		natsURL    = flag.String("nats", "nats://127.0.0.1:4222", "Адрес NATS кластера")
		stream     = flag.String("stream", "NETCODE_TELEMETRY", "Имя JetStream потока")
		command    = flag.String("cmd", "tail", "Команда: tail, stats")
		eventTypes = flag.String("types", "", "Фильтр типов событий (через запятую)")
		sources    = flag.String("sources", "", "Фильтр источников (через запятую)")
		duration   = flag.Duration("for", 0, "Длительность наблюдения (0 — до Ctrl+C)")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Не удалось подключиться к NATS: %v", err)
	}

	switch *command {
	case "tail":
		if err := tailEvents(bus, parseStringList(*eventTypes), parseStringList(*sources), *duration); err != nil {
			log.Fatalf("❌ Ошибка tail: %v", err)
		}

	case "stats":
		stats := bus.Metrics()
		fmt.Printf("📊 Статистика шины:\n")
		fmt.Printf("  Опубликовано: %d\n", stats.Published)
		fmt.Printf("  Доставлено:   %d\n", stats.Consumed)
		fmt.Printf("  Отброшено:    %d\n", stats.Dropped)

	default:
		fmt.Printf("❌ Неизвестная команда: %s\n", *command)
		fmt.Println("Доступные команды: tail, stats")
		os.Exit(1)
	}
}

// tailEvents печатает события по мере поступления
func tailEvents(bus eventbus.EventBus, types, sources []string, duration time.Duration) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	count := 0
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: types, Sources: sources},
		func(_ context.Context, ev *eventbus.Envelope) {
			printEvent(ev)
			count++
		})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Printf("🎬 Наблюдение событий (types=%v, sources=%v)...\n", types, sources)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if duration > 0 {
		select {
		case <-time.After(duration):
		case <-sigCh:
		}
	} else {
		<-sigCh
	}

	fmt.Printf("\n📊 Всего событий: %d\n", count)
	return nil
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope) {
	timestamp := ev.Timestamp.Local().Format("15:04:05")

	// Payload — компактный JSON; печатаем как есть
	payload := strings.TrimSpace(string(ev.Payload))
	if !json.Valid(ev.Payload) {
		payload = fmt.Sprintf("<%d байт>", len(ev.Payload))
	}

	fmt.Printf("[%s] %s src=%s %s\n", timestamp, ev.EventType, ev.Source, payload)
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
