package eventbus

import (
	"context"

	"github.com/annel0/netcode/internal/logging"
)

// StartLoggingListener подписывает отладочный лог на телеметрию игрового
// сервера. Полезная нагрузка — компактный JSON, пишем её как есть.
// Функция неблокирующая.
func StartLoggingListener(bus EventBus) error {
	_, err := bus.Subscribe(context.Background(), Filter{}, func(_ context.Context, ev *Envelope) {
		logging.Debug("Телеметрия %s src=%s prio=%d: %s",
			ev.EventType, ev.Source, ev.Priority, ev.Payload)
	})
	if err != nil {
		return err
	}
	logging.Info("🪵 Лог телеметрии подключён к шине событий")
	return nil
}
