package eventbus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

var globalBus EventBus

// Init устанавливает глобальную шину телеметрии процесса.
func Init(bus EventBus) { globalBus = bus }

// Publish отправляет событие в глобальную шину. Без инициализации — no-op:
// телеметрия опциональна и не должна ломать тиковый конвейер.
// Пустые ID и Timestamp проставляются автоматически.
func Publish(ctx context.Context, ev *Envelope) error {
	if globalBus == nil {
		return nil
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return globalBus.Publish(ctx, ev)
}
