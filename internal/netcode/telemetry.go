package netcode

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/netcode/internal/eventbus"
)

// Типы телеметрических событий игрового сервера
const (
	EventPlayerJoin     = "netcode.player_join"
	EventPlayerLeave    = "netcode.player_leave"
	EventTickError      = "netcode.tick_error"
	EventLagCompClamped = "netcode.lag_comp_clamped"
)

// publishEvent отправляет телеметрическое событие в глобальную шину.
// Шина опциональна: без инициализации вызов — no-op.
func publishEvent(eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	_ = eventbus.Publish(context.Background(), &eventbus.Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    "netcode-server",
		EventType: eventType,
		Version:   1,
		Payload:   data,
	})
}

// playerEventPayload полезная нагрузка player_join / player_leave
type playerEventPayload struct {
	PlayerID PlayerID `json:"playerId"`
	Tick     int64    `json:"tick"`
}

// tickErrorPayload полезная нагрузка tick_error
type tickErrorPayload struct {
	Tick  int64  `json:"tick"`
	Error string `json:"error"`
}

// lagCompClampedPayload полезная нагрузка lag_comp_clamped
type lagCompClampedPayload struct {
	PlayerID        PlayerID `json:"playerId"`
	ClientTimestamp int64    `json:"clientTimestamp"`
	ResolvedTick    int64    `json:"resolvedTick"`
}
