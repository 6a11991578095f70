// Package protocol определяет проводной формат netcode-сообщений
package protocol

// MessageType определяет тип netcode-сообщения на проводе
type MessageType string

const (
	// MsgConfig S->C: обязательное рукопожатие с тайминг-параметрами сервера
	MsgConfig MessageType = "netcode:config"
	// MsgRequestConfig C->S: повторный запрос конфигурации
	MsgRequestConfig MessageType = "netcode:request_config"
	// MsgSnapshot S->C: авторитетный снимок мира
	MsgSnapshot MessageType = "netcode:snapshot"
	// MsgInput C->S: пользовательский ввод одного тика
	MsgInput MessageType = "netcode:input"
	// MsgAction C->S: дискретное действие (выстрел, атака)
	MsgAction MessageType = "netcode:action"
	// MsgActionResult S->C: результат валидации действия
	MsgActionResult MessageType = "netcode:action_result"
	// MsgJoin S->C: идентификатор подключившегося игрока
	MsgJoin MessageType = "netcode:join"
	// MsgLeave S->C: игрок отключился
	MsgLeave MessageType = "netcode:leave"
	// MsgClockSync S->C: пинг синхронизации часов
	MsgClockSync MessageType = "netcode:clock_sync"
	// MsgClockSyncResponse C->S: немедленное эхо пинга
	MsgClockSyncResponse MessageType = "netcode:clock_sync_response"
	// MsgRTTUpdate S->C: сглаженный RTT клиента
	MsgRTTUpdate MessageType = "netcode:rtt_update"
	// MsgTimingUpdate S->C: состояние входной очереди клиента
	MsgTimingUpdate MessageType = "netcode:timing_update"
)

// Message универсальный конверт netcode-сообщения.
// Payload — сериализованная полезная нагрузка, опционально сжатая zstd.
type Message struct {
	Type       MessageType `json:"type"`
	Timestamp  int64       `json:"timestamp"` // Unix-время в миллисекундах
	Compressed bool        `json:"compressed,omitempty"`
	Payload    []byte      `json:"payload"`
}

// ConfigMessage полезная нагрузка netcode:config
type ConfigMessage struct {
	TickIntervalMs float64 `json:"tickIntervalMs"`
	TickRate       int     `json:"tickRate,omitempty"`
}

// RequestConfigMessage полезная нагрузка netcode:request_config
type RequestConfigMessage struct{}

// JoinMessage полезная нагрузка netcode:join
type JoinMessage struct {
	PlayerID string `json:"playerId"`
}

// LeaveMessage полезная нагрузка netcode:leave
type LeaveMessage struct {
	PlayerID string `json:"playerId"`
}

// ClockSyncMessage полезная нагрузка netcode:clock_sync
type ClockSyncMessage struct {
	ServerTimestamp int64 `json:"serverTimestamp"`
}

// ClockSyncResponseMessage полезная нагрузка netcode:clock_sync_response
type ClockSyncResponseMessage struct {
	ServerTimestamp int64 `json:"serverTimestamp"`
	ClientTimestamp int64 `json:"clientTimestamp"`
}

// RTTUpdateMessage полезная нагрузка netcode:rtt_update
type RTTUpdateMessage struct {
	RTT float64 `json:"rtt"` // Миллисекунды, сглаженные EWMA
}

// TimingUpdateMessage полезная нагрузка netcode:timing_update
type TimingUpdateMessage struct {
	QueuedInputs int     `json:"queuedInputs"`
	IntervalMs   float64 `json:"intervalMs"`
}
