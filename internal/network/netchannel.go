// Package network предоставляет унифицированный интерфейс сетевых каналов
// для netcode-трафика: KCP (основной), TCP (fallback) и in-process канал
// с симулируемой задержкой для тестов и демо.
package network

import (
	"time"

	"github.com/annel0/netcode/internal/protocol"
)

// ConnectionStats содержит статистику соединения
type ConnectionStats struct {
	RTT              time.Duration // Round-trip time транспортного уровня
	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64
	LastActivity     time.Time
	Connected        bool
	RemoteAddr       string
}

// NetChannel представляет двунаправленный канал netcode-сообщений.
// Send не блокируется на I/O: сообщение ставится в буфер отправки.
// OnMessage вызывается из горутины приёма канала.
type NetChannel interface {
	Send(msg *protocol.Message) error
	Close() error

	IsConnected() bool
	RemoteAddr() string
	Stats() ConnectionStats

	OnMessage(handler func(*protocol.Message))
	OnDisconnect(handler func(error))
}

// ChannelConfig содержит конфигурацию канала
type ChannelConfig struct {
	SendBufferSize int
	WriteTimeout   time.Duration
}

// DefaultChannelConfig возвращает конфигурацию канала по умолчанию
func DefaultChannelConfig() *ChannelConfig {
	return &ChannelConfig{
		SendBufferSize: 256,
		WriteTimeout:   5 * time.Second,
	}
}
