package network

import (
	"fmt"
	"sync"
	"time"

	"github.com/annel0/netcode/internal/protocol"
)

// MemoryChannel внутрипроцессный NetChannel для тестов и демо.
// Сообщения проходят полный цикл сериализации, чтобы тесты проверяли
// проводной формат, а симулируемая задержка откладывает доставку в обе
// стороны, сохраняя порядок.
type MemoryChannel struct {
	mu           sync.RWMutex
	peer         *MemoryChannel
	onMessage    func(*protocol.Message)
	onDisconnect func(error)
	closed       bool
	latency      time.Duration
	stats        ConnectionStats

	serializer *protocol.MessageSerializer

	inbox chan []byte
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewMemoryChannelPair создаёт пару соединённых каналов (клиентский, серверный)
func NewMemoryChannelPair() (*MemoryChannel, *MemoryChannel) {
	a := newMemoryChannel("memory-client")
	b := newMemoryChannel("memory-server")
	a.peer = b
	b.peer = a
	return a, b
}

func newMemoryChannel(addr string) *MemoryChannel {
	serializer, _ := protocol.NewMessageSerializer()
	mc := &MemoryChannel{
		serializer: serializer,
		inbox:      make(chan []byte, 1024),
		done:       make(chan struct{}),
	}
	mc.stats.Connected = true
	mc.stats.RemoteAddr = addr
	mc.stats.LastActivity = time.Now()

	mc.wg.Add(1)
	go mc.deliverLoop()
	return mc
}

// deliverLoop доставляет входящие кадры по порядку с учётом задержки
func (mc *MemoryChannel) deliverLoop() {
	defer mc.wg.Done()

	for {
		select {
		case <-mc.done:
			return
		case frame := <-mc.inbox:
			mc.mu.RLock()
			latency := mc.latency
			mc.mu.RUnlock()

			if latency > 0 {
				select {
				case <-mc.done:
					return
				case <-time.After(latency):
				}
			}

			msg, err := mc.serializer.DeserializeMessage(frame)
			if err != nil {
				continue
			}

			mc.mu.Lock()
			mc.stats.MessagesReceived++
			mc.stats.BytesReceived += uint64(len(frame))
			mc.stats.LastActivity = time.Now()
			handler := mc.onMessage
			mc.mu.Unlock()

			if handler != nil {
				handler(msg)
			}
		}
	}
}

// Send сериализует конверт и передаёт его пиру
func (mc *MemoryChannel) Send(msg *protocol.Message) error {
	mc.mu.RLock()
	closed := mc.closed
	peer := mc.peer
	mc.mu.RUnlock()

	if closed || peer == nil {
		return fmt.Errorf("канал закрыт")
	}

	frame, err := protocol.MarshalEnvelope(msg)
	if err != nil {
		return err
	}

	mc.mu.Lock()
	mc.stats.MessagesSent++
	mc.stats.BytesSent += uint64(len(frame))
	mc.stats.LastActivity = time.Now()
	mc.mu.Unlock()

	select {
	case peer.inbox <- frame:
		return nil
	default:
		return fmt.Errorf("буфер memory-канала переполнен")
	}
}

// SetSimulatedLatency задаёт задержку доставки входящих сообщений
func (mc *MemoryChannel) SetSimulatedLatency(d time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.latency = d
}

// Close закрывает канал и уведомляет пира
func (mc *MemoryChannel) Close() error {
	mc.mu.Lock()
	if mc.closed {
		mc.mu.Unlock()
		return nil
	}
	mc.closed = true
	mc.stats.Connected = false
	peer := mc.peer
	handler := mc.onDisconnect
	mc.mu.Unlock()

	close(mc.done)
	mc.wg.Wait()

	if handler != nil {
		handler(nil)
	}
	if peer != nil {
		peer.peerClosed()
	}
	return nil
}

func (mc *MemoryChannel) peerClosed() {
	mc.mu.Lock()
	if mc.closed {
		mc.mu.Unlock()
		return
	}
	mc.closed = true
	mc.stats.Connected = false
	handler := mc.onDisconnect
	mc.mu.Unlock()

	close(mc.done)
	mc.wg.Wait()

	if handler != nil {
		handler(fmt.Errorf("пир закрыл соединение"))
	}
}

// IsConnected возвращает статус соединения
func (mc *MemoryChannel) IsConnected() bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return !mc.closed
}

// RemoteAddr возвращает псевдоадрес пира
func (mc *MemoryChannel) RemoteAddr() string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.stats.RemoteAddr
}

// Stats возвращает копию статистики канала
func (mc *MemoryChannel) Stats() ConnectionStats {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.stats
}

// OnMessage устанавливает обработчик входящих сообщений
func (mc *MemoryChannel) OnMessage(handler func(*protocol.Message)) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.onMessage = handler
}

// OnDisconnect устанавливает обработчик разрыва соединения
func (mc *MemoryChannel) OnDisconnect(handler func(error)) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.onDisconnect = handler
}
