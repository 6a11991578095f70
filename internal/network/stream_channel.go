package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/annel0/netcode/internal/logging"
	"github.com/annel0/netcode/internal/protocol"
)

// streamChannel общая реализация NetChannel поверх потокового net.Conn
// с кадрированием по префиксу длины. Используется KCP и TCP каналами.
type streamChannel struct {
	conn       net.Conn
	config     *ChannelConfig
	serializer *protocol.MessageSerializer
	logger     *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sendBuffer chan []byte

	mu           sync.RWMutex
	stats        ConnectionStats
	onMessage    func(*protocol.Message)
	onDisconnect func(error)
	closed       bool
}

func newStreamChannel(conn net.Conn, config *ChannelConfig, logger *logging.Logger) (*streamChannel, error) {
	serializer, err := protocol.NewMessageSerializer()
	if err != nil {
		return nil, fmt.Errorf("ошибка создания сериализатора: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sc := &streamChannel{
		conn:       conn,
		config:     config,
		serializer: serializer,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		sendBuffer: make(chan []byte, config.SendBufferSize),
	}

	sc.stats.Connected = true
	sc.stats.RemoteAddr = conn.RemoteAddr().String()
	sc.stats.LastActivity = time.Now()

	sc.wg.Add(2)
	go sc.sendLoop()
	go sc.receiveLoop()

	return sc, nil
}

// Send сериализует сообщение и ставит его в буфер отправки.
// Заполненный буфер означает перегруженное соединение: сообщение
// отбрасывается с ошибкой, тиковый поток не блокируется.
func (sc *streamChannel) Send(msg *protocol.Message) error {
	sc.mu.RLock()
	closed := sc.closed
	sc.mu.RUnlock()
	if closed {
		return fmt.Errorf("канал закрыт")
	}

	frame, err := protocol.MarshalEnvelope(msg)
	if err != nil {
		return err
	}

	return sc.enqueueFrame(frame)
}

func (sc *streamChannel) sendLoop() {
	defer sc.wg.Done()

	for {
		select {
		case <-sc.ctx.Done():
			return
		case frame, ok := <-sc.sendBuffer:
			if !ok {
				return
			}
			if sc.config.WriteTimeout > 0 {
				_ = sc.conn.SetWriteDeadline(time.Now().Add(sc.config.WriteTimeout))
			}
			if err := protocol.WriteFrame(sc.conn, frame); err != nil {
				sc.logger.Warn("Ошибка записи кадра %s: %v", sc.RemoteAddr(), err)
				sc.disconnect(err)
				return
			}

			sc.mu.Lock()
			sc.stats.MessagesSent++
			sc.stats.BytesSent += uint64(len(frame) + 4)
			sc.stats.LastActivity = time.Now()
			sc.mu.Unlock()
		}
	}
}

func (sc *streamChannel) receiveLoop() {
	defer sc.wg.Done()

	for {
		select {
		case <-sc.ctx.Done():
			return
		default:
		}

		frame, err := protocol.ReadFrame(sc.conn)
		if err != nil {
			sc.disconnect(err)
			return
		}

		msg, err := sc.deserializeFrame(frame)
		if err != nil {
			// Протокольное нарушение: логируем и пропускаем, соединение живёт
			sc.logger.Warn("Повреждённое сообщение от %s: %v", sc.RemoteAddr(), err)
			continue
		}

		sc.mu.Lock()
		sc.stats.MessagesReceived++
		sc.stats.BytesReceived += uint64(len(frame) + 4)
		sc.stats.LastActivity = time.Now()
		handler := sc.onMessage
		sc.mu.Unlock()

		if handler != nil {
			handler(msg)
		}
	}
}

func (sc *streamChannel) deserializeFrame(frame []byte) (*protocol.Message, error) {
	return sc.serializer.DeserializeMessage(frame)
}

// enqueueFrame кладёт готовый кадр в буфер отправки
func (sc *streamChannel) enqueueFrame(frame []byte) error {
	select {
	case sc.sendBuffer <- frame:
		return nil
	default:
		return fmt.Errorf("буфер отправки %s переполнен", sc.RemoteAddr())
	}
}

func (sc *streamChannel) disconnect(err error) {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return
	}
	sc.closed = true
	sc.stats.Connected = false
	handler := sc.onDisconnect
	sc.mu.Unlock()

	sc.cancel()
	_ = sc.conn.Close()

	if handler != nil {
		handler(err)
	}
}

// Close закрывает канал и останавливает его горутины
func (sc *streamChannel) Close() error {
	sc.disconnect(nil)
	sc.wg.Wait()
	return nil
}

// IsConnected возвращает статус соединения
func (sc *streamChannel) IsConnected() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.stats.Connected
}

// RemoteAddr возвращает адрес удалённого узла
func (sc *streamChannel) RemoteAddr() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.stats.RemoteAddr
}

// Stats возвращает копию статистики соединения
func (sc *streamChannel) Stats() ConnectionStats {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.stats
}

// OnMessage устанавливает обработчик входящих сообщений
func (sc *streamChannel) OnMessage(handler func(*protocol.Message)) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.onMessage = handler
}

// OnDisconnect устанавливает обработчик разрыва соединения
func (sc *streamChannel) OnDisconnect(handler func(error)) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.onDisconnect = handler
}
