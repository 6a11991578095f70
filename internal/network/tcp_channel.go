package network

import (
	"fmt"
	"net"
	"time"

	"github.com/annel0/netcode/internal/logging"
)

// TCPChannel реализует NetChannel поверх TCP.
// Запасной транспорт для сетей, где UDP заблокирован.
type TCPChannel struct {
	*streamChannel
}

// DialTCP устанавливает исходящее TCP-соединение
func DialTCP(addr string, config *ChannelConfig, logger *logging.Logger) (*TCPChannel, error) {
	if config == nil {
		config = DefaultChannelConfig()
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ошибка TCP подключения к %s: %w", addr, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true) // Netcode-трафик чувствителен к задержке
		_ = tcpConn.SetKeepAlive(true)
	}

	base, err := newStreamChannel(conn, config, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.Info("TCP соединение установлено: %s", addr)
	return &TCPChannel{streamChannel: base}, nil
}

// NewTCPChannelFromConn оборачивает принятое слушателем соединение
func NewTCPChannelFromConn(conn net.Conn, config *ChannelConfig, logger *logging.Logger) (*TCPChannel, error) {
	if config == nil {
		config = DefaultChannelConfig()
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
		_ = tcpConn.SetKeepAlive(true)
	}

	base, err := newStreamChannel(conn, config, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.Info("TCP канал создан из соединения: addr=%s", conn.RemoteAddr().String())
	return &TCPChannel{streamChannel: base}, nil
}
