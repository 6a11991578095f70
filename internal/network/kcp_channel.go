package network

import (
	"fmt"

	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/netcode/internal/logging"
)

// KCPChannel реализует NetChannel поверх KCP (надёжный упорядоченный UDP).
// Основной игровой транспорт: ретрансмиссия агрессивнее TCP, нет
// head-of-line blocking на уровне ядра ОС.
type KCPChannel struct {
	*streamChannel
	session *kcp.UDPSession
}

// tuneKCPSession настраивает KCP-параметры под игровой трафик
func tuneKCPSession(session *kcp.UDPSession) {
	session.SetStreamMode(true)
	session.SetWriteDelay(false)
	session.SetNoDelay(1, 20, 2, 1) // Агрессивные настройки для игр
	session.SetWindowSize(512, 512)
	session.SetMtu(1400)
}

// DialKCP устанавливает исходящее KCP-соединение
func DialKCP(addr string, config *ChannelConfig, logger *logging.Logger) (*KCPChannel, error) {
	if config == nil {
		config = DefaultChannelConfig()
	}

	session, err := kcp.DialWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("ошибка KCP подключения к %s: %w", addr, err)
	}
	tuneKCPSession(session)

	base, err := newStreamChannel(session, config, logger)
	if err != nil {
		_ = session.Close()
		return nil, err
	}

	logger.Info("KCP соединение установлено: %s", addr)
	return &KCPChannel{streamChannel: base, session: session}, nil
}

// NewKCPChannelFromSession оборачивает принятую слушателем сессию
func NewKCPChannelFromSession(session *kcp.UDPSession, config *ChannelConfig, logger *logging.Logger) (*KCPChannel, error) {
	if config == nil {
		config = DefaultChannelConfig()
	}
	tuneKCPSession(session)

	base, err := newStreamChannel(session, config, logger)
	if err != nil {
		_ = session.Close()
		return nil, err
	}

	logger.Info("KCP канал создан из соединения: addr=%s", session.RemoteAddr().String())
	return &KCPChannel{streamChannel: base, session: session}, nil
}
