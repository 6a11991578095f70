package network

import (
	"fmt"
	"net"
	"sync"

	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/netcode/internal/logging"
)

// ChannelServer принимает входящие KCP и TCP соединения и отдаёт их
// наверх как NetChannel через callback OnConnect.
type ChannelServer struct {
	config *ChannelConfig
	logger *logging.Logger

	kcpListener net.Listener
	tcpListener net.Listener

	onConnect func(NetChannel)

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewChannelServer создаёт сервер каналов без запущенных слушателей
func NewChannelServer(config *ChannelConfig, logger *logging.Logger) *ChannelServer {
	if config == nil {
		config = DefaultChannelConfig()
	}
	return &ChannelServer{
		config: config,
		logger: logger,
	}
}

// OnConnect устанавливает обработчик новых соединений; должен быть задан до Start
func (cs *ChannelServer) OnConnect(handler func(NetChannel)) {
	cs.onConnect = handler
}

// Start запускает слушателей. Пустой адрес отключает соответствующий транспорт.
func (cs *ChannelServer) Start(kcpAddr, tcpAddr string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.running {
		return fmt.Errorf("channel server уже запущен")
	}
	if cs.onConnect == nil {
		return fmt.Errorf("обработчик OnConnect не установлен")
	}

	if kcpAddr != "" {
		listener, err := kcp.ListenWithOptions(kcpAddr, nil, 0, 0)
		if err != nil {
			return fmt.Errorf("ошибка запуска KCP слушателя %s: %w", kcpAddr, err)
		}
		cs.kcpListener = listener
		cs.wg.Add(1)
		go cs.acceptKCPLoop(listener)
		cs.logger.Info("KCP слушатель запущен: %s", kcpAddr)
	}

	if tcpAddr != "" {
		listener, err := net.Listen("tcp", tcpAddr)
		if err != nil {
			if cs.kcpListener != nil {
				_ = cs.kcpListener.Close()
			}
			return fmt.Errorf("ошибка запуска TCP слушателя %s: %w", tcpAddr, err)
		}
		cs.tcpListener = listener
		cs.wg.Add(1)
		go cs.acceptTCPLoop(listener)
		cs.logger.Info("TCP слушатель запущен: %s", tcpAddr)
	}

	cs.running = true
	return nil
}

func (cs *ChannelServer) acceptKCPLoop(listener net.Listener) {
	defer cs.wg.Done()

	kcpListener := listener.(*kcp.Listener)
	for {
		session, err := kcpListener.AcceptKCP()
		if err != nil {
			return
		}

		channel, err := NewKCPChannelFromSession(session, cs.config, cs.logger)
		if err != nil {
			cs.logger.Error("Ошибка создания KCP канала: %v", err)
			continue
		}
		cs.onConnect(channel)
	}
}

func (cs *ChannelServer) acceptTCPLoop(listener net.Listener) {
	defer cs.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}

		channel, err := NewTCPChannelFromConn(conn, cs.config, cs.logger)
		if err != nil {
			cs.logger.Error("Ошибка создания TCP канала: %v", err)
			continue
		}
		cs.onConnect(channel)
	}
}

// KCPAddr возвращает фактический адрес KCP слушателя; "" если не запущен
func (cs *ChannelServer) KCPAddr() string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.kcpListener == nil {
		return ""
	}
	return cs.kcpListener.Addr().String()
}

// TCPAddr возвращает фактический адрес TCP слушателя; "" если не запущен
func (cs *ChannelServer) TCPAddr() string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.tcpListener == nil {
		return ""
	}
	return cs.tcpListener.Addr().String()
}

// Stop останавливает слушателей; уже принятые каналы продолжают жить
func (cs *ChannelServer) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.running {
		return
	}

	if cs.kcpListener != nil {
		_ = cs.kcpListener.Close()
	}
	if cs.tcpListener != nil {
		_ = cs.tcpListener.Close()
	}

	cs.wg.Wait()
	cs.running = false
}
