package netcode

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/netcode/internal/logging"
	"github.com/annel0/netcode/internal/network"
	"github.com/annel0/netcode/internal/protocol"
)

// Интервал по умолчанию между clock sync пингами
const defaultClockSyncInterval = time.Second

// clientSession серверное состояние одного подключённого клиента
type clientSession struct {
	channel network.NetChannel
	rtt     *RTTEstimator
	joined  time.Time
}

// GameServer авторитетный игровой сервер с фиксированным тиком.
// Весь доступ к миру идёт через тиковую горутину; сокетные горутины
// только кладут сообщения в очереди.
type GameServer[W, I, A any] struct {
	def    GameDef[W, I, A]
	logger *logging.Logger

	serializer *protocol.MessageSerializer
	metrics    *ServerMetrics

	tickIntervalMs    float64
	clockSyncInterval time.Duration

	mu      sync.RWMutex
	world   W
	tick    int64
	clients map[PlayerID]*clientSession

	inputs    *InputQueue[I]
	actions   *ActionQueue[A]
	processor *TickProcessor[W, I]
	snapshots *SnapshotBuffer[W]
	lagComp   *LagCompensator[W]

	running   bool
	stop      chan struct{}
	wg        sync.WaitGroup
	startedAt time.Time
}

// NewGameServer создаёт сервер по описанию игры.
// Обязательные хуки: Simulate, AddPlayer, RemovePlayer, MergeInputs,
// CreateIdleInput. TickIntervalMs <= 0 означает 60 Гц.
func NewGameServer[W, I, A any](def GameDef[W, I, A]) (*GameServer[W, I, A], error) {
	if def.Simulate == nil {
		return nil, fmt.Errorf("GameDef.Simulate обязателен")
	}
	if def.AddPlayer == nil || def.RemovePlayer == nil {
		return nil, fmt.Errorf("GameDef.AddPlayer и GameDef.RemovePlayer обязательны")
	}
	if def.MergeInputs == nil || def.CreateIdleInput == nil {
		return nil, fmt.Errorf("GameDef.MergeInputs и GameDef.CreateIdleInput обязательны")
	}

	if def.TickIntervalMs <= 0 {
		def.TickIntervalMs = 1000.0 / 60.0
	}
	if def.SnapshotHistorySize <= 0 {
		def.SnapshotHistorySize = 180
	}

	serializer, err := protocol.NewMessageSerializer()
	if err != nil {
		return nil, fmt.Errorf("ошибка создания сериализатора: %w", err)
	}

	snapshots := NewSnapshotBuffer[W](def.SnapshotHistorySize)

	// Клиенты рендерят мир на окно интерполяции позади; отмотка учитывает это
	interpolationDelay := float64(DefaultSmootherConfig(def.TickIntervalMs, false).InterpolationTicks) * def.TickIntervalMs

	gs := &GameServer[W, I, A]{
		def:               def,
		logger:            logging.GetComponentLogger("game_server"),
		serializer:        serializer,
		metrics:           NewServerMetrics(),
		tickIntervalMs:    def.TickIntervalMs,
		clockSyncInterval: defaultClockSyncInterval,
		world:             def.InitialWorld,
		clients:           make(map[PlayerID]*clientSession),
		inputs:            NewInputQueue[I](),
		actions:           NewActionQueue[A](),
		processor:         NewTickProcessor(def.Simulate, def.MergeInputs, def.CreateIdleInput, def.TickIntervalMs),
		snapshots:         snapshots,
		lagComp:           NewLagCompensator(snapshots, interpolationDelay),
		stop:              make(chan struct{}),
	}
	return gs, nil
}

// Start запускает тиковый цикл и рассылку clock sync пингов
func (gs *GameServer[W, I, A]) Start() error {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.running {
		return fmt.Errorf("сервер уже запущен")
	}
	gs.running = true
	gs.startedAt = time.Now()
	gs.stop = make(chan struct{})

	gs.wg.Add(2)
	go gs.tickLoop()
	go gs.clockSyncLoop()

	gs.logger.Info("Игровой сервер запущен: tick=%.2fms, история=%d снимков",
		gs.tickIntervalMs, gs.def.SnapshotHistorySize)
	return nil
}

// Stop останавливает циклы; подключённые каналы не закрываются
func (gs *GameServer[W, I, A]) Stop() {
	gs.mu.Lock()
	if !gs.running {
		gs.mu.Unlock()
		return
	}
	gs.running = false
	close(gs.stop)
	gs.mu.Unlock()

	gs.wg.Wait()
	gs.logger.Info("Игровой сервер остановлен на тике %d", gs.CurrentTick())
}

// tickLoop фиксированный цикл с учётом дрейфа: за одно срабатывание
// таймера выполняется ровно один тик. Опоздание даёт не более одного
// догоняющего тика, и тот планируется на следующее срабатывание,
// чтобы пауза процесса не вызвала лавину тиков.
func (gs *GameServer[W, I, A]) tickLoop() {
	defer gs.wg.Done()

	interval := time.Duration(gs.tickIntervalMs * float64(time.Millisecond))
	next := time.Now().Add(interval)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-gs.stop:
			return
		case <-timer.C:
		}

		gs.runTick()
		next = nextTickTime(next, interval, time.Now())

		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// nextTickTime возвращает момент следующего тика. Опоздание в пределах
// интервала сохраняет расписание; большее опоздание сбрасывает его на
// "сейчас": догоняющий тик сработает на ближайшем взводе таймера,
// пропущенные тики теряются.
func nextTickTime(next time.Time, interval time.Duration, now time.Time) time.Time {
	next = next.Add(interval)
	if next.Before(now.Add(-interval)) {
		return now
	}
	return next
}

// runTick выполняет полный конвейер одного тика: действия, вводы,
// симуляция, подтверждения, снимок, рассылка.
func (gs *GameServer[W, I, A]) runTick() {
	started := time.Now()
	timestamp := started.UnixMilli()

	gs.mu.Lock()
	defer gs.mu.Unlock()

	gs.processActionsLocked()

	batched := gs.inputs.GetAllPendingInputsBatched()
	gs.metrics.queuedInputs.Set(float64(gs.inputs.PendingCount()))

	connected := make([]PlayerID, 0, len(gs.clients))
	for id := range gs.clients {
		connected = append(connected, id)
	}

	result := gs.processor.ProcessTick(gs.world, batched, connected)
	if result.Err != nil {
		// Тик отброшен: мир и счётчик не изменены, цикл живёт дальше
		gs.logger.Error("Тик %d отброшен: %v", gs.tick, result.Err)
		gs.metrics.tickErrors.Inc()
		publishEvent(EventTickError, tickErrorPayload{Tick: gs.tick, Error: result.Err.Error()})
		if gs.def.OnSimulateError != nil {
			gs.def.OnSimulateError(gs.tick, result.Err)
		}
		return
	}

	gs.world = result.World
	gs.tick++

	for clientID, seq := range result.InputAcks {
		gs.inputs.Acknowledge(clientID, seq)
	}

	snapshot := Snapshot[W]{
		Tick:      gs.tick,
		Timestamp: timestamp,
		State:     gs.world,
		InputAcks: result.InputAcks,
	}
	if err := gs.snapshots.Add(snapshot); err != nil {
		gs.logger.Warn("Снимок тика %d не добавлен в историю: %v", gs.tick, err)
	}

	gs.broadcastLocked(protocol.MsgSnapshot, snapshot)
	gs.metrics.tickDuration.Observe(time.Since(started).Seconds())
}

// processActionsLocked валидирует и применяет накопленные действия против
// отмотанного мира (lag compensation). Вызывается под gs.mu.
func (gs *GameServer[W, I, A]) processActionsLocked() {
	pending := gs.actions.DrainAll()
	if len(pending) == 0 || gs.def.ValidateAction == nil {
		return
	}

	for _, pa := range pending {
		session, ok := gs.clients[pa.playerID]
		if !ok {
			continue
		}

		// Без истории валидируем против текущего мира
		rewound := gs.world
		if res, found := gs.lagComp.Rewind(pa.msg.ClientTimestamp, session.rtt.ClockOffset()); found {
			rewound = res.Snapshot.State
			if res.Clamped {
				gs.metrics.lagCompClamped.Inc()
				publishEvent(EventLagCompClamped, lagCompClampedPayload{
					PlayerID:        pa.playerID,
					ClientTimestamp: pa.msg.ClientTimestamp,
					ResolvedTick:    res.Snapshot.Tick,
				})
			}
		}

		result := gs.def.ValidateAction(pa.msg.Action, rewound, gs.world, pa.playerID)
		result.Seq = pa.msg.Seq

		if result.Success {
			gs.metrics.actionsProcessed.WithLabelValues("accepted").Inc()
			if gs.def.ApplyAction != nil {
				gs.world = gs.def.ApplyAction(gs.world, pa.msg.Action, pa.playerID)
			}
		} else {
			gs.metrics.actionsProcessed.WithLabelValues("rejected").Inc()
		}

		gs.sendToLocked(pa.playerID, protocol.MsgActionResult, result)
	}
}

// clockSyncLoop периодически пингует клиентов для оценки RTT и смещения часов
func (gs *GameServer[W, I, A]) clockSyncLoop() {
	defer gs.wg.Done()

	ticker := time.NewTicker(gs.clockSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gs.stop:
			return
		case <-ticker.C:
			ping := protocol.ClockSyncMessage{ServerTimestamp: time.Now().UnixMilli()}
			gs.mu.RLock()
			for id := range gs.clients {
				gs.sendToLocked(id, protocol.MsgClockSync, ping)
			}
			gs.mu.RUnlock()
		}
	}
}

// AddClient подключает клиента: регистрирует канал, добавляет игрока в мир
// и отправляет приветствие (config, join, стартовый снимок).
// Повторное подключение того же ID — no-op.
func (gs *GameServer[W, I, A]) AddClient(playerID PlayerID, channel network.NetChannel) error {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if _, exists := gs.clients[playerID]; exists {
		gs.logger.Warn("Клиент %s уже подключён, повторный AddClient проигнорирован", playerID)
		return nil
	}

	session := &clientSession{
		channel: channel,
		rtt:     NewRTTEstimator(),
		joined:  time.Now(),
	}
	gs.clients[playerID] = session
	gs.inputs.AddClient(playerID)
	gs.world = gs.def.AddPlayer(gs.world, playerID)
	gs.metrics.connectedClients.Set(float64(len(gs.clients)))

	channel.OnMessage(func(msg *protocol.Message) {
		gs.handleMessage(playerID, msg)
	})
	channel.OnDisconnect(func(err error) {
		if err != nil {
			gs.logger.Info("Клиент %s отключился: %v", playerID, err)
		}
		gs.RemoveClient(playerID)
	})

	gs.sendConfigLocked(playerID)
	gs.sendToLocked(playerID, protocol.MsgJoin, protocol.JoinMessage{PlayerID: playerID})
	gs.sendToLocked(playerID, protocol.MsgSnapshot, Snapshot[W]{
		Tick:      gs.tick,
		Timestamp: time.Now().UnixMilli(),
		State:     gs.world,
		InputAcks: map[PlayerID]int64{},
	})

	gs.logger.Info("Клиент %s подключён (%s), всего клиентов: %d",
		playerID, channel.RemoteAddr(), len(gs.clients))
	publishEvent(EventPlayerJoin, playerEventPayload{PlayerID: playerID, Tick: gs.tick})
	return nil
}

// RemoveClient отключает клиента и удаляет игрока из мира.
// Повторное отключение — no-op.
func (gs *GameServer[W, I, A]) RemoveClient(playerID PlayerID) {
	gs.mu.Lock()

	if _, exists := gs.clients[playerID]; !exists {
		gs.mu.Unlock()
		return
	}

	delete(gs.clients, playerID)
	gs.inputs.RemoveClient(playerID)
	gs.actions.RemoveClient(playerID)
	gs.world = gs.def.RemovePlayer(gs.world, playerID)
	gs.metrics.connectedClients.Set(float64(len(gs.clients)))
	gs.metrics.clientRTT.DeleteLabelValues(playerID)

	tick := gs.tick
	gs.broadcastLocked(protocol.MsgLeave, protocol.LeaveMessage{PlayerID: playerID})
	remaining := len(gs.clients)
	gs.mu.Unlock()

	gs.logger.Info("Клиент %s отключён, всего клиентов: %d", playerID, remaining)
	publishEvent(EventPlayerLeave, playerEventPayload{PlayerID: playerID, Tick: tick})
}

// handleMessage диспетчеризует входящее сообщение клиента.
// Вызывается из сокетной горутины канала; мир не трогает.
func (gs *GameServer[W, I, A]) handleMessage(playerID PlayerID, msg *protocol.Message) {
	switch msg.Type {
	case protocol.MsgInput:
		var input InputMessage[I]
		if err := gs.serializer.DeserializePayload(msg, &input); err != nil {
			gs.logger.Warn("Повреждённый ввод от %s: %v", playerID, err)
			return
		}
		gs.inputs.Enqueue(playerID, input)

	case protocol.MsgAction:
		var action ActionMessage[A]
		if err := gs.serializer.DeserializePayload(msg, &action); err != nil {
			gs.logger.Warn("Повреждённое действие от %s: %v", playerID, err)
			return
		}
		gs.actions.Enqueue(playerID, action)

	case protocol.MsgClockSyncResponse:
		var echo protocol.ClockSyncResponseMessage
		if err := gs.serializer.DeserializePayload(msg, &echo); err != nil {
			return
		}
		gs.handleClockSyncResponse(playerID, echo)

	case protocol.MsgRequestConfig:
		gs.mu.RLock()
		gs.sendConfigLocked(playerID)
		gs.mu.RUnlock()

	default:
		gs.logger.Debug("Неожиданное сообщение %s от %s", msg.Type, playerID)
	}
}

// handleClockSyncResponse обновляет RTT клиента и шлёт ему rtt/timing update
func (gs *GameServer[W, I, A]) handleClockSyncResponse(playerID PlayerID, echo protocol.ClockSyncResponseMessage) {
	gs.mu.RLock()
	session, ok := gs.clients[playerID]
	if !ok {
		gs.mu.RUnlock()
		return
	}

	rtt := session.rtt.OnClockSyncResponse(echo.ServerTimestamp, echo.ClientTimestamp)
	gs.metrics.clientRTT.WithLabelValues(playerID).Set(rtt)

	gs.sendToLocked(playerID, protocol.MsgRTTUpdate, protocol.RTTUpdateMessage{RTT: rtt})
	gs.sendToLocked(playerID, protocol.MsgTimingUpdate, protocol.TimingUpdateMessage{
		QueuedInputs: len(gs.inputs.GetPendingInputs(playerID)),
		IntervalMs:   gs.tickIntervalMs,
	})
	gs.mu.RUnlock()
}

// sendConfigLocked отправляет обязательное конфигурационное рукопожатие
func (gs *GameServer[W, I, A]) sendConfigLocked(playerID PlayerID) {
	gs.sendToLocked(playerID, protocol.MsgConfig, protocol.ConfigMessage{
		TickIntervalMs: gs.tickIntervalMs,
		TickRate:       int(1000.0/gs.tickIntervalMs + 0.5),
	})
}

// sendToLocked сериализует и отправляет сообщение одному клиенту.
// Вызывается под gs.mu (любого вида).
func (gs *GameServer[W, I, A]) sendToLocked(playerID PlayerID, msgType protocol.MessageType, payload interface{}) {
	session, ok := gs.clients[playerID]
	if !ok {
		return
	}

	msg, err := gs.serializer.BuildEnvelope(msgType, payload)
	if err != nil {
		gs.logger.Error("Ошибка сериализации %s для %s: %v", msgType, playerID, err)
		return
	}

	if sendErr := session.channel.Send(msg); sendErr != nil {
		gs.logger.Debug("Ошибка отправки %s клиенту %s: %v", msgType, playerID, sendErr)
	}
}

// broadcastLocked рассылает сообщение всем подключённым клиентам
func (gs *GameServer[W, I, A]) broadcastLocked(msgType protocol.MessageType, payload interface{}) {
	for id := range gs.clients {
		gs.sendToLocked(id, msgType, payload)
	}
}

// CurrentTick возвращает номер последнего завершённого тика
func (gs *GameServer[W, I, A]) CurrentTick() int64 {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.tick
}

// CurrentWorld возвращает текущий авторитетный мир
func (gs *GameServer[W, I, A]) CurrentWorld() W {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.world
}

// ConnectedClients возвращает идентификаторы подключённых клиентов
func (gs *GameServer[W, I, A]) ConnectedClients() []PlayerID {
	gs.mu.RLock()
	defer gs.mu.RUnlock()

	ids := make([]PlayerID, 0, len(gs.clients))
	for id := range gs.clients {
		ids = append(ids, id)
	}
	return ids
}

// ClientRTT возвращает сглаженный RTT клиента в миллисекундах
func (gs *GameServer[W, I, A]) ClientRTT(playerID PlayerID) (float64, bool) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()

	session, ok := gs.clients[playerID]
	if !ok {
		return 0, false
	}
	return session.rtt.RTT(), true
}

// SnapshotAtTimestamp возвращает исторический снимок, ближайший к t
func (gs *GameServer[W, I, A]) SnapshotAtTimestamp(t int64) (Snapshot[W], bool) {
	return gs.snapshots.GetAtTimestamp(t)
}

// SnapshotJSONAtTimestamp возвращает ближайший к t снимок в JSON.
// Нужен нетипизированным потребителям вроде REST API.
func (gs *GameServer[W, I, A]) SnapshotJSONAtTimestamp(t int64) ([]byte, bool) {
	snap, ok := gs.snapshots.GetAtTimestamp(t)
	if !ok {
		return nil, false
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SnapshotHistory возвращает буфер снимков (для инспекции и REST API)
func (gs *GameServer[W, I, A]) SnapshotHistory() *SnapshotBuffer[W] {
	return gs.snapshots
}

// TickIntervalMs возвращает интервал тика в миллисекундах
func (gs *GameServer[W, I, A]) TickIntervalMs() float64 {
	return gs.tickIntervalMs
}

// Uptime возвращает время работы сервера
func (gs *GameServer[W, I, A]) Uptime() time.Duration {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	if gs.startedAt.IsZero() {
		return 0
	}
	return time.Since(gs.startedAt)
}
