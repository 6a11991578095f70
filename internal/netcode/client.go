package netcode

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/annel0/netcode/internal/logging"
	"github.com/annel0/netcode/internal/network"
	"github.com/annel0/netcode/internal/protocol"
	"github.com/annel0/netcode/internal/vec"
)

// unitScale масштаб по умолчанию для трансформов, собранных из одной позиции
var unitScale = vec.Vec2{X: 1, Y: 1}

// Допуск расхождения тиковых интервалов при рукопожатии.
// Предсказание и реконсиляция считают с серверным интервалом; молчаливое
// расхождение даёт расползающиеся траектории, поэтому несовпадение — ошибка.
const tickIntervalToleranceMs = 0.1

// Порог отката тиков, после которого снимок трактуется как рестарт сервера
const tickRegressionResetThreshold = 120

// ClientConfig настройки клиента
type ClientConfig struct {
	// HandshakeTimeout лимит ожидания netcode:config
	HandshakeTimeout time.Duration

	// ExpectedTickIntervalMs локально сконфигурированный интервал тика;
	// 0 — принять серверный без проверки
	ExpectedTickIntervalMs float64

	// SmootherOverrides необязательная донастройка смузеров; nil — дефолты
	SmootherOverrides func(cfg *SmootherConfig)
}

// DefaultClientConfig возвращает настройки клиента по умолчанию
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 5 * time.Second,
	}
}

// RenderState всё, что нужно рендереру на один кадр
type RenderState[W any] struct {
	// World предсказанный мир: авторитетные чужие игроки + локальный из предсказания
	World W

	// Local сглаженное рендерное состояние локального игрока
	Local    Transform
	HasLocal bool

	// Remote интерполированные состояния удалённых игроков
	Remote map[PlayerID]Transform

	// Tick тик последнего применённого серверного снимка
	Tick int64
}

// Client клиентская сторона netcode: предсказание, реконсиляция и
// сглаживание поверх одного NetChannel. Все публичные методы
// потокобезопасны; внутренние структуры (InputBuffer, Predictor)
// синхронизации не имеют и живут строго под c.mu.
type Client[W, I, A any] struct {
	mu sync.Mutex

	channel    network.NetChannel
	serializer *protocol.MessageSerializer
	logger     *logging.Logger
	scope      PredictionScope[W, I]
	lister     PlayerLister[W] // nil, если scope не умеет перечислять игроков
	cfg        ClientConfig

	playerID     PlayerID
	havePlayerID bool

	tickIntervalMs float64
	configReady    chan struct{}
	configOnce     sync.Once
	configErr      error

	predictor   *Predictor[W, I]
	reconciler  *Reconciler[W, I]
	inputs      *InputBuffer[I]
	serverClock *ServerClock

	ownerSmoother   *TickSmoother
	remoteSmoothers map[PlayerID]*TickSmoother

	lastSnapshot  Snapshot[W]
	haveSnapshot  bool
	predictedTick int64 // Локальный счётчик тиков предсказания для очереди владельца

	nextActionSeq  int64
	onActionResult func(ActionResult)

	lastTimingUpdate protocol.TimingUpdateMessage
	destroyed        bool
}

// NewClient создаёт клиента поверх установленного канала и сразу запрашивает
// конфигурацию. До WaitReady отправка вводов запрещена.
func NewClient[W, I, A any](channel network.NetChannel, scope PredictionScope[W, I], cfg ClientConfig) (*Client[W, I, A], error) {
	if scope == nil {
		return nil, fmt.Errorf("PredictionScope обязателен")
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}

	serializer, err := protocol.NewMessageSerializer()
	if err != nil {
		return nil, fmt.Errorf("ошибка создания сериализатора: %w", err)
	}

	c := &Client[W, I, A]{
		channel:         channel,
		serializer:      serializer,
		logger:          logging.GetComponentLogger("game_client"),
		scope:           scope,
		cfg:             cfg,
		configReady:     make(chan struct{}),
		inputs:          NewInputBuffer[I](),
		remoteSmoothers: make(map[PlayerID]*TickSmoother),
	}
	if lister, ok := scope.(PlayerLister[W]); ok {
		c.lister = lister
	}

	channel.OnMessage(c.handleMessage)
	channel.OnDisconnect(func(err error) {
		if err != nil {
			c.logger.Warn("Соединение с сервером разорвано: %v", err)
		}
	})

	if err := c.send(protocol.MsgRequestConfig, protocol.RequestConfigMessage{}); err != nil {
		return nil, fmt.Errorf("ошибка запроса конфигурации: %w", err)
	}
	return c, nil
}

// WaitReady блокируется до завершения рукопожатия.
// Возвращает ошибку при таймауте или несовместимом тиковом интервале.
func (c *Client[W, I, A]) WaitReady() error {
	select {
	case <-c.configReady:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.configErr
	case <-time.After(c.cfg.HandshakeTimeout):
		return fmt.Errorf("конфигурация сервера не получена за %s", c.cfg.HandshakeTimeout)
	}
}

// handleMessage диспетчеризует входящее сообщение сервера
func (c *Client[W, I, A]) handleMessage(msg *protocol.Message) {
	switch msg.Type {
	case protocol.MsgConfig:
		var config protocol.ConfigMessage
		if err := c.serializer.DeserializePayload(msg, &config); err != nil {
			return
		}
		c.handleConfig(config)

	case protocol.MsgJoin:
		var join protocol.JoinMessage
		if err := c.serializer.DeserializePayload(msg, &join); err != nil {
			return
		}
		c.mu.Lock()
		if !c.havePlayerID {
			c.playerID = join.PlayerID
			c.havePlayerID = true
			c.logger.Info("Получен идентификатор игрока: %s", c.playerID)
		}
		c.mu.Unlock()

	case protocol.MsgLeave:
		var leave protocol.LeaveMessage
		if err := c.serializer.DeserializePayload(msg, &leave); err != nil {
			return
		}
		c.mu.Lock()
		delete(c.remoteSmoothers, leave.PlayerID)
		c.mu.Unlock()

	case protocol.MsgSnapshot:
		var snapshot Snapshot[W]
		if err := c.serializer.DeserializePayload(msg, &snapshot); err != nil {
			c.logger.Warn("Повреждённый снимок: %v", err)
			return
		}
		c.handleSnapshot(snapshot)

	case protocol.MsgClockSync:
		var ping protocol.ClockSyncMessage
		if err := c.serializer.DeserializePayload(msg, &ping); err != nil {
			return
		}
		// Эхо немедленно: любая задержка завышает оценку RTT
		_ = c.send(protocol.MsgClockSyncResponse, protocol.ClockSyncResponseMessage{
			ServerTimestamp: ping.ServerTimestamp,
			ClientTimestamp: time.Now().UnixMilli(),
		})

	case protocol.MsgRTTUpdate:
		var update protocol.RTTUpdateMessage
		if err := c.serializer.DeserializePayload(msg, &update); err != nil {
			return
		}
		c.mu.Lock()
		if c.serverClock != nil {
			c.serverClock.OnRTTUpdate(update.RTT)
		}
		c.mu.Unlock()

	case protocol.MsgTimingUpdate:
		var update protocol.TimingUpdateMessage
		if err := c.serializer.DeserializePayload(msg, &update); err != nil {
			return
		}
		c.mu.Lock()
		c.lastTimingUpdate = update
		c.mu.Unlock()

	case protocol.MsgActionResult:
		var result ActionResult
		if err := c.serializer.DeserializePayload(msg, &result); err != nil {
			return
		}
		c.mu.Lock()
		handler := c.onActionResult
		c.mu.Unlock()
		if handler != nil {
			handler(result)
		}

	default:
		c.logger.Debug("Неожиданное сообщение от сервера: %s", msg.Type)
	}
}

// handleConfig завершает рукопожатие и конструирует предсказательный стек
func (c *Client[W, I, A]) handleConfig(config protocol.ConfigMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tickIntervalMs > 0 {
		return // Повторный config игнорируется
	}

	if c.cfg.ExpectedTickIntervalMs > 0 &&
		math.Abs(config.TickIntervalMs-c.cfg.ExpectedTickIntervalMs) > tickIntervalToleranceMs {
		c.configOnce.Do(func() {
			c.configErr = fmt.Errorf(
				"тиковый интервал сервера %.3fms несовместим с локальным %.3fms",
				config.TickIntervalMs, c.cfg.ExpectedTickIntervalMs)
			close(c.configReady)
		})
		return
	}

	c.tickIntervalMs = config.TickIntervalMs
	c.predictor = NewPredictor(c.scope, c.tickIntervalMs)
	c.reconciler = NewReconciler(c.predictor, c.inputs, c.tickIntervalMs)
	c.serverClock = NewServerClock(c.tickIntervalMs)
	c.ownerSmoother = NewTickSmoother(c.makeSmootherConfig(true))

	c.logger.Info("Рукопожатие завершено: tick=%.2fms", c.tickIntervalMs)
	c.configOnce.Do(func() { close(c.configReady) })
}

func (c *Client[W, I, A]) makeSmootherConfig(owner bool) SmootherConfig {
	cfg := DefaultSmootherConfig(c.tickIntervalMs, owner)
	if c.cfg.SmootherOverrides != nil {
		c.cfg.SmootherOverrides(&cfg)
	}
	cfg.OwnerMode = owner
	return cfg
}

// handleSnapshot применяет авторитетный снимок: реконсиляция локального
// игрока, питание смузеров, адаптивное окно зрителей.
func (c *Client[W, I, A]) handleSnapshot(snapshot Snapshot[W]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reconciler == nil {
		return // До завершения рукопожатия снимки бессмысленны
	}

	if c.haveSnapshot && snapshot.Tick <= c.lastSnapshot.Tick {
		if c.lastSnapshot.Tick-snapshot.Tick > tickRegressionResetThreshold {
			// Счётчик тиков откатился далеко назад: сервер перезапущен
			c.logger.Warn("Откат тиков %d -> %d, полный сброс состояния", c.lastSnapshot.Tick, snapshot.Tick)
			c.resetStateLocked()
		} else {
			return // Устаревший или дублированный снимок
		}
	}

	c.serverClock.OnSnapshot(snapshot.Tick, snapshot.Timestamp)

	if !c.havePlayerID {
		c.lastSnapshot = snapshot
		c.haveSnapshot = true
		return
	}

	result := c.reconciler.Reconcile(snapshot, c.playerID)

	if result.HasCorrection && c.ownerSmoother != nil {
		c.applyOwnerCorrectionLocked(result)
	}

	c.feedRemoteSmoothersLocked(snapshot)

	c.lastSnapshot = snapshot
	c.haveSnapshot = true
}

// applyOwnerCorrectionLocked сглаживает коррекцию реконсиляции.
// Крупная коррекция (за порогом телепорта) снапает рендер немедленно,
// мелкая частично вмешивается в ожидающую цель очереди владельца —
// очередь ключуется локальными тиками предсказания, серверные тики
// в ней отсутствуют.
func (c *Client[W, I, A]) applyOwnerCorrectionLocked(result ReconcileResult[W]) {
	distance := math.Hypot(result.CorrectionX, result.CorrectionY)
	threshold := c.ownerSmoother.cfg.TeleportThreshold

	x, y, ok := c.predictor.LocalPlayerPosition()
	if !ok {
		return
	}
	corrected := Transform{Position: vec.Vec2{X: x, Y: y}, Scale: unitScale}

	if threshold > 0 && distance > threshold {
		c.ownerSmoother.Teleport(c.predictedTick, corrected)
		return
	}

	// Коррекция = до - после; будущие цели сдвигаем в сторону "после"
	if !c.ownerSmoother.EaseCorrection(c.predictedTick, -result.CorrectionX, -result.CorrectionY) {
		// Очередь пуста (рендер догнал предсказание): следующий OnPostTick
		// принесёт уже скорректированную цель
		c.logger.Trace("Коррекция %.2f без ожидающих целей", distance)
	}
}

// feedRemoteSmoothersLocked ставит позиции чужих игроков в их смузеры
func (c *Client[W, I, A]) feedRemoteSmoothersLocked(snapshot Snapshot[W]) {
	if c.lister == nil {
		return
	}

	tickLag := c.serverClock.TickLag()
	seen := make(map[PlayerID]bool)

	for _, id := range c.lister.ListPlayers(snapshot.State) {
		if id == c.playerID {
			continue
		}
		seen[id] = true

		pos, ok := c.scope.LocalPlayerPosition(snapshot.State, id)
		if !ok {
			continue
		}

		smoother, exists := c.remoteSmoothers[id]
		if !exists {
			smoother = NewTickSmoother(c.makeSmootherConfig(false))
			c.remoteSmoothers[id] = smoother
		}

		smoother.OnPostTick(snapshot.Tick, Transform{Position: pos, Scale: unitScale})
		smoother.UpdateAdaptiveInterpolation(tickLag)
	}

	for id := range c.remoteSmoothers {
		if !seen[id] {
			delete(c.remoteSmoothers, id)
		}
	}
}

// SendInput регистрирует локальный ввод: буферизует для реконсиляции,
// немедленно предсказывает и отправляет на сервер.
func (c *Client[W, I, A]) SendInput(input I) error {
	c.mu.Lock()

	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}

	msg := c.inputs.Add(input, time.Now().UnixMilli())
	c.predictor.ApplyInput(msg)

	// Каждый ввод — один локальный тик предсказания для очереди владельца
	c.predictedTick++
	if x, y, ok := c.predictor.LocalPlayerPosition(); ok {
		c.ownerSmoother.OnPostTick(c.predictedTick, Transform{Position: vec.Vec2{X: x, Y: y}, Scale: unitScale})
	}
	c.mu.Unlock()

	return c.send(protocol.MsgInput, msg)
}

// SendAction отправляет дискретное действие; результат придёт через
// OnActionResult с тем же seq.
func (c *Client[W, I, A]) SendAction(action A) (int64, error) {
	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	seq := c.nextActionSeq
	c.nextActionSeq++
	c.mu.Unlock()

	err := c.send(protocol.MsgAction, ActionMessage[A]{
		Seq:             seq,
		Action:          action,
		ClientTimestamp: time.Now().UnixMilli(),
	})
	return seq, err
}

// OnActionResult устанавливает обработчик результатов действий
func (c *Client[W, I, A]) OnActionResult(handler func(ActionResult)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onActionResult = handler
}

// GetStateForRendering продвигает смузеры на deltaMs и возвращает кадр
func (c *Client[W, I, A]) GetStateForRendering(deltaMs float64) (RenderState[W], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.predictor == nil || !c.haveSnapshot {
		var zero RenderState[W]
		return zero, false
	}

	state := RenderState[W]{
		World: c.predictor.MergeWithServer(c.lastSnapshot.State),
		Tick:  c.lastSnapshot.Tick,
	}

	if c.ownerSmoother != nil {
		state.Local = c.ownerSmoother.GetSmoothedTransform(deltaMs)
		state.HasLocal = true
	}

	if len(c.remoteSmoothers) > 0 {
		state.Remote = make(map[PlayerID]Transform, len(c.remoteSmoothers))
		for id, smoother := range c.remoteSmoothers {
			state.Remote[id] = smoother.GetSmoothedTransform(deltaMs)
		}
	}

	c.serverClock.SetLastRenderedTick(c.lastSnapshot.Tick)
	return state, true
}

// GetLastServerSnapshot возвращает последний применённый снимок
func (c *Client[W, I, A]) GetLastServerSnapshot() (Snapshot[W], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSnapshot, c.haveSnapshot
}

// GetPlayerID возвращает идентификатор, назначенный сервером
func (c *Client[W, I, A]) GetPlayerID() (PlayerID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID, c.havePlayerID
}

// RTT возвращает последний RTT, присланный сервером (мс)
func (c *Client[W, I, A]) RTT() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.serverClock == nil {
		return 0
	}
	return c.serverClock.RTT()
}

// TickIntervalMs возвращает согласованный тиковый интервал (0 до рукопожатия)
func (c *Client[W, I, A]) TickIntervalMs() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickIntervalMs
}

// PendingInputs возвращает количество неподтверждённых вводов
func (c *Client[W, I, A]) PendingInputs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputs.Len()
}

// SetSimulatedLatency включает искусственную задержку, если канал умеет
func (c *Client[W, I, A]) SetSimulatedLatency(d time.Duration) bool {
	type latencySetter interface{ SetSimulatedLatency(time.Duration) }
	if setter, ok := c.channel.(latencySetter); ok {
		setter.SetSimulatedLatency(d)
		return true
	}
	return false
}

// Reset сбрасывает предсказательное состояние, сохраняя соединение
func (c *Client[W, I, A]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetStateLocked()
}

func (c *Client[W, I, A]) resetStateLocked() {
	c.inputs.Clear()
	if c.predictor != nil {
		c.predictor.Reset()
	}
	if c.ownerSmoother != nil {
		c.ownerSmoother.Reset()
	}
	c.remoteSmoothers = make(map[PlayerID]*TickSmoother)
	c.haveSnapshot = false
	c.predictedTick = 0
}

// Destroy закрывает канал; клиент становится непригодным
func (c *Client[W, I, A]) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.mu.Unlock()

	return c.channel.Close()
}

// readyLocked проверяет, что рукопожатие завершено и клиент жив
func (c *Client[W, I, A]) readyLocked() error {
	if c.destroyed {
		return fmt.Errorf("клиент уничтожен")
	}
	if c.configErr != nil {
		return c.configErr
	}
	if c.predictor == nil {
		return fmt.Errorf("рукопожатие не завершено")
	}
	if !c.havePlayerID {
		return fmt.Errorf("идентификатор игрока ещё не получен")
	}
	return nil
}

// send сериализует и отправляет сообщение серверу
func (c *Client[W, I, A]) send(msgType protocol.MessageType, payload interface{}) error {
	msg, err := c.serializer.BuildEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	return c.channel.Send(msg)
}
