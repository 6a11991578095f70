package netcode

import (
	"sync"
	"time"
)

// Коэффициент EWMA для сглаживания RTT
const rttSmoothingAlpha = 0.2

// RTTEstimator серверная оценка RTT одного клиента по clock sync эхо.
// RTT = (now - serverTimestamp) из эха; сглаживается EWMA.
// Побочно оценивает смещение клиентских часов для lag compensation.
type RTTEstimator struct {
	mu          sync.Mutex
	smoothedRTT float64 // Миллисекунды
	clockOffset float64 // serverClock - clientClock, миллисекунды
	samples     int
}

// NewRTTEstimator создаёт оценщик без накопленных замеров
func NewRTTEstimator() *RTTEstimator {
	return &RTTEstimator{}
}

// OnClockSyncResponse обрабатывает эхо клиента.
// serverTimestamp — отметка из исходного пинга, clientTimestamp — клиентские
// часы в момент эха. Возвращает сглаженный RTT в миллисекундах.
func (re *RTTEstimator) OnClockSyncResponse(serverTimestamp, clientTimestamp int64) float64 {
	now := time.Now().UnixMilli()
	rtt := float64(now - serverTimestamp)
	if rtt < 0 {
		rtt = 0
	}

	re.mu.Lock()
	defer re.mu.Unlock()

	if re.samples == 0 {
		re.smoothedRTT = rtt
	} else {
		re.smoothedRTT = re.smoothedRTT*(1-rttSmoothingAlpha) + rtt*rttSmoothingAlpha
	}
	re.samples++

	// Эхо пришло через ~RTT/2 после клиентской отметки
	offset := float64(now) - re.smoothedRTT/2 - float64(clientTimestamp)
	if re.samples == 1 {
		re.clockOffset = offset
	} else {
		re.clockOffset = re.clockOffset*(1-rttSmoothingAlpha) + offset*rttSmoothingAlpha
	}

	return re.smoothedRTT
}

// RTT возвращает сглаженный RTT в миллисекундах
func (re *RTTEstimator) RTT() float64 {
	re.mu.Lock()
	defer re.mu.Unlock()
	return re.smoothedRTT
}

// ClockOffset возвращает оценку смещения клиентских часов (server - client, мс)
func (re *RTTEstimator) ClockOffset() float64 {
	re.mu.Lock()
	defer re.mu.Unlock()
	return re.clockOffset
}

// Samples возвращает количество принятых эхо
func (re *RTTEstimator) Samples() int {
	re.mu.Lock()
	defer re.mu.Unlock()
	return re.samples
}

// ServerClock клиентская экстраполяция текущего серверного тика.
// Текущий тик = тик последнего снимка + (now - wallClock снимка)/tickInterval.
type ServerClock struct {
	tickIntervalMs float64

	lastSnapshotTick int64
	lastSnapshotTime int64
	haveSnapshot     bool

	lastRenderedTick int64
	rtt              float64
}

// NewServerClock создаёт оценщик серверного времени
func NewServerClock(tickIntervalMs float64) *ServerClock {
	return &ServerClock{tickIntervalMs: tickIntervalMs}
}

// OnSnapshot фиксирует тик и wall-clock последнего снимка
func (sc *ServerClock) OnSnapshot(tick int64, timestamp int64) {
	sc.lastSnapshotTick = tick
	sc.lastSnapshotTime = timestamp
	sc.haveSnapshot = true
}

// OnRTTUpdate принимает сглаженный RTT от сервера
func (sc *ServerClock) OnRTTUpdate(rttMs float64) {
	sc.rtt = rttMs
}

// SetLastRenderedTick фиксирует последний полностью отрисованный тик
func (sc *ServerClock) SetLastRenderedTick(tick int64) {
	sc.lastRenderedTick = tick
}

// EstimatedServerTick возвращает экстраполированный текущий тик сервера
func (sc *ServerClock) EstimatedServerTick() float64 {
	if !sc.haveSnapshot {
		return 0
	}
	elapsed := float64(time.Now().UnixMilli() - sc.lastSnapshotTime)
	return float64(sc.lastSnapshotTick) + elapsed/sc.tickIntervalMs
}

// TickLag возвращает отставание рендера от оцениваемого серверного тика.
// Зрительские смузеры используют его для адаптивного окна интерполяции.
func (sc *ServerClock) TickLag() float64 {
	if !sc.haveSnapshot {
		return 0
	}
	lag := sc.EstimatedServerTick() - float64(sc.lastRenderedTick)
	if lag < 0 {
		return 0
	}
	return lag
}

// RTT возвращает последний RTT, присланный сервером (мс)
func (sc *ServerClock) RTT() float64 {
	return sc.rtt
}
