package netcode

import (
	"math"

	"github.com/annel0/netcode/internal/vec"
)

// Transform рендерное состояние сущности
type Transform struct {
	Position vec.Vec2
	Rotation float64
	Scale    vec.Vec2
}

// smootherSample целевое состояние, помеченное номером тика
type smootherSample struct {
	tick      int64
	transform Transform
}

// SmootherConfig настройки графического сглаживания одной сущности
type SmootherConfig struct {
	TickIntervalMs     float64
	InterpolationTicks int     // Начальное окно интерполяции в тиках
	TeleportThreshold  float64 // Дистанция мгновенного снапа; <=0 отключает телепорт
	ExtrapolationTicks int     // Лимит экстраполяции при пустой очереди (только зрители)
	OwnerMode          bool    // Владелец: коррекции предсказания вместо адаптивного окна
	EaseFraction       float64 // Доля коррекции, вмешиваемая за один EaseCorrection

	// Потоковые переключатели осей; выключенная ось снапается к цели
	SmoothPosition bool
	SmoothRotation bool
	SmoothScale    bool
}

// DefaultSmootherConfig возвращает настройки сглаживания по умолчанию
func DefaultSmootherConfig(tickIntervalMs float64, owner bool) SmootherConfig {
	return SmootherConfig{
		TickIntervalMs:     tickIntervalMs,
		InterpolationTicks: 2,
		TeleportThreshold:  64.0,
		ExtrapolationTicks: 4,
		OwnerMode:          owner,
		EaseFraction:       0.5,
		SmoothPosition:     true,
		SmoothRotation:     true,
		SmoothScale:        true,
	}
}

// Границы адаптивного окна интерполяции
const (
	minInterpolationTicks = 1
	maxInterpolationTicks = 12

	// Рост окна крупными шагами, усадка мелкими — смещение в сторону
	// устойчивости на плохих сетях
	adaptiveGrowStep   = 2
	adaptiveShrinkStep = 1

	// Сколько подряд благополучных замеров нужно для усадки
	adaptiveShrinkAfter = 30
)

// TickSmoother разъединяет симуляционные тики и рендер-кадры в духе
// FishNet TickSmoother: один экземпляр на отображаемую сущность.
// Целевые состояния ставятся в FIFO по тикам и потребляются строго по
// порядку со скоростью один тик дистанции за tickIntervalMs.
type TickSmoother struct {
	cfg SmootherConfig

	current     Transform
	queue       []smootherSample
	initialized bool

	lastEnqueuedTick int64
	lastConsumedTick int64

	// Прогресс внутри текущего сегмента [0..1]
	segmentProgress float64
	segmentFrom     Transform

	// Адаптивное окно: в полёте действует старое, новое применяется
	// на следующем OnPostTick
	window        int
	pendingWindow int
	goodReadings  int
	buffering     bool

	// Последняя наблюдаемая скорость (единиц/мс) для экстраполяции зрителей
	lastVelocity   vec.Vec2
	extrapolatedMs float64
}

// NewTickSmoother создаёт смузер для одной сущности
func NewTickSmoother(cfg SmootherConfig) *TickSmoother {
	if cfg.TickIntervalMs <= 0 {
		cfg.TickIntervalMs = 1000.0 / 60.0
	}
	if cfg.InterpolationTicks < minInterpolationTicks {
		cfg.InterpolationTicks = minInterpolationTicks
	}
	if cfg.EaseFraction <= 0 || cfg.EaseFraction > 1 {
		cfg.EaseFraction = 0.5
	}
	return &TickSmoother{
		cfg:              cfg,
		window:           cfg.InterpolationTicks,
		pendingWindow:    cfg.InterpolationTicks,
		lastEnqueuedTick: -1,
		lastConsumedTick: -1,
		buffering:        true,
	}
}

// OnPostTick принимает целевое состояние для тика.
// Самый первый вызов инициализирует рендерную позицию без постановки в
// очередь. Неупорядоченные, повторные и устаревшие тики отбрасываются.
func (ts *TickSmoother) OnPostTick(tick int64, transform Transform) {
	if !ts.initialized {
		ts.current = transform
		ts.segmentFrom = transform
		ts.initialized = true
		ts.lastEnqueuedTick = tick
		ts.lastConsumedTick = tick
		return
	}

	// Отложенное окно вступает в силу на границе выборок
	ts.window = ts.pendingWindow

	if tick <= ts.lastEnqueuedTick || tick <= ts.lastConsumedTick {
		return
	}

	// Телепорт: большой скачок снапает и сбрасывает очередь
	if ts.cfg.TeleportThreshold > 0 && ts.current.Position.DistanceTo(transform.Position) > ts.cfg.TeleportThreshold {
		ts.Teleport(tick, transform)
		return
	}

	ts.queue = append(ts.queue, smootherSample{tick: tick, transform: transform})
	ts.lastEnqueuedTick = tick
	ts.extrapolatedMs = 0
}

// GetSmoothedTransform продвигает рендерное состояние и возвращает его.
// Скорость — один тик дистанции за tickIntervalMs; достигнув цель,
// выборка снимается и остаток кадра уходит в следующий сегмент.
func (ts *TickSmoother) GetSmoothedTransform(deltaMs float64) Transform {
	if !ts.initialized || deltaMs <= 0 {
		return ts.current
	}

	// Начальная буферизация: ждём, пока очередь наберёт окно интерполяции
	if ts.buffering {
		if len(ts.queue) < ts.window {
			return ts.current
		}
		ts.buffering = false
	}

	remaining := deltaMs
	for remaining > 0 && len(ts.queue) > 0 {
		consumed := ts.advanceSegment(remaining)
		if consumed <= 0 {
			break
		}
		remaining -= consumed
	}

	// Очередь пуста: зрители могут экстраполировать по последней скорости
	if len(ts.queue) == 0 && remaining > 0 && !ts.cfg.OwnerMode && ts.cfg.ExtrapolationTicks > 0 {
		ts.extrapolate(remaining)
	}

	return ts.current
}

// advanceSegment двигает позицию к голове очереди; возвращает потраченные мс
func (ts *TickSmoother) advanceSegment(deltaMs float64) float64 {
	head := &ts.queue[0]

	if ts.segmentProgress == 0 {
		ts.segmentFrom = ts.current
	}

	// Выключенные оси снапаются к цели немедленно
	if !ts.cfg.SmoothRotation {
		ts.current.Rotation = head.transform.Rotation
	}
	if !ts.cfg.SmoothScale {
		ts.current.Scale = head.transform.Scale
	}
	if !ts.cfg.SmoothPosition {
		ts.current.Position = head.transform.Position
		ts.popSegment(head)
		return deltaMs
	}

	segmentRemainingMs := (1 - ts.segmentProgress) * ts.cfg.TickIntervalMs
	if deltaMs >= segmentRemainingMs {
		// Сегмент завершён, остаток кадра перетекает в следующий
		ts.applyProgress(head.transform, 1)
		ts.popSegment(head)
		return segmentRemainingMs
	}

	ts.segmentProgress += deltaMs / ts.cfg.TickIntervalMs
	ts.applyProgress(head.transform, ts.segmentProgress)
	return deltaMs
}

// applyProgress интерполирует от начала сегмента к цели
func (ts *TickSmoother) applyProgress(target Transform, t float64) {
	ts.current.Position = ts.segmentFrom.Position.Lerp(target.Position, t)
	if ts.cfg.SmoothRotation {
		ts.current.Rotation = lerpAngle(ts.segmentFrom.Rotation, target.Rotation, t)
	}
	if ts.cfg.SmoothScale {
		ts.current.Scale = ts.segmentFrom.Scale.Lerp(target.Scale, t)
	}
}

// popSegment снимает голову очереди и фиксирует скорость сегмента
func (ts *TickSmoother) popSegment(head *smootherSample) {
	ts.lastVelocity = head.transform.Position.Sub(ts.segmentFrom.Position).Mul(1 / ts.cfg.TickIntervalMs)
	ts.lastConsumedTick = head.tick
	ts.current = head.transform
	ts.segmentFrom = head.transform
	ts.segmentProgress = 0
	ts.queue = ts.queue[1:]
}

// extrapolate продолжает движение по последней скорости, не дальше лимита
func (ts *TickSmoother) extrapolate(deltaMs float64) {
	capMs := float64(ts.cfg.ExtrapolationTicks) * ts.cfg.TickIntervalMs
	if ts.extrapolatedMs >= capMs {
		return
	}

	allowed := deltaMs
	if ts.extrapolatedMs+allowed > capMs {
		allowed = capMs - ts.extrapolatedMs
	}

	ts.current.Position = ts.current.Position.Add(ts.lastVelocity.Mul(allowed))
	ts.extrapolatedMs += allowed
}

// EaseCorrection вмешивает коррекцию в выборку указанного тика.
// Возвращает false, если тика нет в очереди — в частности, серверный тик,
// скормленный смузеру владельца (очередь которого ключуется локальными
// тиками предсказания), не трогает состояние.
func (ts *TickSmoother) EaseCorrection(tick int64, dx, dy float64) bool {
	for i := range ts.queue {
		if ts.queue[i].tick == tick {
			ts.queue[i].transform.Position.X += dx * ts.cfg.EaseFraction
			ts.queue[i].transform.Position.Y += dy * ts.cfg.EaseFraction
			return true
		}
	}
	return false
}

// HasTickInQueue сообщает, стоит ли выборка тика в очереди
func (ts *TickSmoother) HasTickInQueue(tick int64) bool {
	for i := range ts.queue {
		if ts.queue[i].tick == tick {
			return true
		}
	}
	return false
}

// UpdateAdaptiveInterpolation подстраивает окно интерполяции под измеренный
// лаг серверных тиков (только зрители). Рост идёт крупными шагами сразу,
// усадка — мелкими и только после серии благополучных замеров. Новое окно
// применяется на следующем OnPostTick; текущий ease доигрывается при старом.
func (ts *TickSmoother) UpdateAdaptiveInterpolation(tickLag float64) {
	if ts.cfg.OwnerMode {
		return
	}

	desired := int(math.Ceil(tickLag))
	if desired > ts.window {
		next := ts.window + adaptiveGrowStep
		if next < desired {
			next = desired
		}
		if next > maxInterpolationTicks {
			next = maxInterpolationTicks
		}
		ts.pendingWindow = next
		ts.goodReadings = 0
		return
	}

	if desired < ts.window {
		ts.goodReadings++
		if ts.goodReadings >= adaptiveShrinkAfter {
			next := ts.window - adaptiveShrinkStep
			if next < minInterpolationTicks {
				next = minInterpolationTicks
			}
			if next < ts.cfg.InterpolationTicks {
				next = ts.cfg.InterpolationTicks
			}
			ts.pendingWindow = next
			ts.goodReadings = 0
		}
		return
	}

	ts.goodReadings = 0
}

// Teleport мгновенно переносит сущность и сбрасывает очередь
func (ts *TickSmoother) Teleport(tick int64, transform Transform) {
	ts.current = transform
	ts.segmentFrom = transform
	ts.segmentProgress = 0
	ts.queue = ts.queue[:0]
	ts.lastEnqueuedTick = tick
	ts.lastConsumedTick = tick
	ts.lastVelocity = vec.Vec2{}
	ts.extrapolatedMs = 0
	ts.buffering = true
	ts.initialized = true
}

// Reset возвращает смузер в неинициализированное состояние
func (ts *TickSmoother) Reset() {
	ts.initialized = false
	ts.queue = ts.queue[:0]
	ts.segmentProgress = 0
	ts.lastEnqueuedTick = -1
	ts.lastConsumedTick = -1
	ts.lastVelocity = vec.Vec2{}
	ts.extrapolatedMs = 0
	ts.window = ts.cfg.InterpolationTicks
	ts.pendingWindow = ts.cfg.InterpolationTicks
	ts.goodReadings = 0
	ts.buffering = true
}

// GetQueueLength возвращает длину очереди целей
func (ts *TickSmoother) GetQueueLength() int {
	return len(ts.queue)
}

// InterpolationWindow возвращает действующее окно интерполяции в тиках
func (ts *TickSmoother) InterpolationWindow() int {
	return ts.window
}

// lerpAngle интерполирует угол по кратчайшей дуге
func lerpAngle(from, to, t float64) float64 {
	diff := math.Mod(to-from, 2*math.Pi)
	if diff > math.Pi {
		diff -= 2 * math.Pi
	} else if diff < -math.Pi {
		diff += 2 * math.Pi
	}
	return from + diff*t
}
