package netcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/netcode/internal/vec"
)

// Удобный интервал для ручного счёта: 10 мс на тик, сущность движется
// на 1 единицу за тик по X
const smoothIntervalMs = 10.0

func newSpectatorSmoother() *TickSmoother {
	cfg := DefaultSmootherConfig(smoothIntervalMs, false)
	return NewTickSmoother(cfg)
}

func atX(x float64) Transform {
	return Transform{Position: vec.Vec2{X: x}, Scale: vec.Vec2{X: 1, Y: 1}}
}

func feedTicks(ts *TickSmoother, from, to int64) {
	for tick := from; tick <= to; tick++ {
		ts.OnPostTick(tick, atX(float64(tick)))
	}
}

func TestSmoother_FirstTickInitializesWithoutEnqueue(t *testing.T) {
	ts := newSpectatorSmoother()
	ts.OnPostTick(5, atX(50))

	assert.Equal(t, 0, ts.GetQueueLength())
	assert.Equal(t, 50.0, ts.GetSmoothedTransform(16).Position.X)
}

func TestSmoother_BuffersUntilWindowFilled(t *testing.T) {
	ts := newSpectatorSmoother()
	ts.OnPostTick(0, atX(0))
	ts.OnPostTick(1, atX(1))

	// Окно 2, в очереди одна выборка — рендер стоит на месте
	assert.Equal(t, 0.0, ts.GetSmoothedTransform(16).Position.X)

	ts.OnPostTick(2, atX(2))
	assert.Greater(t, ts.GetSmoothedTransform(5).Position.X, 0.0)
}

func TestSmoother_ConsumesOneTickPerInterval(t *testing.T) {
	ts := newSpectatorSmoother()
	ts.OnPostTick(0, atX(0))
	feedTicks(ts, 1, 5)

	// 5 мс — половина сегмента
	got := ts.GetSmoothedTransform(5)
	assert.InDelta(t, 0.5, got.Position.X, 1e-9)
}

func TestSmoother_OvershootCarriesIntoNextSegment(t *testing.T) {
	ts := newSpectatorSmoother()
	ts.OnPostTick(0, atX(0))
	feedTicks(ts, 1, 5)

	// 25 мс: два полных сегмента плюс половина третьего
	got := ts.GetSmoothedTransform(25)
	assert.InDelta(t, 2.5, got.Position.X, 1e-9)
	assert.Equal(t, 3, ts.GetQueueLength())
}

func TestSmoother_JitteredFrameTimes(t *testing.T) {
	ts := newSpectatorSmoother()
	ts.OnPostTick(0, atX(0))
	feedTicks(ts, 1, 25)

	// Рваные кадровые дельты; суммарно 197 мс
	deltas := []float64{5, 22, 9, 28, 14, 3, 25, 11, 19, 7, 16, 30, 8}

	prev := 0.0
	total := 0.0
	for _, d := range deltas {
		got := ts.GetSmoothedTransform(d)
		assert.GreaterOrEqual(t, got.Position.X, prev, "движение монотонно вперёд")
		prev = got.Position.X
		total += d
	}

	// Пройдено ровно столько тиков дистанции, сколько прошло времени
	assert.InDelta(t, total/smoothIntervalMs, prev, 1e-9)
}

func TestSmoother_DiscardsStaleAndDuplicateTicks(t *testing.T) {
	ts := newSpectatorSmoother()
	ts.OnPostTick(0, atX(0))
	ts.OnPostTick(3, atX(3))
	ts.OnPostTick(3, atX(99)) // Дубликат
	ts.OnPostTick(2, atX(99)) // Откат

	assert.Equal(t, 1, ts.GetQueueLength())
	assert.True(t, ts.HasTickInQueue(3))
	assert.False(t, ts.HasTickInQueue(2))
}

func TestSmoother_TeleportOnLargeJump(t *testing.T) {
	ts := newSpectatorSmoother()
	ts.OnPostTick(0, atX(0))
	feedTicks(ts, 1, 3)

	// Скачок больше порога 64: снап и сброс очереди
	ts.OnPostTick(4, atX(500))

	assert.Equal(t, 0, ts.GetQueueLength())
	assert.Equal(t, 500.0, ts.GetSmoothedTransform(16).Position.X)
}

func TestSmoother_ExplicitTeleportRestartsBuffering(t *testing.T) {
	ts := newSpectatorSmoother()
	ts.OnPostTick(0, atX(0))
	feedTicks(ts, 1, 5)
	ts.GetSmoothedTransform(15)

	ts.Teleport(10, atX(200))

	assert.Equal(t, 200.0, ts.GetSmoothedTransform(16).Position.X)

	// Старые тики после телепорта отбрасываются, новые снова буферизуются
	ts.OnPostTick(5, atX(5))
	assert.Equal(t, 0, ts.GetQueueLength())
	ts.OnPostTick(11, atX(201))
	assert.Equal(t, 200.0, ts.GetSmoothedTransform(16).Position.X, "буферизация началась заново")
}

func TestSmoother_EaseCorrectionAdjustsQueuedSample(t *testing.T) {
	ts := NewTickSmoother(DefaultSmootherConfig(smoothIntervalMs, true))
	ts.OnPostTick(0, atX(0))
	ts.OnPostTick(1, atX(1))
	ts.OnPostTick(2, atX(2))

	require.True(t, ts.EaseCorrection(2, 4, 0))

	// Вмешана половина коррекции (EaseFraction 0.5)
	ts.GetSmoothedTransform(2 * smoothIntervalMs)
	assert.InDelta(t, 2+4*0.5, ts.GetSmoothedTransform(0).Position.X, 1e-9)
}

func TestSmoother_EaseCorrectionUnknownTickIsNoOp(t *testing.T) {
	ts := NewTickSmoother(DefaultSmootherConfig(smoothIntervalMs, true))
	ts.OnPostTick(0, atX(0))
	ts.OnPostTick(1, atX(1))

	// Серверный тик, которого нет в очереди локальных предсказанных тиков
	assert.False(t, ts.EaseCorrection(999, 4, 0))

	ts.OnPostTick(2, atX(2))
	ts.GetSmoothedTransform(2 * smoothIntervalMs)
	assert.InDelta(t, 2.0, ts.GetSmoothedTransform(0).Position.X, 1e-9, "состояние не тронуто")
}

func TestSmoother_AdaptiveWindowGrowsImmediately(t *testing.T) {
	ts := newSpectatorSmoother()
	ts.OnPostTick(0, atX(0))

	ts.UpdateAdaptiveInterpolation(5.0)
	assert.Equal(t, 2, ts.InterpolationWindow(), "в полёте действует старое окно")

	// Новое окно применяется на следующей выборке
	ts.OnPostTick(1, atX(1))
	assert.Equal(t, 5, ts.InterpolationWindow())
}

func TestSmoother_AdaptiveWindowShrinksAfterStreak(t *testing.T) {
	ts := newSpectatorSmoother()
	ts.OnPostTick(0, atX(0))

	ts.UpdateAdaptiveInterpolation(6.0)
	ts.OnPostTick(1, atX(1))
	require.Equal(t, 6, ts.InterpolationWindow())

	// 29 благополучных замеров — усадки ещё нет
	for i := 0; i < adaptiveShrinkAfter-1; i++ {
		ts.UpdateAdaptiveInterpolation(1.0)
	}
	ts.OnPostTick(2, atX(2))
	assert.Equal(t, 6, ts.InterpolationWindow())

	// Тридцатый замер даёт усадку на один тик
	ts.UpdateAdaptiveInterpolation(1.0)
	ts.OnPostTick(3, atX(3))
	assert.Equal(t, 5, ts.InterpolationWindow())
}

func TestSmoother_AdaptiveIgnoredForOwner(t *testing.T) {
	ts := NewTickSmoother(DefaultSmootherConfig(smoothIntervalMs, true))
	ts.OnPostTick(0, atX(0))

	ts.UpdateAdaptiveInterpolation(10.0)
	ts.OnPostTick(1, atX(1))
	assert.Equal(t, 2, ts.InterpolationWindow())
}

func TestSmoother_ExtrapolationCapped(t *testing.T) {
	ts := newSpectatorSmoother()
	ts.OnPostTick(0, atX(0))
	feedTicks(ts, 1, 2)

	// Выбираем очередь целиком; скорость последнего сегмента 0.1 ед/мс
	got := ts.GetSmoothedTransform(2 * smoothIntervalMs)
	require.InDelta(t, 2.0, got.Position.X, 1e-9)
	require.Equal(t, 0, ts.GetQueueLength())

	// Экстраполяция ограничена 4 тиками: максимум +4 единицы
	for i := 0; i < 20; i++ {
		got = ts.GetSmoothedTransform(smoothIntervalMs)
	}
	assert.InDelta(t, 6.0, got.Position.X, 1e-9)
}

func TestSmoother_OwnerNeverExtrapolates(t *testing.T) {
	ts := NewTickSmoother(DefaultSmootherConfig(smoothIntervalMs, true))
	ts.OnPostTick(0, atX(0))
	feedTicks(ts, 1, 2)

	got := ts.GetSmoothedTransform(2 * smoothIntervalMs)
	require.InDelta(t, 2.0, got.Position.X, 1e-9)

	got = ts.GetSmoothedTransform(100)
	assert.InDelta(t, 2.0, got.Position.X, 1e-9, "владелец стоит на последней цели")
}

func TestSmoother_Reset(t *testing.T) {
	ts := newSpectatorSmoother()
	ts.OnPostTick(0, atX(0))
	feedTicks(ts, 1, 3)
	ts.UpdateAdaptiveInterpolation(8.0)
	ts.OnPostTick(4, atX(4))

	ts.Reset()

	assert.Equal(t, 0, ts.GetQueueLength())
	assert.Equal(t, 2, ts.InterpolationWindow())

	// Первый OnPostTick после сброса снова инициализирует без очереди
	ts.OnPostTick(100, atX(77))
	assert.Equal(t, 0, ts.GetQueueLength())
	assert.Equal(t, 77.0, ts.GetSmoothedTransform(16).Position.X)
}

func TestLerpAngle_ShortestArc(t *testing.T) {
	// Переход через 0 идёт по короткой дуге
	got := lerpAngle(0.1, 2*3.141592653589793-0.1, 0.5)
	assert.InDelta(t, 0.0, got, 1e-9)
}
