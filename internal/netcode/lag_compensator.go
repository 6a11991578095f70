package netcode

// LagCompensator разрешает исторический снимок для серверной валидации
// попаданий: игрок целился в то, что видел, а не в текущее состояние мира.
type LagCompensator[W any] struct {
	snapshots            *SnapshotBuffer[W]
	interpolationDelayMs float64
}

// RewindResult итог отмотки мира
type RewindResult[W any] struct {
	Snapshot Snapshot[W]
	// Clamped: действие указывало за пределы удержанной истории и было
	// провалидировано против самого старого снимка (телеметрия, не ошибка)
	Clamped bool
}

// NewLagCompensator создаёт компенсатор поверх буфера снимков.
// interpolationDelayMs — задержка интерполяции клиентов: они рендерят мир
// этим количеством миллисекунд в прошлом.
func NewLagCompensator[W any](snapshots *SnapshotBuffer[W], interpolationDelayMs float64) *LagCompensator[W] {
	return &LagCompensator[W]{
		snapshots:            snapshots,
		interpolationDelayMs: interpolationDelayMs,
	}
}

// Rewind вычисляет серверное время намерения клиента и возвращает ближайший
// снимок: t_server = clientTimestamp + clockOffset - interpolationDelay.
// Отмотка за пределы истории клампится к самому старому снимку.
func (lc *LagCompensator[W]) Rewind(clientTimestamp int64, clockOffsetMs float64) (RewindResult[W], bool) {
	target := clientTimestamp + int64(clockOffsetMs) - int64(lc.interpolationDelayMs)

	snap, ok := lc.snapshots.GetAtTimestamp(target)
	if !ok {
		return RewindResult[W]{}, false
	}

	result := RewindResult[W]{Snapshot: snap}

	if oldest, haveOldest := lc.snapshots.OldestTick(); haveOldest && snap.Tick == oldest && target < snap.Timestamp {
		result.Clamped = true
	}

	return result, true
}
