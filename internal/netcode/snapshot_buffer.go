package netcode

import (
	"fmt"
	"sync"
)

// SnapshotBuffer ограниченное кольцо прошлых авторитетных снимков,
// упорядоченных по тику. Поддерживает точный поиск по тику и поиск
// ближайшего по wall-clock времени для lag compensation.
type SnapshotBuffer[W any] struct {
	mu        sync.RWMutex
	snapshots []Snapshot[W]
	capacity  int
}

// NewSnapshotBuffer создаёт буфер указанной ёмкости.
// Ёмкость 180 покрывает три секунды истории на 60 Гц.
func NewSnapshotBuffer[W any](capacity int) *SnapshotBuffer[W] {
	if capacity < 1 {
		capacity = 180
	}
	return &SnapshotBuffer[W]{
		snapshots: make([]Snapshot[W], 0, capacity),
		capacity:  capacity,
	}
}

// Add добавляет снимок, вытесняя самый старый при заполнении.
// Снимки добавляются строго в порядке роста тиков; немонотонный тик отклоняется.
func (sb *SnapshotBuffer[W]) Add(snapshot Snapshot[W]) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if n := len(sb.snapshots); n > 0 && snapshot.Tick <= sb.snapshots[n-1].Tick {
		return fmt.Errorf("снимок с тиком %d не больше последнего тика %d", snapshot.Tick, sb.snapshots[n-1].Tick)
	}

	if len(sb.snapshots) >= sb.capacity {
		sb.snapshots = sb.snapshots[1:]
	}
	sb.snapshots = append(sb.snapshots, snapshot)
	return nil
}

// GetAtTick возвращает снимок с точно совпадающим тиком
func (sb *SnapshotBuffer[W]) GetAtTick(tick int64) (Snapshot[W], bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	// Бинарный поиск: буфер упорядочен по тику
	lo, hi := 0, len(sb.snapshots)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case sb.snapshots[mid].Tick == tick:
			return sb.snapshots[mid], true
		case sb.snapshots[mid].Tick < tick:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}

	var zero Snapshot[W]
	return zero, false
}

// GetLatest возвращает самый свежий снимок
func (sb *SnapshotBuffer[W]) GetLatest() (Snapshot[W], bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	if len(sb.snapshots) == 0 {
		var zero Snapshot[W]
		return zero, false
	}
	return sb.snapshots[len(sb.snapshots)-1], true
}

// GetAtTimestamp возвращает снимок с ближайшим к t wall-clock временем.
// При равном удалении выигрывает более ранний; запросы вне диапазона
// клампятся к ближайшему краю.
func (sb *SnapshotBuffer[W]) GetAtTimestamp(t int64) (Snapshot[W], bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	n := len(sb.snapshots)
	if n == 0 {
		var zero Snapshot[W]
		return zero, false
	}

	if t <= sb.snapshots[0].Timestamp {
		return sb.snapshots[0], true
	}
	if t >= sb.snapshots[n-1].Timestamp {
		return sb.snapshots[n-1], true
	}

	// Первый снимок с timestamp >= t
	lo, hi := 0, n-1
	for lo < hi {
		mid := (lo + hi) / 2
		if sb.snapshots[mid].Timestamp < t {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	after := sb.snapshots[lo]
	before := sb.snapshots[lo-1]
	if t-before.Timestamp <= after.Timestamp-t {
		return before, true
	}
	return after, true
}

// GetRange возвращает снимки в диапазоне тиков [fromTick, toTick] включительно
func (sb *SnapshotBuffer[W]) GetRange(fromTick, toTick int64) []Snapshot[W] {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	result := make([]Snapshot[W], 0)
	for _, snap := range sb.snapshots {
		if snap.Tick >= fromTick && snap.Tick <= toTick {
			result = append(result, snap)
		}
	}
	return result
}

// OldestTick возвращает тик самого старого удержанного снимка
func (sb *SnapshotBuffer[W]) OldestTick() (int64, bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	if len(sb.snapshots) == 0 {
		return 0, false
	}
	return sb.snapshots[0].Tick, true
}

// Len возвращает количество удержанных снимков
func (sb *SnapshotBuffer[W]) Len() int {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return len(sb.snapshots)
}

// Clear сбрасывает содержимое буфера
func (sb *SnapshotBuffer[W]) Clear() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.snapshots = sb.snapshots[:0]
}
