package netcode

import (
	"sort"
	"sync"
)

// InputQueue серверные FIFO-очереди вводов, по одной на клиента.
// Enqueue вызывается из сокетных горутин, дренаж — из тикового потока;
// общая блокировка покрывает single-producer/single-consumer контракт.
// Порядок гарантируется только внутри одного клиента.
type InputQueue[I any] struct {
	mu        sync.Mutex
	queues    map[PlayerID][]InputMessage[I]
	lastAcked map[PlayerID]int64
}

// NewInputQueue создаёт пустой набор очередей
func NewInputQueue[I any]() *InputQueue[I] {
	return &InputQueue[I]{
		queues:    make(map[PlayerID][]InputMessage[I]),
		lastAcked: make(map[PlayerID]int64),
	}
}

// Enqueue добавляет ввод в очередь клиента.
// Запоздавшие дубликаты (seq <= lastAcked) молча отбрасываются.
func (iq *InputQueue[I]) Enqueue(clientID PlayerID, msg InputMessage[I]) {
	iq.mu.Lock()
	defer iq.mu.Unlock()

	if acked, ok := iq.lastAcked[clientID]; ok && msg.Seq <= acked {
		return
	}

	iq.queues[clientID] = append(iq.queues[clientID], msg)
}

// GetPendingInputs возвращает содержимое очереди клиента в порядке seq
// с дедупликацией по seq
func (iq *InputQueue[I]) GetPendingInputs(clientID PlayerID) []InputMessage[I] {
	iq.mu.Lock()
	defer iq.mu.Unlock()
	return dedupeBySeq(iq.queues[clientID])
}

// GetAllPendingInputsBatched возвращает снимок всех очередей на момент тика
func (iq *InputQueue[I]) GetAllPendingInputsBatched() map[PlayerID][]InputMessage[I] {
	iq.mu.Lock()
	defer iq.mu.Unlock()

	batch := make(map[PlayerID][]InputMessage[I], len(iq.queues))
	for clientID, queue := range iq.queues {
		if len(queue) == 0 {
			continue
		}
		batch[clientID] = dedupeBySeq(queue)
	}
	return batch
}

// Acknowledge удаляет из очереди клиента записи с seq <= seq и обновляет lastAcked
func (iq *InputQueue[I]) Acknowledge(clientID PlayerID, seq int64) {
	iq.mu.Lock()
	defer iq.mu.Unlock()

	if acked, ok := iq.lastAcked[clientID]; !ok || seq > acked {
		iq.lastAcked[clientID] = seq
	}

	queue := iq.queues[clientID]
	remaining := queue[:0]
	for _, msg := range queue {
		if msg.Seq > seq {
			remaining = append(remaining, msg)
		}
	}
	iq.queues[clientID] = remaining
}

// LastAcked возвращает последний подтверждённый seq клиента (-1, если вводов не было)
func (iq *InputQueue[I]) LastAcked(clientID PlayerID) int64 {
	iq.mu.Lock()
	defer iq.mu.Unlock()

	if acked, ok := iq.lastAcked[clientID]; ok {
		return acked
	}
	return -1
}

// AddClient регистрирует клиента с пустой очередью
func (iq *InputQueue[I]) AddClient(clientID PlayerID) {
	iq.mu.Lock()
	defer iq.mu.Unlock()

	if _, exists := iq.queues[clientID]; !exists {
		iq.queues[clientID] = make([]InputMessage[I], 0, 8)
	}
}

// RemoveClient полностью удаляет очередь и курсор подтверждений клиента
func (iq *InputQueue[I]) RemoveClient(clientID PlayerID) {
	iq.mu.Lock()
	defer iq.mu.Unlock()

	delete(iq.queues, clientID)
	delete(iq.lastAcked, clientID)
}

// PendingCount возвращает суммарное количество вводов во всех очередях
func (iq *InputQueue[I]) PendingCount() int {
	iq.mu.Lock()
	defer iq.mu.Unlock()

	total := 0
	for _, queue := range iq.queues {
		total += len(queue)
	}
	return total
}

// dedupeBySeq сортирует по seq и убирает дубликаты (оставляя первый)
func dedupeBySeq[I any](queue []InputMessage[I]) []InputMessage[I] {
	if len(queue) == 0 {
		return nil
	}

	result := make([]InputMessage[I], len(queue))
	copy(result, queue)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})

	deduped := result[:1]
	for _, msg := range result[1:] {
		if msg.Seq != deduped[len(deduped)-1].Seq {
			deduped = append(deduped, msg)
		}
	}
	return deduped
}
