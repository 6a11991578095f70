package netcode

import "sync"

// pendingAction действие, ожидающее начала следующего тика
type pendingAction[A any] struct {
	playerID PlayerID
	msg      ActionMessage[A]
}

// ActionQueue очередь дискретных действий в порядке получения.
// Enqueue вызывается из сокетных горутин, DrainAll — из тикового потока
// перед Simulate.
type ActionQueue[A any] struct {
	mu      sync.Mutex
	pending []pendingAction[A]
}

// NewActionQueue создаёт пустую очередь действий
func NewActionQueue[A any]() *ActionQueue[A] {
	return &ActionQueue[A]{
		pending: make([]pendingAction[A], 0, 16),
	}
}

// Enqueue добавляет действие в хвост очереди
func (aq *ActionQueue[A]) Enqueue(playerID PlayerID, msg ActionMessage[A]) {
	aq.mu.Lock()
	defer aq.mu.Unlock()
	aq.pending = append(aq.pending, pendingAction[A]{playerID: playerID, msg: msg})
}

// DrainAll снимает все ожидающие действия в порядке получения
func (aq *ActionQueue[A]) DrainAll() []pendingAction[A] {
	aq.mu.Lock()
	defer aq.mu.Unlock()

	if len(aq.pending) == 0 {
		return nil
	}

	drained := aq.pending
	aq.pending = make([]pendingAction[A], 0, 16)
	return drained
}

// RemoveClient отбрасывает действия отключившегося клиента
func (aq *ActionQueue[A]) RemoveClient(playerID PlayerID) {
	aq.mu.Lock()
	defer aq.mu.Unlock()

	remaining := aq.pending[:0]
	for _, pa := range aq.pending {
		if pa.playerID != playerID {
			remaining = append(remaining, pa)
		}
	}
	aq.pending = remaining
}

// Len возвращает количество ожидающих действий
func (aq *ActionQueue[A]) Len() int {
	aq.mu.Lock()
	defer aq.mu.Unlock()
	return len(aq.pending)
}
