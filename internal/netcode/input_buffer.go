package netcode

import (
	"github.com/annel0/netcode/internal/logging"
)

// Лимит неподтверждённых вводов: превышение означает, что сервер перестал
// подтверждать (отвалился или завис) — старые вводы вытесняются
const maxUnackedInputs = 1024

// InputBuffer упорядоченная последовательность локально сгенерированных
// вводов, ожидающих подтверждения сервером. Счётчик seq начинается с 0.
// Не потокобезопасен: клиентские потоки работают на одном кооперативном
// планировщике (см. Client).
type InputBuffer[I any] struct {
	entries  []InputMessage[I]
	nextSeq  int64
	overflow bool
}

// NewInputBuffer создаёт пустой буфер вводов
func NewInputBuffer[I any]() *InputBuffer[I] {
	return &InputBuffer[I]{
		entries: make([]InputMessage[I], 0, 64),
	}
}

// Add назначает вводу следующий порядковый номер и добавляет его в конец
func (ib *InputBuffer[I]) Add(input I, timestamp int64) InputMessage[I] {
	msg := InputMessage[I]{
		Seq:       ib.nextSeq,
		Input:     input,
		Timestamp: timestamp,
	}
	ib.nextSeq++

	if len(ib.entries) >= maxUnackedInputs {
		ib.entries = ib.entries[1:]
		if !ib.overflow {
			ib.overflow = true
			logging.Warn("input buffer переполнен (>%d вводов): сервер не подтверждает вводы", maxUnackedInputs)
		}
	}

	ib.entries = append(ib.entries, msg)
	return msg
}

// Acknowledge удаляет все вводы с seq <= lastSeq
func (ib *InputBuffer[I]) Acknowledge(lastSeq int64) {
	i := 0
	for i < len(ib.entries) && ib.entries[i].Seq <= lastSeq {
		i++
	}
	if i > 0 {
		ib.entries = ib.entries[i:]
		ib.overflow = false
	}
}

// GetUnacknowledged возвращает вводы с seq > lastSeq в порядке возрастания
func (ib *InputBuffer[I]) GetUnacknowledged(lastSeq int64) []InputMessage[I] {
	result := make([]InputMessage[I], 0, len(ib.entries))
	for _, entry := range ib.entries {
		if entry.Seq > lastSeq {
			result = append(result, entry)
		}
	}
	return result
}

// Clear сбрасывает и счётчик seq, и содержимое
func (ib *InputBuffer[I]) Clear() {
	ib.entries = ib.entries[:0]
	ib.nextSeq = 0
	ib.overflow = false
}

// Len возвращает количество неподтверждённых вводов
func (ib *InputBuffer[I]) Len() int {
	return len(ib.entries)
}

// NextSeq возвращает номер, который получит следующий ввод
func (ib *InputBuffer[I]) NextSeq() int64 {
	return ib.nextSeq
}
