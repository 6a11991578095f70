package netcode

// Reconciler перебазирует клиентские предсказания на свежий авторитетный
// снимок: подтверждает обработанные вводы, ставит снимок базой предиктора
// и реплеит оставшиеся вводы с фиксированной серверной дельтой.
type Reconciler[W, I any] struct {
	predictor      *Predictor[W, I]
	inputBuffer    *InputBuffer[I]
	tickIntervalMs float64
}

// ReconcileResult итог одной реконсиляции
type ReconcileResult[W any] struct {
	World         W       // Новая основа рендера: merge предсказания с сервером
	Replayed      int     // Сколько неподтверждённых вводов реплеено
	LastAckedSeq  int64   // Подтверждённый сервером seq (-1, если вводов не было)
	HasCorrection bool    // Локальный игрок сместился при перебазировании
	CorrectionX   float64 // Дельта до-реконсиляции минус после (для сглаживания)
	CorrectionY   float64
}

// NewReconciler создаёт реконсилятор поверх предиктора и буфера вводов
func NewReconciler[W, I any](predictor *Predictor[W, I], inputBuffer *InputBuffer[I], tickIntervalMs float64) *Reconciler[W, I] {
	return &Reconciler[W, I]{
		predictor:      predictor,
		inputBuffer:    inputBuffer,
		tickIntervalMs: tickIntervalMs,
	}
}

// Reconcile обрабатывает авторитетный снимок.
// Реплей идёт с фиксированной серверной дельтой — это намеренно: живое
// предсказание использует wall-clock, но сходимость к серверной траектории
// требует серверного тикового интервала.
func (r *Reconciler[W, I]) Reconcile(snapshot Snapshot[W], localPlayerID PlayerID) ReconcileResult[W] {
	lastProcessedSeq := int64(-1)
	if seq, ok := snapshot.InputAcks[localPlayerID]; ok {
		lastProcessedSeq = seq
	}

	r.inputBuffer.Acknowledge(lastProcessedSeq)

	// Позиция до перебазирования — для плавной коррекции смузера
	beforeX, beforeY, hasBefore := r.predictor.LocalPlayerPosition()

	r.predictor.SetBaseState(snapshot.State, localPlayerID)

	pending := r.inputBuffer.GetUnacknowledged(lastProcessedSeq)
	for _, msg := range pending {
		r.predictor.ApplyInputWithDelta(msg, r.tickIntervalMs)
	}

	result := ReconcileResult[W]{
		World:        r.predictor.MergeWithServer(snapshot.State),
		Replayed:     len(pending),
		LastAckedSeq: lastProcessedSeq,
	}

	if hasBefore {
		if afterX, afterY, hasAfter := r.predictor.LocalPlayerPosition(); hasAfter {
			result.CorrectionX = beforeX - afterX
			result.CorrectionY = beforeY - afterY
			result.HasCorrection = result.CorrectionX != 0 || result.CorrectionY != 0
		}
	}

	return result
}
