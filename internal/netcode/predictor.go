package netcode

// Границы клампа wall-clock дельты между соседними вводами.
// Защищают физику от пауз вкладки и нулевых интервалов.
const (
	minPredictDeltaMs = 1.0
	maxPredictDeltaMs = 100.0
)

// Predictor держит "базовый" мир из последнего авторитетного снимка и
// предсказанный мир, полученный реплеем локальных вводов поверх базы.
// Во время живого предсказания применяет wall-clock дельты (движение
// ощущается одинаково при любом FPS); реплей реконсиляции идёт с
// фиксированной серверной дельтой через ApplyInputWithDelta — эти два
// режима намеренно не унифицированы.
type Predictor[W, I any] struct {
	scope         PredictionScope[W, I]
	localPlayerID PlayerID

	baseWorld      W
	predictedWorld W
	hasState       bool

	lastInputTimestamp int64
	defaultDeltaMs     float64 // Один тиковый интервал; применяется к первому вводу после сброса
}

// NewPredictor создаёт предиктор с указанным PredictionScope.
// defaultDeltaMs должен равняться серверному тиковому интервалу.
func NewPredictor[W, I any](scope PredictionScope[W, I], defaultDeltaMs float64) *Predictor[W, I] {
	return &Predictor[W, I]{
		scope:          scope,
		defaultDeltaMs: defaultDeltaMs,
	}
}

// SetBaseState заменяет базовый мир и сбрасывает предсказанный на него
func (p *Predictor[W, I]) SetBaseState(world W, localPlayerID PlayerID) {
	p.baseWorld = world
	p.predictedWorld = world
	p.localPlayerID = localPlayerID
	p.hasState = true
}

// ApplyInput продвигает предсказанный мир на один шаг, используя wall-clock
// время между предыдущим и текущим вводом, клампнутое в [1, 100] мс.
// Первый ввод после сброса идёт с дельтой по умолчанию.
func (p *Predictor[W, I]) ApplyInput(msg InputMessage[I]) {
	if !p.hasState {
		return
	}

	deltaMs := p.defaultDeltaMs
	if p.lastInputTimestamp > 0 {
		deltaMs = float64(msg.Timestamp - p.lastInputTimestamp)
		if deltaMs < minPredictDeltaMs {
			deltaMs = minPredictDeltaMs
		} else if deltaMs > maxPredictDeltaMs {
			deltaMs = maxPredictDeltaMs
		}
	}
	p.lastInputTimestamp = msg.Timestamp

	p.predictedWorld = p.scope.StepLocalOnly(p.predictedWorld, p.localPlayerID, msg.Input, deltaMs)
}

// ApplyInputWithDelta продвигает предсказанный мир с явной дельтой.
// Курсор последнего timestamp не трогается: метод используется реплеем
// реконсиляции с фиксированным серверным тиковым интервалом.
func (p *Predictor[W, I]) ApplyInputWithDelta(msg InputMessage[I], deltaMs float64) {
	if !p.hasState {
		return
	}
	p.predictedWorld = p.scope.StepLocalOnly(p.predictedWorld, p.localPlayerID, msg.Input, deltaMs)
}

// MergeWithServer возвращает мир для рендера: копию серверного мира с
// локальным игроком из предсказанного мира. Остальные игроки остаются
// авторитетными, предсказанный локальный игрок перекрывает устаревшие
// серверные данные.
func (p *Predictor[W, I]) MergeWithServer(serverWorld W) W {
	if !p.hasState {
		return serverWorld
	}

	player, ok := p.scope.ExtractLocalPlayer(p.predictedWorld, p.localPlayerID)
	if !ok {
		return serverWorld
	}
	return p.scope.ReplaceLocalPlayer(serverWorld, p.localPlayerID, player)
}

// GetState возвращает текущий предсказанный мир
func (p *Predictor[W, I]) GetState() (W, bool) {
	return p.predictedWorld, p.hasState
}

// LocalPlayerPosition возвращает позицию игрока в предсказанном мире
func (p *Predictor[W, I]) LocalPlayerPosition() (x, y float64, ok bool) {
	if !p.hasState {
		return 0, 0, false
	}
	pos, ok := p.scope.LocalPlayerPosition(p.predictedWorld, p.localPlayerID)
	if !ok {
		return 0, 0, false
	}
	return pos.X, pos.Y, true
}

// Reset сбрасывает предиктор в начальное состояние
func (p *Predictor[W, I]) Reset() {
	var zero W
	p.baseWorld = zero
	p.predictedWorld = zero
	p.hasState = false
	p.lastInputTimestamp = 0
}

// ResetTimestamp сбрасывает курсор последнего ввода: следующий ApplyInput
// пойдёт с дельтой по умолчанию
func (p *Predictor[W, I]) ResetTimestamp() {
	p.lastInputTimestamp = 0
}

// SetLastInputTimestamp устанавливает курсор последнего ввода
func (p *Predictor[W, I]) SetLastInputTimestamp(t int64) {
	p.lastInputTimestamp = t
}
