package netcode

import "fmt"

// TickProcessor выполняет один авторитетный тик: дренирует очереди вводов,
// сливает вводы каждого клиента в один и вызывает Simulate ровно один раз.
type TickProcessor[W, I any] struct {
	simulate        SimulateFunc[W, I]
	mergeInputs     InputMergerFunc[I]
	createIdleInput CreateIdleInputFunc[I]
	tickIntervalMs  float64
}

// TickResult итог одного тика
type TickResult[W any] struct {
	World     W
	InputAcks map[PlayerID]int64 // Только клиенты, чьи вводы обработаны в этом тике
	Err       error              // Паника Simulate; мир при этом не продвинут
}

// NewTickProcessor создаёт процессор тиков
func NewTickProcessor[W, I any](
	simulate SimulateFunc[W, I],
	mergeInputs InputMergerFunc[I],
	createIdleInput CreateIdleInputFunc[I],
	tickIntervalMs float64,
) *TickProcessor[W, I] {
	return &TickProcessor[W, I]{
		simulate:        simulate,
		mergeInputs:     mergeInputs,
		createIdleInput: createIdleInput,
		tickIntervalMs:  tickIntervalMs,
	}
}

// ProcessTick строит карту слитых вводов и продвигает мир на один тик.
// Для молчащих клиентов вставляется idle-ввод, чтобы Simulate единообразно
// применял пассивную физику (гравитацию, трение) всем игрокам. Simulate
// вызывается ровно один раз независимо от количества вводов любого клиента.
func (tp *TickProcessor[W, I]) ProcessTick(
	world W,
	batched map[PlayerID][]InputMessage[I],
	connectedClients []PlayerID,
) TickResult[W] {
	merged := make(map[PlayerID]I, len(connectedClients))
	acks := make(map[PlayerID]int64)

	for _, clientID := range connectedClients {
		messages := batched[clientID]
		if len(messages) == 0 {
			merged[clientID] = tp.createIdleInput(clientID)
			continue
		}

		inputs := make([]I, len(messages))
		for i, msg := range messages {
			inputs[i] = msg.Input
		}
		merged[clientID] = tp.mergeInputs(inputs)

		// batched упорядочен по seq: старший — последний
		acks[clientID] = messages[len(messages)-1].Seq
	}

	next, err := tp.runSimulate(world, merged)
	if err != nil {
		return TickResult[W]{World: world, Err: err}
	}

	return TickResult[W]{World: next, InputAcks: acks}
}

// runSimulate изолирует панику пользовательского Simulate: тик отбрасывается,
// предыдущий мир сохраняется, цикл продолжает жить
func (tp *TickProcessor[W, I]) runSimulate(world W, merged map[PlayerID]I) (next W, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = world
			err = fmt.Errorf("паника в Simulate: %v", r)
		}
	}()

	next = tp.simulate(world, merged, tp.tickIntervalMs)
	return next, nil
}
