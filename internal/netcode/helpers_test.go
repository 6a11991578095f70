package netcode

import (
	"github.com/annel0/netcode/internal/vec"
)

// Тестовая игра: точки на плоскости с прямым управлением скоростью.
// Физика нарочно тривиальная, чтобы ожидания считались вручную.

type testPlayer struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VY float64 `json:"vy"`
}

type testWorld struct {
	Players map[PlayerID]testPlayer `json:"players"`
}

type testInput struct {
	Dx   float64 `json:"dx"`
	Jump bool    `json:"jump"`
}

// Скорость движения в единицах на миллисекунду
const testSpeed = 0.1

// Пассивная "гравитация" для проверки idle-шагов
const testGravity = 0.01

func newTestWorld(ids ...PlayerID) testWorld {
	players := make(map[PlayerID]testPlayer, len(ids))
	for _, id := range ids {
		players[id] = testPlayer{}
	}
	return testWorld{Players: players}
}

func cloneTestWorld(w testWorld) testWorld {
	players := make(map[PlayerID]testPlayer, len(w.Players))
	for id, p := range w.Players {
		players[id] = p
	}
	return testWorld{Players: players}
}

func stepTestPlayer(p testPlayer, in testInput, deltaMs float64) testPlayer {
	p.X += in.Dx * testSpeed * deltaMs
	if in.Jump {
		p.VY = -1
	}
	p.Y += p.VY * deltaMs
	p.VY += testGravity * deltaMs
	return p
}

func testSimulate(w testWorld, inputs map[PlayerID]testInput, deltaMs float64) testWorld {
	next := cloneTestWorld(w)
	for id, in := range inputs {
		p, ok := next.Players[id]
		if !ok {
			continue
		}
		next.Players[id] = stepTestPlayer(p, in, deltaMs)
	}
	return next
}

func testAddPlayer(w testWorld, id PlayerID) testWorld {
	if _, exists := w.Players[id]; exists {
		return w
	}
	next := cloneTestWorld(w)
	next.Players[id] = testPlayer{}
	return next
}

func testRemovePlayer(w testWorld, id PlayerID) testWorld {
	if _, exists := w.Players[id]; !exists {
		return w
	}
	next := cloneTestWorld(w)
	delete(next.Players, id)
	return next
}

func testMergeInputs(inputs []testInput) testInput {
	if len(inputs) == 0 {
		return testInput{}
	}
	merged := inputs[len(inputs)-1]
	for _, in := range inputs {
		if in.Jump {
			merged.Jump = true
			break
		}
	}
	return merged
}

func testCreateIdleInput(_ PlayerID) testInput {
	return testInput{}
}

// testScope клиентские возможности тестовой игры
type testScope struct{}

func (testScope) StepLocalOnly(w testWorld, localID PlayerID, in testInput, deltaMs float64) testWorld {
	inputs := make(map[PlayerID]testInput, len(w.Players))
	for id := range w.Players {
		if id == localID {
			inputs[id] = in
		} else {
			inputs[id] = testInput{}
		}
	}
	return testSimulate(w, inputs, deltaMs)
}

func (testScope) ExtractLocalPlayer(w testWorld, localID PlayerID) (interface{}, bool) {
	p, ok := w.Players[localID]
	if !ok {
		return nil, false
	}
	return p, true
}

func (testScope) ReplaceLocalPlayer(w testWorld, localID PlayerID, player interface{}) testWorld {
	p, ok := player.(testPlayer)
	if !ok {
		return w
	}
	next := cloneTestWorld(w)
	next.Players[localID] = p
	return next
}

func (testScope) LocalPlayerPosition(w testWorld, id PlayerID) (vec.Vec2, bool) {
	p, ok := w.Players[id]
	if !ok {
		return vec.Vec2{}, false
	}
	return vec.Vec2{X: p.X, Y: p.Y}, true
}

func (testScope) ListPlayers(w testWorld) []PlayerID {
	ids := make([]PlayerID, 0, len(w.Players))
	for id := range w.Players {
		ids = append(ids, id)
	}
	return ids
}

func testGameDef() GameDef[testWorld, testInput, struct{}] {
	return GameDef[testWorld, testInput, struct{}]{
		InitialWorld:    newTestWorld(),
		Simulate:        testSimulate,
		AddPlayer:       testAddPlayer,
		RemovePlayer:    testRemovePlayer,
		MergeInputs:     testMergeInputs,
		CreateIdleInput: testCreateIdleInput,
		TickIntervalMs:  1000.0 / 60.0,
	}
}
