package game

import (
	"github.com/annel0/netcode/internal/netcode"
	"github.com/annel0/netcode/internal/vec"
)

// Scope клиентские возможности предсказания для платформера.
// Реализует netcode.PredictionScope и netcode.PlayerLister.
type Scope struct{}

// StepLocalOnly применяет ввод к локальному игроку; остальные продвигаются
// idle-шагом, чтобы их пассивная физика не протухала во время реплея
func (Scope) StepLocalOnly(world World, localPlayerID netcode.PlayerID, input Input, deltaMs float64) World {
	inputs := make(map[netcode.PlayerID]Input, len(world.Players))
	for id := range world.Players {
		if id == localPlayerID {
			inputs[id] = input
		} else {
			inputs[id] = Input{}
		}
	}
	return Simulate(world, inputs, deltaMs)
}

// ExtractLocalPlayer достаёт локального игрока для MergeWithServer
func (Scope) ExtractLocalPlayer(world World, localPlayerID netcode.PlayerID) (interface{}, bool) {
	player, ok := world.Players[localPlayerID]
	if !ok {
		return nil, false
	}
	return player, true
}

// ReplaceLocalPlayer возвращает копию мира с подменённым локальным игроком
func (Scope) ReplaceLocalPlayer(world World, localPlayerID netcode.PlayerID, player interface{}) World {
	p, ok := player.(Player)
	if !ok {
		return world
	}

	next := cloneWorld(world)
	next.Players[localPlayerID] = p
	return next
}

// LocalPlayerPosition возвращает позицию игрока для сглаживания
func (Scope) LocalPlayerPosition(world World, playerID netcode.PlayerID) (vec.Vec2, bool) {
	player, ok := world.Players[playerID]
	if !ok {
		return vec.Vec2{}, false
	}
	return player.Pos, true
}

// ListPlayers перечисляет игроков в детерминированном порядке
func (Scope) ListPlayers(world World) []netcode.PlayerID {
	return PlayerIDs(world)
}

// Def собирает полное описание игры для netcode.NewGameServer
func Def(tickIntervalMs float64) netcode.GameDef[World, Input, Action] {
	return netcode.GameDef[World, Input, Action]{
		InitialWorld:    NewWorld(),
		Simulate:        Simulate,
		AddPlayer:       AddPlayer,
		RemovePlayer:    RemovePlayer,
		MergeInputs:     MergeInputs,
		CreateIdleInput: CreateIdleInput,
		ValidateAction:  ValidateAction,
		ApplyAction:     ApplyAction,
		TickIntervalMs:  tickIntervalMs,
	}
}
