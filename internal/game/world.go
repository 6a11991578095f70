// Package game пример игры поверх netcode-ядра: 2D-платформер с гравитацией,
// прыжками и ближними атаками. Служит одновременно демонстрацией и
// интеграционной нагрузкой для всех хуков GameDef.
package game

import (
	"sort"

	"github.com/annel0/netcode/internal/netcode"
	"github.com/annel0/netcode/internal/physics"
	"github.com/annel0/netcode/internal/vec"
)

// Player состояние одного игрока.
// Значимые типы без указателей: мир копируется на каждом тике.
type Player struct {
	ID       netcode.PlayerID `json:"id"`
	Pos      vec.Vec2         `json:"pos"`
	Vel      vec.Vec2         `json:"vel"`
	OnGround bool             `json:"onGround"`
	Health   int              `json:"health"`
	Facing   float64          `json:"facing"` // -1 влево, +1 вправо
}

// Platform статическая платформа уровня
type Platform struct {
	Pos      vec.Vec2            `json:"pos"`
	Collider physics.BoxCollider `json:"collider"`
}

// World полное состояние матча.
// Платформы неизменны после создания; игроки копируются на каждом тике.
type World struct {
	Players   map[netcode.PlayerID]Player `json:"players"`
	Platforms []Platform                  `json:"platforms"`
}

// Параметры уровня и игроков
const (
	SpawnX       = 100.0
	SpawnY       = 0.0
	GroundY      = 400.0 // Y растёт вниз
	MaxHealth    = 100
	PlayerWidth  = 24.0
	PlayerHeight = 32.0
)

// NewWorld создаёт стартовый мир с фиксированным набором платформ
func NewWorld() World {
	return World{
		Players: map[netcode.PlayerID]Player{},
		Platforms: []Platform{
			{Pos: vec.Vec2{X: 250, Y: 320}, Collider: physics.NewBoxCollider(120, 16)},
			{Pos: vec.Vec2{X: 450, Y: 250}, Collider: physics.NewBoxCollider(120, 16)},
			{Pos: vec.Vec2{X: 650, Y: 320}, Collider: physics.NewBoxCollider(120, 16)},
		},
	}
}

// AddPlayer добавляет игрока на точку спавна; повторное добавление — no-op
func AddPlayer(world World, playerID netcode.PlayerID) World {
	if _, exists := world.Players[playerID]; exists {
		return world
	}

	next := cloneWorld(world)
	next.Players[playerID] = Player{
		ID:     playerID,
		Pos:    vec.Vec2{X: SpawnX, Y: SpawnY},
		Health: MaxHealth,
		Facing: 1,
	}
	return next
}

// RemovePlayer удаляет игрока; удаление отсутствующего — no-op
func RemovePlayer(world World, playerID netcode.PlayerID) World {
	if _, exists := world.Players[playerID]; !exists {
		return world
	}

	next := cloneWorld(world)
	delete(next.Players, playerID)
	return next
}

// PlayerIDs возвращает идентификаторы игроков в детерминированном порядке
func PlayerIDs(world World) []netcode.PlayerID {
	ids := make([]netcode.PlayerID, 0, len(world.Players))
	for id := range world.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// cloneWorld копирует мир с новой картой игроков; платформы разделяются
func cloneWorld(world World) World {
	players := make(map[netcode.PlayerID]Player, len(world.Players))
	for id, p := range world.Players {
		players[id] = p
	}
	return World{Players: players, Platforms: world.Platforms}
}
