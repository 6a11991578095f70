package game

import (
	"fmt"

	"github.com/annel0/netcode/internal/netcode"
)

// Параметры ближней атаки
const (
	attackRange  = 48.0
	attackDamage = 25
)

// Action дискретное событие игрока
type Action struct {
	Kind     string           `json:"kind"` // Пока только "attack"
	TargetID netcode.PlayerID `json:"targetId"`
}

// AttackResult полезная нагрузка результата успешной атаки
type AttackResult struct {
	TargetID netcode.PlayerID `json:"targetId"`
	Damage   int              `json:"damage"`
	Killed   bool             `json:"killed"`
}

// ValidateAction проверяет атаку против отмотанного мира: дистанция
// считается по позициям, которые атакующий видел в момент нажатия.
// Состояние не изменяется.
func ValidateAction(action Action, rewound World, current World, attackerID netcode.PlayerID) netcode.ActionResult {
	if action.Kind != "attack" {
		return failure("неизвестное действие: %s", action.Kind)
	}

	attacker, ok := rewound.Players[attackerID]
	if !ok {
		return failure("атакующий %s отсутствует в отмотанном мире", attackerID)
	}

	target, ok := rewound.Players[action.TargetID]
	if !ok {
		return failure("цель %s отсутствует в отмотанном мире", action.TargetID)
	}

	if action.TargetID == attackerID {
		return failure("нельзя атаковать себя")
	}

	if _, alive := current.Players[action.TargetID]; !alive {
		return failure("цель %s уже покинула матч", action.TargetID)
	}

	if attacker.Pos.DistanceTo(target.Pos) > attackRange {
		return failure("цель %s вне досягаемости", action.TargetID)
	}

	currentTarget := current.Players[action.TargetID]
	return netcode.ActionResult{
		Success: true,
		Result: AttackResult{
			TargetID: action.TargetID,
			Damage:   attackDamage,
			Killed:   currentTarget.Health-attackDamage <= 0,
		},
	}
}

// ApplyAction применяет урон валидной атаки к текущему миру.
// Здоровье на нуле возвращает игрока на спавн с полным запасом.
func ApplyAction(world World, action Action, _ netcode.PlayerID) World {
	target, ok := world.Players[action.TargetID]
	if !ok {
		return world
	}

	next := cloneWorld(world)
	target.Health -= attackDamage
	if target.Health <= 0 {
		target.Health = MaxHealth
		target.Pos.X = SpawnX
		target.Pos.Y = SpawnY
		target.Vel.X = 0
		target.Vel.Y = 0
		target.OnGround = false
	}
	next.Players[action.TargetID] = target
	return next
}

func failure(format string, args ...interface{}) netcode.ActionResult {
	return netcode.ActionResult{Success: false, Error: fmt.Sprintf(format, args...)}
}
