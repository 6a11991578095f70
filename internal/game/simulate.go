package game

import (
	"github.com/annel0/netcode/internal/netcode"
	"github.com/annel0/netcode/internal/physics"
)

// Input потиковый ввод игрока
type Input struct {
	MoveX float64 `json:"moveX"` // [-1, 1]
	Jump  bool    `json:"jump"`  // Edge-triggered: нажатие, не удержание
}

// Физика в единицах на миллисекунду, чтобы Simulate была честной к дельте
const (
	moveSpeed    = 0.25   // ед/мс горизонтальной скорости при полном вводе
	gravity      = 0.0015 // ед/мс^2
	jumpVelocity = -0.55  // Импульс прыжка (Y растёт вниз)
	friction     = 0.006  // Затухание горизонтальной скорости в воздухе, 1/мс
)

// Simulate продвигает мир на один тик.
// Чистая функция: возвращает новый мир, аргумент не мутируется.
// Продвигаются только игроки, присутствующие в inputs.
func Simulate(world World, inputs map[netcode.PlayerID]Input, deltaMs float64) World {
	next := cloneWorld(world)

	for id, input := range inputs {
		player, exists := next.Players[id]
		if !exists {
			continue
		}
		next.Players[id] = stepPlayer(player, input, deltaMs, next.Platforms)
	}

	return next
}

// stepPlayer физика одного игрока на одну дельту
func stepPlayer(p Player, input Input, deltaMs float64, platforms []Platform) Player {
	// Горизонталь: прямое управление скоростью на земле, инерция в воздухе
	if p.OnGround || input.MoveX != 0 {
		p.Vel.X = input.MoveX * moveSpeed
	} else {
		decay := 1 - friction*deltaMs
		if decay < 0 {
			decay = 0
		}
		p.Vel.X *= decay
	}

	if input.MoveX > 0 {
		p.Facing = 1
	} else if input.MoveX < 0 {
		p.Facing = -1
	}

	if input.Jump && p.OnGround {
		p.Vel.Y = jumpVelocity
		p.OnGround = false
	}

	p.Vel.Y += gravity * deltaMs

	prevY := p.Pos.Y
	p.Pos.X += p.Vel.X * deltaMs
	p.Pos.Y += p.Vel.Y * deltaMs

	p.OnGround = false

	// Земля
	groundTop := GroundY - PlayerHeight/2
	if p.Pos.Y >= groundTop {
		p.Pos.Y = groundTop
		p.Vel.Y = 0
		p.OnGround = true
	}

	// Платформы: посадка только при движении вниз сквозь крышу
	if p.Vel.Y >= 0 {
		collider := physics.NewBoxCollider(PlayerWidth, PlayerHeight)
		for _, platform := range platforms {
			top := physics.ResolveTopCollision(platform.Pos, platform.Collider, collider)
			if prevY <= top && p.Pos.Y >= top &&
				physics.CheckBoxCollision(p.Pos, collider, platform.Pos, platform.Collider) {
				p.Pos.Y = top
				p.Vel.Y = 0
				p.OnGround = true
				break
			}
		}
	}

	return p
}

// MergeInputs схлопывает вводы одного тика: последний MoveX побеждает,
// прыжок выживает, если был нажат хотя бы в одном вводе
func MergeInputs(inputs []Input) Input {
	if len(inputs) == 0 {
		return Input{}
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

// CreateIdleInput ввод "ничего не делать" для молчащих клиентов
func CreateIdleInput(_ netcode.PlayerID) Input {
	return Input{}
}
