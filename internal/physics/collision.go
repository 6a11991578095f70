package physics

import (
	"github.com/annel0/netcode/internal/vec"
)

// BoxCollider прямоугольный коллайдер, центрированный на позиции сущности
type BoxCollider struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewBoxCollider создаёт коллайдер с указанными размерами
func NewBoxCollider(width, height float64) BoxCollider {
	return BoxCollider{Width: width, Height: height}
}

// IsPointInside проверяет, находится ли точка внутри коллайдера
func (bc BoxCollider) IsPointInside(colliderPos, point vec.Vec2) bool {
	halfWidth := bc.Width / 2
	halfHeight := bc.Height / 2

	return point.X >= colliderPos.X-halfWidth &&
		point.X < colliderPos.X+halfWidth &&
		point.Y >= colliderPos.Y-halfHeight &&
		point.Y < colliderPos.Y+halfHeight
}

// CheckBoxCollision проверяет пересечение двух коллайдеров
func CheckBoxCollision(pos1 vec.Vec2, collider1 BoxCollider, pos2 vec.Vec2, collider2 BoxCollider) bool {
	halfWidth1 := collider1.Width / 2
	halfHeight1 := collider1.Height / 2
	halfWidth2 := collider2.Width / 2
	halfHeight2 := collider2.Height / 2

	return pos1.X+halfWidth1 > pos2.X-halfWidth2 &&
		pos1.X-halfWidth1 < pos2.X+halfWidth2 &&
		pos1.Y+halfHeight1 > pos2.Y-halfHeight2 &&
		pos1.Y-halfHeight1 < pos2.Y+halfHeight2
}

// ResolveTopCollision возвращает Y-позицию сущности, стоящей на крыше
// коллайдера platform (Y растёт вниз)
func ResolveTopCollision(platformPos vec.Vec2, platform BoxCollider, entity BoxCollider) float64 {
	return platformPos.Y - platform.Height/2 - entity.Height/2
}
