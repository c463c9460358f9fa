package physics

import (
	"math"

	"github.com/annel0/arena-combat/internal/combat"
	"github.com/annel0/arena-combat/internal/vec"
)

// BoxCollider представляет осевыровненный прямоугольный коллайдер (AABB)
type BoxCollider struct {
	Name     string
	Min      vec.Vec3
	Max      vec.Vec3
	Layer    LayerMask
	Surface  string                // ключ материала для эффектов попадания
	Receiver combat.DamageReceiver // nil — коллайдер не получает урон
}

// NewBoxCollider создаёт коллайдер по центру и полуразмерам
func NewBoxCollider(name string, center, halfExtents vec.Vec3, layer LayerMask, surface string) *BoxCollider {
	return &BoxCollider{
		Name:    name,
		Min:     center.Sub(halfExtents),
		Max:     center.Add(halfExtents),
		Layer:   layer,
		Surface: surface,
	}
}

// Center возвращает центр коллайдера
func (bc *BoxCollider) Center() vec.Vec3 {
	return bc.Min.Add(bc.Max).Mul(0.5)
}

// IntersectSegment пересекает отрезок from→to с коллайдером методом слэбов.
// Возвращает долю отрезка [0,1] до точки входа и нормаль грани входа.
// Отрезок, начинающийся внутри коллайдера, пересечением не считается.
func (bc *BoxCollider) IntersectSegment(from, to vec.Vec3) (fraction float64, normal vec.Vec3, ok bool) {
	dir := to.Sub(from)
	origin := [3]float64{from.X, from.Y, from.Z}
	delta := [3]float64{dir.X, dir.Y, dir.Z}
	lo := [3]float64{bc.Min.X, bc.Min.Y, bc.Min.Z}
	hi := [3]float64{bc.Max.X, bc.Max.Y, bc.Max.Z}

	tEnter := math.Inf(-1)
	tExit := math.Inf(1)
	enterAxis := -1
	enterSign := 0.0

	for axis := 0; axis < 3; axis++ {
		if math.Abs(delta[axis]) < 1e-12 {
			// Отрезок параллелен слэбу: либо внутри него, либо промах
			if origin[axis] < lo[axis] || origin[axis] > hi[axis] {
				return 0, vec.Zero, false
			}
			continue
		}

		inv := 1 / delta[axis]
		t1 := (lo[axis] - origin[axis]) * inv
		t2 := (hi[axis] - origin[axis]) * inv
		sign := -1.0 // входим через грань min
		if t1 > t2 {
			t1, t2 = t2, t1
			sign = 1.0
		}

		if t1 > tEnter {
			tEnter = t1
			enterAxis = axis
			enterSign = sign
		}
		if t2 < tExit {
			tExit = t2
		}
		if tEnter > tExit {
			return 0, vec.Zero, false
		}
	}

	if enterAxis < 0 || tEnter < 0 || tEnter > 1 || tExit < 0 {
		return 0, vec.Zero, false
	}

	var n [3]float64
	n[enterAxis] = enterSign
	return tEnter, vec.Vec3{X: n[0], Y: n[1], Z: n[2]}, true
}
