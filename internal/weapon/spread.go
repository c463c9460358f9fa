package weapon

import (
	"math"

	"github.com/annel0/arena-combat/internal/vec"
	"github.com/aquilax/go-perlin"
)

const (
	spreadAlpha = 2.
	spreadBeta  = 2.
	spreadN     = 3
	// шаг по шуму между выстрелами; нецелый, т.к. в целых точках шум Перлина равен 0
	spreadStep = 0.618
)

// Spread даёт детерминированный разброс выстрелов по номеру выстрела.
// Соседние выстрелы отклоняются похоже, как при настоящей очереди.
type Spread struct {
	noise *perlin.Perlin
}

// NewSpread создаёт генератор разброса с зерном seed
func NewSpread(seed int64) *Spread {
	return &Spread{noise: perlin.NewPerlin(spreadAlpha, spreadBeta, spreadN, seed)}
}

// Deviation возвращает отклонение (yaw, pitch) в градусах, не больше maxDegrees по модулю
func (s *Spread) Deviation(shot uint64, maxDegrees float64) (yaw, pitch float64) {
	if maxDegrees <= 0 || s == nil {
		return 0, 0
	}
	x := float64(shot)*spreadStep + 0.5
	yaw = clampUnit(s.noise.Noise2D(x, 0.25)) * maxDegrees
	pitch = clampUnit(s.noise.Noise2D(x, 7.75)) * maxDegrees
	return yaw, pitch
}

// Direction возвращает мировое направление выстрела с учётом разброса
func (s *Spread) Direction(rotation vec.Quat, shot uint64, maxDegrees float64) vec.Vec3 {
	yaw, pitch := s.Deviation(shot, maxDegrees)
	local := vec.FromEuler(vec.Vec3{X: pitch, Y: yaw}).Rotate(vec.Forward)
	return rotation.Rotate(local).Normalized()
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}
