package ballistics

import (
	"github.com/annel0/arena-combat/internal/physics"
	"github.com/annel0/arena-combat/internal/vec"
)

// Projectile снаряд из пула. Выдаётся при выстреле и возвращается
// при попадании или по истечении времени жизни.
type Projectile struct {
	Damage       float64
	Position     vec.Vec3
	PrevPosition vec.Vec3
	Velocity     vec.Vec3
	Source       vec.Vec3 // точка выстрела
	SpawnTime    float64
	Lifetime     float64
	LaunchTick   uint64 // кадр выстрела; в этом кадре снаряд не интегрируется
	Owner        uint64 // хэндл оружия
	Weapon       string // тип оружия

	Advanced          bool
	GravityMultiplier float64
	AirResistance     float64
	Mask              physics.LayerMask
}

// ProjectileState снимок летящего снаряда
type ProjectileState struct {
	Damage            float64           `json:"damage"`
	Position          vec.Vec3          `json:"position"`
	Velocity          vec.Vec3          `json:"velocity"`
	Source            vec.Vec3          `json:"source"`
	Age               float64           `json:"age"`
	Lifetime          float64           `json:"lifetime"`
	Owner             uint64            `json:"owner"`
	Weapon            string            `json:"weapon"`
	Advanced          bool              `json:"advanced,omitempty"`
	GravityMultiplier float64           `json:"gravity_multiplier,omitempty"`
	AirResistance     float64           `json:"air_resistance,omitempty"`
	Mask              physics.LayerMask `json:"mask"`
}

// State возвращает снимок снаряда на момент now
func (p *Projectile) State(now float64) ProjectileState {
	return ProjectileState{
		Damage:            p.Damage,
		Position:          p.Position,
		Velocity:          p.Velocity,
		Source:            p.Source,
		Age:               now - p.SpawnTime,
		Lifetime:          p.Lifetime,
		Owner:             p.Owner,
		Weapon:            p.Weapon,
		Advanced:          p.Advanced,
		GravityMultiplier: p.GravityMultiplier,
		AirResistance:     p.AirResistance,
		Mask:              p.Mask,
	}
}

// FromState восстанавливает снаряд из снимка
func FromState(s ProjectileState, now float64, tick uint64) Projectile {
	return Projectile{
		Damage:            s.Damage,
		Position:          s.Position,
		PrevPosition:      s.Position,
		Velocity:          s.Velocity,
		Source:            s.Source,
		SpawnTime:         now - s.Age,
		Lifetime:          s.Lifetime,
		LaunchTick:        tick,
		Owner:             s.Owner,
		Weapon:            s.Weapon,
		Advanced:          s.Advanced,
		GravityMultiplier: s.GravityMultiplier,
		AirResistance:     s.AirResistance,
		Mask:              s.Mask,
	}
}
