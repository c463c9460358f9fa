package weapon

import (
	"errors"
	"fmt"
	"math"

	"github.com/annel0/arena-combat/internal/vec"
)

// ShieldMode способ, которым щит гасит попадание
type ShieldMode string

const (
	ShieldEnergy     ShieldMode = "energy"     // энергетический буфер, остаток бьёт по прочности
	ShieldReflective ShieldMode = "reflective" // доля урона отражается
	ShieldAbsorb     ShieldMode = "absorb"     // доля урона поглощается
)

// Valid сообщает, известен ли режим
func (m ShieldMode) Valid() bool {
	switch m {
	case ShieldEnergy, ShieldReflective, ShieldAbsorb:
		return true
	}
	return false
}

// DefaultShieldDurability прочность щита, если она не задана
const DefaultShieldDurability = 100.0

// DefaultShieldHalfExtents полуразмеры коллайдера щита
var DefaultShieldHalfExtents = vec.Vec3{X: 0.4, Y: 0.6, Z: 0.05}

// ShieldSpec параметры щита в определении оружия
type ShieldSpec struct {
	Mode         ShieldMode `yaml:"mode" json:"mode"`
	Durability   float64    `yaml:"durability" json:"durability"`
	RechargeRate float64    `yaml:"recharge_rate" json:"recharge_rate"` // прочность и энергия в секунду
	Energy       float64    `yaml:"energy" json:"energy,omitempty"`     // буфер режима energy
	Ratio        float64    `yaml:"ratio" json:"ratio,omitempty"`       // доля отражения или поглощения, [0,1]
	HalfExtents  vec.Vec3   `yaml:"half_extents" json:"half_extents"`
}

// Validate проверяет параметры щита
func (s ShieldSpec) Validate() error {
	if s.Mode != "" && !s.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", s.Mode)
	}
	for _, v := range []float64{s.Durability, s.RechargeRate, s.Energy} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("durability, recharge_rate and energy must be non-negative numbers")
		}
	}
	if s.Ratio < 0 || s.Ratio > 1 || math.IsNaN(s.Ratio) {
		return errors.New("ratio must be within [0,1]")
	}
	h := s.HalfExtents
	if !h.IsFinite() || h.X < 0 || h.Y < 0 || h.Z < 0 {
		return errors.New("half_extents must be non-negative")
	}
	return nil
}

// withDefaults подставляет режим, прочность и размеры, если они не заданы
func (s ShieldSpec) withDefaults() ShieldSpec {
	if s.Mode == "" {
		s.Mode = ShieldEnergy
	}
	if s.Durability == 0 {
		s.Durability = DefaultShieldDurability
	}
	if s.HalfExtents == vec.Zero {
		s.HalfExtents = DefaultShieldHalfExtents
	}
	return s
}

// ShieldHit итог одного удара по щиту
type ShieldHit struct {
	Absorbed  float64 // погашено без потери прочности
	Reflected float64
	Lost      float64 // потеря прочности
	Broken    bool    // прочность исчерпана этим ударом
}

// Shield состояние щита экземпляра. Поднимается и опускается командами,
// разрушается при нулевой прочности и восстанавливается каждый кадр.
type Shield struct {
	spec       ShieldSpec
	active     bool
	durability float64
	energy     float64
}

func newShield(spec ShieldSpec) *Shield {
	return &Shield{spec: spec, durability: spec.Durability, energy: spec.Energy}
}

// Activate поднимает щит. Разрушенный щит не поднимается.
func (s *Shield) Activate() bool {
	if s.durability <= 0 {
		return false
	}
	s.active = true
	return true
}

// Deactivate опускает щит; false, если он уже опущен
func (s *Shield) Deactivate() bool {
	was := s.active
	s.active = false
	return was
}

func (s *Shield) Active() bool          { return s.active }
func (s *Shield) Durability() float64   { return s.durability }
func (s *Shield) Energy() float64       { return s.energy }
func (s *Shield) Mode() ShieldMode      { return s.spec.Mode }
func (s *Shield) HalfExtents() vec.Vec3 { return s.spec.HalfExtents }

// Absorb гасит урон по правилам режима. Опущенный щит урон не принимает.
func (s *Shield) Absorb(damage float64) ShieldHit {
	var hit ShieldHit
	if !s.active || damage <= 0 || math.IsNaN(damage) {
		return hit
	}

	switch s.spec.Mode {
	case ShieldReflective:
		hit.Reflected = damage * s.spec.Ratio
		hit.Lost = damage - hit.Reflected
	case ShieldAbsorb:
		hit.Absorbed = damage * s.spec.Ratio
		hit.Lost = damage - hit.Absorbed
	default:
		hit.Absorbed = math.Min(damage, s.energy)
		s.energy -= hit.Absorbed
		hit.Lost = damage - hit.Absorbed
	}

	s.durability = math.Max(s.durability-hit.Lost, 0)
	if s.durability == 0 {
		s.active = false
		hit.Broken = true
	}
	return hit
}

// Recharge восстанавливает прочность и энергию за dt секунд
func (s *Shield) Recharge(dt float64) {
	if dt <= 0 || s.spec.RechargeRate <= 0 {
		return
	}
	gain := s.spec.RechargeRate * dt
	s.durability = math.Min(s.durability+gain, s.spec.Durability)
	s.energy = math.Min(s.energy+gain, s.spec.Energy)
}

// Bounds возвращает AABB щита для позы t с учётом поворота
func (s *Shield) Bounds(t Transform) (lo, hi vec.Vec3) {
	h := s.spec.HalfExtents
	ax := t.Rotation.Rotate(vec.Vec3{X: h.X})
	ay := t.Rotation.Rotate(vec.Vec3{Y: h.Y})
	az := t.Rotation.Rotate(vec.Vec3{Z: h.Z})
	extent := vec.Vec3{
		X: math.Abs(ax.X) + math.Abs(ay.X) + math.Abs(az.X),
		Y: math.Abs(ax.Y) + math.Abs(ay.Y) + math.Abs(az.Y),
		Z: math.Abs(ax.Z) + math.Abs(ay.Z) + math.Abs(az.Z),
	}
	return t.Position.Sub(extent), t.Position.Add(extent)
}

// ShieldState снимок щита
type ShieldState struct {
	Mode          ShieldMode `json:"mode"`
	Active        bool       `json:"active"`
	Durability    float64    `json:"durability"`
	MaxDurability float64    `json:"max_durability"`
	Energy        float64    `json:"energy"`
}

func (s *Shield) state() *ShieldState {
	return &ShieldState{
		Mode:          s.spec.Mode,
		Active:        s.active,
		Durability:    s.durability,
		MaxDurability: s.spec.Durability,
		Energy:        s.energy,
	}
}

func (s *Shield) restore(st ShieldState) {
	s.durability = math.Min(math.Max(st.Durability, 0), s.spec.Durability)
	s.energy = math.Min(math.Max(st.Energy, 0), s.spec.Energy)
	s.active = st.Active && s.durability > 0
}
