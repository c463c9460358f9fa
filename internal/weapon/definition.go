// Package weapon описывает оружие арены: неизменяемые определения из каталога,
// экземпляры с машиной состояний (огонь, перезарядка, отдача) и менеджер их жизненного цикла.
package weapon

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/annel0/arena-combat/internal/combat"
	"github.com/annel0/arena-combat/internal/vec"
)

var (
	ErrUnknownWeaponType   = errors.New("weapon: unknown weapon type")
	ErrMissingCapability   = errors.New("weapon: entity lacks required capability")
	ErrInvalidDefinition   = errors.New("weapon: invalid definition")
	ErrUnknownWeapon       = errors.New("weapon: unknown weapon handle")
	ErrDuplicateDefinition = errors.New("weapon: duplicate weapon type")
)

// Type тег типа оружия (ключ каталога)
type Type string

// Category поведенческая категория оружия
type Category string

const (
	CategoryMelee   Category = "melee"
	CategoryRanged  Category = "ranged"
	CategoryMagic   Category = "magic"
	CategoryShield  Category = "shield"
	CategorySpecial Category = "special"
)

// Valid сообщает, известна ли категория
func (c Category) Valid() bool {
	switch c {
	case CategoryMelee, CategoryRanged, CategoryMagic, CategoryShield, CategorySpecial:
		return true
	}
	return false
}

// ShotKind как категория доставляет выстрел
type ShotKind int

const (
	ShotNone       ShotKind = iota // щиты не стреляют
	ShotSweep                      // мгновенный удар на длину reach
	ShotProjectile                 // снаряд из пула
)

func (k ShotKind) String() string {
	switch k {
	case ShotSweep:
		return "sweep"
	case ShotProjectile:
		return "projectile"
	default:
		return "none"
	}
}

// shotKind определяет способ выстрела для категории
func shotKind(c Category) ShotKind {
	switch c {
	case CategoryMelee:
		return ShotSweep
	case CategoryRanged, CategoryMagic, CategorySpecial:
		return ShotProjectile
	default:
		return ShotNone
	}
}

// canFire щит блокирует, но не стреляет
func canFire(c Category) bool {
	return shotKind(c) != ShotNone
}

// RequiredCapability возвращает возможность, которую должна предоставить сущность
func RequiredCapability(c Category) combat.Capability {
	switch c {
	case CategoryMelee:
		return combat.CapMelee
	case CategoryRanged:
		return combat.CapRanged
	case CategoryMagic:
		return combat.CapMagic
	case CategoryShield:
		return combat.CapShield
	case CategorySpecial:
		return combat.CapSpecial
	}
	return combat.CapNone
}

// DefaultReach длина удара ближнего боя, если в определении не задана
const DefaultReach = 1.5

// Definition неизменяемое описание типа оружия. Время в секундах.
type Definition struct {
	Type                Type        `yaml:"type" json:"type"`
	Category            Category    `yaml:"category" json:"category"`
	Damage              float64     `yaml:"damage" json:"damage"`
	MagazineSize        int         `yaml:"magazine_size" json:"magazine_size"` // 0 — без магазина
	FireInterval        float64     `yaml:"fire_interval" json:"fire_interval"`
	ReloadDuration      float64     `yaml:"reload_duration" json:"reload_duration"`
	RecoilDuration      float64     `yaml:"recoil_duration" json:"recoil_duration"`
	RecoilForce         vec.Vec3    `yaml:"recoil_force" json:"recoil_force"`
	RecoilPositionCurve Curve       `yaml:"recoil_position_curve" json:"recoil_position_curve,omitempty"`
	RecoilRotationCurve Curve       `yaml:"recoil_rotation_curve" json:"recoil_rotation_curve,omitempty"`
	Prefab              string      `yaml:"prefab" json:"prefab"`
	MuzzleOffset        vec.Vec3    `yaml:"muzzle_offset" json:"muzzle_offset"`
	MuzzleEffect        string      `yaml:"muzzle_effect" json:"muzzle_effect,omitempty"`
	FireSound           string      `yaml:"fire_sound" json:"fire_sound,omitempty"`
	ReloadSound         string      `yaml:"reload_sound" json:"reload_sound,omitempty"`
	ProjectileSpeed     float64     `yaml:"projectile_speed" json:"projectile_speed,omitempty"` // 0 — скорость из настроек баллистики
	Reach               float64     `yaml:"reach" json:"reach,omitempty"`
	SpreadDegrees       float64     `yaml:"spread_degrees" json:"spread_degrees,omitempty"`
	Consumable          bool        `yaml:"consumable" json:"consumable,omitempty"` // одноразовое: магазин не перезаряжается
	Shield              *ShieldSpec `yaml:"shield" json:"shield,omitempty"`         // только для категории shield
	Description         string      `yaml:"description" json:"description,omitempty"`
}

// UsesMagazine оружие без магазина не расходует боезапас и не перезаряжается
func (d Definition) UsesMagazine() bool {
	return d.MagazineSize > 0
}

// CanReload одноразовое оружие и оружие без магазина не перезаряжаются
func (d Definition) CanReload() bool {
	return d.UsesMagazine() && !d.Consumable
}

// clone копирует определение вместе с кривыми и параметрами щита
func (d Definition) clone() Definition {
	d.RecoilPositionCurve = d.RecoilPositionCurve.clone()
	d.RecoilRotationCurve = d.RecoilRotationCurve.clone()
	if d.Shield != nil {
		spec := *d.Shield
		d.Shield = &spec
	}
	return d
}

// ShotKind возвращает способ доставки выстрела
func (d Definition) ShotKind() ShotKind {
	return shotKind(d.Category)
}

// CanFire сообщает, может ли оружие стрелять в принципе
func (d Definition) CanFire() bool {
	return canFire(d.Category)
}

// EffectiveReach возвращает длину удара ближнего боя
func (d Definition) EffectiveReach() float64 {
	if d.Reach > 0 {
		return d.Reach
	}
	return DefaultReach
}

// Validate проверяет определение. Ошибка оборачивает ErrInvalidDefinition.
func (d Definition) Validate() error {
	var problems []string
	if strings.TrimSpace(string(d.Type)) == "" {
		problems = append(problems, "empty type")
	}
	if !d.Category.Valid() {
		problems = append(problems, fmt.Sprintf("unknown category %q", d.Category))
	}
	checks := []struct {
		name  string
		value float64
	}{
		{"damage", d.Damage},
		{"fire_interval", d.FireInterval},
		{"reload_duration", d.ReloadDuration},
		{"recoil_duration", d.RecoilDuration},
		{"projectile_speed", d.ProjectileSpeed},
		{"reach", d.Reach},
		{"spread_degrees", d.SpreadDegrees},
	}
	for _, c := range checks {
		if c.value < 0 || math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			problems = append(problems, fmt.Sprintf("%s must be a non-negative number", c.name))
		}
	}
	if d.MagazineSize < 0 {
		problems = append(problems, "magazine_size must be >= 0")
	}
	// без магазина стреляет только ближний бой
	if d.MagazineSize == 0 && d.CanFire() && d.Category != CategoryMelee {
		problems = append(problems, fmt.Sprintf("%s weapons need magazine_size > 0", d.Category))
	}
	if d.Consumable && d.MagazineSize == 0 {
		problems = append(problems, "consumable needs magazine_size > 0")
	}
	if d.Shield != nil {
		if d.Category != CategoryShield {
			problems = append(problems, "shield settings on a non-shield weapon")
		} else if err := d.Shield.Validate(); err != nil {
			problems = append(problems, "shield: "+err.Error())
		}
	}
	if !d.RecoilForce.IsFinite() || !d.MuzzleOffset.IsFinite() {
		problems = append(problems, "non-finite vector")
	}
	if err := d.RecoilPositionCurve.Validate(); err != nil {
		problems = append(problems, "recoil_position_curve: "+err.Error())
	}
	if err := d.RecoilRotationCurve.Validate(); err != nil {
		problems = append(problems, "recoil_rotation_curve: "+err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrInvalidDefinition, d.Type, strings.Join(problems, "; "))
	}
	return nil
}
