// Package combat содержит общие контракты между ядром симуляции и внешним миром:
// событие урона, получателя урона, спаунер эффектов и фабрику сущностей.
package combat

import (
	"strings"

	"github.com/annel0/arena-combat/internal/vec"
)

// DamageEvent передаётся получателю по значению
type DamageEvent struct {
	Amount float64  `json:"amount"`
	Point  vec.Vec3 `json:"point"`
	Normal vec.Vec3 `json:"normal"`
	Source vec.Vec3 `json:"source"`
}

// DamageReceiver всё, что может получить урон (мишени, игроки)
type DamageReceiver interface {
	TakeDamage(event DamageEvent)
}

// EffectSpawner воспроизводит визуальные и звуковые эффекты.
// Хэндлы непрозрачны для ядра.
type EffectSpawner interface {
	SpawnEffect(handle string, position vec.Vec3, rotation vec.Quat)
	SpawnAudio(handle string, position vec.Vec3)
}

// NopEffects игнорирует все эффекты
type NopEffects struct{}

func (NopEffects) SpawnEffect(string, vec.Vec3, vec.Quat) {}
func (NopEffects) SpawnAudio(string, vec.Vec3) {}

// Capability битовый набор поведений, которые сущность умеет предоставлять
type Capability uint32

const (
	CapMelee Capability = 1 << iota
	CapRanged
	CapMagic
	CapShield
	CapSpecial

	CapNone Capability = 0
	CapAll             = CapMelee | CapRanged | CapMagic | CapShield | CapSpecial
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapMelee, "melee"},
	{CapRanged, "ranged"},
	{CapMagic, "magic"},
	{CapShield, "shield"},
	{CapSpecial, "special"},
}

// Has сообщает, содержит ли набор все биты want
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

func (c Capability) String() string {
	if c == CapNone {
		return "none"
	}
	var parts []string
	for _, n := range capabilityNames {
		if c&n.c != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseCapability разбирает имя возможности; второе значение false для неизвестных имён
func ParseCapability(name string) (Capability, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "all" {
		return CapAll, true
	}
	for _, n := range capabilityNames {
		if n.name == name {
			return n.c, true
		}
	}
	return CapNone, false
}

// Entity сущность, созданная фабрикой для экземпляра оружия
type Entity interface {
	ID() uint64
	Capabilities() Capability
	Release()
}

// EntityFactory создаёт сущности по префабу
type EntityFactory interface {
	Instantiate(prefab string, position vec.Vec3, rotation vec.Quat) (Entity, error)
}
