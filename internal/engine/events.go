package engine

import (
	"time"

	"github.com/annel0/arena-combat/internal/ballistics"
	"github.com/annel0/arena-combat/internal/vec"
	"github.com/annel0/arena-combat/internal/weapon"
)

// EventKind тип события симуляции
type EventKind string

const (
	EventWeaponSpawned     EventKind = "weapon.spawned"
	EventWeaponDestroyed   EventKind = "weapon.destroyed"
	EventFired             EventKind = "weapon.fired"
	EventFireRejected      EventKind = "weapon.fire_rejected"
	EventReloadStarted     EventKind = "weapon.reload_started"
	EventReloadRejected    EventKind = "weapon.reload_rejected"
	EventReloadCompleted   EventKind = "weapon.reload_completed"
	EventImpact            EventKind = "projectile.impact"
	EventProjectileExpired EventKind = "projectile.expired"
	EventShieldRaised      EventKind = "shield.raised"
	EventShieldLowered     EventKind = "shield.lowered"
	EventShieldRejected    EventKind = "shield.rejected"
	EventShieldHit         EventKind = "shield.hit"
	EventShieldBroken      EventKind = "shield.broken"
)

// Event событие одного кадра. Заполняются только поля, относящиеся к виду события.
// Ammo публикуется всегда: ноль означает опустевший магазин.
type Event struct {
	Kind       EventKind     `json:"kind"`
	Tick       uint64        `json:"tick"`
	Time       float64       `json:"time"`
	Weapon     weapon.Handle `json:"weapon,omitempty"`
	WeaponType string        `json:"weapon_type,omitempty"`
	Result     string        `json:"result,omitempty"`
	Ammo       int           `json:"ammo"`
	Damage     float64       `json:"damage,omitempty"`
	Point      vec.Vec3      `json:"point"`
	Normal     vec.Vec3      `json:"normal"`
	Surface    string        `json:"surface,omitempty"`
	Collider   string        `json:"collider,omitempty"`
	Damaged    bool          `json:"damaged,omitempty"`
	Effect     string        `json:"effect,omitempty"`
	Sound      string        `json:"sound,omitempty"`
	Melee      bool          `json:"melee,omitempty"`
	Absorbed   float64       `json:"absorbed,omitempty"`   // shield.hit
	Reflected  float64       `json:"reflected,omitempty"`  // shield.hit
	Durability float64       `json:"durability,omitempty"` // прочность щита после события
}

// TickStats сводка кадра для наблюдателей
type TickStats struct {
	Tick        uint64               `json:"tick"`
	Time        float64              `json:"time"`
	Duration    time.Duration        `json:"duration"`
	Steps       int                  `json:"steps"`
	Weapons     int                  `json:"weapons"`
	Projectiles int                  `json:"projectiles"`
	Pool        ballistics.PoolStats `json:"pool"`
}

// EventSink получает события кадра после его завершения (вне мьютекса симуляции).
// Паника приёмника перехватывается и логируется.
type EventSink interface {
	Consume(stats TickStats, events []Event)
}

// SinkFunc адаптирует функцию к EventSink
type SinkFunc func(stats TickStats, events []Event)

func (f SinkFunc) Consume(stats TickStats, events []Event) { f(stats, events) }
