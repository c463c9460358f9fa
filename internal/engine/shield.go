package engine

import (
	"fmt"

	"github.com/annel0/arena-combat/internal/combat"
	"github.com/annel0/arena-combat/internal/physics"
	"github.com/annel0/arena-combat/internal/weapon"
)

// ShieldSurface материал коллайдера щита в таблице попаданий
const ShieldSurface = "energy"

func shieldColliderName(h weapon.Handle) string {
	return fmt.Sprintf("shield-%d", h)
}

// shieldReceiver принимает урон вместо того, что стоит за щитом.
// Вызывается резолвером внутри кадра, под мьютексом симуляции.
type shieldReceiver struct {
	sim  *Simulation
	inst *weapon.Instance
}

func (r shieldReceiver) TakeDamage(e combat.DamageEvent) {
	r.sim.absorbShieldHit(r.inst, e)
}

func (s *Simulation) raiseShield(inst *weapon.Instance) {
	sh := inst.Shield()
	reject := func(result string) {
		s.emitEvent(Event{Kind: EventShieldRejected, Weapon: inst.Handle(), WeaponType: string(inst.Type()), Result: result})
	}
	switch {
	case sh == nil:
		reject("not_shield")
		return
	case sh.Active():
		reject("already_raised")
		return
	case !sh.Activate():
		reject("broken")
		return
	}

	if err := s.placeShieldCollider(inst); err != nil {
		sh.Deactivate()
		s.log.Warn("weapon %d: коллайдер щита не поставлен: %v", inst.Handle(), err)
		reject("collider")
		return
	}
	s.emitEvent(Event{
		Kind: EventShieldRaised, Weapon: inst.Handle(), WeaponType: string(inst.Type()),
		Point: inst.Pose().Position, Durability: sh.Durability(),
	})
}

func (s *Simulation) lowerShield(inst *weapon.Instance) {
	sh := inst.Shield()
	if sh == nil || !sh.Deactivate() {
		result := "not_raised"
		if sh == nil {
			result = "not_shield"
		}
		s.emitEvent(Event{Kind: EventShieldRejected, Weapon: inst.Handle(), WeaponType: string(inst.Type()), Result: result})
		return
	}
	s.removeShieldCollider(inst)
	s.emitEvent(Event{Kind: EventShieldLowered, Weapon: inst.Handle(), WeaponType: string(inst.Type()), Durability: sh.Durability()})
}

func (s *Simulation) placeShieldCollider(inst *weapon.Instance) error {
	if s.opts.Colliders == nil {
		return nil
	}
	lo, hi := inst.Shield().Bounds(inst.Pose())
	return s.opts.Colliders.Add(&physics.BoxCollider{
		Name:     shieldColliderName(inst.Handle()),
		Min:      lo,
		Max:      hi,
		Layer:    physics.LayerShield,
		Surface:  ShieldSurface,
		Receiver: shieldReceiver{sim: s, inst: inst},
	})
}

func (s *Simulation) removeShieldCollider(inst *weapon.Instance) {
	if s.opts.Colliders == nil || inst.Shield() == nil {
		return
	}
	s.opts.Colliders.Remove(shieldColliderName(inst.Handle()))
}

func (s *Simulation) absorbShieldHit(inst *weapon.Instance, e combat.DamageEvent) {
	if cur, ok := s.manager.Get(inst.Handle()); !ok || cur != inst {
		return
	}
	sh := inst.Shield()
	hit := sh.Absorb(e.Amount)
	s.emitEvent(Event{
		Kind: EventShieldHit, Weapon: inst.Handle(), WeaponType: string(inst.Type()),
		Damage: e.Amount, Point: e.Point, Normal: e.Normal,
		Absorbed: hit.Absorbed, Reflected: hit.Reflected, Durability: sh.Durability(),
	})
	if hit.Broken {
		s.removeShieldCollider(inst)
		s.log.Info("🛡️ Щит %d разрушен", inst.Handle())
		s.emitEvent(Event{Kind: EventShieldBroken, Weapon: inst.Handle(), WeaponType: string(inst.Type()), Point: e.Point})
	}
}
