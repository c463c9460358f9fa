package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/annel0/arena-combat/internal/ballistics"
	"github.com/annel0/arena-combat/internal/combat"
	"github.com/annel0/arena-combat/internal/weapon"
)

// SnapshotVersion версия формата снимка
const SnapshotVersion = 1

// Snapshot полное состояние симуляции между кадрами.
// Дедлайны и возраст снарядов хранятся относительно Time.
type Snapshot struct {
	Version     int                          `json:"version"`
	SavedAt     time.Time                    `json:"saved_at"`
	Tick        uint64                       `json:"tick"`
	Time        float64                      `json:"time"`
	Accumulator float64                      `json:"accumulator"`
	NextHandle  weapon.Handle                `json:"next_handle"`
	Weapons     []weapon.InstanceState       `json:"weapons"`
	Projectiles []ballistics.ProjectileState `json:"projectiles"`
	Targets     []combat.TargetState         `json:"targets,omitempty"`
}

// Snapshot снимает состояние. Команды в очереди в снимок не входят.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Version:     SnapshotVersion,
		SavedAt:     time.Now().UTC(),
		Tick:        s.tick,
		Time:        s.now,
		Accumulator: s.accumulator,
		NextHandle:  s.manager.NextHandle(),
		Projectiles: s.projectilesLocked(),
	}
	s.manager.Each(func(inst *weapon.Instance) {
		snap.Weapons = append(snap.Weapons, inst.Snapshot(s.now))
	})
	for _, t := range s.targets {
		snap.Targets = append(snap.Targets, t.State())
	}
	return snap
}

// Restore заменяет состояние симуляции снимком. Текущее оружие уничтожается,
// снаряды возвращаются в пул. Мишени сопоставляются по имени.
func (s *Simulation) Restore(snap Snapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.manager.Each(s.removeShieldCollider)
	s.manager.Clear()
	pool := s.integrator.Pool()
	var live []ballistics.Handle
	pool.Each(func(h ballistics.Handle, _ *ballistics.Projectile) bool {
		live = append(live, h)
		return true
	})
	for _, h := range live {
		pool.Release(h)
	}
	s.impacts = s.impacts[:0]

	s.tick = snap.Tick
	s.now = snap.Time
	s.accumulator = snap.Accumulator

	var errs []error
	for _, w := range snap.Weapons {
		if err := s.manager.Restore(s.now, w); err != nil {
			errs = append(errs, fmt.Errorf("weapon %d: %w", w.Handle, err))
		}
	}
	s.manager.SetNextHandle(snap.NextHandle)
	s.manager.Each(func(inst *weapon.Instance) {
		if sh := inst.Shield(); sh != nil && sh.Active() {
			if err := s.placeShieldCollider(inst); err != nil {
				sh.Deactivate()
				errs = append(errs, fmt.Errorf("shield of weapon %d: %w", inst.Handle(), err))
			}
		}
	})

	for _, p := range snap.Projectiles {
		if _, err := s.integrator.Launch(ballistics.FromState(p, s.now, s.tick)); err != nil {
			errs = append(errs, fmt.Errorf("projectile of weapon %d: %w", p.Owner, err))
		}
	}

	byName := make(map[string]combat.TargetState, len(snap.Targets))
	for _, t := range snap.Targets {
		byName[t.Name] = t
	}
	for _, t := range s.targets {
		if st, ok := byName[t.Name]; ok {
			t.Restore(st)
		}
	}

	if len(errs) > 0 {
		s.log.Warn("снимок кадра %d восстановлен частично: %d ошибок", snap.Tick, len(errs))
		return fmt.Errorf("restore snapshot: %w", errors.Join(errs...))
	}
	s.log.Info("💾 Снимок кадра %d восстановлен: оружия %d, снарядов %d", snap.Tick, len(snap.Weapons), len(snap.Projectiles))
	return nil
}
