package ballistics

import (
	"errors"
	"fmt"
	"math"

	"github.com/annel0/arena-combat/internal/combat"
	"github.com/annel0/arena-combat/internal/logging"
	"github.com/annel0/arena-combat/internal/physics"
	"github.com/annel0/arena-combat/internal/vec"
)

// SweepQuery физический запрос отрезка (реализуется physics.World)
type SweepQuery interface {
	SweepTest(from, to vec.Vec3, mask physics.LayerMask) (physics.Hit, bool, error)
}

// Impact попадание снаряда, передаётся в ImpactResolver
type Impact struct {
	Projectile Handle
	Owner      uint64
	Weapon     string
	Damage     float64
	Point      vec.Vec3
	Normal     vec.Vec3
	Source     vec.Vec3 // позиция снаряда в конце шага, на котором найдено попадание; у удара ближнего боя точка замаха
	Surface    string
	Receiver   combat.DamageReceiver
	Collider   string
	Time       float64
}

// DamageEvent собирает событие урона для получателя
func (i Impact) DamageEvent() combat.DamageEvent {
	return combat.DamageEvent{Amount: i.Damage, Point: i.Point, Normal: i.Normal, Source: i.Source}
}

// Expiry снаряд истёк без попадания
type Expiry struct {
	Projectile Handle
	Owner      uint64
	Weapon     string
	Position   vec.Vec3
	Time       float64
}

// StepResult итог одного фиксированного шага
type StepResult struct {
	Impacts []Impact
	Expired []Expiry
	Moved   int
}

// Integrator продвигает снаряды пула фиксированными шагами
type Integrator struct {
	pool    *Pool[Projectile]
	query   SweepQuery
	gravity vec.Vec3
	log     *logging.Logger
}

// NewIntegrator создаёт интегратор над пулом
func NewIntegrator(pool *Pool[Projectile], query SweepQuery, gravity vec.Vec3) *Integrator {
	return &Integrator{
		pool:    pool,
		query:   query,
		gravity: gravity,
		log:     logging.GetBallisticsLogger(),
	}
}

// Pool возвращает пул снарядов
func (it *Integrator) Pool() *Pool[Projectile] {
	return it.pool
}

// Launch выдаёт снаряд из пула. Ошибка — только при исчерпании жёсткого лимита.
func (it *Integrator) Launch(p Projectile) (Handle, error) {
	if !p.Position.IsFinite() || !p.Velocity.IsFinite() {
		return Handle{}, errors.New("ballistics: non-finite launch state")
	}
	h, slot, err := it.pool.Acquire()
	if err != nil {
		return Handle{}, err
	}
	p.PrevPosition = p.Position
	*slot = p
	return h, nil
}

// Step выполняет один фиксированный шаг dt, завершающийся в момент now.
// Снаряды, выпущенные в кадре tick, пропускаются.
func (it *Integrator) Step(now, dt float64, tick uint64) StepResult {
	var res StepResult
	if dt <= 0 {
		return res
	}

	it.pool.Each(func(h Handle, p *Projectile) bool {
		if p.LaunchTick == tick {
			return true
		}

		if p.Advanced {
			p.Velocity = p.Velocity.Add(it.gravity.Mul(p.GravityMultiplier * dt))
			p.Velocity = p.Velocity.Mul(1 - p.AirResistance*dt)
		}
		p.PrevPosition = p.Position
		next := p.PrevPosition.Add(p.Velocity.Mul(dt))

		if hit, ok := it.Sweep(p.PrevPosition, next, p.Mask); ok {
			res.Impacts = append(res.Impacts, Impact{
				Projectile: h,
				Owner:      p.Owner,
				Weapon:     p.Weapon,
				Damage:     p.Damage,
				Point:      hit.Point,
				Normal:     hit.Normal,
				Source:     next,
				Surface:    hit.Surface(),
				Receiver:   hit.Receiver(),
				Collider:   colliderName(hit),
				Time:       now,
			})
			it.pool.Release(h)
			return true
		}

		p.Position = next
		res.Moved++
		if now-p.SpawnTime >= p.Lifetime {
			res.Expired = append(res.Expired, Expiry{
				Projectile: h,
				Owner:      p.Owner,
				Weapon:     p.Weapon,
				Position:   p.Position,
				Time:       now,
			})
			it.pool.Release(h)
		}
		return true
	})
	return res
}

// Sweep выполняет физический запрос. Ошибки, паники провайдера и
// некорректные попадания (NaN, точка вне отрезка) считаются промахом.
func (it *Integrator) Sweep(from, to vec.Vec3, mask physics.LayerMask) (hit physics.Hit, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			it.log.Warn("паника физического запроса: %v", r)
			hit, ok = physics.Hit{}, false
		}
	}()

	h, found, err := it.query.SweepTest(from, to, mask)
	if err != nil {
		it.log.Debug("физический запрос %v -> %v: %v", from, to, err)
		return physics.Hit{}, false
	}
	if !found {
		return physics.Hit{}, false
	}
	if err := validateHit(from, to, h); err != nil {
		it.log.Warn("отброшено некорректное попадание: %v", err)
		return physics.Hit{}, false
	}
	return h, true
}

const hitTolerance = 1e-6

func validateHit(from, to vec.Vec3, h physics.Hit) error {
	if !h.Point.IsFinite() || !h.Normal.IsFinite() {
		return fmt.Errorf("non-finite hit %+v", h.Point)
	}
	seg := to.Sub(from)
	lenSq := seg.Dot(seg)
	if lenSq == 0 {
		return errors.New("zero-length segment")
	}
	t := h.Point.Sub(from).Dot(seg) / lenSq
	if t < -hitTolerance || t > 1+hitTolerance {
		return fmt.Errorf("hit point outside segment (t=%.6f)", t)
	}
	closest := from.Add(seg.Mul(t))
	if closest.DistanceTo(h.Point) > hitTolerance*math.Max(1, math.Sqrt(lenSq)) {
		return errors.New("hit point off the segment line")
	}
	return nil
}

func colliderName(h physics.Hit) string {
	if h.Collider == nil {
		return ""
	}
	return h.Collider.Name
}
