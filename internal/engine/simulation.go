// Package engine связывает оружие, баллистику и попадания в однопоточную
// симуляцию с кадровым тиком и фиксированным шагом физики.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/arena-combat/internal/ballistics"
	"github.com/annel0/arena-combat/internal/combat"
	"github.com/annel0/arena-combat/internal/impact"
	"github.com/annel0/arena-combat/internal/logging"
	"github.com/annel0/arena-combat/internal/physics"
	"github.com/annel0/arena-combat/internal/vec"
	"github.com/annel0/arena-combat/internal/weapon"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Options параметры симуляции и баллистики
type Options struct {
	FixedStep          float64 // шаг баллистики, сек
	MaxSubSteps        int     // максимум шагов физики за кадр
	BulletSpeed        float64 // скорость снаряда, если оружие её не задаёт
	BulletLifetime     float64
	AdvancedBallistics bool
	GravityMultiplier  float64
	AirResistance      float64
	Mask               physics.LayerMask
	Colliders          ColliderSet // куда ставятся коллайдеры поднятых щитов; nil — щиты без коллайдера
}

// ColliderSet мир столкновений, в который симуляция добавляет собственные коллайдеры
type ColliderSet interface {
	Add(c *physics.BoxCollider) error
	Remove(name string) bool
	SetBounds(name string, lo, hi vec.Vec3) bool
}

// DefaultOptions возвращает параметры по умолчанию
func DefaultOptions() Options {
	return Options{
		FixedStep:         0.02,
		MaxSubSteps:       8,
		BulletSpeed:       100,
		BulletLifetime:    5,
		GravityMultiplier: 1,
		AirResistance:     0.1,
		Mask:              physics.AllLayers,
	}
}

// IntentKind вид отложенной команды
type IntentKind int

const (
	IntentFire IntentKind = iota
	IntentReload
	IntentRaiseShield
	IntentLowerShield
)

type intent struct {
	kind   IntentKind
	weapon weapon.Handle
}

// pendingImpact попадание, ожидающее фазы ImpactResolver
type pendingImpact struct {
	hit   ballistics.Impact
	melee bool
}

// Simulation симуляция боя. Все изменения состояния происходят внутри Tick;
// внешние вызовы либо ставят команды в очередь, либо выполняются между кадрами.
type Simulation struct {
	mu         sync.Mutex
	manager    *weapon.Manager
	integrator *ballistics.Integrator
	resolver   *impact.Resolver
	effects    combat.EffectSpawner
	opts       Options
	targets    []*combat.Target

	now         float64
	tick        uint64
	accumulator float64
	impacts     []pendingImpact
	pending     []Event

	intentsMu sync.Mutex
	intents   []intent

	sinksMu sync.RWMutex
	sinks   []EventSink

	tracer trace.Tracer
	log    *logging.Logger
}

// New собирает симуляцию из готовых компонентов
func New(manager *weapon.Manager, integrator *ballistics.Integrator, resolver *impact.Resolver, effects combat.EffectSpawner, opts Options) *Simulation {
	if effects == nil {
		effects = combat.NopEffects{}
	}
	def := DefaultOptions()
	if opts.FixedStep <= 0 {
		opts.FixedStep = def.FixedStep
	}
	if opts.MaxSubSteps <= 0 {
		opts.MaxSubSteps = def.MaxSubSteps
	}
	if opts.BulletSpeed <= 0 {
		opts.BulletSpeed = def.BulletSpeed
	}
	if opts.BulletLifetime <= 0 {
		opts.BulletLifetime = def.BulletLifetime
	}
	if opts.Mask == 0 {
		opts.Mask = def.Mask
	}
	return &Simulation{
		manager:    manager,
		integrator: integrator,
		resolver:   resolver,
		effects:    effects,
		opts:       opts,
		tracer:     otel.Tracer("arena-combat/engine"),
		log:        logging.GetSimulationLogger(),
	}
}

// AddSink подписывает приёмник на события кадров
func (s *Simulation) AddSink(sink EventSink) {
	s.sinksMu.Lock()
	s.sinks = append(s.sinks, sink)
	s.sinksMu.Unlock()
}

// SetTargets регистрирует мишени арены для снимков
func (s *Simulation) SetTargets(targets []*combat.Target) {
	s.mu.Lock()
	s.targets = append([]*combat.Target(nil), targets...)
	s.mu.Unlock()
}

// Targets возвращает состояния мишеней
func (s *Simulation) Targets() []combat.TargetState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]combat.TargetState, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, t.State())
	}
	return out
}

// ResetTargets возвращает мишеням полное здоровье и обнуляет статистику попаданий
func (s *Simulation) ResetTargets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.targets {
		t.Reset()
	}
	return len(s.targets)
}

// SpawnWeapon создаёт оружие немедленно (между кадрами)
func (s *Simulation) SpawnWeapon(t weapon.Type, position vec.Vec3, rotation vec.Quat) (weapon.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.manager.Spawn(t, position, rotation)
	if err != nil {
		return 0, err
	}
	inst, _ := s.manager.Get(h)
	s.pending = append(s.pending, Event{
		Kind: EventWeaponSpawned, Tick: s.tick, Time: s.now,
		Weapon: h, WeaponType: string(t), Ammo: inst.Ammo(), Point: position,
	})
	return h, nil
}

// DestroyWeapon уничтожает оружие. Выпущенные им снаряды продолжают полёт.
func (s *Simulation) DestroyWeapon(h weapon.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.manager.Get(h)
	if !ok {
		return fmt.Errorf("%w: %d", weapon.ErrUnknownWeapon, h)
	}
	typ := string(inst.Type())
	s.removeShieldCollider(inst)
	if err := s.manager.Destroy(h); err != nil {
		return err
	}
	s.pending = append(s.pending, Event{Kind: EventWeaponDestroyed, Tick: s.tick, Time: s.now, Weapon: h, WeaponType: typ})
	return nil
}

// MoveWeapon переносит позу покоя оружия
func (s *Simulation) MoveWeapon(h weapon.Handle, position vec.Vec3, rotation vec.Quat) error {
	if !position.IsFinite() {
		return errors.New("non-finite position")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.manager.Get(h)
	if !ok {
		return fmt.Errorf("%w: %d", weapon.ErrUnknownWeapon, h)
	}
	inst.SetRest(weapon.Transform{Position: position, Rotation: rotation})
	if sh := inst.Shield(); sh != nil && sh.Active() && s.opts.Colliders != nil {
		lo, hi := sh.Bounds(inst.Pose())
		s.opts.Colliders.SetBounds(shieldColliderName(h), lo, hi)
	}
	return nil
}

// Fire ставит выстрел в очередь; он будет применён в начале следующего кадра
func (s *Simulation) Fire(h weapon.Handle) {
	s.enqueue(intent{kind: IntentFire, weapon: h})
}

// Reload ставит перезарядку в очередь
func (s *Simulation) Reload(h weapon.Handle) {
	s.enqueue(intent{kind: IntentReload, weapon: h})
}

// RaiseShield ставит в очередь подъём щита
func (s *Simulation) RaiseShield(h weapon.Handle) {
	s.enqueue(intent{kind: IntentRaiseShield, weapon: h})
}

// LowerShield ставит в очередь опускание щита
func (s *Simulation) LowerShield(h weapon.Handle) {
	s.enqueue(intent{kind: IntentLowerShield, weapon: h})
}

func (s *Simulation) enqueue(in intent) {
	s.intentsMu.Lock()
	s.intents = append(s.intents, in)
	s.intentsMu.Unlock()
}

// PendingIntents возвращает длину очереди команд
func (s *Simulation) PendingIntents() int {
	s.intentsMu.Lock()
	defer s.intentsMu.Unlock()
	return len(s.intents)
}

// GetState возвращает снимок состояния оружия
func (s *Simulation) GetState(h weapon.Handle) (weapon.InstanceState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.manager.Get(h)
	if !ok {
		return weapon.InstanceState{}, false
	}
	return inst.Snapshot(s.now), true
}

// States возвращает состояния всего оружия в порядке хэндлов
func (s *Simulation) States() []weapon.InstanceState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]weapon.InstanceState, 0, s.manager.Len())
	s.manager.Each(func(inst *weapon.Instance) {
		out = append(out, inst.Snapshot(s.now))
	})
	return out
}

// Definitions возвращает определения каталога
func (s *Simulation) Definitions() []weapon.Definition {
	return s.manager.Definitions()
}

// Projectiles возвращает летящие снаряды
func (s *Simulation) Projectiles() []ballistics.ProjectileState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectilesLocked()
}

func (s *Simulation) projectilesLocked() []ballistics.ProjectileState {
	var out []ballistics.ProjectileState
	s.integrator.Pool().Each(func(_ ballistics.Handle, p *ballistics.Projectile) bool {
		out = append(out, p.State(s.now))
		return true
	})
	return out
}

// Stats возвращает сводку без продвижения времени
func (s *Simulation) Stats() TickStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked(0, 0)
}

func (s *Simulation) statsLocked(d time.Duration, steps int) TickStats {
	pool := s.integrator.Pool().Stats()
	return TickStats{
		Tick:        s.tick,
		Time:        s.now,
		Duration:    d,
		Steps:       steps,
		Weapons:     s.manager.Len(),
		Projectiles: pool.Active,
		Pool:        pool,
	}
}

// Now возвращает время симуляции
func (s *Simulation) Now() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Tick продвигает симуляцию на dt секунд. Порядок фаз внутри кадра фиксирован:
// машина состояний оружия, баллистика, попадания, отдача.
func (s *Simulation) Tick(dt float64) TickStats {
	return s.TickContext(context.Background(), dt)
}

// TickContext Tick с трассировкой кадра
func (s *Simulation) TickContext(ctx context.Context, dt float64) TickStats {
	if dt < 0 {
		dt = 0
	}
	_, span := s.tracer.Start(ctx, "simulation.tick")
	defer span.End()

	start := time.Now()
	s.mu.Lock()
	s.tick++
	s.now += dt

	s.applyIntents()
	s.updateWeapons(dt)
	steps := s.stepBallistics(dt)
	s.resolveImpacts()
	s.manager.Each(func(inst *weapon.Instance) { inst.AdvanceRecoil(dt) })

	stats := s.statsLocked(time.Since(start), steps)
	events := s.pending
	s.pending = nil
	s.mu.Unlock()

	span.SetAttributes(
		attribute.Int64("tick", int64(stats.Tick)),
		attribute.Int("steps", steps),
		attribute.Int("events", len(events)),
		attribute.Int("projectiles", stats.Projectiles),
	)
	s.dispatch(stats, events)
	return stats
}

func (s *Simulation) applyIntents() {
	s.intentsMu.Lock()
	queue := s.intents
	s.intents = nil
	s.intentsMu.Unlock()

	for _, in := range queue {
		inst, ok := s.manager.Get(in.weapon)
		if !ok {
			kind := EventFireRejected
			switch in.kind {
			case IntentReload:
				kind = EventReloadRejected
			case IntentRaiseShield, IntentLowerShield:
				kind = EventShieldRejected
			}
			s.emitEvent(Event{Kind: kind, Weapon: in.weapon, Result: "unknown_weapon"})
			continue
		}

		switch in.kind {
		case IntentFire:
			s.fire(inst)
		case IntentReload:
			s.reload(inst)
		case IntentRaiseShield:
			s.raiseShield(inst)
		case IntentLowerShield:
			s.lowerShield(inst)
		}
	}
}

func (s *Simulation) fire(inst *weapon.Instance) {
	def := inst.Definition()
	res := inst.Fire(s.now, weapon.EmitterFunc(s.emit))
	if res != weapon.FireOK {
		s.log.Debug("weapon %d (%s): выстрел отклонён: %s", inst.Handle(), def.Type, res)
		s.emitEvent(Event{Kind: EventFireRejected, Weapon: inst.Handle(), WeaponType: string(def.Type), Result: res.String(), Ammo: inst.Ammo()})
		return
	}

	muzzle := inst.Muzzle()
	s.playEffects(def.MuzzleEffect, def.FireSound, muzzle, inst.Pose().Rotation)
	s.emitEvent(Event{Kind: EventFired, Weapon: inst.Handle(), WeaponType: string(def.Type), Result: res.String(), Ammo: inst.Ammo(), Point: muzzle})
}

// emit доставляет выстрел: снаряд в пул или мгновенный удар ближнего боя
func (s *Simulation) emit(shot weapon.Shot) error {
	switch shot.Kind {
	case weapon.ShotProjectile:
		speed := shot.Speed
		if speed <= 0 {
			speed = s.opts.BulletSpeed
		}
		_, err := s.integrator.Launch(ballistics.Projectile{
			Damage:            shot.Damage,
			Position:          shot.Origin,
			Velocity:          shot.Direction.Mul(speed),
			Source:            shot.Origin,
			SpawnTime:         s.now,
			Lifetime:          s.opts.BulletLifetime,
			LaunchTick:        s.tick,
			Owner:             uint64(shot.Weapon),
			Weapon:            string(shot.Type),
			Advanced:          s.opts.AdvancedBallistics,
			GravityMultiplier: s.opts.GravityMultiplier,
			AirResistance:     s.opts.AirResistance,
			Mask:              s.opts.Mask,
		})
		return err

	case weapon.ShotSweep:
		to := shot.Origin.Add(shot.Direction.Mul(shot.Reach))
		if hit, ok := s.integrator.Sweep(shot.Origin, to, s.opts.Mask); ok {
			s.impacts = append(s.impacts, pendingImpact{melee: true, hit: ballistics.Impact{
				Owner:    uint64(shot.Weapon),
				Weapon:   string(shot.Type),
				Damage:   shot.Damage,
				Point:    hit.Point,
				Normal:   hit.Normal,
				Source:   shot.Origin,
				Surface:  hit.Surface(),
				Receiver: hit.Receiver(),
				Collider: colliderName(hit),
				Time:     s.now,
			}})
		}
		return nil
	}
	return fmt.Errorf("weapon %s cannot deliver shot kind %s", shot.Type, shot.Kind)
}

func (s *Simulation) reload(inst *weapon.Instance) {
	def := inst.Definition()
	res := inst.Reload(s.now)
	if res != weapon.ReloadStarted {
		s.emitEvent(Event{Kind: EventReloadRejected, Weapon: inst.Handle(), WeaponType: string(def.Type), Result: res.String(), Ammo: inst.Ammo()})
		return
	}
	s.playEffects("", def.ReloadSound, inst.Pose().Position, inst.Pose().Rotation)
	s.emitEvent(Event{Kind: EventReloadStarted, Weapon: inst.Handle(), WeaponType: string(def.Type), Result: res.String(), Ammo: inst.Ammo()})
}

func (s *Simulation) updateWeapons(dt float64) {
	s.manager.Each(func(inst *weapon.Instance) {
		if inst.Update(s.now) {
			s.emitEvent(Event{Kind: EventReloadCompleted, Weapon: inst.Handle(), WeaponType: string(inst.Type()), Ammo: inst.Ammo()})
		}
		if sh := inst.Shield(); sh != nil {
			sh.Recharge(dt)
		}
	})
}

func (s *Simulation) stepBallistics(dt float64) int {
	s.accumulator += dt
	steps := 0
	for s.accumulator >= s.opts.FixedStep-1e-12 {
		if steps == s.opts.MaxSubSteps {
			// отставание больше лимита: остаток отбрасывается
			s.log.Debug("кадр %d: отброшено %.4f с физики", s.tick, s.accumulator)
			s.accumulator = 0
			break
		}
		s.accumulator -= s.opts.FixedStep
		if s.accumulator < 0 {
			s.accumulator = 0
		}
		res := s.integrator.Step(s.now-s.accumulator, s.opts.FixedStep, s.tick)
		for _, hit := range res.Impacts {
			s.impacts = append(s.impacts, pendingImpact{hit: hit})
		}
		for _, exp := range res.Expired {
			s.emitEvent(Event{Kind: EventProjectileExpired, Weapon: weapon.Handle(exp.Owner), WeaponType: exp.Weapon, Point: exp.Position})
		}
		steps++
	}
	return steps
}

func (s *Simulation) resolveImpacts() {
	for _, p := range s.impacts {
		hit := p.hit
		out := s.resolver.Resolve(hit.Surface, hit.DamageEvent(), hit.Receiver)
		s.emitEvent(Event{
			Kind:       EventImpact,
			Weapon:     weapon.Handle(hit.Owner),
			WeaponType: hit.Weapon,
			Damage:     hit.Damage,
			Point:      hit.Point,
			Normal:     hit.Normal,
			Surface:    hit.Surface,
			Collider:   hit.Collider,
			Damaged:    out.Damaged,
			Effect:     out.Effect,
			Sound:      out.Sound,
			Melee:      p.melee,
		})
	}
	s.impacts = s.impacts[:0]
}

func (s *Simulation) playEffects(effect, sound string, at vec.Vec3, rotation vec.Quat) {
	if effect == "" && sound == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("паника спаунера эффектов: %v", r)
		}
	}()
	if effect != "" {
		s.effects.SpawnEffect(effect, at, rotation)
	}
	if sound != "" {
		s.effects.SpawnAudio(sound, at)
	}
}

func (s *Simulation) emitEvent(e Event) {
	e.Tick = s.tick
	e.Time = s.now
	s.pending = append(s.pending, e)
}

func (s *Simulation) dispatch(stats TickStats, events []Event) {
	s.sinksMu.RLock()
	sinks := s.sinks
	s.sinksMu.RUnlock()

	for _, sink := range sinks {
		s.consumeSafe(sink, stats, events)
	}
}

func (s *Simulation) consumeSafe(sink EventSink, stats TickStats, events []Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("паника приёмника событий %T: %v", sink, r)
		}
	}()
	sink.Consume(stats, events)
}

// Run крутит симуляцию с фиксированным интервалом кадра до отмены ctx
func (s *Simulation) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	dt := interval.Seconds()
	s.log.Info("▶️ Симуляция запущена: кадр %v, шаг физики %.3f с", interval, s.opts.FixedStep)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("⏹️ Симуляция остановлена на кадре %d", s.Stats().Tick)
			return
		case <-ticker.C:
			s.TickContext(ctx, dt)
		}
	}
}

func colliderName(h physics.Hit) string {
	if h.Collider == nil {
		return ""
	}
	return h.Collider.Name
}
