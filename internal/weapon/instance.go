package weapon

import (
	"math"

	"github.com/annel0/arena-combat/internal/combat"
	"github.com/annel0/arena-combat/internal/logging"
	"github.com/annel0/arena-combat/internal/vec"
)

// Handle идентификатор живого экземпляра оружия
type Handle uint64

// State состояние машины оружия.
// Firing мгновенное: Fire проходит через него и сразу возвращается в Ready или Empty.
type State int

const (
	StateReady State = iota
	StateFiring
	StateReloading
	StateEmpty
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFiring:
		return "firing"
	case StateReloading:
		return "reloading"
	case StateEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// ParseState обратна String
func ParseState(s string) (State, bool) {
	for _, st := range []State{StateReady, StateFiring, StateReloading, StateEmpty} {
		if st.String() == s {
			return st, true
		}
	}
	return StateReady, false
}

// FireResult результат попытки выстрела. Отказы — штатные сигналы, не ошибки.
type FireResult int

const (
	FireOK FireResult = iota
	FireRejectedEmpty
	FireRejectedReloading
	FireRejectedCooldown
	FireRejectedNotFireable
	FireRejectedCapacity
)

func (r FireResult) String() string {
	switch r {
	case FireOK:
		return "ok"
	case FireRejectedEmpty:
		return "empty"
	case FireRejectedReloading:
		return "reloading"
	case FireRejectedCooldown:
		return "cooldown"
	case FireRejectedNotFireable:
		return "not_fireable"
	case FireRejectedCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// ReloadResult результат попытки перезарядки
type ReloadResult int

const (
	ReloadStarted ReloadResult = iota
	ReloadRejectedInProgress
	ReloadRejectedNotSupported
)

func (r ReloadResult) String() string {
	switch r {
	case ReloadStarted:
		return "started"
	case ReloadRejectedInProgress:
		return "in_progress"
	case ReloadRejectedNotSupported:
		return "not_supported"
	default:
		return "unknown"
	}
}

// Shot один выстрел, переданный эмиттеру
type Shot struct {
	Weapon    Handle
	Type      Type
	Kind      ShotKind
	Origin    vec.Vec3 // позиция дула
	Direction vec.Vec3 // единичный вектор
	Damage    float64
	Speed     float64 // 0 — скорость по умолчанию
	Reach     float64 // длина удара для ShotSweep
	Time      float64
	Sequence  uint64 // номер выстрела этого экземпляра
}

// Emitter доставляет выстрел: выпускает снаряд или выполняет удар.
// Ошибка означает, что выстрел не состоялся, и состояние оружия не меняется.
type Emitter interface {
	Emit(shot Shot) error
}

// EmitterFunc адаптирует функцию к Emitter
type EmitterFunc func(shot Shot) error

func (f EmitterFunc) Emit(shot Shot) error { return f(shot) }

// Instance экземпляр оружия в мире. Не потокобезопасен: владелец вызывает методы из одного потока.
type Instance struct {
	handle Handle
	def    Definition
	entity combat.Entity
	spread *Spread

	ammo           int
	state          State
	reloadDeadline float64
	lastFire       float64
	hasFired       bool
	shots          uint64

	rest   Transform
	recoil Recoil
	shield *Shield // только для категории shield
}

func newInstance(handle Handle, def Definition, entity combat.Entity, rest Transform, spread *Spread) *Instance {
	inst := &Instance{
		handle: handle,
		def:    def,
		entity: entity,
		spread: spread,
		ammo:   def.MagazineSize,
		state:  StateReady,
		rest:   rest,
	}
	if def.Category == CategoryShield && def.Shield != nil {
		inst.shield = newShield(*def.Shield)
	}
	return inst
}

func (i *Instance) Handle() Handle { return i.handle }
func (i *Instance) Type() Type { return i.def.Type }
func (i *Instance) Definition() Definition { return i.def }
func (i *Instance) Entity() combat.Entity { return i.entity }
func (i *Instance) Ammo() int { return i.ammo }
func (i *Instance) State() State { return i.state }
func (i *Instance) Shots() uint64 { return i.shots }
func (i *Instance) Rest() Transform { return i.rest }
func (i *Instance) RecoilActive() bool { return i.recoil.Active() }

// Shield возвращает щит экземпляра; nil для остальных категорий
func (i *Instance) Shield() *Shield { return i.shield }

// SetRest перемещает оружие; отдача продолжается относительно новой позы
func (i *Instance) SetRest(t Transform) {
	i.rest = Transform{Position: t.Position, Rotation: t.Rotation.Normalized()}
}

// ReloadDeadline возвращает момент окончания перезарядки (только в StateReloading)
func (i *Instance) ReloadDeadline() (float64, bool) {
	return i.reloadDeadline, i.state == StateReloading
}

// Pose возвращает текущую позу с учётом отдачи
func (i *Instance) Pose() Transform {
	if !i.recoil.Active() {
		return i.rest
	}
	return i.rest.Apply(i.recoil.Offsets())
}

// Muzzle возвращает мировую позицию дула
func (i *Instance) Muzzle() vec.Vec3 {
	pose := i.Pose()
	return pose.Position.Add(pose.Rotation.Rotate(i.def.MuzzleOffset))
}

// Fire пытается выстрелить в момент now.
// Выстрел разрешён в Ready (или для оружия без магазина), вне интервала между выстрелами.
func (i *Instance) Fire(now float64, emitter Emitter) FireResult {
	if !i.def.CanFire() {
		return FireRejectedNotFireable
	}
	if i.state == StateReloading {
		return FireRejectedReloading
	}
	if i.def.UsesMagazine() && i.ammo <= 0 {
		return FireRejectedEmpty
	}
	if i.hasFired && now-i.lastFire < i.def.FireInterval {
		return FireRejectedCooldown
	}

	shot := i.nextShot(now)
	if err := emitter.Emit(shot); err != nil {
		logging.Debug("weapon %d (%s): выстрел не состоялся: %v", i.handle, i.def.Type, err)
		return FireRejectedCapacity
	}

	i.state = StateFiring
	if i.def.UsesMagazine() {
		i.ammo--
	}
	i.lastFire = now
	i.hasFired = true
	i.shots++
	i.recoil.Begin(i.def.RecoilForce, i.def.RecoilDuration, i.def.RecoilPositionCurve, i.def.RecoilRotationCurve)

	if i.def.UsesMagazine() && i.ammo == 0 {
		i.state = StateEmpty
	} else {
		i.state = StateReady
	}
	return FireOK
}

func (i *Instance) nextShot(now float64) Shot {
	pose := i.Pose()
	return Shot{
		Weapon:    i.handle,
		Type:      i.def.Type,
		Kind:      i.def.ShotKind(),
		Origin:    pose.Position.Add(pose.Rotation.Rotate(i.def.MuzzleOffset)),
		Direction: i.spread.Direction(pose.Rotation, i.shots, i.def.SpreadDegrees),
		Damage:    i.def.Damage,
		Speed:     i.def.ProjectileSpeed,
		Reach:     i.def.EffectiveReach(),
		Time:      now,
		Sequence:  i.shots,
	}
}

// Reload начинает перезарядку. Разрешена из Ready и Empty, в том числе с полным магазином.
// Одноразовое оружие после броска остаётся Empty.
func (i *Instance) Reload(now float64) ReloadResult {
	if !i.def.CanReload() {
		return ReloadRejectedNotSupported
	}
	if i.state == StateReloading {
		return ReloadRejectedInProgress
	}
	i.state = StateReloading
	i.reloadDeadline = now + i.def.ReloadDuration
	return ReloadStarted
}

// Update завершает перезарядку, если наступил дедлайн. Возвращает true при завершении.
func (i *Instance) Update(now float64) bool {
	if i.state != StateReloading || now < i.reloadDeadline {
		return false
	}
	i.ammo = i.def.MagazineSize
	i.state = StateReady
	i.reloadDeadline = 0
	return true
}

// AdvanceRecoil продвигает отдачу на dt
func (i *Instance) AdvanceRecoil(dt float64) {
	i.recoil.Advance(dt)
}

// InstanceState снимок экземпляра. Времена хранятся относительно момента снимка.
type InstanceState struct {
	Handle            Handle       `json:"handle"`
	Type              Type         `json:"type"`
	Category          Category     `json:"category"`
	State             string       `json:"state"`
	Ammo              int          `json:"ammo"`
	MagazineSize      int          `json:"magazine_size"`
	ReloadRemaining   float64      `json:"reload_remaining,omitempty"`
	CooldownRemaining float64      `json:"cooldown_remaining,omitempty"`
	RecoilActive      bool         `json:"recoil_active"`
	RecoilElapsed     float64      `json:"recoil_elapsed,omitempty"`
	Shots             uint64       `json:"shots"`
	Rest              Transform    `json:"rest"`
	Pose              Transform    `json:"pose"`
	Shield            *ShieldState `json:"shield,omitempty"`
}

// Snapshot возвращает состояние экземпляра на момент now
func (i *Instance) Snapshot(now float64) InstanceState {
	s := InstanceState{
		Handle:       i.handle,
		Type:         i.def.Type,
		Category:     i.def.Category,
		State:        i.state.String(),
		Ammo:         i.ammo,
		MagazineSize: i.def.MagazineSize,
		RecoilActive: i.recoil.Active(),
		Shots:        i.shots,
		Rest:         i.rest,
		Pose:         i.Pose(),
	}
	if i.state == StateReloading {
		s.ReloadRemaining = math.Max(i.reloadDeadline-now, 0)
	}
	if i.hasFired {
		s.CooldownRemaining = math.Max(i.lastFire+i.def.FireInterval-now, 0)
	}
	if s.RecoilActive {
		s.RecoilElapsed = i.recoil.Elapsed()
	}
	if i.shield != nil {
		s.Shield = i.shield.state()
	}
	return s
}

// restore применяет снимок к свежему экземпляру на момент now
func (i *Instance) restore(now float64, s InstanceState) {
	state, ok := ParseState(s.State)
	if !ok || state == StateFiring {
		state = StateReady
	}
	i.ammo = s.Ammo
	if i.ammo < 0 || !i.def.UsesMagazine() {
		i.ammo = i.def.MagazineSize
	}
	if i.ammo > i.def.MagazineSize {
		i.ammo = i.def.MagazineSize
	}
	i.state = state
	if state == StateReloading && !i.def.CanReload() {
		i.state = StateReady
	}
	if i.state == StateReloading {
		i.reloadDeadline = now + s.ReloadRemaining
	}
	// пустой магазин вне перезарядки всегда означает Empty
	if i.def.UsesMagazine() && i.ammo == 0 && i.state != StateReloading {
		i.state = StateEmpty
	}
	if i.state == StateEmpty && i.ammo > 0 {
		i.state = StateReady
	}
	if s.CooldownRemaining > 0 {
		i.hasFired = true
		i.lastFire = now + s.CooldownRemaining - i.def.FireInterval
	}
	i.shots = s.Shots
	if s.RecoilActive {
		i.recoil.restore(i.def, s.RecoilElapsed)
	}
	if i.shield != nil && s.Shield != nil {
		i.shield.restore(*s.Shield)
	}
}
