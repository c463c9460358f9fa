package weapon

import "github.com/annel0/arena-combat/internal/vec"

// recoilEpsilon допуск, после которого отдача считается завершённой
const recoilEpsilon = 1e-9

// Recoil ограниченное по времени смещение оружия от позы покоя.
// Пока elapsed < duration: смещение = force * curve(elapsed/duration).
// После завершения смещение ровно нулевое. Новый Begin заменяет текущую отдачу.
type Recoil struct {
	active        bool
	elapsed       float64
	duration      float64
	force         vec.Vec3
	positionCurve Curve
	rotationCurve Curve
}

// Begin запускает отдачу с нуля. Нулевая длительность отдачу не запускает.
func (r *Recoil) Begin(force vec.Vec3, duration float64, positionCurve, rotationCurve Curve) {
	if duration <= 0 {
		r.Cancel()
		return
	}
	r.active = true
	r.elapsed = 0
	r.duration = duration
	r.force = force
	r.positionCurve = positionCurve
	r.rotationCurve = rotationCurve
}

// Advance продвигает отдачу на dt секунд
func (r *Recoil) Advance(dt float64) {
	if !r.active || dt <= 0 {
		return
	}
	r.elapsed += dt
	if r.elapsed >= r.duration-recoilEpsilon {
		r.Cancel()
	}
}

// Cancel мгновенно возвращает оружие в позу покоя
func (r *Recoil) Cancel() {
	*r = Recoil{}
}

// Active сообщает, идёт ли отдача
func (r *Recoil) Active() bool {
	return r.active
}

// Elapsed возвращает прошедшее время текущей отдачи
func (r *Recoil) Elapsed() float64 {
	return r.elapsed
}

// Progress возвращает нормализованное время [0,1)
func (r *Recoil) Progress() float64 {
	if !r.active {
		return 0
	}
	return r.elapsed / r.duration
}

// Offsets возвращает смещение позиции (локальные единицы) и поворота (градусы Эйлера)
func (r *Recoil) Offsets() (position, rotation vec.Vec3) {
	if !r.active {
		return vec.Zero, vec.Zero
	}
	t := r.Progress()
	return r.force.Mul(r.positionCurve.Evaluate(t)), r.force.Mul(r.rotationCurve.Evaluate(t))
}

// restore восстанавливает отдачу из снимка
func (r *Recoil) restore(def Definition, elapsed float64) {
	r.Begin(def.RecoilForce, def.RecoilDuration, def.RecoilPositionCurve.orDefault(), def.RecoilRotationCurve.orDefault())
	r.Advance(elapsed)
}

// Transform поза оружия в мире
type Transform struct {
	Position vec.Vec3 `json:"position"`
	Rotation vec.Quat `json:"rotation"`
}

// Apply накладывает смещения отдачи на позу покоя
func (t Transform) Apply(positionOffset, rotationOffset vec.Vec3) Transform {
	return Transform{
		Position: t.Position.Add(t.Rotation.Rotate(positionOffset)),
		Rotation: t.Rotation.Mul(vec.FromEuler(rotationOffset)).Normalized(),
	}
}
