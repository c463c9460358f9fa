package vec

import "math"

// Quat представляет ориентацию в пространстве (единичный кватернион)
type Quat struct {
	W float64 `json:"w" yaml:"w"`
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Identity возвращает нулевой поворот
func Identity() Quat {
	return Quat{W: 1}
}

// FromAxisAngle создаёт поворот вокруг оси на угол в радианах
func FromAxisAngle(axis Vec3, radians float64) Quat {
	axis = axis.Normalized()
	s := math.Sin(radians / 2)
	return Quat{W: math.Cos(radians / 2), X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s}
}

// FromEuler создаёт поворот из углов Эйлера в градусах.
// Порядок применения: Z, затем X, затем Y.
func FromEuler(degrees Vec3) Quat {
	qx := FromAxisAngle(Right, degrees.X*math.Pi/180)
	qy := FromAxisAngle(Up, degrees.Y*math.Pi/180)
	qz := FromAxisAngle(Forward, degrees.Z*math.Pi/180)
	return qy.Mul(qx).Mul(qz)
}

// LookRotation возвращает поворот, переводящий +Z в direction.
// Для нулевого направления возвращает Identity.
func LookRotation(direction Vec3) Quat {
	f := direction.Normalized()
	if f == (Vec3{}) {
		return Identity()
	}

	up := Up
	if math.Abs(f.Dot(up)) > 0.9999 {
		up = Forward
	}
	r := up.Cross(f).Normalized()
	u := f.Cross(r)

	m00, m01, m02 := r.X, u.X, f.X
	m10, m11, m12 := r.Y, u.Y, f.Y
	m20, m21, m22 := r.Z, u.Z, f.Z

	var q Quat
	trace := m00 + m11 + m22
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q = Quat{W: 0.25 * s, X: (m21 - m12) / s, Y: (m02 - m20) / s, Z: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2
		q = Quat{W: (m21 - m12) / s, X: 0.25 * s, Y: (m01 + m10) / s, Z: (m02 + m20) / s}
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2
		q = Quat{W: (m02 - m20) / s, X: (m01 + m10) / s, Y: 0.25 * s, Z: (m12 + m21) / s}
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2
		q = Quat{W: (m10 - m01) / s, X: (m02 + m20) / s, Y: (m12 + m21) / s, Z: 0.25 * s}
	}
	return q.Normalized()
}

// Mul комбинирует повороты: сначала other, затем q
func (q Quat) Mul(other Quat) Quat {
	return Quat{
		W: q.W*other.W - q.X*other.X - q.Y*other.Y - q.Z*other.Z,
		X: q.W*other.X + q.X*other.W + q.Y*other.Z - q.Z*other.Y,
		Y: q.W*other.Y - q.X*other.Z + q.Y*other.W + q.Z*other.X,
		Z: q.W*other.Z + q.X*other.Y - q.Y*other.X + q.Z*other.W,
	}
}

// Rotate поворачивает вектор
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{X: q.X, Y: q.Y, Z: q.Z}
	t := u.Cross(v).Mul(2)
	return v.Add(t.Mul(q.W)).Add(u.Cross(t))
}

// Conjugate возвращает обратный поворот для единичного кватерниона
func (q Quat) Conjugate() Quat {
	return Quat{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
}

// Normalized приводит кватернион к единичной длине.
// Нулевой кватернион (значение по умолчанию) трактуется как Identity.
func (q Quat) Normalized() Quat {
	length := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if length == 0 {
		return Identity()
	}
	return Quat{W: q.W / length, X: q.X / length, Y: q.Y / length, Z: q.Z / length}
}

// ApproxEqual сравнивает ориентации с допуском (q и -q — один и тот же поворот)
func (q Quat) ApproxEqual(other Quat, eps float64) bool {
	dot := q.W*other.W + q.X*other.X + q.Y*other.Y + q.Z*other.Z
	return math.Abs(math.Abs(dot)-1) <= eps
}
