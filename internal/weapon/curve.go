package weapon

import (
	"errors"
	"math"
	"sort"
)

// Keyframe точка кривой: нормализованное время и значение
type Keyframe struct {
	Time  float64 `yaml:"time" json:"time"`
	Value float64 `yaml:"value" json:"value"`
}

// Curve кусочно-линейная кривая по ключам, упорядоченным по времени.
// Вне диапазона ключей значение зажимается к крайнему ключу, пустая кривая даёт 0.
type Curve []Keyframe

// DefaultRecoilCurve возвращает новую кривую по умолчанию: резкий толчок и плавный возврат к нулю
func DefaultRecoilCurve() Curve {
	return Curve{
		{Time: 0, Value: 0},
		{Time: 0.15, Value: 1},
		{Time: 1, Value: 0},
	}
}

// Evaluate возвращает значение кривой в момент t
func (c Curve) Evaluate(t float64) float64 {
	switch len(c) {
	case 0:
		return 0
	case 1:
		return c[0].Value
	}
	if math.IsNaN(t) || t <= c[0].Time {
		return c[0].Value
	}
	last := c[len(c)-1]
	if t >= last.Time {
		return last.Value
	}

	// первый ключ со временем > t
	i := sort.Search(len(c), func(i int) bool { return c[i].Time > t })
	a, b := c[i-1], c[i]
	span := b.Time - a.Time
	if span <= 0 {
		return b.Value
	}
	return a.Value + (b.Value-a.Value)*(t-a.Time)/span
}

// Validate проверяет упорядоченность и конечность ключей
func (c Curve) Validate() error {
	for i, k := range c {
		if math.IsNaN(k.Time) || math.IsInf(k.Time, 0) || math.IsNaN(k.Value) || math.IsInf(k.Value, 0) {
			return errors.New("non-finite keyframe")
		}
		if i > 0 && k.Time < c[i-1].Time {
			return errors.New("keyframes out of order")
		}
	}
	return nil
}

// orDefault подставляет стандартную кривую отдачи для незаданных кривых
func (c Curve) orDefault() Curve {
	if len(c) == 0 {
		return DefaultRecoilCurve()
	}
	return c
}

func (c Curve) clone() Curve {
	if c == nil {
		return nil
	}
	return append(Curve(nil), c...)
}
