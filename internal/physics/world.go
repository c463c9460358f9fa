package physics

import (
	"errors"
	"fmt"
	"sync"

	"github.com/annel0/arena-combat/internal/combat"
	"github.com/annel0/arena-combat/internal/vec"
)

// ErrInvalidSegment возвращается для отрезков с NaN/Inf координатами
var ErrInvalidSegment = errors.New("physics: invalid segment")

// Hit описывает пересечение отрезка с коллайдером
type Hit struct {
	Point    vec.Vec3
	Normal   vec.Vec3
	Fraction float64 // доля отрезка до точки попадания
	Distance float64
	Collider *BoxCollider
}

// Surface возвращает ключ материала коллайдера
func (h Hit) Surface() string {
	if h.Collider == nil {
		return ""
	}
	return h.Collider.Surface
}

// Receiver возвращает получателя урона коллайдера
func (h Hit) Receiver() combat.DamageReceiver {
	if h.Collider == nil {
		return nil
	}
	return h.Collider.Receiver
}

// World хранит статические коллайдеры арены и отвечает на swept-запросы
type World struct {
	mu        sync.RWMutex
	colliders []*BoxCollider
}

// NewWorld создаёт пустой мир
func NewWorld() *World {
	return &World{}
}

// Add регистрирует коллайдер. Имена должны быть уникальны.
func (w *World) Add(c *BoxCollider) error {
	if c == nil {
		return errors.New("physics: nil collider")
	}
	if !c.Min.IsFinite() || !c.Max.IsFinite() {
		return fmt.Errorf("physics: collider %s has non-finite bounds", c.Name)
	}
	if c.Min.X > c.Max.X || c.Min.Y > c.Max.Y || c.Min.Z > c.Max.Z {
		return fmt.Errorf("physics: collider %s has min > max", c.Name)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if c.Name != "" {
		for _, existing := range w.colliders {
			if existing.Name == c.Name {
				return fmt.Errorf("physics: collider %s already exists", c.Name)
			}
		}
	}
	w.colliders = append(w.colliders, c)
	return nil
}

// Remove удаляет коллайдер по имени
func (w *World) Remove(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, c := range w.colliders {
		if c.Name == name {
			w.colliders = append(w.colliders[:i], w.colliders[i+1:]...)
			return true
		}
	}
	return false
}

// Colliders возвращает копию списка коллайдеров
func (w *World) Colliders() []*BoxCollider {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]*BoxCollider, len(w.colliders))
	copy(out, w.colliders)
	return out
}

// SetBounds переносит коллайдер. Возвращает false, если коллайдера нет или границы некорректны.
func (w *World) SetBounds(name string, lo, hi vec.Vec3) bool {
	if !lo.IsFinite() || !hi.IsFinite() || lo.X > hi.X || lo.Y > hi.Y || lo.Z > hi.Z {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, c := range w.colliders {
		if c.Name == name {
			c.Min, c.Max = lo, hi
			return true
		}
	}
	return false
}

// SweepTest находит ближайшее пересечение отрезка from→to с коллайдерами маски.
// Коллайдер, внутри которого начинается отрезок, игнорируется.
func (w *World) SweepTest(from, to vec.Vec3, mask LayerMask) (Hit, bool, error) {
	if !from.IsFinite() || !to.IsFinite() {
		return Hit{}, false, ErrInvalidSegment
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	var (
		best  Hit
		found bool
	)
	length := from.DistanceTo(to)
	for _, c := range w.colliders {
		if !c.Layer.Intersects(mask) {
			continue
		}
		fraction, normal, ok := c.IntersectSegment(from, to)
		if !ok {
			continue
		}
		if !found || fraction < best.Fraction {
			best = Hit{
				Point:    from.Lerp(to, fraction),
				Normal:   normal,
				Fraction: fraction,
				Distance: fraction * length,
				Collider: c,
			}
			found = true
		}
	}
	return best, found, nil
}
