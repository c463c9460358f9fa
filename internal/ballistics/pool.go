// Package ballistics содержит пул снарядов и пошаговый интегратор траекторий
// со swept-проверкой столкновений.
package ballistics

import (
	"errors"
	"fmt"
)

// ErrPoolExhausted возвращается, когда пул достиг жёсткого лимита
var ErrPoolExhausted = errors.New("ballistics: pool exhausted")

// Handle ссылается на слот пула. Поколение отличает переиспользованный слот
// от освобождённого, поэтому устаревший хэндл никогда не указывает на живой объект.
type Handle struct {
	Index      uint32 `json:"index"`
	Generation uint32 `json:"generation"`
}

func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.Index, h.Generation)
}

// PoolStats счётчики пула
type PoolStats struct {
	Capacity int    `json:"capacity"`
	Active   int    `json:"active"`
	Acquired uint64 `json:"acquired"`
	Released uint64 `json:"released"`
	Grows    uint64 `json:"grows"`
	Failed   uint64 `json:"failed"`
}

type slot[T any] struct {
	value      T
	generation uint32
	active     bool
}

// Pool переиспользуемый пул объектов. Растёт порциями growBy, max > 0 задаёт жёсткий лимит.
// Не потокобезопасен.
type Pool[T any] struct {
	slots  []*slot[T]
	free   []uint32
	growBy int
	max    int
	reset  func(*T)
	stats  PoolStats
}

// NewPool создаёт пул с initial свободными слотами.
// reset вызывается при освобождении; nil означает обнуление значения.
func NewPool[T any](initial, growBy, max int, reset func(*T)) *Pool[T] {
	if growBy <= 0 {
		growBy = 1
	}
	if initial < 0 {
		initial = 0
	}
	if max > 0 && initial > max {
		initial = max
	}
	p := &Pool[T]{growBy: growBy, max: max, reset: reset}
	p.grow(initial)
	return p
}

func (p *Pool[T]) grow(n int) int {
	if p.max > 0 && len(p.slots)+n > p.max {
		n = p.max - len(p.slots)
	}
	for i := 0; i < n; i++ {
		idx := uint32(len(p.slots))
		p.slots = append(p.slots, &slot[T]{generation: 1})
		p.free = append(p.free, idx)
	}
	// свободные слоты выдаются с конца: младшие индексы первыми
	for i, j := len(p.free)-n, len(p.free)-1; i < j; i, j = i+1, j-1 {
		p.free[i], p.free[j] = p.free[j], p.free[i]
	}
	p.stats.Capacity = len(p.slots)
	return n
}

// Acquire выдаёт свободный слот, при необходимости расширяя пул
func (p *Pool[T]) Acquire() (Handle, *T, error) {
	if len(p.free) == 0 {
		if p.grow(p.growBy) == 0 {
			p.stats.Failed++
			return Handle{}, nil, fmt.Errorf("%w: %d slots in use", ErrPoolExhausted, len(p.slots))
		}
		p.stats.Grows++
	}

	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	s := p.slots[idx]
	s.active = true
	p.stats.Active++
	p.stats.Acquired++
	return Handle{Index: idx, Generation: s.generation}, &s.value, nil
}

// Release возвращает слот в пул. Повторный или устаревший хэндл игнорируется.
func (p *Pool[T]) Release(h Handle) bool {
	s, ok := p.lookup(h)
	if !ok {
		return false
	}
	if p.reset != nil {
		p.reset(&s.value)
	} else {
		var zero T
		s.value = zero
	}
	s.active = false
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	p.free = append(p.free, h.Index)
	p.stats.Active--
	p.stats.Released++
	return true
}

// Get возвращает объект живого слота
func (p *Pool[T]) Get(h Handle) (*T, bool) {
	s, ok := p.lookup(h)
	if !ok {
		return nil, false
	}
	return &s.value, true
}

func (p *Pool[T]) lookup(h Handle) (*slot[T], bool) {
	if int(h.Index) >= len(p.slots) {
		return nil, false
	}
	s := p.slots[h.Index]
	if !s.active || s.generation != h.Generation {
		return nil, false
	}
	return s, true
}

// Each обходит живые слоты по возрастанию индекса. fn может освобождать текущий слот.
// Обход прекращается, если fn вернёт false.
func (p *Pool[T]) Each(fn func(Handle, *T) bool) {
	n := len(p.slots)
	for i := 0; i < n; i++ {
		s := p.slots[i]
		if !s.active {
			continue
		}
		if !fn(Handle{Index: uint32(i), Generation: s.generation}, &s.value) {
			return
		}
	}
}

// Active возвращает число выданных слотов
func (p *Pool[T]) Active() int {
	return p.stats.Active
}

// Stats возвращает копию счётчиков
func (p *Pool[T]) Stats() PoolStats {
	return p.stats
}
