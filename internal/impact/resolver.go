// Package impact сопоставляет материал поверхности визуальному и звуковому эффекту
// попадания и передаёт урон получателю.
package impact

import (
	"math/rand"
	"sync"

	"github.com/annel0/arena-combat/internal/combat"
	"github.com/annel0/arena-combat/internal/logging"
	"github.com/annel0/arena-combat/internal/vec"
)

// Entry эффекты для одного материала
type Entry struct {
	Effect string   `yaml:"effect" json:"effect"`
	Sounds []string `yaml:"sounds" json:"sounds"`
}

// Outcome описывает, что произошло при разрешении попадания
type Outcome struct {
	Damaged bool   // урон доставлен получателю
	Effect  string // заспавненный визуальный эффект
	Sound   string // выбранный звук
}

// Resolver разрешает попадания. Урон доставляется всегда, независимо от наличия записи
// в таблице, а сбой спаунера эффектов не подавляет урон.
type Resolver struct {
	table   map[string]Entry
	effects combat.EffectSpawner
	mu      sync.Mutex // rand.Rand не потокобезопасен
	rng     *rand.Rand
	log     *logging.Logger
}

// NewResolver создаёт резолвер. rng задаёт выбор звука; nil — фиксированное зерно.
func NewResolver(table map[string]Entry, effects combat.EffectSpawner, rng *rand.Rand) *Resolver {
	if effects == nil {
		effects = combat.NopEffects{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	t := make(map[string]Entry, len(table))
	for surface, e := range table {
		t[surface] = e
	}
	return &Resolver{
		table:   t,
		effects: effects,
		rng:     rng,
		log:     logging.GetImpactLogger(),
	}
}

// Lookup возвращает запись материала
func (r *Resolver) Lookup(surface string) (Entry, bool) {
	e, ok := r.table[surface]
	return e, ok
}

// Surfaces возвращает число известных материалов
func (r *Resolver) Surfaces() int {
	return len(r.table)
}

// Resolve доставляет урон и воспроизводит эффекты материала в точке попадания
func (r *Resolver) Resolve(surface string, event combat.DamageEvent, receiver combat.DamageReceiver) Outcome {
	var out Outcome
	if receiver != nil {
		out.Damaged = r.deliver(receiver, event)
	}

	entry, ok := r.table[surface]
	if !ok {
		return out
	}
	out.Effect, out.Sound = r.spawn(entry, event)
	return out
}

func (r *Resolver) deliver(receiver combat.DamageReceiver, event combat.DamageEvent) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("паника получателя урона: %v", rec)
			ok = false
		}
	}()
	receiver.TakeDamage(event)
	return true
}

func (r *Resolver) spawn(entry Entry, event combat.DamageEvent) (effect, sound string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("паника спаунера эффектов: %v", rec)
		}
	}()

	if entry.Effect != "" {
		r.effects.SpawnEffect(entry.Effect, event.Point, vec.LookRotation(event.Normal))
		effect = entry.Effect
	}
	if len(entry.Sounds) > 0 {
		r.mu.Lock()
		clip := entry.Sounds[r.rng.Intn(len(entry.Sounds))]
		r.mu.Unlock()
		r.effects.SpawnAudio(clip, event.Point)
		sound = clip
	}
	return effect, sound
}
