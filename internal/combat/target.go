package combat

import (
	"math"
	"sync"
)

// Target мишень арены с запасом здоровья и энергетическим щитом.
// Щит поглощает урон, пока в нём есть энергия; остаток уходит в здоровье.
type Target struct {
	Name string

	mu        sync.Mutex
	health    float64
	maxHealth float64
	shield    float64
	hits      int
	received  float64
	lastHit   DamageEvent
}

// NewTarget создаёт мишень
func NewTarget(name string, health, shield float64) *Target {
	return &Target{
		Name:      name,
		health:    health,
		maxHealth: health,
		shield:    math.Max(shield, 0),
	}
}

// TakeDamage реализует DamageReceiver
func (t *Target) TakeDamage(event DamageEvent) {
	if event.Amount <= 0 || math.IsNaN(event.Amount) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	absorbed := math.Min(event.Amount, t.shield)
	t.shield -= absorbed
	t.health = math.Max(t.health-(event.Amount-absorbed), 0)
	t.hits++
	t.received += event.Amount
	t.lastHit = event
}

// TargetState снимок состояния мишени
type TargetState struct {
	Name     string      `json:"name"`
	Health   float64     `json:"health"`
	Shield   float64     `json:"shield"`
	Alive    bool        `json:"alive"`
	Hits     int         `json:"hits"`
	Received float64     `json:"received"`
	LastHit  DamageEvent `json:"last_hit"`
}

// State возвращает текущее состояние
func (t *Target) State() TargetState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TargetState{
		Name:     t.Name,
		Health:   t.health,
		Shield:   t.shield,
		Alive:    t.health > 0,
		Hits:     t.hits,
		Received: t.received,
		LastHit:  t.lastHit,
	}
}

// Restore восстанавливает здоровье и щит из снимка
func (t *Target) Restore(s TargetState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.health = s.Health
	t.shield = s.Shield
	t.hits = s.Hits
	t.received = s.Received
	t.lastHit = s.LastHit
}

// Reset возвращает мишень в исходное состояние без восстановления щита
func (t *Target) Reset() {
	t.mu.Lock()
	t.health = t.maxHealth
	t.hits = 0
	t.received = 0
	t.lastHit = DamageEvent{}
	t.mu.Unlock()
}
