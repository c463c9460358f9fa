package weapon

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/annel0/arena-combat/internal/combat"
	"github.com/annel0/arena-combat/internal/vec"
)

// ErrUnknownPrefab возвращается фабрикой для незарегистрированных префабов
var ErrUnknownPrefab = errors.New("weapon: unknown prefab")

// PrefabFactory фабрика сущностей по таблице «префаб → возможности»
type PrefabFactory struct {
	mu      sync.RWMutex
	prefabs map[string]combat.Capability
	nextID  uint64
	live    int64
}

// NewPrefabFactory создаёт фабрику с заданной таблицей
func NewPrefabFactory(prefabs map[string]combat.Capability) *PrefabFactory {
	f := &PrefabFactory{prefabs: make(map[string]combat.Capability, len(prefabs))}
	for name, caps := range prefabs {
		f.prefabs[name] = caps
	}
	return f
}

// PrefabsForCatalog строит таблицу, где каждый префаб каталога даёт возможность своей категории
func PrefabsForCatalog(c *Catalog) map[string]combat.Capability {
	out := make(map[string]combat.Capability)
	for _, def := range c.Definitions() {
		out[def.Prefab] |= RequiredCapability(def.Category)
	}
	return out
}

// ParsePrefabCapabilities разбирает имена возможностей из конфигурации
func ParsePrefabCapabilities(names []string) (combat.Capability, error) {
	var caps combat.Capability
	for _, name := range names {
		c, ok := combat.ParseCapability(name)
		if !ok {
			return combat.CapNone, fmt.Errorf("unknown capability %q", name)
		}
		caps |= c
	}
	return caps, nil
}

// Register добавляет или заменяет префаб
func (f *PrefabFactory) Register(prefab string, caps combat.Capability) {
	f.mu.Lock()
	f.prefabs[prefab] = caps
	f.mu.Unlock()
}

// Instantiate реализует combat.EntityFactory
func (f *PrefabFactory) Instantiate(prefab string, position vec.Vec3, rotation vec.Quat) (combat.Entity, error) {
	f.mu.RLock()
	caps, ok := f.prefabs[prefab]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPrefab, prefab)
	}

	atomic.AddInt64(&f.live, 1)
	return &prefabEntity{
		id:       atomic.AddUint64(&f.nextID, 1),
		prefab:   prefab,
		caps:     caps,
		position: position,
		rotation: rotation,
		factory:  f,
	}, nil
}

// Live возвращает число неосвобождённых сущностей
func (f *PrefabFactory) Live() int {
	return int(atomic.LoadInt64(&f.live))
}

type prefabEntity struct {
	id       uint64
	prefab   string
	caps     combat.Capability
	position vec.Vec3
	rotation vec.Quat
	released atomic.Bool
	factory  *PrefabFactory
}

func (e *prefabEntity) ID() uint64 { return e.id }
func (e *prefabEntity) Capabilities() combat.Capability { return e.caps }

// Release идемпотентен
func (e *prefabEntity) Release() {
	if e.released.CompareAndSwap(false, true) {
		atomic.AddInt64(&e.factory.live, -1)
	}
}
