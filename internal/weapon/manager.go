package weapon

import (
	"fmt"
	"sort"

	"github.com/annel0/arena-combat/internal/combat"
	"github.com/annel0/arena-combat/internal/logging"
	"github.com/annel0/arena-combat/internal/vec"
)

// Manager реестр живых экземпляров оружия.
// Синхронизация — ответственность владельца (engine.Simulation держит свой мьютекс).
type Manager struct {
	catalog    *Catalog
	factory    combat.EntityFactory
	spread     *Spread
	instances  map[Handle]*Instance // живые экземпляры
	nextHandle Handle               // счётчик для генерации хэндлов
}

// NewManager создаёт менеджер поверх каталога и фабрики сущностей
func NewManager(catalog *Catalog, factory combat.EntityFactory, spread *Spread) *Manager {
	return &Manager{
		catalog:    catalog,
		factory:    factory,
		spread:     spread,
		instances:  make(map[Handle]*Instance),
		nextHandle: 1,
	}
}

// Catalog возвращает каталог менеджера
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// Definitions возвращает отсортированные определения каталога
func (m *Manager) Definitions() []Definition {
	return m.catalog.Definitions()
}

// Spawn создаёт экземпляр оружия. Сущность, созданная фабрикой, освобождается при любой ошибке.
func (m *Manager) Spawn(t Type, position vec.Vec3, rotation vec.Quat) (Handle, error) {
	handle := m.nextHandle
	if err := m.spawnWithHandle(handle, t, Transform{Position: position, Rotation: rotation}); err != nil {
		return 0, err
	}
	m.nextHandle++
	return handle, nil
}

func (m *Manager) spawnWithHandle(handle Handle, t Type, rest Transform) error {
	def, ok := m.catalog.Lookup(t)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWeaponType, t)
	}
	if !rest.Position.IsFinite() {
		return fmt.Errorf("spawn %s: non-finite position %+v", t, rest.Position)
	}
	rest.Rotation = rest.Rotation.Normalized()

	entity, err := m.factory.Instantiate(def.Prefab, rest.Position, rest.Rotation)
	if err != nil {
		return fmt.Errorf("instantiate %s (%s): %w", t, def.Prefab, err)
	}
	if entity == nil {
		return fmt.Errorf("instantiate %s (%s): factory returned no entity", t, def.Prefab)
	}

	required := RequiredCapability(def.Category)
	if !entity.Capabilities().Has(required) {
		entity.Release()
		return fmt.Errorf("%w: %s needs %s, prefab %s provides %s",
			ErrMissingCapability, t, required, def.Prefab, entity.Capabilities())
	}

	m.instances[handle] = newInstance(handle, def, entity, rest, m.spread)
	logging.Debug("weapon %d (%s) создано в %+v", handle, t, rest.Position)
	return nil
}

// Destroy уничтожает экземпляр. Незавершённая перезарядка отбрасывается,
// выпущенные снаряды продолжают лететь.
func (m *Manager) Destroy(h Handle) error {
	inst, ok := m.instances[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownWeapon, h)
	}
	delete(m.instances, h)
	inst.entity.Release()
	logging.Debug("weapon %d (%s) уничтожено", h, inst.def.Type)
	return nil
}

// Get возвращает экземпляр по хэндлу
func (m *Manager) Get(h Handle) (*Instance, bool) {
	inst, ok := m.instances[h]
	return inst, ok
}

// Len возвращает число живых экземпляров
func (m *Manager) Len() int {
	return len(m.instances)
}

// Handles возвращает хэндлы в порядке создания
func (m *Manager) Handles() []Handle {
	out := make([]Handle, 0, len(m.instances))
	for h := range m.instances {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Each обходит экземпляры в детерминированном порядке хэндлов
func (m *Manager) Each(fn func(*Instance)) {
	for _, h := range m.Handles() {
		fn(m.instances[h])
	}
}

// Clear уничтожает все экземпляры
func (m *Manager) Clear() {
	for _, h := range m.Handles() {
		_ = m.Destroy(h)
	}
}

// Restore воссоздаёт экземпляр из снимка с тем же хэндлом
func (m *Manager) Restore(now float64, s InstanceState) error {
	if _, exists := m.instances[s.Handle]; exists || s.Handle == 0 {
		return fmt.Errorf("restore weapon %d: handle unavailable", s.Handle)
	}
	if err := m.spawnWithHandle(s.Handle, s.Type, s.Rest); err != nil {
		return err
	}
	m.instances[s.Handle].restore(now, s)
	if s.Handle >= m.nextHandle {
		m.nextHandle = s.Handle + 1
	}
	return nil
}

// NextHandle возвращает хэндл, который получит следующий экземпляр
func (m *Manager) NextHandle() Handle {
	return m.nextHandle
}

// SetNextHandle выставляет счётчик хэндлов (при восстановлении снимка)
func (m *Manager) SetNextHandle(h Handle) {
	if h > m.nextHandle {
		m.nextHandle = h
	}
}
