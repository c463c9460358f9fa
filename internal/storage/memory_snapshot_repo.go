package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/arena-combat/internal/engine"
)

// MemorySnapshotRepo реализует SnapshotRepo в памяти.
// Используется в тестах и при запуске без внешнего хранилища.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemorySnapshotRepo struct {
	mu    sync.RWMutex
	codec *Codec
	data  map[string][]byte // имя -> сжатый снимок
}

// NewMemorySnapshotRepo создаёт репозиторий снимков в памяти
func NewMemorySnapshotRepo(codec *Codec) *MemorySnapshotRepo {
	return &MemorySnapshotRepo{
		codec: codec,
		data:  make(map[string][]byte),
	}
}

// Save сохраняет снимок в памяти.
func (r *MemorySnapshotRepo) Save(ctx context.Context, name string, snap engine.Snapshot) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("операция отменена: %w", err)
	}

	data, err := r.codec.Encode(snap)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.data[name] = data
	r.mu.Unlock()
	return nil
}

// Load загружает снимок из памяти.
func (r *MemorySnapshotRepo) Load(ctx context.Context, name string) (engine.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return engine.Snapshot{}, fmt.Errorf("операция отменена: %w", err)
	}

	r.mu.RLock()
	data, ok := r.data[name]
	r.mu.RUnlock()
	if !ok {
		return engine.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return r.codec.Decode(data)
}

// Delete удаляет снимок.
func (r *MemorySnapshotRepo) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("операция отменена: %w", err)
	}
	r.mu.Lock()
	delete(r.data, name)
	r.mu.Unlock()
	return nil
}

// List возвращает имена снимков.
func (r *MemorySnapshotRepo) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("операция отменена: %w", err)
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.data))
	for name := range r.data {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names, nil
}

// Close освобождает кодек.
func (r *MemorySnapshotRepo) Close() error {
	r.codec.Close()
	return nil
}
