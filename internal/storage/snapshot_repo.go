package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/annel0/arena-combat/internal/config"
	"github.com/annel0/arena-combat/internal/engine"
)

// ErrNotFound снимок с таким именем не сохранялся
var ErrNotFound = errors.New("snapshot not found")

// ErrInvalidName пустое имя или имя с недопустимыми символами
var ErrInvalidName = errors.New("invalid snapshot name")

// SnapshotRepo определяет интерфейс хранения снимков симуляции.
// Снимки адресуются именем ("autosave", "before-round-3" …).
type SnapshotRepo interface {
	// Save сохраняет снимок, перезаписывая существующий с тем же именем.
	Save(ctx context.Context, name string, snap engine.Snapshot) error

	// Load загружает снимок. Возвращает ErrNotFound если снимка нет.
	Load(ctx context.Context, name string) (engine.Snapshot, error)

	// Delete удаляет снимок. Удаление отсутствующего снимка не ошибка.
	Delete(ctx context.Context, name string) error

	// List возвращает отсортированные имена снимков.
	List(ctx context.Context) ([]string, error)

	// Close освобождает ресурсы хранилища.
	Close() error
}

// ValidateName проверяет имя снимка
func ValidateName(name string) error {
	if name == "" || len(name) > 128 {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, ":*?[]/\\ \t\n") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Open создаёт хранилище по конфигурации.
func Open(cfg config.StorageConfig) (SnapshotRepo, error) {
	codec, err := NewCodec()
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "", "memory":
		return NewMemorySnapshotRepo(codec), nil
	case "badger":
		return NewBadgerSnapshotRepo(cfg.BadgerPath, codec)
	case "redis":
		rc := DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		if cfg.KeyPrefix != "" {
			rc.KeyPrefix = cfg.KeyPrefix + ":snapshot:"
		}
		return NewRedisSnapshotRepo(rc, codec)
	default:
		codec.Close()
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
