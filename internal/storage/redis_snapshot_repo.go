package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/annel0/arena-combat/internal/engine"
	"github.com/annel0/arena-combat/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записей, 0 — без ограничения
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		KeyPrefix: "combat:snapshot:",
		TTL:       0,
	}
}

// RedisSnapshotRepo хранит снимки в Redis, чтобы несколько процессов видели общие сохранения
type RedisSnapshotRepo struct {
	client    *redis.Client
	codec     *Codec
	keyPrefix string
	ttl       time.Duration
}

// NewRedisSnapshotRepo подключается к Redis
func NewRedisSnapshotRepo(config *RedisConfig, codec *Codec) (*RedisSnapshotRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		codec.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("🔴 Подключено к Redis %s", config.Addr)
	return &RedisSnapshotRepo{
		client:    client,
		codec:     codec,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
	}, nil
}

func (r *RedisSnapshotRepo) key(name string) string {
	return r.keyPrefix + name
}

// Save сохраняет снимок
func (r *RedisSnapshotRepo) Save(ctx context.Context, name string, snap engine.Snapshot) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	data, err := r.codec.Encode(snap)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(name), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", name, err)
	}
	return nil
}

// Load загружает снимок
func (r *RedisSnapshotRepo) Load(ctx context.Context, name string) (engine.Snapshot, error) {
	data, err := r.client.Get(ctx, r.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return engine.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("failed to load snapshot %s: %w", name, err)
	}
	return r.codec.Decode(data)
}

// Delete удаляет снимок
func (r *RedisSnapshotRepo) Delete(ctx context.Context, name string) error {
	if err := r.client.Del(ctx, r.key(name)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", name, err)
	}
	return nil
}

// List сканирует ключи с префиксом
func (r *RedisSnapshotRepo) List(ctx context.Context) ([]string, error) {
	var names []string
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), r.keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan snapshots: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Close закрывает клиент
func (r *RedisSnapshotRepo) Close() error {
	r.codec.Close()
	return r.client.Close()
}
