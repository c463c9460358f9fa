package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/annel0/arena-combat/internal/vec"
	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера симуляции.
// Нулевые значения заполняются через ApplyDefaults.
type Config struct {
	Simulation    SimulationConfig     `yaml:"simulation"`
	Ballistics    BallisticsConfig     `yaml:"ballistics"`
	Pool          PoolConfig           `yaml:"pool"`
	Server        ServerConfig         `yaml:"server"`
	Logging       LoggingConfig        `yaml:"logging"`
	Storage       StorageConfig        `yaml:"storage"`
	EventBus      EventBusConfig       `yaml:"eventbus"`
	Telemetry     TelemetryConfig      `yaml:"telemetry"`
	Auth          AuthConfig           `yaml:"auth"`
	Arena         ArenaConfig          `yaml:"arena"`
	ImpactEffects []ImpactEffectConfig `yaml:"impact_effects"`
	Prefabs       []PrefabConfig       `yaml:"prefabs"`
}

type SimulationConfig struct {
	TickRate    int     `yaml:"tick_rate"`     // кадров в секунду
	FixedStep   float64 `yaml:"fixed_step"`    // шаг баллистики, сек
	MaxSubSteps int     `yaml:"max_sub_steps"` // ограничение шагов за кадр
	Seed        int64   `yaml:"seed"`
	CatalogPath string  `yaml:"catalog_path"` // пусто — встроенный каталог
}

type BallisticsConfig struct {
	BulletSpeed        float64  `yaml:"bullet_speed"`
	BulletLifetime     float64  `yaml:"bullet_lifetime"`
	AdvancedBallistics bool     `yaml:"advanced_ballistics"`
	GravityMultiplier  float64  `yaml:"gravity_multiplier"`
	AirResistance      float64  `yaml:"air_resistance"`
	Gravity            vec.Vec3 `yaml:"gravity"`
	CollisionLayers    []string `yaml:"collision_layers"` // пусто — все слои
}

type PoolConfig struct {
	Initial int `yaml:"initial"`
	GrowBy  int `yaml:"grow_by"`
	Max     int `yaml:"max"` // 0 — без жёсткого лимита
}

type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  bool   `yaml:"file"`
}

type StorageConfig struct {
	Backend         string `yaml:"backend"` // memory | badger | redis
	BadgerPath      string `yaml:"badger_path"`
	RedisAddr       string `yaml:"redis_addr"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	KeyPrefix       string `yaml:"key_prefix"`
	AutosaveSeconds int    `yaml:"autosave_seconds"` // 0 — автосохранение выключено
}

type EventBusConfig struct {
	URL        string `yaml:"url"` // пусто — in-memory шина
	Stream     string `yaml:"stream"`
	Retention  int    `yaml:"retention_hours"`
	SinkBuffer int    `yaml:"sink_buffer"` // очередь публикации событий кадра
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

type AuthConfig struct {
	JWTSecret       string   `yaml:"jwt_secret"`
	APIKeys         []string `yaml:"api_keys"`
	TokenTTLMinutes int      `yaml:"token_ttl_minutes"`
}

// ArenaConfig описывает статическую геометрию арены: стены и мишени
type ArenaConfig struct {
	Colliders []ColliderConfig `yaml:"colliders"`
}

type ColliderConfig struct {
	Name    string   `yaml:"name"`
	Min     vec.Vec3 `yaml:"min"`
	Max     vec.Vec3 `yaml:"max"`
	Layer   string   `yaml:"layer"`
	Surface string   `yaml:"surface"`
	Health  float64  `yaml:"health"` // > 0 — коллайдер является мишенью
	Shield  float64  `yaml:"shield"`
}

type ImpactEffectConfig struct {
	Surface string   `yaml:"surface"`
	Effect  string   `yaml:"effect"`
	Sounds  []string `yaml:"sounds"`
}

// PrefabConfig сопоставляет префабу набор возможностей сущности
type PrefabConfig struct {
	Name         string   `yaml:"name"`
	Capabilities []string `yaml:"capabilities"`
}

// Default возвращает конфигурацию со значениями по умолчанию
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults заполняет незаданные поля
func (c *Config) ApplyDefaults() {
	if c.Simulation.TickRate <= 0 {
		c.Simulation.TickRate = 60
	}
	if c.Simulation.FixedStep <= 0 {
		c.Simulation.FixedStep = 0.02
	}
	if c.Simulation.MaxSubSteps <= 0 {
		c.Simulation.MaxSubSteps = 8
	}
	if c.Ballistics.BulletSpeed <= 0 {
		c.Ballistics.BulletSpeed = 100
	}
	if c.Ballistics.BulletLifetime <= 0 {
		c.Ballistics.BulletLifetime = 5
	}
	if c.Ballistics.GravityMultiplier == 0 {
		c.Ballistics.GravityMultiplier = 1
	}
	if c.Ballistics.AirResistance == 0 {
		c.Ballistics.AirResistance = 0.1
	}
	if c.Ballistics.Gravity == vec.Zero {
		c.Ballistics.Gravity = vec.Vec3{Y: -9.81}
	}
	if c.Pool.Initial <= 0 {
		c.Pool.Initial = 32
	}
	if c.Pool.GrowBy <= 0 {
		c.Pool.GrowBy = 16
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.BadgerPath == "" {
		c.Storage.BadgerPath = "data/snapshots"
	}
	if c.Storage.RedisAddr == "" {
		c.Storage.RedisAddr = "localhost:6379"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "combat"
	}
	if c.EventBus.Stream == "" {
		c.EventBus.Stream = "COMBAT_EVENTS"
	}
	if c.EventBus.Retention <= 0 {
		c.EventBus.Retention = 24
	}
	if c.EventBus.SinkBuffer <= 0 {
		c.EventBus.SinkBuffer = 1024
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "arena-combat"
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4318"
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		c.Auth.TokenTTLMinutes = 60
	}
}

// Validate проверяет значения, которые нельзя исправить дефолтами
func (c *Config) Validate() error {
	if c.Pool.Max > 0 && c.Pool.Max < c.Pool.Initial {
		return fmt.Errorf("pool.max (%d) меньше pool.initial (%d)", c.Pool.Max, c.Pool.Initial)
	}
	switch c.Storage.Backend {
	case "memory", "badger", "redis":
	default:
		return fmt.Errorf("неизвестный storage.backend: %q", c.Storage.Backend)
	}
	for i, col := range c.Arena.Colliders {
		if col.Min.X > col.Max.X || col.Min.Y > col.Max.Y || col.Min.Z > col.Max.Z {
			return fmt.Errorf("arena.colliders[%d] (%s): min больше max", i, col.Name)
		}
	}
	return nil
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "COMBAT_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "COMBAT_METRICS_PORT", 2112)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV COMBAT_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("COMBAT_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
