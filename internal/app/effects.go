package app

import (
	"sync/atomic"

	"github.com/annel0/arena-combat/internal/logging"
	"github.com/annel0/arena-combat/internal/vec"
)

// LogEffects EffectSpawner сервера без клиента: пишет эффекты в лог и считает их
type LogEffects struct {
	logger  *logging.Logger
	effects atomic.Uint64
	sounds  atomic.Uint64
}

// NewLogEffects создаёт спаунер поверх логгера
func NewLogEffects(logger *logging.Logger) *LogEffects {
	return &LogEffects{logger: logger}
}

func (e *LogEffects) SpawnEffect(handle string, position vec.Vec3, rotation vec.Quat) {
	e.effects.Add(1)
	if e.logger != nil {
		e.logger.Trace("✨ effect %s at (%.2f, %.2f, %.2f)", handle, position.X, position.Y, position.Z)
	}
}

func (e *LogEffects) SpawnAudio(handle string, position vec.Vec3) {
	e.sounds.Add(1)
	if e.logger != nil {
		e.logger.Trace("🔊 audio %s at (%.2f, %.2f, %.2f)", handle, position.X, position.Y, position.Z)
	}
}

// Counts возвращает число созданных эффектов и звуков
func (e *LogEffects) Counts() (effects, sounds uint64) {
	return e.effects.Load(), e.sounds.Load()
}
