package storage

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/arena-combat/internal/engine"
	"github.com/annel0/arena-combat/internal/logging"
)

// AutosaveName имя снимка, который пишет Autosaver
const AutosaveName = "autosave"

// Snapshotter источник снимков (engine.Simulation)
type Snapshotter interface {
	Snapshot() engine.Snapshot
}

// Autosaver периодически сохраняет снимок симуляции в репозиторий.
type Autosaver struct {
	repo     SnapshotRepo
	source   Snapshotter
	interval time.Duration
	shutdown chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewAutosaver создаёт автосохранение с заданным интервалом
func NewAutosaver(repo SnapshotRepo, source Snapshotter, interval time.Duration) *Autosaver {
	return &Autosaver{
		repo:     repo,
		source:   source,
		interval: interval,
		shutdown: make(chan struct{}),
	}
}

// Start запускает фоновую горутину сохранения
func (a *Autosaver) Start() {
	a.wg.Add(1)
	go a.loop()
}

// Stop останавливает цикл и делает финальное сохранение
func (a *Autosaver) Stop() {
	a.once.Do(func() {
		close(a.shutdown)
		a.wg.Wait()
		if err := a.SaveNow(context.Background()); err != nil {
			logging.Error("❌ Финальное автосохранение: %v", err)
		}
	})
}

// SaveNow сохраняет снимок немедленно
func (a *Autosaver) SaveNow(ctx context.Context) error {
	snap := a.source.Snapshot()
	if err := a.repo.Save(ctx, AutosaveName, snap); err != nil {
		return err
	}
	logging.Debug("💾 Автосохранение: tick=%d weapons=%d projectiles=%d", snap.Tick, len(snap.Weapons), len(snap.Projectiles))
	return nil
}

func (a *Autosaver) loop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), a.interval)
			if err := a.SaveNow(ctx); err != nil {
				logging.Warn("⚠️ Автосохранение не удалось: %v", err)
			}
			cancel()
		case <-a.shutdown:
			return
		}
	}
}
