// Package app собирает симуляцию арены из конфигурации: каталог, префабы,
// геометрию, мишени, таблицу попаданий и пул снарядов.
package app

import (
	"fmt"
	"math/rand"

	"github.com/annel0/arena-combat/internal/ballistics"
	"github.com/annel0/arena-combat/internal/combat"
	"github.com/annel0/arena-combat/internal/config"
	"github.com/annel0/arena-combat/internal/engine"
	"github.com/annel0/arena-combat/internal/impact"
	"github.com/annel0/arena-combat/internal/logging"
	"github.com/annel0/arena-combat/internal/physics"
	"github.com/annel0/arena-combat/internal/vec"
	"github.com/annel0/arena-combat/internal/weapon"
)

// Arena собранная симуляция и её зависимости
type Arena struct {
	Simulation *engine.Simulation
	Catalog    *weapon.Catalog
	Prefabs    *weapon.PrefabFactory
	World      *physics.World
	Targets    []*combat.Target
	Pool       *ballistics.Pool[ballistics.Projectile]
}

// DefaultColliders тренировочная арена: пол, манекен и металлическая стена
func DefaultColliders() []config.ColliderConfig {
	return []config.ColliderConfig{
		{Name: "floor", Min: vec.Vec3{X: -50, Y: -1, Z: -50}, Max: vec.Vec3{X: 50, Y: 0, Z: 50}, Layer: "environment", Surface: "concrete"},
		{Name: "dummy", Min: vec.Vec3{X: -0.5, Y: 0, Z: 10}, Max: vec.Vec3{X: 0.5, Y: 2, Z: 10.5}, Layer: "target", Surface: "flesh", Health: 100, Shield: 25},
		{Name: "wall_north", Min: vec.Vec3{X: -50, Y: 0, Z: 49}, Max: vec.Vec3{X: 50, Y: 10, Z: 50}, Layer: "environment", Surface: "metal"},
	}
}

// DefaultImpactEffects эффекты попаданий по основным поверхностям
func DefaultImpactEffects() []config.ImpactEffectConfig {
	return []config.ImpactEffectConfig{
		{Surface: "metal", Effect: "fx_sparks", Sounds: []string{"impact_metal_01", "impact_metal_02", "impact_metal_03"}},
		{Surface: "concrete", Effect: "fx_dust", Sounds: []string{"impact_concrete_01", "impact_concrete_02"}},
		{Surface: "wood", Effect: "fx_splinters", Sounds: []string{"impact_wood_01", "impact_wood_02"}},
		{Surface: "flesh", Effect: "fx_blood", Sounds: []string{"impact_flesh_01", "impact_flesh_02"}},
		{Surface: "energy", Effect: "fx_shield_ripple", Sounds: []string{"impact_shield_01"}},
	}
}

// Build собирает арену по конфигурации. cfg должен пройти ApplyDefaults.
func Build(cfg *config.Config, effects combat.EffectSpawner) (*Arena, error) {
	catalog, err := loadCatalog(cfg.Simulation.CatalogPath)
	if err != nil {
		return nil, err
	}

	prefabs := weapon.NewPrefabFactory(weapon.PrefabsForCatalog(catalog))
	for _, p := range cfg.Prefabs {
		caps, err := weapon.ParsePrefabCapabilities(p.Capabilities)
		if err != nil {
			return nil, fmt.Errorf("prefab %s: %w", p.Name, err)
		}
		prefabs.Register(p.Name, caps)
	}

	colliders := cfg.Arena.Colliders
	if len(colliders) == 0 {
		colliders = DefaultColliders()
	}
	world, targets, err := buildWorld(colliders)
	if err != nil {
		return nil, err
	}

	effectsCfg := cfg.ImpactEffects
	if len(effectsCfg) == 0 {
		effectsCfg = DefaultImpactEffects()
	}
	table := make(map[string]impact.Entry, len(effectsCfg))
	for _, e := range effectsCfg {
		table[e.Surface] = impact.Entry{Effect: e.Effect, Sounds: e.Sounds}
	}
	resolver := impact.NewResolver(table, effects, rand.New(rand.NewSource(cfg.Simulation.Seed)))

	mask, err := physics.ParseMask(cfg.Ballistics.CollisionLayers)
	if err != nil {
		return nil, err
	}

	pool := ballistics.NewPool[ballistics.Projectile](cfg.Pool.Initial, cfg.Pool.GrowBy, cfg.Pool.Max, nil)
	integrator := ballistics.NewIntegrator(pool, world, cfg.Ballistics.Gravity)
	manager := weapon.NewManager(catalog, prefabs, weapon.NewSpread(cfg.Simulation.Seed))

	sim := engine.New(manager, integrator, resolver, effects, engine.Options{
		FixedStep:          cfg.Simulation.FixedStep,
		MaxSubSteps:        cfg.Simulation.MaxSubSteps,
		BulletSpeed:        cfg.Ballistics.BulletSpeed,
		BulletLifetime:     cfg.Ballistics.BulletLifetime,
		AdvancedBallistics: cfg.Ballistics.AdvancedBallistics,
		GravityMultiplier:  cfg.Ballistics.GravityMultiplier,
		AirResistance:      cfg.Ballistics.AirResistance,
		Mask:               mask,
		Colliders:          world,
	})
	sim.SetTargets(targets)

	logging.Info("🏟️ Арена собрана: оружие=%d коллайдеры=%d мишени=%d поверхности=%d",
		catalog.Len(), len(colliders), len(targets), len(table))

	return &Arena{
		Simulation: sim,
		Catalog:    catalog,
		Prefabs:    prefabs,
		World:      world,
		Targets:    targets,
		Pool:       pool,
	}, nil
}

func loadCatalog(path string) (*weapon.Catalog, error) {
	if path == "" {
		return weapon.DefaultCatalog(), nil
	}
	catalog, err := weapon.LoadCatalogFile(path)
	if err != nil {
		return nil, fmt.Errorf("каталог %s: %w", path, err)
	}
	return catalog, nil
}

func buildWorld(colliders []config.ColliderConfig) (*physics.World, []*combat.Target, error) {
	world := physics.NewWorld()
	var targets []*combat.Target
	for _, cc := range colliders {
		layer, err := physics.ParseLayer(cc.Layer)
		if err != nil {
			return nil, nil, fmt.Errorf("collider %s: %w", cc.Name, err)
		}
		box := &physics.BoxCollider{
			Name:    cc.Name,
			Min:     cc.Min,
			Max:     cc.Max,
			Layer:   layer,
			Surface: cc.Surface,
		}
		if cc.Health > 0 {
			target := combat.NewTarget(cc.Name, cc.Health, cc.Shield)
			box.Receiver = target
			targets = append(targets, target)
		}
		if err := world.Add(box); err != nil {
			return nil, nil, err
		}
	}
	return world, targets, nil
}
