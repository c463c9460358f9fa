package engine

import (
	"testing"

	"github.com/annel0/arena-combat/internal/ballistics"
	"github.com/annel0/arena-combat/internal/combat"
	"github.com/annel0/arena-combat/internal/impact"
	"github.com/annel0/arena-combat/internal/physics"
	"github.com/annel0/arena-combat/internal/vec"
	"github.com/annel0/arena-combat/internal/weapon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt = 0.02

type recordingSink struct {
	ticks  []TickStats
	events []Event
}

func (r *recordingSink) Consume(stats TickStats, events []Event) {
	r.ticks = append(r.ticks, stats)
	r.events = append(r.events, events...)
}

func (r *recordingSink) ofKind(kind EventKind) []Event {
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	sim    *Simulation
	world  *physics.World
	target *combat.Target
	sink   *recordingSink
	pool   *ballistics.Pool[ballistics.Projectile]
}

func testCatalog(t *testing.T) *weapon.Catalog {
	t.Helper()
	c, err := weapon.NewCatalog([]weapon.Definition{
		{
			Type: "TestRifle", Category: weapon.CategoryRanged, Damage: 20,
			MagazineSize: 10, FireInterval: 0.1, ReloadDuration: 1,
			RecoilDuration: 0.1, RecoilForce: vec.Vec3{Z: -0.1},
			Prefab: "rifle", MuzzleOffset: vec.Vec3{Z: 0.5}, ProjectileSpeed: 500,
			MuzzleEffect: "fx_muzzle", FireSound: "sfx_fire",
		},
		{
			Type: "TestBlade", Category: weapon.CategoryMelee, Damage: 35,
			FireInterval: 0.5, Prefab: "blade", Reach: 2,
		},
		{
			Type: "TestShield", Category: weapon.CategoryShield, Prefab: "shield",
		},
		{
			Type: "TestBarrier", Category: weapon.CategoryShield, Prefab: "barrier",
			Shield: &weapon.ShieldSpec{Mode: weapon.ShieldReflective, Durability: 40, RechargeRate: 10, Ratio: 0.5},
		},
		{
			Type: "TestGrenade", Category: weapon.CategorySpecial, Damage: 100,
			MagazineSize: 1, Consumable: true, FireInterval: 1,
			Prefab: "grenade", ProjectileSpeed: 15,
		},
	})
	require.NoError(t, err)
	return c
}

func newFixture(t *testing.T, poolMax int) *fixture {
	t.Helper()
	catalog := testCatalog(t)
	manager := weapon.NewManager(catalog, weapon.NewPrefabFactory(weapon.PrefabsForCatalog(catalog)), nil)

	target := combat.NewTarget("wall", 100, 10)
	world := physics.NewWorld()
	require.NoError(t, world.Add(&physics.BoxCollider{
		Name:     "wall",
		Min:      vec.Vec3{X: -5, Y: -5, Z: 13},
		Max:      vec.Vec3{X: 5, Y: 5, Z: 15},
		Layer:    physics.LayerTarget,
		Surface:  "metal",
		Receiver: target,
	}))

	pool := ballistics.NewPool[ballistics.Projectile](1, 1, poolMax, nil)
	integrator := ballistics.NewIntegrator(pool, world, vec.Vec3{Y: -9.81})
	resolver := impact.NewResolver(map[string]impact.Entry{
		"metal":       {Effect: "fx_sparks", Sounds: []string{"hit_metal"}},
		ShieldSurface: {Effect: "fx_shield_hit"},
	}, nil, nil)

	opts := DefaultOptions()
	opts.FixedStep = dt
	opts.Colliders = world
	sim := New(manager, integrator, resolver, nil, opts)
	sim.SetTargets([]*combat.Target{target})
	sink := &recordingSink{}
	sim.AddSink(sink)
	return &fixture{sim: sim, world: world, target: target, sink: sink, pool: pool}
}

func (f *fixture) spawn(t *testing.T, typ weapon.Type, at vec.Vec3) weapon.Handle {
	t.Helper()
	h, err := f.sim.SpawnWeapon(typ, at, vec.Identity())
	require.NoError(t, err)
	return h
}

func TestFireAppliedAtNextTickAndIntegratedAfter(t *testing.T) {
	f := newFixture(t, 0)
	h := f.spawn(t, "TestRifle", vec.Zero)

	f.sim.Fire(h)
	assert.Equal(t, 1, f.sim.PendingIntents())
	state, _ := f.sim.GetState(h)
	assert.Equal(t, 10, state.Ammo, "до кадра команда не применена")

	f.sim.Tick(dt)
	state, _ = f.sim.GetState(h)
	assert.Equal(t, 9, state.Ammo)
	projectiles := f.sim.Projectiles()
	require.Len(t, projectiles, 1)
	assert.Equal(t, vec.Vec3{Z: 0.5}, projectiles[0].Position, "в кадре выстрела снаряд не интегрируется")

	f.sim.Tick(dt)
	projectiles = f.sim.Projectiles()
	require.Len(t, projectiles, 1)
	assert.InDelta(t, 10.5, projectiles[0].Position.Z, 1e-9)

	f.sim.Tick(dt)
	assert.Empty(t, f.sim.Projectiles(), "снаряд вернулся в пул после попадания")

	impacts := f.sink.ofKind(EventImpact)
	require.Len(t, impacts, 1)
	assert.Equal(t, uint64(3), impacts[0].Tick)
	assert.Equal(t, vec.Vec3{Z: -1}, impacts[0].Normal)
	assert.True(t, impacts[0].Damaged)
	assert.Equal(t, "fx_sparks", impacts[0].Effect)
	assert.Equal(t, "hit_metal", impacts[0].Sound)

	ts := f.target.State()
	assert.Equal(t, 0.0, ts.Shield)
	assert.Equal(t, 90.0, ts.Health)
	assert.True(t, ts.LastHit.Source.ApproxEqual(vec.Vec3{Z: 20.5}, 1e-9),
		"источник урона — позиция снаряда в конце шага с попаданием, получено %v", ts.LastHit.Source)
	assert.Len(t, f.sink.ofKind(EventFired), 1)
	assert.Equal(t, 0, f.pool.Active())
}

func TestIntentsAppliedInArrivalOrder(t *testing.T) {
	f := newFixture(t, 0)
	h := f.spawn(t, "TestRifle", vec.Zero)

	f.sim.Reload(h)
	f.sim.Fire(h)
	f.sim.Tick(dt)

	assert.Len(t, f.sink.ofKind(EventReloadStarted), 1)
	rejected := f.sink.ofKind(EventFireRejected)
	require.Len(t, rejected, 1, "выстрел после перезарядки в том же кадре отклонён")
	assert.Equal(t, "reloading", rejected[0].Result)

	for i := 0; i < 60; i++ {
		f.sim.Tick(dt)
	}
	assert.Len(t, f.sink.ofKind(EventReloadCompleted), 1)
	state, _ := f.sim.GetState(h)
	assert.Equal(t, "ready", state.State)
	assert.Equal(t, 10, state.Ammo)
}

func TestTenShotsThenReload(t *testing.T) {
	f := newFixture(t, 0)
	h := f.spawn(t, "TestRifle", vec.Vec3{X: 100})

	for i := 0; i < 60; i++ {
		f.sim.Fire(h)
		f.sim.Tick(dt)
	}
	state, _ := f.sim.GetState(h)
	assert.Equal(t, 0, state.Ammo)
	assert.Equal(t, "empty", state.State)
	assert.Len(t, f.sink.ofKind(EventFired), 10)

	f.sim.Reload(h)
	f.sim.Tick(dt)
	state, _ = f.sim.GetState(h)
	assert.Equal(t, "reloading", state.State)
	assert.InDelta(t, 1.0, state.ReloadRemaining, 1e-9)
}

func TestMeleeHitsWithinSameTick(t *testing.T) {
	f := newFixture(t, 0)
	h := f.spawn(t, "TestBlade", vec.Vec3{Z: 12})

	f.sim.Fire(h)
	f.sim.Tick(dt)

	impacts := f.sink.ofKind(EventImpact)
	require.Len(t, impacts, 1)
	assert.True(t, impacts[0].Melee)
	assert.True(t, impacts[0].Point.ApproxEqual(vec.Vec3{Z: 13}, 1e-9))
	assert.Equal(t, 0, f.pool.Active(), "ближний бой не использует пул")
	assert.Equal(t, 75.0, f.target.State().Health)
}

func TestShieldAndUnknownWeaponRejected(t *testing.T) {
	f := newFixture(t, 0)
	h := f.spawn(t, "TestShield", vec.Zero)

	f.sim.Fire(h)
	f.sim.Fire(999)
	f.sim.Reload(999)
	f.sim.Tick(dt)

	rejected := f.sink.ofKind(EventFireRejected)
	require.Len(t, rejected, 2)
	assert.Equal(t, "not_fireable", rejected[0].Result)
	assert.Equal(t, "unknown_weapon", rejected[1].Result)
	assert.Len(t, f.sink.ofKind(EventReloadRejected), 1)
}

func TestPoolCapFailsOnlyThatFire(t *testing.T) {
	f := newFixture(t, 1)
	a := f.spawn(t, "TestRifle", vec.Vec3{X: 100})
	b := f.spawn(t, "TestRifle", vec.Vec3{X: 200})

	f.sim.Fire(a)
	f.sim.Fire(b)
	f.sim.Tick(dt)

	rejected := f.sink.ofKind(EventFireRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "capacity", rejected[0].Result)
	assert.Equal(t, b, rejected[0].Weapon)

	sa, _ := f.sim.GetState(a)
	sb, _ := f.sim.GetState(b)
	assert.Equal(t, 9, sa.Ammo)
	assert.Equal(t, 10, sb.Ammo, "неудачный выстрел не списывает патрон")
	assert.False(t, sb.RecoilActive)
}

func TestDestroyedWeaponProjectileStillHits(t *testing.T) {
	f := newFixture(t, 0)
	h := f.spawn(t, "TestRifle", vec.Zero)

	f.sim.Fire(h)
	f.sim.Tick(dt)
	require.NoError(t, f.sim.DestroyWeapon(h))
	assert.ErrorIs(t, f.sim.DestroyWeapon(h), weapon.ErrUnknownWeapon)

	f.sim.Tick(dt)
	f.sim.Tick(dt)
	require.Len(t, f.sink.ofKind(EventImpact), 1)
	assert.Equal(t, h, f.sink.ofKind(EventImpact)[0].Weapon)
	assert.Len(t, f.sink.ofKind(EventWeaponDestroyed), 1)
}

func TestRecoilAdvancesAndReturnsToRest(t *testing.T) {
	f := newFixture(t, 0)
	h := f.spawn(t, "TestRifle", vec.Vec3{X: 100})
	rest, _ := f.sim.GetState(h)

	f.sim.Fire(h)
	f.sim.Tick(dt)
	state, _ := f.sim.GetState(h)
	assert.True(t, state.RecoilActive)
	assert.InDelta(t, dt, state.RecoilElapsed, 1e-12, "отдача продвигается уже в кадре выстрела")

	for i := 0; i < 5; i++ {
		f.sim.Tick(dt)
	}
	state, _ = f.sim.GetState(h)
	assert.False(t, state.RecoilActive)
	assert.Equal(t, rest.Pose, state.Pose)
}

func TestSinkPanicDoesNotStopLoop(t *testing.T) {
	f := newFixture(t, 0)
	f.sim.AddSink(SinkFunc(func(TickStats, []Event) { panic("sink broken") }))

	assert.NotPanics(t, func() {
		f.sim.Tick(dt)
		f.sim.Tick(dt)
	})
	assert.Len(t, f.sink.ticks, 2, "остальные приёмники получают кадры")
}

func TestSpawnErrors(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.sim.SpawnWeapon("Nope", vec.Zero, vec.Identity())
	assert.ErrorIs(t, err, weapon.ErrUnknownWeaponType)
	assert.Error(t, f.sim.MoveWeapon(42, vec.Zero, vec.Identity()))
	assert.Len(t, f.sim.Definitions(), 5)
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t, 0)
	rifle := f.spawn(t, "TestRifle", vec.Zero)
	blade := f.spawn(t, "TestBlade", vec.Vec3{X: 50})

	f.sim.Fire(rifle)
	f.sim.Tick(dt)
	f.sim.Reload(rifle)
	f.sim.Tick(dt)

	snap := f.sim.Snapshot()
	assert.Equal(t, uint64(2), snap.Tick)
	require.Len(t, snap.Weapons, 2)
	require.Len(t, snap.Projectiles, 1)

	g := newFixture(t, 0)
	require.NoError(t, g.sim.Restore(snap))
	assert.InDelta(t, snap.Time, g.sim.Now(), 1e-12)

	state, ok := g.sim.GetState(rifle)
	require.True(t, ok)
	assert.Equal(t, "reloading", state.State)
	assert.Equal(t, 9, state.Ammo)
	_, ok = g.sim.GetState(blade)
	assert.True(t, ok)

	g.sim.Tick(dt)
	require.Len(t, g.sink.ofKind(EventImpact), 1, "восстановленный снаряд долетает до стены")
	assert.Equal(t, 90.0, g.target.State().Health)

	h, err := g.sim.SpawnWeapon("TestBlade", vec.Zero, vec.Identity())
	require.NoError(t, err)
	assert.Greater(t, h, blade, "хэндлы не переиспользуются после восстановления")

	snap.Version = 99
	assert.Error(t, g.sim.Restore(snap))
}
