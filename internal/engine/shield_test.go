package engine

import (
	"encoding/json"
	"testing"

	"github.com/annel0/arena-combat/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) hasCollider(name string) bool {
	for _, c := range f.world.Colliders() {
		if c.Name == name {
			return true
		}
	}
	return false
}

func TestRaisedShieldAbsorbsProjectile(t *testing.T) {
	f := newFixture(t, 0)
	rifle := f.spawn(t, "TestRifle", vec.Zero)
	shield := f.spawn(t, "TestShield", vec.Vec3{Z: 5})

	f.sim.RaiseShield(shield)
	f.sim.Fire(rifle)
	f.sim.Tick(dt)
	require.Len(t, f.sink.ofKind(EventShieldRaised), 1)
	assert.True(t, f.hasCollider(shieldColliderName(shield)))

	f.sim.Tick(dt)
	f.sim.Tick(dt)

	hits := f.sink.ofKind(EventShieldHit)
	require.Len(t, hits, 1)
	assert.Equal(t, shield, hits[0].Weapon)
	assert.Equal(t, 20.0, hits[0].Damage)
	assert.Equal(t, 80.0, hits[0].Durability)

	impacts := f.sink.ofKind(EventImpact)
	require.Len(t, impacts, 1)
	assert.Equal(t, shieldColliderName(shield), impacts[0].Collider)
	assert.Equal(t, rifle, impacts[0].Weapon)
	assert.True(t, impacts[0].Damaged)
	assert.Equal(t, "fx_shield_hit", impacts[0].Effect)
	assert.True(t, impacts[0].Point.ApproxEqual(vec.Vec3{Z: 4.95}, 1e-9))

	ts := f.target.State()
	assert.Equal(t, 100.0, ts.Health, "мишень за щитом не задета")
	assert.Equal(t, 10.0, ts.Shield)
	assert.Zero(t, ts.Hits)

	state, _ := f.sim.GetState(shield)
	require.NotNil(t, state.Shield)
	assert.True(t, state.Shield.Active)
	assert.Equal(t, 80.0, state.Shield.Durability)
}

func TestShieldBreaksAndLetsFireThrough(t *testing.T) {
	f := newFixture(t, 0)
	rifle := f.spawn(t, "TestRifle", vec.Zero)
	shield := f.spawn(t, "TestShield", vec.Vec3{Z: 5})

	f.sim.RaiseShield(shield)
	for i := 0; i < 80; i++ {
		f.sim.Fire(rifle)
		f.sim.Tick(dt)
	}

	require.Len(t, f.sink.ofKind(EventFired), 10)
	assert.Len(t, f.sink.ofKind(EventShieldHit), 5, "100 прочности по 20 урона")
	broken := f.sink.ofKind(EventShieldBroken)
	require.Len(t, broken, 1)
	assert.Equal(t, shield, broken[0].Weapon)
	assert.False(t, f.hasCollider(shieldColliderName(shield)), "коллайдер разрушенного щита убран")

	assert.Len(t, f.sink.ofKind(EventImpact), 10)
	ts := f.target.State()
	assert.Equal(t, 5, ts.Hits, "после разрушения пули долетают до стены")
	assert.Equal(t, 10.0, ts.Health)

	state, _ := f.sim.GetState(shield)
	assert.False(t, state.Shield.Active)
	assert.Zero(t, state.Shield.Durability)

	f.sim.RaiseShield(shield)
	f.sim.Tick(dt)
	rejected := f.sink.ofKind(EventShieldRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "broken", rejected[0].Result)
}

func TestShieldRaiseLowerRejections(t *testing.T) {
	f := newFixture(t, 0)
	rifle := f.spawn(t, "TestRifle", vec.Zero)
	shield := f.spawn(t, "TestShield", vec.Vec3{Z: 5})

	f.sim.RaiseShield(rifle)
	f.sim.LowerShield(shield)
	f.sim.RaiseShield(999)
	f.sim.RaiseShield(shield)
	f.sim.RaiseShield(shield)
	f.sim.Tick(dt)

	var results []string
	for _, e := range f.sink.ofKind(EventShieldRejected) {
		results = append(results, e.Result)
	}
	assert.Equal(t, []string{"not_shield", "not_raised", "unknown_weapon", "already_raised"}, results)
	assert.Len(t, f.sink.ofKind(EventShieldRaised), 1)

	f.sim.LowerShield(shield)
	f.sim.Fire(rifle)
	f.sim.Tick(dt)
	require.Len(t, f.sink.ofKind(EventShieldLowered), 1)
	assert.False(t, f.hasCollider(shieldColliderName(shield)))

	f.sim.Tick(dt)
	f.sim.Tick(dt)
	assert.Empty(t, f.sink.ofKind(EventShieldHit))
	assert.Equal(t, 1, f.target.State().Hits, "опущенный щит пропускает выстрел")
}

func TestShieldColliderFollowsWeapon(t *testing.T) {
	f := newFixture(t, 0)
	rifle := f.spawn(t, "TestRifle", vec.Zero)
	shield := f.spawn(t, "TestShield", vec.Vec3{Z: 5})

	f.sim.RaiseShield(shield)
	f.sim.Tick(dt)
	require.NoError(t, f.sim.MoveWeapon(shield, vec.Vec3{X: 3, Z: 5}, vec.Identity()))

	f.sim.Fire(rifle)
	f.sim.Tick(dt)
	f.sim.Tick(dt)
	f.sim.Tick(dt)
	assert.Empty(t, f.sink.ofKind(EventShieldHit), "щит отодвинут с линии огня")
	assert.Equal(t, 1, f.target.State().Hits)

	require.NoError(t, f.sim.DestroyWeapon(shield))
	assert.False(t, f.hasCollider(shieldColliderName(shield)))
	assert.Len(t, f.world.Colliders(), 1)
}

func TestShieldRechargesDuringTick(t *testing.T) {
	f := newFixture(t, 0)
	rifle := f.spawn(t, "TestRifle", vec.Zero)
	barrier := f.spawn(t, "TestBarrier", vec.Vec3{Z: 5})

	f.sim.RaiseShield(barrier)
	f.sim.Fire(rifle)
	f.sim.Tick(dt)
	f.sim.Tick(dt)

	hits := f.sink.ofKind(EventShieldHit)
	require.Len(t, hits, 1)
	assert.InDelta(t, 10.0, hits[0].Reflected, 1e-9)
	assert.InDelta(t, 30.0, hits[0].Durability, 1e-9)

	for i := 0; i < 5; i++ {
		f.sim.Tick(dt)
	}
	state, _ := f.sim.GetState(barrier)
	assert.InDelta(t, 31.0, state.Shield.Durability, 1e-9, "10 прочности в секунду")

	for i := 0; i < 100; i++ {
		f.sim.Tick(dt)
	}
	state, _ = f.sim.GetState(barrier)
	assert.Equal(t, 40.0, state.Shield.Durability)
}

func TestRestoreReplacesShieldColliders(t *testing.T) {
	f := newFixture(t, 0)
	rifle := f.spawn(t, "TestRifle", vec.Zero)
	shield := f.spawn(t, "TestShield", vec.Vec3{Z: 5})
	f.sim.RaiseShield(shield)
	f.sim.Tick(dt)

	snap := f.sim.Snapshot()
	require.NoError(t, f.sim.Restore(snap), "коллайдер щита пересоздаётся без конфликта имён")
	assert.Len(t, f.world.Colliders(), 2)

	f.sim.Fire(rifle)
	f.sim.Tick(dt)
	f.sim.Tick(dt)
	require.Len(t, f.sink.ofKind(EventShieldHit), 1, "восстановленный щит поднят")
	assert.Zero(t, f.target.State().Hits)

	g := newFixture(t, 0)
	require.NoError(t, g.sim.Restore(snap))
	assert.True(t, g.hasCollider(shieldColliderName(shield)))
}

func TestThrowableFiresOncePerItem(t *testing.T) {
	f := newFixture(t, 0)
	grenade := f.spawn(t, "TestGrenade", vec.Vec3{X: 100})

	for i := 0; i < 50; i++ {
		f.sim.Fire(grenade)
	}
	f.sim.Tick(dt)

	assert.Len(t, f.sink.ofKind(EventFired), 1)
	rejected := f.sink.ofKind(EventFireRejected)
	require.Len(t, rejected, 49)
	assert.Equal(t, "empty", rejected[0].Result)
	assert.Len(t, f.sim.Projectiles(), 1)

	state, _ := f.sim.GetState(grenade)
	assert.Equal(t, 0, state.Ammo)
	assert.Equal(t, "empty", state.State)

	f.sim.Reload(grenade)
	f.sim.Tick(dt)
	reload := f.sink.ofKind(EventReloadRejected)
	require.Len(t, reload, 1)
	assert.Equal(t, "not_supported", reload[0].Result)
}

func TestEventKeepsZeroAmmo(t *testing.T) {
	f := newFixture(t, 0)
	grenade := f.spawn(t, "TestGrenade", vec.Vec3{X: 100})
	f.sim.Fire(grenade)
	f.sim.Tick(dt)

	fired := f.sink.ofKind(EventFired)
	require.Len(t, fired, 1)
	data, err := json.Marshal(fired[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ammo":0`, "опустевший магазин виден в событии")

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, grenade, back.Weapon)
}

func TestResetTargets(t *testing.T) {
	f := newFixture(t, 0)
	h := f.spawn(t, "TestBlade", vec.Vec3{Z: 12})
	f.sim.Fire(h)
	f.sim.Tick(dt)
	require.Equal(t, 75.0, f.target.State().Health)

	assert.Equal(t, 1, f.sim.ResetTargets())
	ts := f.sim.Targets()[0]
	assert.Equal(t, 100.0, ts.Health)
	assert.Zero(t, ts.Hits)
	assert.Zero(t, ts.Received)
}
