package ballistics

import (
	"errors"
	"math"
	"testing"

	"github.com/annel0/arena-combat/internal/physics"
	"github.com/annel0/arena-combat/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPoolAcquireRelease(t *testing.T) {
	p := NewPool[Projectile](2, 2, 0, nil)
	assert.Equal(t, 2, p.Stats().Capacity)

	h1, v1, err := p.Acquire()
	require.NoError(t, err)
	v1.Damage = 10
	assert.Equal(t, uint32(0), h1.Index, "младшие индексы выдаются первыми")

	got, ok := p.Get(h1)
	require.True(t, ok)
	assert.Equal(t, 10.0, got.Damage)

	assert.True(t, p.Release(h1))
	assert.False(t, p.Release(h1), "повторное освобождение игнорируется")
	_, ok = p.Get(h1)
	assert.False(t, ok)

	h2, v2, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, h1.Index, h2.Index, "слот переиспользован")
	assert.NotEqual(t, h1.Generation, h2.Generation, "старый хэндл не совпадает с новым")
	assert.Equal(t, 0.0, v2.Damage, "значение очищено при освобождении")

	_, ok = p.Get(h1)
	assert.False(t, ok, "устаревший хэндл не указывает на живой снаряд")
	_, ok = p.Get(Handle{Index: 99, Generation: 1})
	assert.False(t, ok)
}

func TestPoolGrowsAndCaps(t *testing.T) {
	p := NewPool[int](1, 3, 5, nil)
	for i := 0; i < 5; i++ {
		_, _, err := p.Acquire()
		require.NoError(t, err, "выдача %d", i)
	}
	stats := p.Stats()
	assert.Equal(t, 5, stats.Capacity)
	assert.Equal(t, uint64(2), stats.Grows)

	_, _, err := p.Acquire()
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.Equal(t, uint64(1), p.Stats().Failed)
	assert.Equal(t, 5, p.Active())
}

func TestPoolResetHook(t *testing.T) {
	resets := 0
	p := NewPool[int](1, 1, 0, func(v *int) { *v = -1; resets++ })
	h, v, err := p.Acquire()
	require.NoError(t, err)
	*v = 7
	p.Release(h)
	assert.Equal(t, 1, resets)
}

func TestPoolConservationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		max := rapid.IntRange(0, 20).Draw(t, "max")
		p := NewPool[int](rapid.IntRange(0, 5).Draw(t, "initial"), rapid.IntRange(1, 4).Draw(t, "grow"), max, nil)
		var live []Handle

		for i, n := 0, rapid.IntRange(1, 200).Draw(t, "ops"); i < n; i++ {
			if len(live) > 0 && rapid.Bool().Draw(t, "release") {
				k := rapid.IntRange(0, len(live)-1).Draw(t, "which")
				if !p.Release(live[k]) {
					t.Fatalf("живой хэндл %v не освободился", live[k])
				}
				live = append(live[:k], live[k+1:]...)
				continue
			}
			h, _, err := p.Acquire()
			if err != nil {
				if max == 0 || len(live) < max {
					t.Fatalf("неожиданный отказ пула: %v", err)
				}
				continue
			}
			live = append(live, h)
		}

		s := p.Stats()
		if s.Acquired-s.Released != uint64(s.Active) || s.Active != len(live) {
			t.Fatalf("нарушен баланс пула: %+v, живых %d", s, len(live))
		}
		if max > 0 && s.Capacity > max {
			t.Fatalf("ёмкость %d больше лимита %d", s.Capacity, max)
		}
		count := 0
		p.Each(func(Handle, *int) bool { count++; return true })
		if count != len(live) {
			t.Fatalf("Each обошёл %d, ожидалось %d", count, len(live))
		}
	})
}

func newWallWorld(t *testing.T) *physics.World {
	t.Helper()
	w := physics.NewWorld()
	require.NoError(t, w.Add(&physics.BoxCollider{
		Name:    "wall",
		Min:     vec.Vec3{X: -5, Y: -5, Z: 13},
		Max:     vec.Vec3{X: 5, Y: 5, Z: 15},
		Layer:   physics.LayerEnvironment,
		Surface: "metal",
	}))
	return w
}

func bullet(speed float64, tick uint64) Projectile {
	return Projectile{
		Damage:     25,
		Velocity:   vec.Vec3{Z: speed},
		Lifetime:   5,
		LaunchTick: tick,
		Mask:       physics.AllLayers,
		Owner:      1,
		Weapon:     "Pistol",
	}
}

func TestIntegratorNoTunneling(t *testing.T) {
	pool := NewPool[Projectile](4, 4, 0, nil)
	it := NewIntegrator(pool, newWallWorld(t), vec.Vec3{Y: -9.81})

	_, err := it.Launch(bullet(500, 0))
	require.NoError(t, err)

	var impacts []Impact
	now := 0.0
	for tick := uint64(1); tick <= 10; tick++ {
		now += 0.02
		res := it.Step(now, 0.02, tick)
		impacts = append(impacts, res.Impacts...)
	}

	require.Len(t, impacts, 1, "ровно одно попадание в стену толщиной 2 при шаге 10")
	hit := impacts[0]
	assert.Equal(t, vec.Vec3{Z: -1}, hit.Normal)
	assert.True(t, hit.Point.ApproxEqual(vec.Vec3{Z: 13}, 1e-9))
	assert.Equal(t, "metal", hit.Surface)
	assert.Equal(t, "wall", hit.Collider)
	assert.Equal(t, 25.0, hit.DamageEvent().Amount)
	assert.True(t, hit.DamageEvent().Source.ApproxEqual(vec.Vec3{Z: 20}, 1e-9),
		"источник урона — позиция снаряда в конце шага с попаданием, получено %v", hit.Source)
	assert.Equal(t, 0, pool.Active(), "снаряд возвращён в пул")
}

func TestIntegratorSkipsLaunchTick(t *testing.T) {
	pool := NewPool[Projectile](1, 1, 0, nil)
	it := NewIntegrator(pool, physics.NewWorld(), vec.Zero)

	h, err := it.Launch(bullet(10, 3))
	require.NoError(t, err)
	p, _ := pool.Get(h)

	res := it.Step(0.02, 0.02, 3)
	assert.Equal(t, 0, res.Moved)
	assert.Equal(t, vec.Zero, p.Position, "в кадре выстрела снаряд не двигается")

	res = it.Step(0.04, 0.02, 4)
	assert.Equal(t, 1, res.Moved)
	assert.InDelta(t, 0.2, p.Position.Z, 1e-12)
	assert.Equal(t, vec.Zero, p.PrevPosition)
}

func TestIntegratorExpiry(t *testing.T) {
	pool := NewPool[Projectile](1, 1, 0, nil)
	it := NewIntegrator(pool, physics.NewWorld(), vec.Zero)

	b := bullet(10, 0)
	b.Lifetime = 0.05
	_, err := it.Launch(b)
	require.NoError(t, err)

	var expired []Expiry
	for tick := uint64(1); tick <= 5; tick++ {
		res := it.Step(float64(tick)*0.02, 0.02, tick)
		assert.Empty(t, res.Impacts)
		expired = append(expired, res.Expired...)
	}
	require.Len(t, expired, 1)
	assert.Equal(t, 0, pool.Active())
	assert.Equal(t, uint64(1), pool.Stats().Released)
}

func TestIntegratorAdvancedBallistics(t *testing.T) {
	pool := NewPool[Projectile](1, 1, 0, nil)
	it := NewIntegrator(pool, physics.NewWorld(), vec.Vec3{Y: -10})

	b := bullet(100, 0)
	b.Advanced = true
	b.GravityMultiplier = 2
	b.AirResistance = 0.5
	h, err := it.Launch(b)
	require.NoError(t, err)

	it.Step(0.1, 0.1, 1)
	p, ok := pool.Get(h)
	require.True(t, ok)
	// v = (0, -2, 100) * (1 - 0.05)
	assert.InDelta(t, -1.9, p.Velocity.Y, 1e-12)
	assert.InDelta(t, 95.0, p.Velocity.Z, 1e-12)
	assert.InDelta(t, 9.5, p.Position.Z, 1e-12)
}

type faultyQuery struct {
	hit   physics.Hit
	found bool
	err   error
	panic bool
}

func (q faultyQuery) SweepTest(from, to vec.Vec3, mask physics.LayerMask) (physics.Hit, bool, error) {
	if q.panic {
		panic("physics backend crashed")
	}
	return q.hit, q.found, q.err
}

func TestIntegratorTreatsFaultsAsMiss(t *testing.T) {
	cases := map[string]faultyQuery{
		"ошибка":      {err: errors.New("backend down"), found: true},
		"паника":      {panic: true},
		"NaN":         {found: true, hit: physics.Hit{Point: vec.Vec3{Z: math.NaN()}}},
		"вне отрезка": {found: true, hit: physics.Hit{Point: vec.Vec3{Z: 50}, Normal: vec.Vec3{Z: -1}}},
		"в стороне":   {found: true, hit: physics.Hit{Point: vec.Vec3{X: 3, Z: 0.1}, Normal: vec.Vec3{Z: -1}}},
	}
	for name, q := range cases {
		t.Run(name, func(t *testing.T) {
			pool := NewPool[Projectile](1, 1, 0, nil)
			it := NewIntegrator(pool, q, vec.Zero)
			_, err := it.Launch(bullet(10, 0))
			require.NoError(t, err)

			var res StepResult
			assert.NotPanics(t, func() { res = it.Step(0.02, 0.02, 1) })
			assert.Empty(t, res.Impacts)
			assert.Equal(t, 1, res.Moved, "снаряд продолжает полёт")
		})
	}
}

func TestLaunchRejectsNonFinite(t *testing.T) {
	it := NewIntegrator(NewPool[Projectile](1, 1, 0, nil), physics.NewWorld(), vec.Zero)
	_, err := it.Launch(Projectile{Velocity: vec.Vec3{X: math.Inf(1)}})
	assert.Error(t, err)
}

func TestProjectileStateRoundTrip(t *testing.T) {
	p := bullet(10, 0)
	p.SpawnTime = 1
	p.Position = vec.Vec3{Z: 4}
	s := p.State(3)
	assert.Equal(t, 2.0, s.Age)

	back := FromState(s, 10, 7)
	assert.Equal(t, 8.0, back.SpawnTime)
	assert.Equal(t, uint64(7), back.LaunchTick)
	assert.Equal(t, p.Position, back.PrevPosition)
}
