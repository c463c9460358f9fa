package physics

import (
	"math"
	"testing"

	"github.com/annel0/arena-combat/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wall() *BoxCollider {
	return &BoxCollider{
		Name:    "wall",
		Min:     vec.Vec3{X: -5, Y: -5, Z: 10},
		Max:     vec.Vec3{X: 5, Y: 5, Z: 12},
		Layer:   LayerEnvironment,
		Surface: "concrete",
	}
}

func TestBoxColliderCenter(t *testing.T) {
	c := NewBoxCollider("box", vec.Vec3{X: 1}, vec.Vec3{X: 1, Y: 1, Z: 1}, LayerDefault, "")
	assert.Equal(t, vec.Vec3{X: 1}, c.Center())
	assert.Equal(t, vec.Vec3{Y: -1, Z: -1}, c.Min)
}

func TestIntersectSegmentFrontFace(t *testing.T) {
	fraction, normal, ok := wall().IntersectSegment(vec.Zero, vec.Vec3{Z: 20})
	require.True(t, ok)
	assert.InDelta(t, 0.5, fraction, 1e-12)
	assert.Equal(t, vec.Vec3{Z: -1}, normal)
}

func TestIntersectSegmentFromBehind(t *testing.T) {
	_, normal, ok := wall().IntersectSegment(vec.Vec3{Z: 20}, vec.Zero)
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{Z: 1}, normal)
}

func TestIntersectSegmentMisses(t *testing.T) {
	w := wall()
	_, _, ok := w.IntersectSegment(vec.Zero, vec.Vec3{Z: 9})
	assert.False(t, ok, "отрезок не достаёт до стены")

	_, _, ok = w.IntersectSegment(vec.Vec3{X: 6}, vec.Vec3{X: 6, Z: 20})
	assert.False(t, ok, "параллельно мимо")

	_, _, ok = w.IntersectSegment(vec.Vec3{Z: 11}, vec.Vec3{Z: 30})
	assert.False(t, ok, "старт внутри коллайдера игнорируется")
}

func TestSweepTestNoTunneling(t *testing.T) {
	world := NewWorld()
	require.NoError(t, world.Add(wall()))

	// 500 ед/с при шаге 0.02 — 10 единиц за шаг, стена толщиной 2
	from := vec.Vec3{Z: 5}
	to := vec.Vec3{Z: 15}

	hit, ok, err := world.SweepTest(from, to, AllLayers)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{Z: -1}, hit.Normal)
	assert.True(t, hit.Point.ApproxEqual(vec.Vec3{Z: 10}, 1e-9))
	assert.InDelta(t, 5.0, hit.Distance, 1e-9)
	assert.Equal(t, "concrete", hit.Surface())
	assert.Nil(t, hit.Receiver())
}

func TestSweepTestNearestAndMask(t *testing.T) {
	world := NewWorld()
	require.NoError(t, world.Add(wall()))
	require.NoError(t, world.Add(&BoxCollider{
		Name:  "target",
		Min:   vec.Vec3{X: -1, Y: -1, Z: 4},
		Max:   vec.Vec3{X: 1, Y: 1, Z: 5},
		Layer: LayerTarget,
	}))

	hit, ok, err := world.SweepTest(vec.Zero, vec.Vec3{Z: 20}, AllLayers)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "target", hit.Collider.Name, "ближайший коллайдер")

	hit, ok, err = world.SweepTest(vec.Zero, vec.Vec3{Z: 20}, LayerEnvironment)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "wall", hit.Collider.Name, "мишень отфильтрована маской")
}

func TestSweepTestInvalidSegment(t *testing.T) {
	world := NewWorld()
	_, ok, err := world.SweepTest(vec.Vec3{X: math.NaN()}, vec.Zero, AllLayers)
	assert.ErrorIs(t, err, ErrInvalidSegment)
	assert.False(t, ok)
}

func TestWorldAddRemove(t *testing.T) {
	world := NewWorld()
	require.NoError(t, world.Add(wall()))
	assert.Error(t, world.Add(wall()), "дубликат имени")
	assert.Error(t, world.Add(&BoxCollider{Name: "bad", Min: vec.Vec3{X: 1}}), "min > max")

	assert.True(t, world.Remove("wall"))
	assert.False(t, world.Remove("wall"))
	assert.Empty(t, world.Colliders())
}

func TestParseMask(t *testing.T) {
	mask, err := ParseMask(nil)
	require.NoError(t, err)
	assert.Equal(t, AllLayers, mask)

	mask, err = ParseMask([]string{"environment", "Target"})
	require.NoError(t, err)
	assert.Equal(t, LayerEnvironment|LayerTarget, mask)

	_, err = ParseMask([]string{"water"})
	assert.Error(t, err)

	layer, err := ParseLayer("")
	require.NoError(t, err)
	assert.Equal(t, LayerDefault, layer)
}

func TestWorldSetBoundsMovesCollider(t *testing.T) {
	world := NewWorld()
	require.NoError(t, world.Add(NewBoxCollider("shield", vec.Vec3{Z: 3}, vec.Vec3{X: 1, Y: 1, Z: 0.1}, LayerShield, "energy")))

	hit, ok, err := world.SweepTest(vec.Zero, vec.Vec3{Z: 20}, LayerShield)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 2.9, hit.Distance, 1e-9)

	require.True(t, world.SetBounds("shield", vec.Vec3{X: 4, Y: -1, Z: 2.9}, vec.Vec3{X: 6, Y: 1, Z: 3.1}))
	_, ok, err = world.SweepTest(vec.Zero, vec.Vec3{Z: 20}, LayerShield)
	require.NoError(t, err)
	assert.False(t, ok, "коллайдер сдвинут с траектории")

	assert.False(t, world.SetBounds("missing", vec.Zero, vec.Zero))
	assert.False(t, world.SetBounds("shield", vec.Vec3{X: 1}, vec.Zero), "min > max")
	assert.False(t, world.SetBounds("shield", vec.Vec3{X: math.Inf(1)}, vec.Vec3{X: math.Inf(1)}))
}
