package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/annel0/arena-combat/internal/engine"
	"github.com/annel0/arena-combat/internal/vec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []*Envelope
}

func (c *collector) handle(_ context.Context, ev *Envelope) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestMemoryBusFilterAndOrder(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	all := &collector{}
	impacts := &collector{}
	_, err := bus.Subscribe(context.Background(), Filter{}, all.handle)
	require.NoError(t, err)
	_, err = bus.Subscribe(context.Background(), Filter{Types: []string{"projectile.impact"}}, impacts.handle)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, &Envelope{ID: "1", EventType: "weapon.fired"}))
	require.NoError(t, bus.Publish(ctx, &Envelope{ID: "2", EventType: "projectile.impact"}))

	require.Eventually(t, func() bool { return all.len() == 2 && impacts.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "1", all.events[0].ID, "порядок публикации сохраняется")
	assert.Equal(t, uint64(2), bus.Metrics().Published)
}

func TestMemoryBusUnsubscribeAndClose(t *testing.T) {
	bus := NewMemoryBus(4)
	c := &collector{}
	sub, err := bus.Subscribe(context.Background(), Filter{}, c.handle)
	require.NoError(t, err)
	sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), &Envelope{EventType: "x"}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, c.len())

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(context.Background(), &Envelope{EventType: "x"}), ErrClosed)
	assert.NoError(t, bus.Close(), "повторное закрытие безопасно")
}

func TestMemoryBusHandlerPanicRecovered(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()
	c := &collector{}
	_, _ = bus.Subscribe(context.Background(), Filter{}, func(context.Context, *Envelope) { panic("boom") })
	_, _ = bus.Subscribe(context.Background(), Filter{}, c.handle)

	require.NoError(t, bus.Publish(context.Background(), &Envelope{EventType: "x"}))
	require.NoError(t, bus.Publish(context.Background(), &Envelope{EventType: "y"}))
	require.Eventually(t, func() bool { return c.len() == 2 }, time.Second, 5*time.Millisecond)
}

func TestCombatSinkPublishesEnvelopes(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()
	c := &collector{}
	_, err := bus.Subscribe(context.Background(), Filter{}, c.handle)
	require.NoError(t, err)

	sink := NewCombatSink(bus, SinkOptions{Source: "arena-combat", Kinds: []engine.EventKind{engine.EventImpact}})
	defer sink.Close()
	sink.Consume(engine.TickStats{Tick: 3}, []engine.Event{
		{Kind: engine.EventFired, Tick: 3, Weapon: 1},
		{Kind: engine.EventImpact, Tick: 3, Weapon: 1, WeaponType: "Pistol", Damage: 20, Point: vec.Vec3{Z: 13}},
	})

	require.Eventually(t, func() bool { return c.len() == 1 }, time.Second, 5*time.Millisecond)
	env := c.events[0]
	assert.Equal(t, "projectile.impact", env.EventType)
	assert.Equal(t, "arena-combat", env.Source)
	assert.Equal(t, "weapon-1", env.CorrelationID)
	assert.Equal(t, "3", env.Metadata["tick"])
	assert.Len(t, env.ID, 36)
	assert.Equal(t, 7, env.Priority)

	decoded, err := DecodeEvent(env)
	require.NoError(t, err)
	assert.Equal(t, 20.0, decoded.Damage)
	assert.Equal(t, vec.Vec3{Z: 13}, decoded.Point)
}

func TestMetricsExporterCollect(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()
	reg := prometheus.NewRegistry()
	me := NewMetricsExporter(bus, reg)

	require.NoError(t, bus.Publish(context.Background(), &Envelope{EventType: "x"}))
	require.NoError(t, bus.Publish(context.Background(), &Envelope{EventType: "y"}))
	me.Collect()
	me.Collect()

	assert.Equal(t, 2.0, testutil.ToFloat64(me.published), "повторный сбор не удваивает счётчик")
}

// stalledBus принимает события только после release
type stalledBus struct {
	EventBus
	release chan struct{}

	mu  sync.Mutex
	got []*Envelope
}

func (b *stalledBus) Publish(ctx context.Context, ev *Envelope) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.mu.Lock()
	b.got = append(b.got, ev)
	b.mu.Unlock()
	return nil
}

func (b *stalledBus) published(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.got {
		if eventType == "" || ev.EventType == eventType {
			n++
		}
	}
	return n
}

func TestCombatSinkDoesNotBlockOnStalledBus(t *testing.T) {
	bus := &stalledBus{release: make(chan struct{})}
	sink := NewCombatSink(bus, SinkOptions{Source: "arena-combat", Buffer: 8, Timeout: 5 * time.Second})

	var events []engine.Event
	for i := 0; i < 10; i++ {
		events = append(events, engine.Event{Kind: engine.EventFired, Tick: 1, Weapon: 1})
	}
	events = append(events,
		engine.Event{Kind: engine.EventImpact, Tick: 1, Weapon: 1},
		engine.Event{Kind: engine.EventImpact, Tick: 1, Weapon: 1},
	)

	start := time.Now()
	sink.Consume(engine.TickStats{Tick: 1}, events)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "кадр не ждёт зависшую шину")
	assert.GreaterOrEqual(t, sink.Dropped(), uint64(3), "низкий приоритет отброшен")

	close(bus.release)
	sink.Close()

	assert.Equal(t, 2, bus.published(string(engine.EventImpact)), "высокий приоритет доставлен")
	assert.Equal(t, uint64(len(events)), uint64(bus.published(""))+sink.Dropped())
	assert.Zero(t, sink.Pending())
	assert.Zero(t, sink.Failed())

	assert.NotPanics(t, func() {
		sink.Consume(engine.TickStats{Tick: 2}, events)
		sink.Close()
	}, "после закрытия события игнорируются")
}

func TestCombatSinkPublishTimeout(t *testing.T) {
	bus := &stalledBus{release: make(chan struct{})}
	sink := NewCombatSink(bus, SinkOptions{Source: "arena-combat", Timeout: 20 * time.Millisecond})

	sink.Consume(engine.TickStats{Tick: 1}, []engine.Event{{Kind: engine.EventImpact, Tick: 1}})
	require.Eventually(t, func() bool { return sink.Failed() == 1 }, time.Second, 5*time.Millisecond)
	sink.Close()
	assert.Zero(t, bus.published(""))
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "combat.weapon.fired", Subject("weapon.fired"))
}
