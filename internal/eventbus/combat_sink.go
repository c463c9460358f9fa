package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/arena-combat/internal/engine"
	"github.com/annel0/arena-combat/internal/logging"
	"github.com/google/uuid"
)

// DefaultSinkBuffer очередь CombatSink по умолчанию
const DefaultSinkBuffer = 1024

// SinkOptions параметры CombatSink
type SinkOptions struct {
	Source  string
	Buffer  int                // длина очереди; 0 — DefaultSinkBuffer
	Timeout time.Duration      // на одну публикацию; 0 — 2 с
	Kinds   []engine.EventKind // пусто — все виды
}

// CombatSink публикует события симуляции в шину. Реализует engine.EventSink.
// Consume только ставит конверты в очередь: публикация идёт в отдельной горутине,
// поэтому зависшая шина не задерживает кадр. При заполненной очереди
// низкий приоритет (<5) отбрасывается раньше, чем высокий.
type CombatSink struct {
	bus     EventBus
	source  string
	timeout time.Duration
	types   map[engine.EventKind]bool // nil — все виды

	queue     chan *Envelope
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewCombatSink создаёт приёмник и запускает горутину публикации
func NewCombatSink(bus EventBus, opts SinkOptions) *CombatSink {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultSinkBuffer
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	s := &CombatSink{
		bus:     bus,
		source:  opts.Source,
		timeout: opts.Timeout,
		queue:   make(chan *Envelope, opts.Buffer),
		done:    make(chan struct{}),
	}
	if len(opts.Kinds) > 0 {
		s.types = make(map[engine.EventKind]bool, len(opts.Kinds))
		for _, k := range opts.Kinds {
			s.types[k] = true
		}
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Consume реализует engine.EventSink. Не блокируется.
func (s *CombatSink) Consume(_ engine.TickStats, events []engine.Event) {
	select {
	case <-s.done:
		return
	default:
	}

	// низкому приоритету достаётся только три четверти очереди
	lowLimit := cap(s.queue) * 3 / 4
	for i := range events {
		ev := &events[i]
		if s.types != nil && !s.types[ev.Kind] {
			continue
		}
		env, err := NewEnvelope(s.source, ev)
		if err != nil {
			logging.Warn("[EventBus] сериализация %s: %v", ev.Kind, err)
			continue
		}
		if env.Priority < 5 && len(s.queue) >= lowLimit {
			s.dropped.Add(1)
			continue
		}
		select {
		case s.queue <- env:
		default:
			if s.dropped.Add(1)%100 == 1 {
				logging.Warn("[EventBus] очередь публикации заполнена, отброшено %d событий", s.dropped.Load())
			}
		}
	}
}

func (s *CombatSink) run() {
	defer s.wg.Done()
	for {
		select {
		case env := <-s.queue:
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			s.publish(ctx, env)
			cancel()
		case <-s.done:
			s.drain()
			return
		}
	}
}

// drain досылает очередь при закрытии, не дольше одного таймаута на всё
func (s *CombatSink) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	for {
		select {
		case env := <-s.queue:
			if ctx.Err() != nil {
				s.dropped.Add(1)
				continue
			}
			s.publish(ctx, env)
		default:
			return
		}
	}
}

func (s *CombatSink) publish(ctx context.Context, env *Envelope) {
	if err := s.bus.Publish(ctx, env); err != nil {
		s.failed.Add(1)
		logging.Warn("[EventBus] публикация %s: %v", env.EventType, err)
	}
}

// Dropped число событий, отброшенных из-за заполненной очереди
func (s *CombatSink) Dropped() uint64 { return s.dropped.Load() }

// Failed число событий, которые шина отказалась принять
func (s *CombatSink) Failed() uint64 { return s.failed.Load() }

// Pending длина очереди публикации
func (s *CombatSink) Pending() int { return len(s.queue) }

// Close останавливает горутину публикации, дослав накопленное
func (s *CombatSink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

// NewEnvelope упаковывает событие симуляции в Envelope
func NewEnvelope(source string, ev *engine.Event) (*Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Source:        source,
		EventType:     string(ev.Kind),
		Version:       1,
		CorrelationID: fmt.Sprintf("weapon-%d", ev.Weapon),
		Priority:      priorityOf(ev.Kind),
		Payload:       payload,
		Metadata: map[string]string{
			"tick":        fmt.Sprintf("%d", ev.Tick),
			"weapon_type": ev.WeaponType,
		},
	}, nil
}

// priorityOf: попадания и жизненный цикл оружия не должны теряться при backpressure
func priorityOf(kind engine.EventKind) int {
	switch kind {
	case engine.EventImpact, engine.EventWeaponSpawned, engine.EventWeaponDestroyed, engine.EventShieldBroken:
		return 7
	case engine.EventFired, engine.EventReloadStarted, engine.EventReloadCompleted,
		engine.EventShieldRaised, engine.EventShieldLowered, engine.EventShieldHit:
		return 4
	default:
		return 1
	}
}

// DecodeEvent извлекает событие симуляции из Envelope
func DecodeEvent(env *Envelope) (engine.Event, error) {
	var ev engine.Event
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return engine.Event{}, fmt.Errorf("decode %s: %w", env.EventType, err)
	}
	return ev, nil
}
