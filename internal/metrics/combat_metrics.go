package metrics

import (
	"github.com/annel0/arena-combat/internal/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// CombatMetrics переносит статистику тиков и события симуляции в Prometheus.
// Реализует engine.EventSink.
//
// Метрики:
// * <ns>_events_total{kind,weapon_type,result} — counter
// * <ns>_damage_total{weapon_type} — counter
// * <ns>_tick_duration_seconds — histogram
// * <ns>_ballistic_steps_total — counter
// * <ns>_projectiles_active, <ns>_weapons_active — gauge
// * <ns>_pool_capacity, <ns>_pool_failed_total — gauge
type CombatMetrics struct {
	events       *prometheus.CounterVec
	damage       *prometheus.CounterVec
	tickDuration prometheus.Histogram
	steps        prometheus.Counter
	projectiles  prometheus.Gauge
	weapons      prometheus.Gauge
	poolCapacity prometheus.Gauge
	poolFailed   prometheus.Gauge
	tick         prometheus.Gauge
}

// NewCombatMetrics создаёт метрики и регистрирует их в reg.
func NewCombatMetrics(namespace string, reg prometheus.Registerer) *CombatMetrics {
	if namespace == "" {
		namespace = "combat"
	}
	cm := &CombatMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "События симуляции по виду, типу оружия и результату.",
		}, []string{"kind", "weapon_type", "result"}),
		damage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "damage_total",
			Help:      "Суммарный урон попаданий по типу оружия.",
		}, []string{"weapon_type"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Длительность обработки одного тика.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ballistic_steps_total",
			Help:      "Выполненные фиксированные шаги баллистики.",
		}),
		projectiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "projectiles_active",
			Help:      "Снаряды в полёте.",
		}),
		weapons: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "weapons_active",
			Help:      "Живые экземпляры оружия.",
		}),
		poolCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_capacity",
			Help:      "Ёмкость пула снарядов.",
		}),
		poolFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_failed_total",
			Help:      "Отказы пула снарядов из-за исчерпания.",
		}),
		tick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tick",
			Help:      "Номер последнего обработанного тика.",
		}),
	}

	reg.MustRegister(cm.events, cm.damage, cm.tickDuration, cm.steps,
		cm.projectiles, cm.weapons, cm.poolCapacity, cm.poolFailed, cm.tick)
	return cm
}

// Consume реализует engine.EventSink
func (cm *CombatMetrics) Consume(stats engine.TickStats, events []engine.Event) {
	cm.tickDuration.Observe(stats.Duration.Seconds())
	cm.steps.Add(float64(stats.Steps))
	cm.projectiles.Set(float64(stats.Projectiles))
	cm.weapons.Set(float64(stats.Weapons))
	cm.poolCapacity.Set(float64(stats.Pool.Capacity))
	cm.poolFailed.Set(float64(stats.Pool.Failed))
	cm.tick.Set(float64(stats.Tick))

	for i := range events {
		ev := &events[i]
		cm.events.WithLabelValues(string(ev.Kind), ev.WeaponType, ev.Result).Inc()
		if ev.Kind == engine.EventImpact && ev.Damaged {
			cm.damage.WithLabelValues(ev.WeaponType).Add(ev.Damage)
		}
	}
}
