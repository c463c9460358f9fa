package eventbus

import (
	"context"

	"github.com/annel0/arena-combat/internal/logging"
)

// StartLoggingListener подписывается на события и пишет их в лог на уровне DEBUG.
// Пустой список типов — все события. Функция неблокирующая.
func StartLoggingListener(bus EventBus, types ...string) (Subscription, error) {
	sub, err := bus.Subscribe(context.Background(), Filter{Types: types}, func(ctx context.Context, ev *Envelope) {
		logging.Debug("[EventBus] %s %s src=%s corr=%s prio=%d size=%dB", ev.ID, ev.EventType, ev.Source, ev.CorrelationID, ev.Priority, len(ev.Payload))
	})
	if err != nil {
		return nil, err
	}
	logging.Info("🪵 LoggingListener: подписка на события боя активирована")
	return sub, nil
}
