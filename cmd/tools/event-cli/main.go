package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/arena-combat/internal/eventbus"
)

const timeFormat = "15:04:05.000"

func main() {
	var (
		serverURL  = flag.String("server", "nats://127.0.0.1:4222", "NATS server URL")
		stream     = flag.String("stream", "COMBAT_EVENTS", "JetStream stream name")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated), e.g. projectile.impact")
		weaponType = flag.String("weapon", "", "Weapon type filter")
		limit      = flag.Int("limit", 0, "Stop after N events (0 — follow forever)")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*serverURL, *stream, 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Failed to connect to server: %v", err)
	}
	defer bus.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	received := 0
	done := make(chan struct{})
	filter := eventbus.Filter{Types: parseStringList(*eventTypes)}
	sub, err := bus.Subscribe(ctx, filter, func(_ context.Context, env *eventbus.Envelope) {
		ev, err := eventbus.DecodeEvent(env)
		if err != nil {
			log.Printf("⚠️ %v", err)
			return
		}
		if *weaponType != "" && ev.WeaponType != *weaponType {
			return
		}
		fmt.Println(formatEvent(env, ev.Tick, ev.WeaponType, ev.Result, ev.Damage, ev.Collider))

		received++
		if *limit > 0 && received == *limit {
			close(done)
		}
	})
	if err != nil {
		log.Fatalf("❌ Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	select {
	case <-ctx.Done():
	case <-done:
	}
}

func formatEvent(env *eventbus.Envelope, tick uint64, weaponType, result string, damage float64, collider string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s tick=%-6d %-24s %s", env.Timestamp.Local().Format(timeFormat), tick, env.EventType, env.CorrelationID)
	if weaponType != "" {
		fmt.Fprintf(&sb, " type=%s", weaponType)
	}
	if result != "" {
		fmt.Fprintf(&sb, " result=%s", result)
	}
	if damage > 0 {
		fmt.Fprintf(&sb, " damage=%.1f", damage)
	}
	if collider != "" {
		fmt.Fprintf(&sb, " hit=%s", collider)
	}
	return sb.String()
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
