package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/arena-combat/internal/api"
	"github.com/annel0/arena-combat/internal/app"
	"github.com/annel0/arena-combat/internal/auth"
	"github.com/annel0/arena-combat/internal/config"
	"github.com/annel0/arena-combat/internal/engine"
	"github.com/annel0/arena-combat/internal/eventbus"
	"github.com/annel0/arena-combat/internal/logging"
	"github.com/annel0/arena-combat/internal/metrics"
	"github.com/annel0/arena-combat/internal/observability"
	"github.com/annel0/arena-combat/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML-конфигурации (или COMBAT_CONFIG)")
	flag.Parse()

	// === КОНФИГУРАЦИЯ ===
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if cfg == nil {
		cfg = config.Default()
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("❌ Ошибка конфигурации логирования: %v", err)
	}
	manager := logging.GetLoggerManager()
	manager.Configure(cfg.Logging.File, level)
	logging.SetDefaultLogger(manager.MustGetLogger("server"))
	defer manager.CloseAll()

	logging.Info("🎯 Запуск сервера боевой симуляции арены...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		logging.Warn("⚠️ Телеметрия недоступна: %v", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	// === ИНИЦИАЛИЗАЦИЯ КОМПОНЕНТОВ ===
	effects := app.NewLogEffects(logging.GetComponentLogger("effects"))
	arena, err := app.Build(cfg, effects)
	if err != nil {
		logging.Error("❌ Ошибка сборки арены: %v", err)
		os.Exit(1)
	}
	sim := arena.Simulation

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sim.AddSink(metrics.NewCombatMetrics("combat", registry))

	bus, err := openBus(cfg.EventBus)
	if err != nil {
		logging.Error("❌ Ошибка подключения к шине событий: %v", err)
		os.Exit(1)
	}
	if _, err := eventbus.StartLoggingListener(bus, string(engine.EventImpact), string(engine.EventReloadCompleted)); err != nil {
		logging.Warn("⚠️ LoggingListener: %v", err)
	}
	combatSink := eventbus.NewCombatSink(bus, eventbus.SinkOptions{Source: "arena-combat", Buffer: cfg.EventBus.SinkBuffer})
	sim.AddSink(combatSink)
	busExporter := eventbus.NewMetricsExporter(bus, registry)
	busExporter.Start()

	repo, err := storage.Open(cfg.Storage)
	if err != nil {
		logging.Error("❌ Ошибка открытия хранилища снимков (%s): %v", cfg.Storage.Backend, err)
		os.Exit(1)
	}
	var autosaver *storage.Autosaver
	if cfg.Storage.AutosaveSeconds > 0 {
		if snap, err := repo.Load(ctx, storage.AutosaveName); err == nil {
			if err := sim.Restore(snap); err != nil {
				logging.Warn("⚠️ Автосохранение не восстановлено: %v", err)
			} else {
				logging.Info("♻️ Восстановлено автосохранение: tick=%d оружие=%d", snap.Tick, len(snap.Weapons))
			}
		}
		autosaver = storage.NewAutosaver(repo, sim, time.Duration(cfg.Storage.AutosaveSeconds)*time.Second)
		autosaver.Start()
	}

	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute, cfg.Auth.APIKeys)
	if err != nil {
		logging.Error("❌ Ошибка настройки авторизации: %v", err)
		os.Exit(1)
	}
	if !issuer.Enabled() {
		logging.Warn("⚠️ API-ключи не заданы: REST API работает без авторизации")
	}

	restPort := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	rest := api.NewRestServer(api.Config{
		Port:       restPort,
		Simulation: sim,
		Repo:       repo,
		Issuer:     issuer,
		Registry:   registry,
		Logger:     logging.GetServerLogger(),
	})
	if err := rest.Start(); err != nil {
		logging.Error("❌ Ошибка запуска REST API: %v", err)
		os.Exit(1)
	}

	var metricsServer *http.Server
	if port := cfg.Server.GetMetricsPort(); port != cfg.Server.GetRESTPort() {
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("❌ Сервер метрик: %v", err)
			}
		}()
	}

	// === ЦИКЛ СИМУЛЯЦИИ ===
	interval := time.Second / time.Duration(cfg.Simulation.TickRate)
	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		sim.Run(ctx, interval)
	}()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   ⏱️  Кадр: %s, шаг баллистики: %.3fс", interval, cfg.Simulation.FixedStep)
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   📈 Метрики: http://localhost:%d/metrics", cfg.Server.GetMetricsPort())
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)

	// Канал для получения сигналов ОС
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info("📡 Получен сигнал %v, завершение работы...", sig)

	// === GRACEFUL SHUTDOWN ===
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()

	if err := rest.Stop(stopCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(stopCtx)
	}

	cancel()
	<-simDone

	if autosaver != nil {
		autosaver.Stop()
	}
	if err := repo.Close(); err != nil {
		logging.Error("❌ Ошибка закрытия хранилища: %v", err)
	}

	combatSink.Close()
	busExporter.Stop()
	if err := bus.Close(); err != nil {
		logging.Error("❌ Ошибка закрытия шины событий: %v", err)
	}
	if err := shutdownTelemetry(stopCtx); err != nil {
		logging.Error("❌ Ошибка остановки телеметрии: %v", err)
	}

	logging.Info("👋 Сервер успешно остановлен")
}

func openBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		logging.Info("🚌 Шина событий: in-memory")
		return eventbus.NewMemoryBus(4096), nil
	}
	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
	if err != nil {
		return nil, err
	}
	logging.Info("🚌 Шина событий: JetStream %s (stream=%s)", cfg.URL, cfg.Stream)
	return bus, nil
}
