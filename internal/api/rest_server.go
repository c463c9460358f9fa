// Package api реализует REST-интерфейс сервера симуляции: управление оружием,
// чтение состояния, снимки и статистика.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/annel0/arena-combat/internal/auth"
	"github.com/annel0/arena-combat/internal/engine"
	"github.com/annel0/arena-combat/internal/logging"
	"github.com/annel0/arena-combat/internal/middleware"
	"github.com/annel0/arena-combat/internal/stats"
	"github.com/annel0/arena-combat/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RestServer представляет REST API сервер
type RestServer struct {
	router  *gin.Engine
	server  *http.Server
	sim     *engine.Simulation
	repo    storage.SnapshotRepo
	issuer  *auth.TokenIssuer
	metrics *stats.ServerMetrics
	port    string
	log     *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port       string               // адрес для запуска сервера, например ":8088"
	Simulation *engine.Simulation   // симуляция, которой управляет API
	Repo       storage.SnapshotRepo // хранилище снимков; nil — эндпоинты снимков отвечают 503
	Issuer     *auth.TokenIssuer    // nil или без ключей — без авторизации
	Registry   *prometheus.Registry // реестр метрик для middleware и /metrics
	Metrics    *stats.ServerMetrics // метрики процесса; nil — создаются новые
	Logger     *logging.Logger
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if config.Metrics == nil {
		config.Metrics = stats.NewServerMetrics()
	}
	if config.Logger == nil {
		config.Logger = logging.GetServerLogger()
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())
	router.Use(otelgin.Middleware("arena-combat-rest"))

	promMw := middleware.NewPrometheusMiddleware("rest_api", config.Registry, config.Registry)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	rs := &RestServer{
		router:  router,
		sim:     config.Simulation,
		repo:    config.Repo,
		issuer:  config.Issuer,
		metrics: config.Metrics,
		port:    config.Port,
		log:     config.Logger,
	}
	rs.setupRoutes()
	return rs
}

// Handler возвращает http.Handler (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")

	// Обмен API-ключа на токен (без JWT защиты)
	api.POST("/auth/token", rs.handleToken)

	read := api.Group("/")
	read.Use(middleware.RequireToken(rs.issuer, false))
	{
		read.GET("/weapons", rs.handleListWeapons)
		read.GET("/weapons/:id", rs.handleGetWeapon)
		read.GET("/definitions", rs.handleDefinitions)
		read.GET("/projectiles", rs.handleProjectiles)
		read.GET("/targets", rs.handleTargets)
		read.GET("/stats", rs.handleStats)
		read.GET("/stats/weapons", rs.handleWeaponTable)
		read.GET("/snapshots", rs.handleListSnapshots)
		read.GET("/admin/loggers", rs.handleListLoggers)
	}

	write := api.Group("/")
	write.Use(middleware.RequireToken(rs.issuer, true))
	{
		write.POST("/weapons", rs.handleSpawnWeapon)
		write.DELETE("/weapons/:id", rs.handleDestroyWeapon)
		write.PUT("/weapons/:id/move", rs.handleMoveWeapon)
		write.POST("/weapons/:id/fire", rs.handleFire)
		write.POST("/weapons/:id/reload", rs.handleReload)
		write.POST("/weapons/:id/shield/raise", rs.handleRaiseShield)
		write.POST("/weapons/:id/shield/lower", rs.handleLowerShield)
		write.POST("/targets/reset", rs.handleResetTargets)
		write.POST("/snapshots/:name", rs.handleSaveSnapshot)
		write.POST("/snapshots/:name/restore", rs.handleRestoreSnapshot)
		write.DELETE("/snapshots/:name", rs.handleDeleteSnapshot)
		write.PUT("/admin/loggers/:component", rs.handleSetLogLevel)
	}
}

// Start запускает HTTP сервер. Метод неблокирующий.
func (rs *RestServer) Start() error {
	rs.server = &http.Server{
		Addr:              rs.port,
		Handler:           rs.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rs.log.Error("❌ REST API сервер остановлен с ошибкой: %v", err)
		}
	}()
	rs.log.Info("🌐 REST API сервер запущен на %s", rs.port)
	return nil
}

// Stop корректно останавливает HTTP сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.server == nil {
		return nil
	}
	if err := rs.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("rest shutdown: %w", err)
	}
	return nil
}

// handleHealth проверка живости
func (rs *RestServer) handleHealth(c *gin.Context) {
	st := rs.sim.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"tick":        st.Tick,
		"time":        st.Time,
		"weapons":     st.Weapons,
		"projectiles": st.Projectiles,
	})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, GenericResponse{Success: false, Message: message})
}

func ok(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, GenericResponse{Success: true, Message: message, Data: data})
}
