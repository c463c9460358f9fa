package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/annel0/arena-combat/internal/logging"
	"github.com/annel0/arena-combat/internal/stats"
	"github.com/annel0/arena-combat/internal/storage"
	"github.com/annel0/arena-combat/internal/vec"
	"github.com/annel0/arena-combat/internal/weapon"
	"github.com/gin-gonic/gin"
)

// TokenRequest обмен API-ключа на JWT
type TokenRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// TokenResponse содержит выданный токен
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PoseRequest задаёт позу покоя оружия. Rotation приоритетнее Euler (градусы).
type PoseRequest struct {
	Position vec.Vec3  `json:"position"`
	Rotation *vec.Quat `json:"rotation,omitempty"`
	Euler    *vec.Vec3 `json:"euler,omitempty"`
}

func (p PoseRequest) rotation() vec.Quat {
	switch {
	case p.Rotation != nil:
		return p.Rotation.Normalized()
	case p.Euler != nil:
		return vec.FromEuler(*p.Euler)
	default:
		return vec.Identity()
	}
}

// SpawnRequest создаёт экземпляр оружия
type SpawnRequest struct {
	Type string `json:"type" binding:"required"`
	PoseRequest
}

// handleToken обменивает API-ключ на токен
func (rs *RestServer) handleToken(c *gin.Context) {
	if rs.issuer == nil || !rs.issuer.Enabled() {
		fail(c, http.StatusNotFound, "Авторизация выключена")
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	token, expires, err := rs.issuer.Exchange(req.APIKey)
	if err != nil {
		fail(c, http.StatusUnauthorized, "Неверный API-ключ")
		return
	}
	ok(c, http.StatusOK, "Токен выдан", TokenResponse{Token: token, ExpiresAt: expires})
}

func parseHandle(c *gin.Context) (weapon.Handle, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, "Неверный ID оружия")
		return 0, false
	}
	return weapon.Handle(id), true
}

// handleListWeapons возвращает состояния всего оружия
func (rs *RestServer) handleListWeapons(c *gin.Context) {
	ok(c, http.StatusOK, "Оружие получено", rs.sim.States())
}

// handleGetWeapon возвращает состояние одного экземпляра
func (rs *RestServer) handleGetWeapon(c *gin.Context) {
	h, valid := parseHandle(c)
	if !valid {
		return
	}
	state, found := rs.sim.GetState(h)
	if !found {
		fail(c, http.StatusNotFound, "Оружие не найдено")
		return
	}
	ok(c, http.StatusOK, "Оружие получено", state)
}

// handleSpawnWeapon создаёт экземпляр оружия
func (rs *RestServer) handleSpawnWeapon(c *gin.Context) {
	var req SpawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса: "+err.Error())
		return
	}

	h, err := rs.sim.SpawnWeapon(weapon.Type(req.Type), req.Position, req.rotation())
	switch {
	case errors.Is(err, weapon.ErrUnknownWeaponType):
		fail(c, http.StatusNotFound, "Неизвестный тип оружия: "+req.Type)
		return
	case errors.Is(err, weapon.ErrMissingCapability):
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	state, _ := rs.sim.GetState(h)
	ok(c, http.StatusCreated, "Оружие создано", state)
}

// handleDestroyWeapon уничтожает экземпляр
func (rs *RestServer) handleDestroyWeapon(c *gin.Context) {
	h, valid := parseHandle(c)
	if !valid {
		return
	}
	if err := rs.sim.DestroyWeapon(h); err != nil {
		if errors.Is(err, weapon.ErrUnknownWeapon) {
			fail(c, http.StatusNotFound, "Оружие не найдено")
			return
		}
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, http.StatusOK, "Оружие уничтожено", gin.H{"weapon": h})
}

// handleMoveWeapon переносит позу покоя
func (rs *RestServer) handleMoveWeapon(c *gin.Context) {
	h, valid := parseHandle(c)
	if !valid {
		return
	}
	var req PoseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса: "+err.Error())
		return
	}
	if err := rs.sim.MoveWeapon(h, req.Position, req.rotation()); err != nil {
		if errors.Is(err, weapon.ErrUnknownWeapon) {
			fail(c, http.StatusNotFound, "Оружие не найдено")
			return
		}
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	state, _ := rs.sim.GetState(h)
	ok(c, http.StatusOK, "Оружие перемещено", state)
}

// handleFire ставит выстрел в очередь; результат придёт событием в следующем кадре
func (rs *RestServer) handleFire(c *gin.Context) {
	rs.enqueue(c, rs.sim.Fire, "Выстрел поставлен в очередь")
}

// handleReload ставит перезарядку в очередь
func (rs *RestServer) handleReload(c *gin.Context) {
	rs.enqueue(c, rs.sim.Reload, "Перезарядка поставлена в очередь")
}

// handleRaiseShield ставит подъём щита в очередь
func (rs *RestServer) handleRaiseShield(c *gin.Context) {
	rs.enqueue(c, rs.sim.RaiseShield, "Подъём щита поставлен в очередь")
}

// handleLowerShield ставит опускание щита в очередь
func (rs *RestServer) handleLowerShield(c *gin.Context) {
	rs.enqueue(c, rs.sim.LowerShield, "Опускание щита поставлено в очередь")
}

func (rs *RestServer) enqueue(c *gin.Context, action func(weapon.Handle), message string) {
	h, valid := parseHandle(c)
	if !valid {
		return
	}
	if _, found := rs.sim.GetState(h); !found {
		fail(c, http.StatusNotFound, "Оружие не найдено")
		return
	}
	action(h)
	ok(c, http.StatusAccepted, message, gin.H{"weapon": h, "pending": rs.sim.PendingIntents()})
}

// handleDefinitions возвращает каталог
func (rs *RestServer) handleDefinitions(c *gin.Context) {
	ok(c, http.StatusOK, "Каталог получен", rs.sim.Definitions())
}

// handleProjectiles возвращает снаряды в полёте
func (rs *RestServer) handleProjectiles(c *gin.Context) {
	ok(c, http.StatusOK, "Снаряды получены", rs.sim.Projectiles())
}

// handleTargets возвращает состояние мишеней арены
func (rs *RestServer) handleTargets(c *gin.Context) {
	ok(c, http.StatusOK, "Мишени получены", rs.sim.Targets())
}

// handleResetTargets восстанавливает мишени арены
func (rs *RestServer) handleResetTargets(c *gin.Context) {
	n := rs.sim.ResetTargets()
	ok(c, http.StatusOK, "Мишени восстановлены", gin.H{"reset": n, "targets": rs.sim.Targets()})
}

// handleStats возвращает статистику симуляции и процесса
func (rs *RestServer) handleStats(c *gin.Context) {
	ok(c, http.StatusOK, "Статистика получена", gin.H{
		"simulation":  rs.sim.Stats(),
		"server":      rs.metrics.Collect(),
		"weapons":     stats.WeaponRows(rs.sim.Definitions()),
		"server_time": time.Now().Unix(),
	})
}

// handleWeaponTable отдаёт таблицу характеристик с разделителем табуляцией
func (rs *RestServer) handleWeaponTable(c *gin.Context) {
	c.Data(http.StatusOK, "text/tab-separated-values; charset=utf-8", []byte(stats.WeaponTable(rs.sim.Definitions())))
}

func (rs *RestServer) requireRepo(c *gin.Context) bool {
	if rs.repo == nil {
		fail(c, http.StatusServiceUnavailable, "Хранилище снимков не настроено")
		return false
	}
	return true
}

// handleListSnapshots возвращает имена снимков
func (rs *RestServer) handleListSnapshots(c *gin.Context) {
	if !rs.requireRepo(c) {
		return
	}
	names, err := rs.repo.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, http.StatusOK, "Снимки получены", names)
}

// handleSaveSnapshot сохраняет текущее состояние под именем
func (rs *RestServer) handleSaveSnapshot(c *gin.Context) {
	if !rs.requireRepo(c) {
		return
	}
	name := c.Param("name")
	if err := storage.ValidateName(name); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	snap := rs.sim.Snapshot()
	if err := rs.repo.Save(c.Request.Context(), name, snap); err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	rs.log.Info("💾 Снимок %s сохранён (tick=%d)", name, snap.Tick)
	ok(c, http.StatusCreated, "Снимок сохранён", gin.H{
		"name":        name,
		"tick":        snap.Tick,
		"weapons":     len(snap.Weapons),
		"projectiles": len(snap.Projectiles),
	})
}

// handleRestoreSnapshot заменяет состояние симуляции сохранённым
func (rs *RestServer) handleRestoreSnapshot(c *gin.Context) {
	if !rs.requireRepo(c) {
		return
	}
	name := c.Param("name")
	snap, err := rs.repo.Load(c.Request.Context(), name)
	if errors.Is(err, storage.ErrNotFound) {
		fail(c, http.StatusNotFound, "Снимок не найден")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if err := rs.sim.Restore(snap); err != nil {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	rs.log.Info("♻️ Снимок %s восстановлен (tick=%d)", name, snap.Tick)
	ok(c, http.StatusOK, "Снимок восстановлен", rs.sim.Stats())
}

// handleDeleteSnapshot удаляет снимок
func (rs *RestServer) handleDeleteSnapshot(c *gin.Context) {
	if !rs.requireRepo(c) {
		return
	}
	if err := rs.repo.Delete(c.Request.Context(), c.Param("name")); err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, http.StatusOK, "Снимок удалён", nil)
}

// LoggerLevels пороги логгера компонента
type LoggerLevels struct {
	Component string `json:"component"`
	Console   string `json:"console"`
	File      string `json:"file"`
}

// LogLevelRequest меняет пороги логгера; пустое поле оставляет порог как есть
type LogLevelRequest struct {
	Console string `json:"console"`
	File    string `json:"file"`
}

// handleListLoggers возвращает компоненты с их уровнями логирования
func (rs *RestServer) handleListLoggers(c *gin.Context) {
	lm := logging.GetLoggerManager()
	components := lm.ListComponents()
	out := make([]LoggerLevels, 0, len(components))
	for _, name := range components {
		logger, err := lm.GetLogger(name)
		if err != nil {
			continue
		}
		console, file := logger.Levels()
		out = append(out, LoggerLevels{Component: name, Console: console.String(), File: file.String()})
	}
	ok(c, http.StatusOK, "Логгеры получены", out)
}

// handleSetLogLevel меняет уровни логирования компонента на лету
func (rs *RestServer) handleSetLogLevel(c *gin.Context) {
	component := c.Param("component")
	var req LogLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса: "+err.Error())
		return
	}

	lm := logging.GetLoggerManager()
	var logger *logging.Logger
	for _, name := range lm.ListComponents() {
		if name == component {
			logger, _ = lm.GetLogger(name)
			break
		}
	}
	if logger == nil {
		fail(c, http.StatusNotFound, "Компонент не найден")
		return
	}

	console, file := logger.Levels()
	var err error
	if req.Console != "" {
		if console, err = logging.ParseLevel(req.Console); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.File != "" {
		if file, err = logging.ParseLevel(req.File); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := lm.SetLogLevel(component, console, file); err != nil {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	rs.log.Info("🔧 Уровни логирования %s: console=%s file=%s", component, console, file)
	ok(c, http.StatusOK, "Уровни логирования изменены", LoggerLevels{Component: component, Console: console.String(), File: file.String()})
}
