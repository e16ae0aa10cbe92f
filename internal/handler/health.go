package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"condortrader/internal/calendar"
)

// SchedulerControl is the scheduler surface the HTTP layer exposes.
type SchedulerControl interface {
	Pause()
	Resume()
	Paused() bool
	Running() bool
	NextRuns() (entry, exit time.Time)
}

type HealthHandler struct {
	DB        *gorm.DB
	Scheduler SchedulerControl
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
	r.GET("/health/detailed", h.detailed)
}

func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) ready(c *gin.Context) {
	if h.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_missing"})
		return
	}
	sqlDB, err := h.DB.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_error"})
		return
	}
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// detailed reports component health: database, scheduler, trading day.
func (h *HealthHandler) detailed(c *gin.Context) {
	components := gin.H{}
	healthy := true

	dbStatus := gin.H{"status": "healthy"}
	if h.DB == nil {
		dbStatus = gin.H{"status": "unhealthy", "message": "database not configured"}
		healthy = false
	} else if sqlDB, err := h.DB.DB(); err != nil {
		dbStatus = gin.H{"status": "unhealthy", "message": err.Error()}
		healthy = false
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = gin.H{"status": "unhealthy", "message": err.Error()}
		healthy = false
	}
	components["database"] = dbStatus

	if h.Scheduler != nil {
		entry, exit := h.Scheduler.NextRuns()
		running := h.Scheduler.Running()
		status := "healthy"
		if !running {
			status = "unhealthy"
			healthy = false
		}
		components["scheduler"] = gin.H{
			"status":          status,
			"running":         running,
			"paused":          h.Scheduler.Paused(),
			"next_entry_time": entry,
			"next_exit_time":  exit,
		}
	}

	components["is_trading_day"] = calendar.IsTradingDay(time.Now())

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":     status,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"components": components,
	})
}
