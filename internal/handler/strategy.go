package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"condortrader/internal/calendar"
	"condortrader/internal/config"
	"condortrader/internal/engine"
	"condortrader/internal/models"
	"condortrader/internal/service"
)

type StrategyHandler struct {
	Settings   *service.SettingsService
	Engine     *engine.Engine
	Scheduler  SchedulerControl
	Compliance engine.Compliance
	Config     config.Config
	Logger     *zap.Logger
}

func (h *StrategyHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/strategy")
	g.GET("/status", h.status)
	g.POST("/toggle", h.toggle)
	g.POST("/account/toggle", h.toggleAccount)
	g.GET("/config", h.getConfig)
	g.POST("/config", h.updateConfig)
	g.POST("/manual/entry", h.manualEntry)
	g.POST("/manual/exit", h.manualExit)
}

func (h *StrategyHandler) status(c *gin.Context) {
	ctx := c.Request.Context()
	enabled := h.Settings.IsEnabled(ctx, service.KeyStrategyEnabled, false)
	useLive := h.Settings.IsEnabled(ctx, service.KeyUseLiveAccount, false)

	accountMode := models.AccountModeSim
	accountID := h.Config.Broker.SimAccount
	if useLive {
		accountMode = models.AccountModeLive
		accountID = h.Config.Broker.LiveAccount
	}

	resp := gin.H{
		"strategy_enabled": enabled,
		"use_live_account": useLive,
		"account_mode":     accountMode,
		"account_id":       accountID,
		"is_trading_day":   calendar.IsTradingDay(time.Now()),
	}
	if h.Scheduler != nil {
		entry, exit := h.Scheduler.NextRuns()
		resp["next_entry_time"] = entry
		resp["next_exit_time"] = exit
		resp["scheduler_running"] = h.Scheduler.Running()
		resp["scheduler_paused"] = h.Scheduler.Paused()
	}
	Ok(c, resp, nil)
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

// toggle flips the strategy switch and pauses or resumes the scheduled
// jobs with it.
func (h *StrategyHandler) toggle(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	value := "false"
	if req.Enabled {
		value = "true"
	}
	if err := h.Settings.SetValue(c.Request.Context(), service.KeyStrategyEnabled, value, "runtime strategy switch"); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	message := "Strategy disabled and scheduled jobs paused"
	if h.Scheduler != nil {
		if req.Enabled {
			h.Scheduler.Resume()
		} else {
			h.Scheduler.Pause()
		}
	}
	if req.Enabled {
		message = "Strategy enabled and scheduled jobs resumed"
	}
	if h.Logger != nil {
		h.Logger.Info("strategy toggled", zap.Bool("enabled", req.Enabled))
	}
	Ok(c, gin.H{"strategy_enabled": req.Enabled, "message": message}, nil)
}

type toggleAccountRequest struct {
	UseLive bool `json:"use_live"`
}

// toggleAccount switches between the simulated and live brokerage
// accounts. Switching to live requires a configured live account and a
// compliant PDT state.
func (h *StrategyHandler) toggleAccount(c *gin.Context) {
	var req toggleAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	ctx := c.Request.Context()

	if req.UseLive {
		if h.Config.Broker.LiveAccount == "" {
			Error(c, http.StatusBadRequest, "live account not configured", nil)
			return
		}
		if h.Compliance != nil {
			pdt := h.Compliance.Check(ctx, models.AccountModeLive)
			if !pdt.IsCompliant {
				Ok(c, gin.H{
					"success":    false,
					"message":    "Cannot switch to live account: PDT rule violation",
					"pdt_status": pdt,
				}, nil)
				return
			}
		}
	}

	value := "false"
	if req.UseLive {
		value = "true"
	}
	if err := h.Settings.SetValue(ctx, service.KeyUseLiveAccount, value, "runtime account switch"); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	accountMode := models.AccountModeSim
	accountID := h.Config.Broker.SimAccount
	var warning string
	if req.UseLive {
		accountMode = models.AccountModeLive
		accountID = h.Config.Broker.LiveAccount
		warning = "LIVE TRADING ENABLED - Real money at risk!"
	}
	if h.Logger != nil {
		h.Logger.Warn("account mode switched",
			zap.String("account_mode", accountMode),
			zap.String("account_id", accountID),
		)
	}
	Ok(c, gin.H{
		"success":          true,
		"use_live_account": req.UseLive,
		"account_mode":     accountMode,
		"account_id":       accountID,
		"warning":          warning,
	}, nil)
}

func (h *StrategyHandler) getConfig(c *gin.Context) {
	items, err := h.Settings.Repo.ListConfigValues(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	out := map[string]string{}
	for _, item := range items {
		out[item.ConfigKey] = item.ConfigValue
	}
	Ok(c, out, nil)
}

func (h *StrategyHandler) updateConfig(c *gin.Context) {
	var updates map[string]string
	if err := c.ShouldBindJSON(&updates); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	ctx := c.Request.Context()
	for key, value := range updates {
		if err := h.Settings.SetValue(ctx, key, value, ""); err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
	}
	Ok(c, gin.H{"updated_configs": updates}, nil)
}

func (h *StrategyHandler) manualEntry(c *gin.Context) {
	result := h.Engine.RunEntry(c.Request.Context())
	Ok(c, result, nil)
}

func (h *StrategyHandler) manualExit(c *gin.Context) {
	result := h.Engine.RunExit(c.Request.Context())
	Ok(c, result, nil)
}
