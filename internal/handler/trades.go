package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"condortrader/internal/engine"
	"condortrader/internal/repository"
)

type TradesHandler struct {
	Repo   repository.Repository
	Engine *engine.Engine
}

func (h *TradesHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/trades")
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/close", h.close)

	d := r.Group("/api/v1/decisions")
	d.GET("", h.listDecisions)
}

func (h *TradesHandler) list(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListTradesParams{
		Limit:       limit,
		Offset:      offset,
		AccountMode: strQueryPtr(c, "account_mode"),
		Since:       dateQueryPtr(c, "start_date"),
		Until:       dateQueryPtr(c, "end_date"),
		OrderBy:     "trade_date",
	}
	switch strings.ToLower(strings.TrimSpace(c.Query("status"))) {
	case "open":
		params.IsOpen = boolPtr(true)
	case "closed":
		params.IsOpen = boolPtr(false)
	}

	items, err := h.Repo.ListTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func (h *TradesHandler) get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid trade id", nil)
		return
	}
	item, err := h.Repo.GetTradeByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "trade not found", nil)
		return
	}
	Ok(c, item, nil)
}

type closeTradeRequest struct {
	ExitPrice string `json:"exit_price"`
}

// close force-closes one open trade at market. The optional exit price
// realizes P&L on the record; without it the close is still placed and
// the prices stay unset for later reconciliation.
func (h *TradesHandler) close(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid trade id", nil)
		return
	}
	var req closeTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	var exitPrice *decimal.Decimal
	if strings.TrimSpace(req.ExitPrice) != "" {
		d, err := decimal.NewFromString(req.ExitPrice)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid exit_price", nil)
			return
		}
		exitPrice = &d
	}

	if err := h.Engine.CloseTrade(c.Request.Context(), id, exitPrice); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	item, _ := h.Repo.GetTradeByID(c.Request.Context(), id)
	Ok(c, item, nil)
}

func (h *TradesHandler) listDecisions(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListDecisionsParams{
		Limit:        limit,
		Offset:       offset,
		DecisionType: strQueryPtr(c, "decision_type"),
		AccountMode:  strQueryPtr(c, "account_mode"),
		ActionTaken:  boolQueryPtr(c, "action_taken"),
		Since:        dateQueryPtr(c, "start_date"),
		Until:        dateQueryPtr(c, "end_date"),
	}

	items, err := h.Repo.ListTradeDecisions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountTradeDecisions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}
