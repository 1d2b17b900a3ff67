// Package http 提供持仓台账的 HTTP 接口
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quantex/strategyengine/internal/position/application"
	"github.com/quantex/strategyengine/internal/position/domain"
	"github.com/quantex/strategyengine/pkg/response"
)

// Handler 持仓 HTTP 处理器
type Handler struct {
	ledger  *application.PositionLedger
	history domain.HistoryRepository
}

// NewHandler 创建处理器；history 可为 nil（未启用数据库时）
func NewHandler(ledger *application.PositionLedger, history domain.HistoryRepository) *Handler {
	return &Handler{ledger: ledger, history: history}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/positions", h.OpenPosition)
	r.GET("/positions/:id", h.GetPosition)
	r.PATCH("/positions/:id", h.UpdatePosition)
	r.POST("/positions/:id/close", h.ClosePosition)
	r.POST("/positions/:id/partial-exit", h.PartialExit)
	r.GET("/positions/:id/history", h.PositionHistory)
	r.GET("/portfolio/summary", h.PortfolioSummary)
}

// OpenPosition 开仓
func (h *Handler) OpenPosition(c *gin.Context) {
	var req application.OpenPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	id := h.ledger.AddPosition(c.Request.Context(), &req)
	response.Success(c, gin.H{"position_id": id})
}

// GetPosition 查询单个持仓
func (h *Handler) GetPosition(c *gin.Context) {
	pos := h.ledger.PositionSummary(c.Request.Context(), c.Param("id"))
	if pos == nil {
		response.Error(c, http.StatusNotFound, "position not found")
		return
	}
	response.Success(c, pos)
}

// UpdatePosition 更新持仓
func (h *Handler) UpdatePosition(c *gin.Context) {
	var patch application.UpdatePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !h.ledger.UpdatePosition(c.Request.Context(), c.Param("id"), &patch) {
		response.Error(c, http.StatusNotFound, "position not found")
		return
	}
	response.Success(c, gin.H{"updated": true})
}

// ClosePosition 平仓
func (h *Handler) ClosePosition(c *gin.Context) {
	var req application.CloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !h.ledger.ClosePosition(c.Request.Context(), c.Param("id"), &req) {
		response.Error(c, http.StatusConflict, "position cannot be closed")
		return
	}
	response.Success(c, gin.H{"closed": true})
}

// PartialExit 部分平仓
func (h *Handler) PartialExit(c *gin.Context) {
	var req application.ExitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !h.ledger.PartialExit(c.Request.Context(), c.Param("id"), &req) {
		response.Error(c, http.StatusConflict, "partial exit rejected")
		return
	}
	response.Success(c, gin.H{"exited": true})
}

// PositionHistory 查询持仓历史
func (h *Handler) PositionHistory(c *gin.Context) {
	if h.history == nil {
		response.Error(c, http.StatusNotImplemented, "position history storage not configured")
		return
	}
	records, err := h.history.ListByPosition(c.Request.Context(), c.Param("id"), 100)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to load history: "+err.Error())
		return
	}
	response.Success(c, records)
}

// PortfolioSummary 组合汇总
func (h *Handler) PortfolioSummary(c *gin.Context) {
	response.Success(c, h.ledger.GetPortfolioSummary(c.Request.Context()))
}
