// Package http 提供信号提交与流水统计的 HTTP 接口
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	signalapp "github.com/quantex/strategyengine/internal/signal/application"
	signaldomain "github.com/quantex/strategyengine/internal/signal/domain"
	tradingapp "github.com/quantex/strategyengine/internal/trading/application"
	"github.com/quantex/strategyengine/internal/trading/domain"
	"github.com/quantex/strategyengine/pkg/response"
)

// Handler 交易流水 HTTP 处理器
type Handler struct {
	processor   *signalapp.SignalProcessor
	coordinator *tradingapp.FlowCoordinator
}

// NewHandler 创建处理器
func NewHandler(processor *signalapp.SignalProcessor, coordinator *tradingapp.FlowCoordinator) *Handler {
	return &Handler{processor: processor, coordinator: coordinator}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/signals", h.SubmitSignal)
	r.GET("/signals/stats", h.SignalStats)
	r.GET("/flows/stats", h.FlowStats)
	r.POST("/flows/stats/reset", h.ResetFlowStats)
}

// SubmitSignal 接收交易信号并驱动完整流水
func (h *Handler) SubmitSignal(c *gin.Context) {
	var sig signaldomain.TradingSignal
	if err := c.ShouldBindJSON(&sig); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	procResult := h.processor.Process(c.Request.Context(), &sig)
	if !procResult.Valid {
		response.Success(c, &domain.FlowResult{
			Success: false,
			Status:  domain.FlowRejected,
			Reason:  procResult.Reason,
		})
		return
	}

	result := h.coordinator.ProcessSignal(c.Request.Context(), procResult.Enriched)
	response.Success(c, result)
}

// SignalStats 返回信号处理统计
func (h *Handler) SignalStats(c *gin.Context) {
	response.Success(c, h.processor.Stats())
}

// FlowStats 返回流水统计
func (h *Handler) FlowStats(c *gin.Context) {
	response.Success(c, h.coordinator.Stats())
}

// ResetFlowStats 重置流水与信号统计
func (h *Handler) ResetFlowStats(c *gin.Context) {
	h.coordinator.ResetStats()
	h.processor.ResetStats()
	response.Success(c, gin.H{"reset": true})
}
