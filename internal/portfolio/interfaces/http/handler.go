// Package http 提供组合再平衡与优化的 HTTP 接口
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	positionapp "github.com/quantex/strategyengine/internal/position/application"
	"github.com/quantex/strategyengine/internal/portfolio/application"
	"github.com/quantex/strategyengine/pkg/response"
)

// Handler 组合 HTTP 处理器
type Handler struct {
	ledger     *positionapp.PositionLedger
	rebalancer *application.PortfolioRebalancer
	optimizer  *application.PortfolioOptimizer
}

// NewHandler 创建处理器
func NewHandler(
	ledger *positionapp.PositionLedger,
	rebalancer *application.PortfolioRebalancer,
	optimizer *application.PortfolioOptimizer,
) *Handler {
	return &Handler{ledger: ledger, rebalancer: rebalancer, optimizer: optimizer}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/portfolio/rebalance", h.Rebalance)
	r.POST("/portfolio/optimize", h.Optimize)
	r.GET("/portfolio/optimize/history", h.OptimizeHistory)
}

// Rebalance 刷新组合指标并返回再平衡建议
func (h *Handler) Rebalance(c *gin.Context) {
	recommendations := h.rebalancer.RefreshAndCheck(c.Request.Context())
	response.Success(c, gin.H{"recommendations": recommendations})
}

// optimizeRequest 优化请求体；风险与行情输入由调用方提供
type optimizeRequest struct {
	RiskMetrics application.RiskMetrics `json:"risk_metrics"`
	MarketData  application.MarketData  `json:"market_data"`
}

// Optimize 基于台账快照与调用方提供的风险/行情输入执行组合优化
func (h *Handler) Optimize(c *gin.Context) {
	var req optimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	state := &application.PortfolioState{
		CurrentAllocations: h.ledger.CurrentAllocations(),
		RiskMetrics:        req.RiskMetrics,
		TotalPositions:     len(h.ledger.Snapshot()),
	}
	output := h.optimizer.Optimize(c.Request.Context(), state, &req.MarketData)
	response.Success(c, output)
}

// OptimizeHistory 返回最近的优化历史
func (h *Handler) OptimizeHistory(c *gin.Context) {
	response.Success(c, h.optimizer.History())
}
