package risk

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskmesh/internal/apperr"
	"github.com/mbd888/riskmesh/internal/auth"
)

// DefaultHistoryLimit applies when ?limit is absent.
const DefaultHistoryLimit = 50

// Handler provides HTTP endpoints for asset risk.
type Handler struct {
	service *Service
}

// NewHandler creates a new risk handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public read routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/risk/:assetId", h.GetProfile)
	r.GET("/risk/:assetId/history", h.GetHistory)
	r.GET("/risk/:assetId/trend", h.GetTrend)
	r.GET("/risk/:assetId/threshold", h.GetThreshold)
}

// RegisterProtectedRoutes sets up RiskAssessor routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/risk/assess", h.Assess)
	r.POST("/risk/batch", h.BatchAssess)
	r.PUT("/risk/:assetId/threshold", h.SetThreshold)
}

// AssessRequest is the body of POST /risk/assess.
type AssessRequest struct {
	AssetID    string     `json:"assetId" binding:"required"`
	Parameters Parameters `json:"parameters"`
	Sources    []string   `json:"sources,omitempty"`
}

// Assess handles POST /risk/assess
func (h *Handler) Assess(c *gin.Context) {
	var req AssessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	score, err := h.service.AssessRisk(c.Request.Context(), auth.Caller(c), req.AssetID, req.Parameters, req.Sources...)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assetId": req.AssetID, "score": score})
}

// BatchAssessRequest is the body of POST /risk/batch.
type BatchAssessRequest struct {
	AssetIDs   []string     `json:"assetIds"`
	Parameters []Parameters `json:"parameters"`
}

// BatchAssess handles POST /risk/batch
func (h *Handler) BatchAssess(c *gin.Context) {
	var req BatchAssessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	scores, err := h.service.BatchAssessRisk(c.Request.Context(), auth.Caller(c), req.AssetIDs, req.Parameters)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assetIds": req.AssetIDs, "scores": scores})
}

// SetThresholdRequest is the body of PUT /risk/:assetId/threshold.
type SetThresholdRequest struct {
	Threshold uint64 `json:"threshold"`
}

// SetThreshold handles PUT /risk/:assetId/threshold
func (h *Handler) SetThreshold(c *gin.Context) {
	var req SetThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "threshold must be a non-negative integer",
		})
		return
	}
	assetID := c.Param("assetId")
	if err := h.service.SetRiskThreshold(c.Request.Context(), auth.Caller(c), assetID, req.Threshold); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assetId": assetID, "threshold": req.Threshold})
}

// GetProfile handles GET /risk/:assetId
func (h *Handler) GetProfile(c *gin.Context) {
	p, err := h.service.GetRiskProfile(c.Request.Context(), c.Param("assetId"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}

// GetHistory handles GET /risk/:assetId/history?limit=N
func (h *Handler) GetHistory(c *gin.Context) {
	limit := DefaultHistoryLimit
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_input",
				"message": "limit must be a non-negative integer",
			})
			return
		}
		limit = parsed
	}

	assetID := c.Param("assetId")
	scores, err := h.service.GetHistoricalScores(c.Request.Context(), assetID, limit)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assetId": assetID, "scores": scores, "count": len(scores)})
}

// GetTrend handles GET /risk/:assetId/trend
func (h *Handler) GetTrend(c *gin.Context) {
	assetID := c.Param("assetId")
	trend, err := h.service.GetTrend(c.Request.Context(), assetID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assetId": assetID, "trend": trend})
}

// GetThreshold handles GET /risk/:assetId/threshold
func (h *Handler) GetThreshold(c *gin.Context) {
	assetID := c.Param("assetId")
	t, err := h.service.GetRiskThreshold(c.Request.Context(), assetID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assetId": assetID, "threshold": t})
}
