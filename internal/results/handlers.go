package results

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskmesh/internal/apperr"
	"github.com/mbd888/riskmesh/internal/auth"
)

// Handler provides HTTP endpoints for AI results.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public read routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/results/:resultId", h.GetResult)
	r.GET("/results/:resultId/valid", h.IsValid)
	r.GET("/assets/:assetId/results", h.ListByAsset)
}

// RegisterProtectedRoutes sets up AIOperator and Verifier routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/results", h.Submit)
	r.POST("/results/:resultId/verify", h.Verify)
}

// SubmitRequest is the body of POST /results.
type SubmitRequest struct {
	ModelID    string        `json:"modelId" binding:"required"`
	AssetID    string        `json:"assetId" binding:"required"`
	RiskScore  uint64        `json:"riskScore"`
	Confidence uint64        `json:"confidence"`
	Proof      hexutil.Bytes `json:"proof"`
}

// Submit handles POST /results
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "modelId and assetId are required; proof must be 0x-prefixed hex",
		})
		return
	}
	id, err := h.service.SubmitResult(c.Request.Context(), auth.Caller(c), req.ModelID, req.AssetID, req.RiskScore, req.Confidence, req.Proof)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"resultId": id})
}

// Verify handles POST /results/:resultId/verify
func (h *Handler) Verify(c *gin.Context) {
	id := c.Param("resultId")
	ok, err := h.service.VerifyResult(c.Request.Context(), auth.Caller(c), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resultId": id, "verified": ok})
}

// GetResult handles GET /results/:resultId
func (h *Handler) GetResult(c *gin.Context) {
	r, err := h.service.GetResult(c.Request.Context(), c.Param("resultId"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": r})
}

// IsValid handles GET /results/:resultId/valid
func (h *Handler) IsValid(c *gin.Context) {
	id := c.Param("resultId")
	ok, err := h.service.IsResultValid(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resultId": id, "valid": ok})
}

// ListByAsset handles GET /assets/:assetId/results?limit=N
func (h *Handler) ListByAsset(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	rs, err := h.service.ListResultsByAsset(c.Request.Context(), c.Param("assetId"), limit)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": rs, "count": len(rs)})
}
