package models

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskmesh/internal/apperr"
	"github.com/mbd888/riskmesh/internal/auth"
)

// Handler provides HTTP endpoints for the model registry.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public read routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/models", h.ListModels)
	r.GET("/models/:modelId", h.GetModel)
}

// RegisterProtectedRoutes sets up AIOperator routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/models", h.RegisterModel)
}

// RegisterModelRequest is the body of POST /models.
type RegisterModelRequest struct {
	ModelID   string `json:"modelId" binding:"required"`
	ModelHash string `json:"modelHash" binding:"required"`
}

// RegisterModel handles POST /models
func (h *Handler) RegisterModel(c *gin.Context) {
	var req RegisterModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "modelId and modelHash are required",
		})
		return
	}
	m, err := h.service.RegisterModel(c.Request.Context(), auth.Caller(c), req.ModelID, req.ModelHash)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"model": m})
}

// GetModel handles GET /models/:modelId
func (h *Handler) GetModel(c *gin.Context) {
	m, err := h.service.GetModel(c.Request.Context(), c.Param("modelId"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": m})
}

// ListModels handles GET /models
func (h *Handler) ListModels(c *gin.Context) {
	ms, err := h.service.ListModels(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": ms, "count": len(ms)})
}
