package oracle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskmesh/internal/apperr"
	"github.com/mbd888/riskmesh/internal/auth"
)

// Handler provides HTTP endpoints for the oracle registry.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public read routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/oracles", h.ListSources)
	r.GET("/oracles/:name", h.GetSource)
}

// RegisterProtectedRoutes sets up OracleManager routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/oracles", h.AddSource)
	r.POST("/oracles/:name/deactivate", h.Deactivate)
	r.POST("/oracles/:name/heartbeat", h.Heartbeat)
}

// AddSourceRequest is the body of POST /oracles.
type AddSourceRequest struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address" binding:"required"`
	Weight  uint64 `json:"weight"`
}

// AddSource handles POST /oracles
func (h *Handler) AddSource(c *gin.Context) {
	var req AddSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "name and address are required",
		})
		return
	}
	src, err := h.service.AddOracleSource(c.Request.Context(), auth.Caller(c), req.Name, req.Address, req.Weight)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"source": src})
}

// Deactivate handles POST /oracles/:name/deactivate
func (h *Handler) Deactivate(c *gin.Context) {
	name := c.Param("name")
	if err := h.service.DeactivateOracleSource(c.Request.Context(), auth.Caller(c), name); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "isActive": false})
}

// Heartbeat handles POST /oracles/:name/heartbeat
func (h *Handler) Heartbeat(c *gin.Context) {
	src, err := h.service.RecordUpdate(c.Request.Context(), auth.Caller(c), c.Param("name"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": src})
}

// ListSources handles GET /oracles?active=true
func (h *Handler) ListSources(c *gin.Context) {
	sources, err := h.service.ListOracleSources(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources, "count": len(sources)})
}

// GetSource handles GET /oracles/:name
func (h *Handler) GetSource(c *gin.Context) {
	src, err := h.service.GetOracleSource(c.Request.Context(), c.Param("name"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": src})
}
