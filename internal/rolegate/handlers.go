package rolegate

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskmesh/internal/apperr"
	"github.com/mbd888/riskmesh/internal/auth"
	"github.com/mbd888/riskmesh/internal/validation"
)

// Handler exposes grant management.
type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// RegisterRoutes sets up public read routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/roles/:address", validation.AddressParamMiddleware(), h.ListGrants)
}

// RegisterProtectedRoutes sets up Admin-only mutations.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/roles", h.GrantRole)
	r.DELETE("/roles", h.RevokeRole)
}

type RoleRequest struct {
	Address    string `json:"address" binding:"required" validate:"ethaddr"`
	Capability string `json:"capability" binding:"required"`
}

func (h *Handler) bind(c *gin.Context) (*RoleRequest, bool) {
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "address and capability are required"})
		return nil, false
	}
	if err := validation.Struct(req); err != nil {
		apperr.Respond(c, err)
		return nil, false
	}
	return &req, true
}

// GrantRole handles POST /roles
func (h *Handler) GrantRole(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	g, err := h.service.Grant(c.Request.Context(), auth.Caller(c), req.Address, Capability(req.Capability))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"grant": g})
}

// RevokeRole handles DELETE /roles
func (h *Handler) RevokeRole(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	if err := h.service.Revoke(c.Request.Context(), auth.Caller(c), req.Address, Capability(req.Capability)); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

// ListGrants handles GET /roles/:address
func (h *Handler) ListGrants(c *gin.Context) {
	grants, err := h.service.List(c.Request.Context(), c.Param("address"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"grants": grants, "count": len(grants)})
}
