package rewards

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskmesh/internal/apperr"
	"github.com/mbd888/riskmesh/internal/auth"
	"github.com/mbd888/riskmesh/internal/units"
	"github.com/mbd888/riskmesh/internal/validation"
)

// Handler provides HTTP endpoints for the reward pool.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public read routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/rewards/pool", h.GetPool)
	r.GET("/rewards/:address", validation.AddressParamMiddleware(), h.GetAccount)
}

// RegisterProtectedRoutes sets up Admin and operator routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/rewards/fund", h.Fund)
	r.POST("/rewards/distribute", h.Distribute)
	r.POST("/rewards/claim", h.Claim)
}

// AmountRequest carries a wei amount as a base-10 string.
type AmountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// DistributeRequest is the body of POST /rewards/distribute.
type DistributeRequest struct {
	Operator string `json:"operator" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
}

func badAmount(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": "amount must be a base-10 wei integer",
	})
}

// Fund handles POST /rewards/fund
func (h *Handler) Fund(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badAmount(c)
		return
	}
	amount, ok := units.ParseWei(req.Amount)
	if !ok {
		badAmount(c)
		return
	}
	pool, err := h.service.Fund(c.Request.Context(), auth.Caller(c), amount)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pool": pool})
}

// Distribute handles POST /rewards/distribute
func (h *Handler) Distribute(c *gin.Context) {
	var req DistributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badAmount(c)
		return
	}
	amount, ok := units.ParseWei(req.Amount)
	if !ok {
		badAmount(c)
		return
	}
	if err := h.service.Distribute(c.Request.Context(), auth.Caller(c), req.Operator, amount); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operator": req.Operator, "amount": amount.String()})
}

// Claim handles POST /rewards/claim
func (h *Handler) Claim(c *gin.Context) {
	claim, err := h.service.Claim(c.Request.Context(), auth.Caller(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claim": claim})
}

// GetPool handles GET /rewards/pool
func (h *Handler) GetPool(c *gin.Context) {
	pool, err := h.service.Pool(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pool": pool})
}

// GetAccount handles GET /rewards/:address
func (h *Handler) GetAccount(c *gin.Context) {
	a, err := h.service.Account(c.Request.Context(), c.Param("address"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": a})
}
