package events

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler serves the signal log for indexers and dashboards.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/signals", h.ListSignals)
}

// ListSignals handles GET /signals?after=<seq>&type=<type>&limit=<n>
func (h *Handler) ListSignals(c *gin.Context) {
	var after int64
	if v := c.Query("after"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_input",
				"message": "after must be a non-negative sequence number",
			})
			return
		}
		after = parsed
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	signals, err := h.store.List(c.Request.Context(), ListOptions{
		AfterSeq: after,
		Type:     Type(c.Query("type")),
		Limit:    limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "failed to list signals",
		})
		return
	}

	next := after
	if n := len(signals); n > 0 {
		next = signals[n-1].Seq
	}
	c.JSON(http.StatusOK, gin.H{
		"signals": signals,
		"count":   len(signals),
		"next":    next,
	})
}
