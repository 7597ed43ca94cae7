package apperr

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Respond writes err as a JSON error body. Unclassified errors are reported
// as internal without leaking their text.
func Respond(c *gin.Context, err error) {
	status := HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, gin.H{
		"error":   Code(err),
		"message": msg,
	})
}
