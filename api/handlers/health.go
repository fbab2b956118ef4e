package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailmirror/internal/database"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status reports whether the local store can be opened and its schema version.
func Status(gateway *database.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, err := gateway.Open(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"store": "unavailable",
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"store":         "ok",
			"schemaVersion": store.Version(),
		})
	}
}
