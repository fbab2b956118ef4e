package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailmirror/services/events"
)

const subscriberBuffer = 64

// StreamNotifications serves bus notifications as server-sent events until
// the client goes away.
func StreamNotifications(bus *events.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		notifications, unsubscribe := bus.Subscribe(subscriberBuffer)
		defer unsubscribe()

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")

		c.Stream(func(w io.Writer) bool {
			select {
			case <-c.Request.Context().Done():
				return false
			case notification, ok := <-notifications:
				if !ok {
					return false
				}
				c.SSEvent(notification.Type.String(), notification)
				return true
			}
		})
	}
}
