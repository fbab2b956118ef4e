package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	apierrors "github.com/customeros/mailmirror/api/errors"
	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/interfaces"
	"github.com/customeros/mailmirror/internal/enum"
	"github.com/customeros/mailmirror/internal/tracing"
)

// PostCommand accepts startSync, cancelSync and syncStatus. startSync answers
// 202 and continues in the background.
func PostCommand(handler interfaces.CommandHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "Handlers.PostCommand")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var command dto.Command
		if err := c.ShouldBindJSON(&command); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command payload"})
			return
		}
		tracing.LogObjectAsJson(span, "command.type", command.Type)

		reply, err := handler.Handle(ctx, command)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(apierrors.HTTPStatus(err), reply)
			return
		}

		status := http.StatusOK
		if reply.Accepted && reply.Status == nil && command.Type == enum.CommandStartSync {
			status = http.StatusAccepted
		}
		c.JSON(status, reply)
	}
}

// GetSyncStatus is the REST form of the syncStatus command.
func GetSyncStatus(syncService interfaces.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		account := c.Param("account")
		folder := c.Query("folder")
		if folder == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "folder is required"})
			return
		}
		c.JSON(http.StatusOK, syncService.Status(c.Request.Context(), account, folder))
	}
}

// DeleteSync cancels a running sync.
func DeleteSync(syncService interfaces.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		account := c.Param("account")
		folder := c.Query("folder")
		if folder == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "folder is required"})
			return
		}
		cancelled := syncService.CancelSync(c.Request.Context(), account, folder)
		c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
	}
}
