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

func EnqueueMutation(mutations interfaces.MutationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "Handlers.EnqueueMutation")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request dto.EnqueueMutation
		if err := c.ShouldBindJSON(&request); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if verr := validateMutation(request); verr.HasErrors() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mutation", "fields": verr.Fields()})
			return
		}

		mutation, err := mutations.Enqueue(ctx, c.Param("account"), request)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(apierrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, mutation)
	}
}

func validateMutation(request dto.EnqueueMutation) *apierrors.MultiErrors {
	verr := apierrors.NewMultiErrors()
	if !request.Type.IsValid() {
		verr.Add("type", "unsupported mutation type", nil)
	}
	if request.Payload.MessageID == "" {
		verr.Add("payload.messageId", "required", nil)
	}
	if request.Type == enum.MutationMove && request.Payload.TargetFolder == "" {
		verr.Add("payload.targetFolder", "required for move", nil)
	}
	return verr
}

func ListMutations(mutations interfaces.MutationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		queue, err := mutations.List(c.Request.Context(), c.Param("account"))
		if err != nil {
			c.JSON(apierrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"account":   queue.AccountID,
			"mutations": queue.Mutations,
		})
	}
}

func DiscardMutation(mutations interfaces.MutationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		removed, err := mutations.Discard(c.Request.Context(), c.Param("account"), c.Param("id"))
		if err != nil {
			c.JSON(apierrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		if !removed {
			c.JSON(http.StatusNotFound, gin.H{"error": "mutation not found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// PostTrigger runs the named trigger and answers once it has settled.
func PostTrigger(mutations interfaces.MutationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "Handlers.PostTrigger")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		tag := c.Param("tag")
		span.SetTag("trigger.tag", tag)

		if err := mutations.HandleTrigger(ctx, tag); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(apierrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tag": tag, "status": "settled"})
	}
}
