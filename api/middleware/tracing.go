package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/customeros/mailmirror/internal/tracing"
)

// TracingMiddleware opens the server span of a request, continuing any trace
// propagated in the headers. Handlers start their spans beneath it.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), c.Request.Method+" "+route, c.Request.Header)
		defer span.Finish()

		tracing.SetDefaultRestSpanTags(ctx, span)
		ext.HTTPMethod.Set(span, c.Request.Method)
		ext.HTTPUrl.Set(span, c.Request.URL.Path)
		tracing.TagAccount(span, c.Param("account"))
		tracing.TagEntity(span, c.Param("id"))

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		ext.HTTPStatusCode.Set(span, uint16(status))
		if status >= http.StatusBadRequest {
			ext.Error.Set(span, true)
		}
	}
}
