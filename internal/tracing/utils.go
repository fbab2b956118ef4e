package tracing

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"

	"github.com/customeros/mailmirror/internal/logger"
	"github.com/customeros/mailmirror/internal/utils"
)

const (
	SpanTagAccount   = "account"
	SpanTagFolder    = "folder"
	SpanTagRequestId = "request-id"
	SpanTagEntityId  = "entity-id"
	SpanTagComponent = "component"
)

const (
	SpanTagComponentStoreRepository = "storeRepository"
	SpanTagComponentRest            = "rest"
	SpanTagComponentCronJob         = "cronJob"
	SpanTagComponentService         = "service"
	SpanTagComponentListener        = "listener"
	SpanTagComponentRemoteClient    = "remoteClient"
)

const uberTraceIdHeader = "uber-trace-id"

// startServerSpan continues the remote trace when one was propagated and
// starts a new root span otherwise.
func startServerSpan(ctx context.Context, operationName string, parent opentracing.SpanContext, extractErr error) (context.Context, opentracing.Span) {
	tracer := opentracing.GlobalTracer()
	var span opentracing.Span
	if extractErr != nil || parent == nil {
		span = tracer.StartSpan(operationName)
	} else {
		span = tracer.StartSpan(operationName, ext.RPCServerOption(parent))
	}
	return opentracing.ContextWithSpan(ctx, span), span
}

func StartHttpServerTracerSpanWithHeader(ctx context.Context, operationName string, headers http.Header) (context.Context, opentracing.Span) {
	parent, err := opentracing.GlobalTracer().Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(headers))
	return startServerSpan(ctx, operationName, parent, err)
}

func StartRabbitMQMessageTracerSpanWithHeader(ctx context.Context, operationName string, uberTraceId string) (context.Context, opentracing.Span) {
	carrier := opentracing.TextMapCarrier{uberTraceIdHeader: uberTraceId}
	parent, err := opentracing.GlobalTracer().Extract(opentracing.TextMap, carrier)
	return startServerSpan(ctx, operationName, parent, err)
}

func StartTracerSpan(ctx context.Context, operationName string) (opentracing.Span, context.Context) {
	span := opentracing.GlobalTracer().StartSpan(operationName)
	return span, opentracing.ContextWithSpan(ctx, span)
}

func InjectSpanContextIntoHTTPRequest(req *http.Request, span opentracing.Span) *http.Request {
	if span != nil {
		_ = span.Tracer().Inject(span.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(req.Header))
	}
	return req
}

func InjectTextMapCarrier(spanCtx opentracing.SpanContext) (opentracing.TextMapCarrier, error) {
	carrier := make(opentracing.TextMapCarrier)
	if err := opentracing.GlobalTracer().Inject(spanCtx, opentracing.TextMap, carrier); err != nil {
		return nil, err
	}
	return carrier, nil
}

// ExtractTextMapCarrier never fails; an empty carrier means no propagation.
func ExtractTextMapCarrier(spanCtx opentracing.SpanContext) opentracing.TextMapCarrier {
	carrier, err := InjectTextMapCarrier(spanCtx)
	if err != nil {
		return make(opentracing.TextMapCarrier)
	}
	return carrier
}

func setDefaultSpanTags(ctx context.Context, span opentracing.Span, component string) {
	customContext := utils.GetContext(ctx)
	TagAccount(span, customContext.AccountID)
	if customContext.RequestID != "" {
		span.SetTag(SpanTagRequestId, customContext.RequestID)
	}
	span.SetTag(SpanTagComponent, component)
}

func SetDefaultRestSpanTags(ctx context.Context, span opentracing.Span) {
	setDefaultSpanTags(ctx, span, SpanTagComponentRest)
}

func SetDefaultServiceSpanTags(ctx context.Context, span opentracing.Span) {
	setDefaultSpanTags(ctx, span, SpanTagComponentService)
}

func SetDefaultListenerSpanTags(ctx context.Context, span opentracing.Span) {
	setDefaultSpanTags(ctx, span, SpanTagComponentListener)
}

func TraceErr(span opentracing.Span, err error, fields ...log.Field) {
	if span == nil || err == nil {
		return
	}
	ext.LogError(span, err, fields...)
}

func LogObjectAsJson(span opentracing.Span, name string, object any) {
	if object == nil {
		span.LogFields(log.String(name, "nil"))
		return
	}
	if data, err := json.Marshal(object); err == nil {
		span.LogFields(log.String(name, string(data)))
		return
	}
	span.LogFields(log.Object(name, object))
}

func TagAccount(span opentracing.Span, account string) {
	if account != "" {
		span.SetTag(SpanTagAccount, account)
	}
}

func TagFolder(span opentracing.Span, folder string) {
	if folder != "" {
		span.SetTag(SpanTagFolder, folder)
	}
}

func TagEntity(span opentracing.Span, entityId string) {
	if entityId != "" {
		span.SetTag(SpanTagEntityId, entityId)
	}
}

func TagComponentStoreRepository(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentStoreRepository)
}

func TagComponentCronJob(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentCronJob)
}

func TagComponentRemoteClient(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentRemoteClient)
}

// logPanic records a recovered panic on its own span and returns the stack.
func logPanic(tracer opentracing.Tracer, recovered any) string {
	span := tracer.StartSpan("panic-recovery")
	defer span.Finish()

	stack := string(debug.Stack())
	ext.Error.Set(span, true)
	span.LogKV("event", "error", "error.object", recovered, "stack", stack)
	return stack
}

// RecoveryWithJaeger turns handler panics into a 500 and a jaeger span.
func RecoveryWithJaeger(tracer opentracing.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(tracer, r)
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// RecoverAndLogToJaeger must be deferred directly by the goroutine it guards.
func RecoverAndLogToJaeger(appLogger logger.Logger) {
	if r := recover(); r != nil {
		stack := logPanic(opentracing.GlobalTracer(), r)
		appLogger.Errorf("recovered from panic: %v\n%s", r, stack)
	}
}
