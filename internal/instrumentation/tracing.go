package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/inboxshare/internal/logging"
)

// TracerName is the default tracer name for inboxshare.
const TracerName = "github.com/teemow/inboxshare"

// Span attribute keys.
const (
	// SpanAttrTool is the MCP tool name attribute.
	SpanAttrTool = "mcp.tool"

	// SpanAttrService is the Google service name attribute.
	SpanAttrService = "google.service"

	// SpanAttrOperation is the operation type attribute.
	SpanAttrOperation = "google.operation"

	// SpanAttrAccount is the hashed target mailbox. Raw emails never go on spans.
	SpanAttrAccount = "mailbox.account_hash"

	// SpanAttrResourceID is the resource identifier (message ID).
	SpanAttrResourceID = "mailbox.resource_id"

	// SpanAttrResourceType is the resource type (message, inbox).
	SpanAttrResourceType = "mailbox.resource_type"

	// SpanAttrDecision is the access decision (grant or deny).
	SpanAttrDecision = "access.decision"

	// SpanAttrBasis is the grant basis or denial reason.
	SpanAttrBasis = "access.basis"

	// SpanAttrStoreBackend is the account store backend name.
	SpanAttrStoreBackend = "store.backend"

	// SpanAttrStoreOperation is the account store operation.
	SpanAttrStoreOperation = "store.operation"
)

// SpanAttributeBuilder helps construct OpenTelemetry span attributes
// with consistent naming.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 8),
	}
}

// WithTool adds the MCP tool name attribute.
func (b *SpanAttributeBuilder) WithTool(tool string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrTool, tool))
	return b
}

// WithService adds the Google service name attribute.
func (b *SpanAttributeBuilder) WithService(service string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrService, service))
	return b
}

// WithOperation adds the operation type attribute.
func (b *SpanAttributeBuilder) WithOperation(operation string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrOperation, operation))
	return b
}

// WithAccount adds the hashed mailbox attribute. Empty emails are skipped.
func (b *SpanAttributeBuilder) WithAccount(email string) *SpanAttributeBuilder {
	if hashed := logging.AnonymizeEmail(email); hashed != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrAccount, hashed))
	}
	return b
}

// WithResource adds resource attributes.
func (b *SpanAttributeBuilder) WithResource(resourceType, resourceID string) *SpanAttributeBuilder {
	if resourceType != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrResourceType, resourceType))
	}
	if resourceID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrResourceID, resourceID))
	}
	return b
}

// WithDecision adds the access decision attributes.
func (b *SpanAttributeBuilder) WithDecision(result, basis string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs,
		attribute.String(SpanAttrDecision, result),
		attribute.String(SpanAttrBasis, basis),
	)
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName)
}

// StartSpan starts a new span with the given name and attributes.
// The caller is responsible for ending the span with defer span.End().
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartToolSpan starts a span for an MCP tool invocation.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attribute.String(SpanAttrTool, toolName))
	allAttrs = append(allAttrs, attrs...)

	return tracer().Start(ctx, "tool."+toolName,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartGoogleAPISpan starts a client span named google.<service>.<operation>.
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	allAttrs = append(allAttrs, attrs...)

	return tracer().Start(ctx, "google."+service+"."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartAccessSpan starts the span around one policy evaluation.
func StartAccessSpan(ctx context.Context, targetEmail string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "access.authorize",
		trace.WithAttributes(NewSpanAttributeBuilder().WithAccount(targetEmail).Build()...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartStoreSpan starts a client span named store.<operation>.
func StartStoreSpan(ctx context.Context, backend, operation string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "store."+operation,
		trace.WithAttributes(
			attribute.String(SpanAttrStoreBackend, backend),
			attribute.String(SpanAttrStoreOperation, operation),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID from the current span in context.
// Returns empty string if no valid span is present.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID from the current span in context.
// Returns empty string if no valid span is present.
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}
