package common

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxshare/internal/instrumentation"
	"github.com/teemow/inboxshare/internal/server"
)

var errToolResult = errors.New("tool returned an error result")

// ToolHandler is the mcp-go tool handler signature.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler with a span, metrics and
// audit logging.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		identity := sc.Identity()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithUser(identity.UserEmail).
			WithAccount(GetAccountFromArgs(request.GetArguments())).
			WithSpanContext(ctx)

		result, err := handler(ctx, request)

		switch {
		case err != nil:
			invocation.CompleteWithError(err)
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			invocation.Complete(false, nil)
			instrumentation.SetSpanError(span, errToolResult)
		default:
			invocation.CompleteSuccess()
			instrumentation.SetSpanSuccess(span)
		}

		sc.Metrics().RecordToolInvocationWithUser(ctx, toolName, invocation.Status(), identity.UserEmail, invocation.Duration)
		sc.AuditLogger().LogToolInvocation(invocation)

		return result, err
	}
}
