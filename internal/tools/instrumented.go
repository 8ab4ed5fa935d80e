package tools

import (
	"context"
	"time"

	"github.com/teemow/calbot/internal/instrumentation"
)

// unknownToolLabel replaces model-invented tool names in metric labels.
const unknownToolLabel = "unknown"

// instrumented wraps a tool execution with a span, tool metrics and an
// audit log line.
func (d *Dispatcher) instrumented(ctx context.Context, userID int64, toolName string, run func(context.Context) Result) Result {
	label := toolName
	invocation := instrumentation.NewToolInvocation(toolName).WithUser(userID)
	switch toolName {
	case ToolListEvents:
		invocation.WithCalendar(instrumentation.OperationList, "")
	case ToolCreateEvent:
		invocation.WithCalendar(instrumentation.OperationCreate, "")
	default:
		label = unknownToolLabel
	}

	ctx, span := instrumentation.StartToolSpan(ctx, label)
	defer span.End()
	invocation.WithSpanContext(ctx)

	start := time.Now()
	result := run(ctx)
	duration := time.Since(start)

	status := instrumentation.StatusSuccess
	if result.OK() {
		invocation.Complete(true, nil)
		instrumentation.SetSpanSuccess(span)
	} else {
		status = instrumentation.StatusError
		invocation.Complete(false, result.Err)
		instrumentation.SetSpanError(span, result.Err)
	}

	d.metrics.RecordToolInvocation(ctx, label, status, duration)
	d.audit.LogToolInvocation(invocation)

	return result
}
