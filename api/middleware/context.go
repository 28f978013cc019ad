package middleware

import "context"

type contextKey string

const ctxOperatorID contextKey = "operator_id"

// OperatorIDFromContext returns the operator id set by the Operator middleware.
func OperatorIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxOperatorID).(string); ok {
		return v
	}
	return ""
}

// WithOperatorID injects the scanning operator into the context for downstream handlers.
func WithOperatorID(ctx context.Context, operatorID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxOperatorID, operatorID)
}
