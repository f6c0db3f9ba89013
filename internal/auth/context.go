// ABOUTME: Request context carrying the authenticated operator
// ABOUTME: Provides WithOperator/OperatorFromContext for handlers behind the middleware

package auth

import "context"

// Operator is the identity extracted from a verified bearer token.
type Operator struct {
	Subject string
}

type operatorContextKey struct{}

// WithOperator returns a new context with op attached.
func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, op)
}

// OperatorFromContext returns the operator, or nil for anonymous requests.
func OperatorFromContext(ctx context.Context) *Operator {
	op, _ := ctx.Value(operatorContextKey{}).(*Operator)
	return op
}
