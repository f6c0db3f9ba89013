// ABOUTME: Unit tests for operator context propagation
// ABOUTME: Covers attach, retrieve and the anonymous case

package auth

import (
	"context"
	"testing"
)

func TestOperatorContext(t *testing.T) {
	ctx := WithOperator(context.Background(), &Operator{Subject: "ops"})

	op := OperatorFromContext(ctx)
	if op == nil || op.Subject != "ops" {
		t.Fatalf("OperatorFromContext() = %+v, want subject ops", op)
	}
}

func TestOperatorContext_Anonymous(t *testing.T) {
	if op := OperatorFromContext(context.Background()); op != nil {
		t.Errorf("OperatorFromContext() = %+v, want nil", op)
	}
}
