package logging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/logging"
)

func TestContextFieldsEmpty(t *testing.T) {
	assert.Empty(t, logging.ContextFields(context.Background()))
}

func TestContextFieldsCorrelation(t *testing.T) {
	ctx := logging.WithRequestID(context.Background(), "req-1")
	ctx = logging.WithPrincipalID(ctx, "u1")

	fields := logging.ContextFields(ctx)

	assert.Contains(t, fields, zap.String("request.id", "req-1"))
	assert.Contains(t, fields, zap.String("principal.id", "u1"))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := logging.WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", logging.RequestIDFromContext(ctx))
	assert.Equal(t, "", logging.RequestIDFromContext(context.Background()))
}

func TestPrincipalIDRoundTrip(t *testing.T) {
	ctx := logging.WithPrincipalID(context.Background(), "u1")
	assert.Equal(t, "u1", logging.PrincipalIDFromContext(ctx))
	assert.Equal(t, "", logging.PrincipalIDFromContext(context.Background()))
}
