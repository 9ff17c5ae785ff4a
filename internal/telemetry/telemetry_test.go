package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitReturnsWorkingShutdown(t *testing.T) {
	shutdown, err := Init(context.Background(), "xoebridge-test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(context.Background()))
}

func TestStartSpanReturnsEndableSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.span")
	defer span.End()

	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
}

func TestRecordErrorIsNoopOnNilError(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.span")
	defer span.End()

	assert.NotPanics(t, func() {
		RecordError(ctx, nil)
	})
}

func TestRecordErrorRecordsNonNilError(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.span")
	defer span.End()

	assert.NotPanics(t, func() {
		RecordError(ctx, errors.New("boom"))
	})
}
