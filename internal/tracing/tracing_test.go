package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewProvider(&buf)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "loader.initialize")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "loader.initialize")
	assert.Contains(t, buf.String(), serviceName)
}
