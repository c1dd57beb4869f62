package observability

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithCorrelationID(t *testing.T) {
	t.Run("keeps the given id", func(t *testing.T) {
		ctx := WithCorrelationID(context.Background(), "corr-1")
		assert.Equal(t, "corr-1", CorrelationIDFromContext(ctx))
	})

	t.Run("generates a uuid when empty", func(t *testing.T) {
		ctx := WithCorrelationID(context.Background(), "")
		_, err := uuid.Parse(CorrelationIDFromContext(ctx))
		require.NoError(t, err)
	})
}

func TestContextValues_Missing(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, CorrelationIDFromContext(ctx))
	assert.Empty(t, SourceFromContext(ctx))
	assert.Empty(t, OperationFromContext(ctx))
}

func TestWithSource(t *testing.T) {
	ctx := WithSource(context.Background(), "icloud")

	assert.Equal(t, "icloud", SourceFromContext(ctx))
}

func TestNewCommandContext(t *testing.T) {
	t.Run("stamps a correlation id", func(t *testing.T) {
		ctx := NewCommandContext(context.Background(), "import")

		assert.NotEmpty(t, CorrelationIDFromContext(ctx))
		assert.Equal(t, "import", OperationFromContext(ctx))
	})

	t.Run("keeps an existing correlation id", func(t *testing.T) {
		parent := WithCorrelationID(context.Background(), "corr-parent")
		ctx := NewCommandContext(parent, "reset")

		assert.Equal(t, "corr-parent", CorrelationIDFromContext(ctx))
	})
}
