package requestid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTagsContext(t *testing.T) {
	ctx, id := New(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, FromContext(ctx))
}

func TestRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-abc")
	assert.Equal(t, "req-abc", FromContext(ctx))
}

func TestUntaggedContextNeverBlank(t *testing.T) {
	first := FromContext(context.Background())
	second := FromContext(context.Background())
	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second, "each lookup on a bare context mints its own ID")
}
