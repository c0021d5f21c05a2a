package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	_, ok := RequestID(context.Background())
	assert.False(t, ok)

	_, ok = RequestID(WithRequestID(context.Background(), ""))
	assert.False(t, ok)

	id, ok := RequestID(WithRequestID(context.Background(), "req-1"))
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
}

func TestSessionID(t *testing.T) {
	ctx := WithSessionID(WithRequestID(context.Background(), "req-1"), "sess-9")
	id, ok := SessionID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "sess-9", id)

	rid, _ := RequestID(ctx)
	assert.Equal(t, "req-1", rid)
}
