package auditcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ActorIDFromContext(ctx))

	ctx = WithActor(ctx, "user", " u-1 ")
	ctx = WithRequestID(ctx, "req-9")
	ctx = WithClient(ctx, "10.0.0.1", "curl/8")

	actorType, actorID := ActorFromContext(ctx)
	assert.Equal(t, "user", actorType)
	assert.Equal(t, "u-1", actorID)
	assert.Equal(t, "req-9", RequestIDFromContext(ctx))
	assert.Equal(t, "10.0.0.1", IPAddressFromContext(ctx))
	assert.Equal(t, "curl/8", UserAgentFromContext(ctx))
}
