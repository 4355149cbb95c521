package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"edusphere/internal/config"
	"edusphere/internal/gateway"
	"edusphere/internal/jobs"
	"edusphere/internal/queue"
)

func TestOpenInMemory(t *testing.T) {
	cfg := config.App{
		GatewayBackend: "memory",
		QueueBackend:   "memory",
		RedisAddr:      "localhost:0",
		Timezone:       "UTC",
	}
	p, err := Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	assert.IsType(t, &gateway.Memory{}, p.Gateway)
	assert.IsType(t, &queue.InMemory{}, p.Queue)
	assert.IsType(t, &jobs.MemoryStore{}, p.Jobs)
	assert.Empty(t, p.Checks, "nothing external to check")
	assert.NotNil(t, p.Service)
	assert.NotNil(t, p.Runner())
}
