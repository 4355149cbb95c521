package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthChecks(t *testing.T) {
	checks := healthChecks(map[string]func(context.Context) bool{
		"database": func(context.Context) bool { return true },
		"redis":    func(context.Context) bool { return false },
	})
	assert.Len(t, checks, 2)
	assert.True(t, checks["database"](context.Background()))
	assert.False(t, checks["redis"](context.Background()))
}
