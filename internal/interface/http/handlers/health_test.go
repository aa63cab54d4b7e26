package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCompositeHealthChecker_NoChecks(t *testing.T) {
	status := NewCompositeHealthChecker("v1").Check(context.Background())

	assert.True(t, status.Ready)
	assert.Equal(t, "No health checks registered", status.Message)
}

func TestCompositeHealthChecker_TimesOutSlowChecks(t *testing.T) {
	c := NewCompositeHealthChecker("v1")
	c.SetTimeout(10 * time.Millisecond)
	c.AddCheck("slow", PingCheck(pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})))

	status := c.Check(context.Background())

	assert.False(t, status.Ready)
	assert.Equal(t, "context deadline exceeded", status.Checks["slow"].Message)
}

func TestCompositeHealthChecker_SortsFailures(t *testing.T) {
	c := NewCompositeHealthChecker("v1")
	fail := func(context.Context) error { return assert.AnError }
	c.AddCheck("redis", fail)
	c.AddCheck("backend", fail)

	status := c.Check(context.Background())

	assert.Equal(t, "Some checks failed: backend, redis", status.Message)
}
