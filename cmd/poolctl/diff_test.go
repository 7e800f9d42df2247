package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/connector/core"
)

func TestRenderDiff(t *testing.T) {
	orders := config.NewPoolConfig("orders", "postgresql")
	orders.Properties = []core.Property{{Name: "URL", Value: "postgres://db/orders"}}
	billing := config.NewPoolConfig("billing", "postgresql")
	audit := config.NewPoolConfig("audit", "postgresql")
	current := &config.Resources{Pools: []config.PoolConfig{*orders, *billing, *audit}}

	resized := *orders
	resized.MaxPoolSize = 64
	resized.IdleTimeout = 10 * time.Minute
	moved := *billing
	moved.Properties = []core.Property{{Name: "URL", Value: "postgres://replica/billing"}}
	reports := config.NewPoolConfig("reports", "sqldb")
	proposed := &config.Resources{Pools: []config.PoolConfig{resized, moved, *reports}}

	var out bytes.Buffer
	require.NoError(t, renderDiff(&out, current, proposed, nil))
	text := out.String()

	assert.Contains(t, text, "pool orders: UPDATE_ATTRIBUTES")
	assert.Contains(t, text, `soft max_pool_size: "32" -> "64"`)
	assert.Contains(t, text, "- max_pool_size: 32")
	assert.Contains(t, text, "+ max_pool_size: 64")
	assert.Contains(t, text, "+ idle_timeout: 10m0s")
	assert.Contains(t, text, "pool billing: RECREATE")
	assert.Contains(t, text, "pool audit: DELETE")
	assert.Contains(t, text, "pool reports: CREATE")
}

func TestRenderDiffUnchanged(t *testing.T) {
	orders := config.NewPoolConfig("orders", "postgresql")
	res := &config.Resources{Pools: []config.PoolConfig{*orders}}

	var out bytes.Buffer
	require.NoError(t, renderDiff(&out, res, res, nil))
	assert.Equal(t, "pool orders: NO_CHANGE\n", out.String())
}
