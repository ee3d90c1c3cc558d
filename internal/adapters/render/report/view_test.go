package report

import (
	"testing"
	"time"

	"github.com/bnema/mxload/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateFoldsResultsPerEndpoint(t *testing.T) {
	t.Parallel()

	rows := aggregate([]metrics.RequestStat{
		{Endpoint: "/_matrix/client/v3/sync", Result: metrics.ResultOK, Count: 90},
		{Endpoint: "/_matrix/client/v3/sync", Result: "429", Count: 7},
		{Endpoint: "/_matrix/client/v3/sync", Result: metrics.ResultError, Count: 3},
		{Endpoint: "/_matrix/client/v3/login", Result: metrics.ResultOK, Count: 10},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, row{endpoint: "/_matrix/client/v3/login", ok: 10}, rows[0])
	assert.Equal(t, row{endpoint: "/_matrix/client/v3/sync", ok: 90, failed: 10}, rows[1])
}

func TestRenderViewListsEndpointsAndTotals(t *testing.T) {
	t.Parallel()

	out := renderView([]metrics.RequestStat{
		{Endpoint: "/_matrix/client/v3/sync", Result: metrics.ResultOK, Count: 42},
		{Endpoint: "/_matrix/client/v3/login", Result: "403", Count: 2},
	}, RenderOptions{Duration: 90 * time.Second}, newStyles())

	assert.Contains(t, out, "Load Run Summary")
	assert.Contains(t, out, "duration: 1m30s")
	assert.Contains(t, out, "/_matrix/client/v3/sync")
	assert.Contains(t, out, "/_matrix/client/v3/login")
	assert.Contains(t, out, "total")
}

func TestRenderViewEmpty(t *testing.T) {
	t.Parallel()

	out := renderView(nil, RenderOptions{}, newStyles())
	assert.Contains(t, out, "No requests recorded.")
}
