package rest

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graphserver/application/ports"
	"graphserver/application/ports/enginetest"
	"graphserver/application/registry"
	"graphserver/application/services"
	"graphserver/domain/graph"
	"graphserver/infrastructure/cache"
	"graphserver/infrastructure/config"
	"graphserver/pkg/common"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	engines := map[string]ports.Engine{
		"memory": enginetest.New(enginetest.WithDialect("cypher")),
		"sql":    enginetest.New(enginetest.WithDialect("sql")),
	}
	reg, err := registry.New(engines, "memory")
	require.NoError(t, err)

	svc := services.NewGraphService(reg, cache.New(cache.Config{}, zap.NewNop()), zap.NewNop())
	cfg := &config.Config{MaxBodyBytes: 64 << 20}

	server := httptest.NewServer(NewRouter(svc, cfg, zap.NewNop()).Setup())
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, payload any) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createGraph(t *testing.T, server *httptest.Server, payload any) graph.Summary {
	t.Helper()
	resp := doJSON(t, http.MethodPost, server.URL+"/api/graphs", payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[graph.Summary](t, resp)
}

func chainPayload(title string, n int) map[string]any {
	nodes := make([]graph.Node, n)
	edges := make([]graph.Edge, 0, n-1)
	for i := 0; i < n; i++ {
		nodes[i] = graph.Node{ID: fmt.Sprintf("n%03d", i), Label: fmt.Sprintf("Step %d", i), Type: "process"}
		if i > 0 {
			edges = append(edges, graph.Edge{Source: fmt.Sprintf("n%03d", i-1), Target: fmt.Sprintf("n%03d", i), Type: "arrow"})
		}
	}
	return map[string]any{"title": title, "graph_type": "flowchart", "nodes": nodes, "edges": edges}
}

func TestHealthAndEngines(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Response-Time-Ms"))
	resp.Body.Close()

	resp, err = http.Get(server.URL + "/api/engines")
	require.NoError(t, err)
	engines := decode[map[string]any](t, resp)
	assert.Equal(t, "memory", engines["default"])
	assert.ElementsMatch(t, []any{"memory", "sql"}, engines["available"])
}

func TestCreateAndReadBackRoundTrip(t *testing.T) {
	server := newTestServer(t)

	summary := createGraph(t, server, map[string]any{
		"title":        "mermaid graph",
		"graph_type":   "flowchart",
		"mermaid_code": "graph TD\nA[Start]-->B{Check}\nB-->C((Done))",
	})
	assert.Equal(t, int64(3), summary.NodeCount)
	assert.Equal(t, int64(2), summary.EdgeCount)

	resp, err := http.Get(server.URL + "/api/graphs/" + summary.ID)
	require.NoError(t, err)
	assert.Equal(t, "memory", resp.Header.Get("X-Engine"))
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	data := decode[graph.Data](t, resp)
	assert.Len(t, data.Nodes, 3)
	assert.Len(t, data.Edges, 2)

	resp, err = http.Get(server.URL + "/api/graphs/" + summary.ID)
	require.NoError(t, err)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	resp.Body.Close()

	resp, err = http.Get(server.URL + "/api/graphs/" + summary.ID + "?nocache=true")
	require.NoError(t, err)
	assert.Equal(t, "BYPASS", resp.Header.Get("X-Cache"))
	resp.Body.Close()
}

func TestDeleteInvalidatesAndReturns404(t *testing.T) {
	server := newTestServer(t)
	summary := createGraph(t, server, chainPayload("short lived", 4))

	// Warm the cache, then delete.
	resp, err := http.Get(server.URL + "/api/graphs/" + summary.ID)
	require.NoError(t, err)
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, server.URL+"/api/graphs/"+summary.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(server.URL + "/api/graphs/" + summary.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	body := decode[common.ErrorBody](t, resp)
	assert.Equal(t, "NotFound", body.Error)

	// A second delete is NotFound, never a success.
	resp = doJSON(t, http.MethodDelete, server.URL+"/api/graphs/"+summary.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestDeleteInvalidatesExplicitDatabaseSelector(t *testing.T) {
	server := newTestServer(t)
	summary := createGraph(t, server, chainPayload("aliased", 3))

	// Warm the cache naming the default database explicitly.
	resp, err := http.Get(server.URL + "/api/graphs/" + summary.ID + "?database=default")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	resp.Body.Close()

	// Delete without a selector; the empty and explicit spellings must
	// land on the same cache entries.
	resp = doJSON(t, http.MethodDelete, server.URL+"/api/graphs/"+summary.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(server.URL + "/api/graphs/" + summary.ID + "?database=default")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	body := decode[common.ErrorBody](t, resp)
	assert.Equal(t, "NotFound", body.Error)
}

func TestImpactEndpoint(t *testing.T) {
	server := newTestServer(t)
	summary := createGraph(t, server, chainPayload("impact chain", 5))

	resp := doJSON(t, http.MethodPost, server.URL+"/api/graphs/"+summary.ID+"/impact",
		map[string]any{"nodeId": "n000", "depth": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[graph.ImpactResult](t, resp)
	assert.Equal(t, "n000", result.SourceID)
	assert.Equal(t, "memory", result.Engine)
	require.Len(t, result.ImpactedNodes, 2)
	assert.Equal(t, graph.ImpactedNode{NodeID: "n001", Level: 1}, result.ImpactedNodes[0])
	assert.Equal(t, graph.ImpactedNode{NodeID: "n002", Level: 2}, result.ImpactedNodes[1])

	for _, depth := range []int{0, 21} {
		resp := doJSON(t, http.MethodPost, server.URL+"/api/graphs/"+summary.ID+"/impact",
			map[string]any{"nodeId": "n000", "depth": depth})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[common.ErrorBody](t, resp)
		assert.Equal(t, "DepthLimitExceeded", body.Error)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/api/graphs/"+summary.ID+"/impact",
		map[string]any{"nodeId": "ghost", "depth": 3})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestNeighborsEndpoint(t *testing.T) {
	server := newTestServer(t)
	summary := createGraph(t, server, chainPayload("neighbor chain", 6))

	resp, err := http.Get(server.URL + "/api/graphs/" + summary.ID + "/neighbors/n002?hops=1")
	require.NoError(t, err)
	data := decode[graph.Data](t, resp)
	assert.Len(t, data.Nodes, 3)

	resp, err = http.Get(server.URL + "/api/graphs/" + summary.ID + "/neighbors/n002?hops=banana")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(server.URL + "/api/graphs/" + summary.ID + "/neighbors/n002?hops=0")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRawQueryEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/query",
		map[string]any{"query": "MATCH (n) RETURN count(n)"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[graph.QueryResult](t, resp)
	assert.NotEmpty(t, result.Rows)

	// SQL text against the default Cypher engine is refused.
	resp = doJSON(t, http.MethodPost, server.URL+"/api/query",
		map[string]any{"query": "SELECT * FROM graphs"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[common.ErrorBody](t, resp)
	assert.Equal(t, "NotSupported", body.Error)

	// The same text is fine on the SQL engine.
	resp = doJSON(t, http.MethodPost, server.URL+"/api/query?engine=sql",
		map[string]any{"query": "SELECT * FROM graphs"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sql", resp.Header.Get("X-Engine"))
	resp.Body.Close()
}

func TestUnknownEngineRejected(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/graphs?engine=falkordb")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[common.ErrorBody](t, resp)
	assert.Equal(t, "EngineNotAvailable", body.Error)
}

func TestDatabasesEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/databases")
	require.NoError(t, err)
	assert.Equal(t, "memory", resp.Header.Get("X-Engine"))
	assert.Equal(t, "N/A", resp.Header.Get("X-Cache"))
	infos := decode[[]graph.DatabaseInfo](t, resp)
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Default)
}

func TestCacheStatsEndpoint(t *testing.T) {
	server := newTestServer(t)
	summary := createGraph(t, server, chainPayload("counted", 3))

	for i := 0; i < 2; i++ {
		resp, err := http.Get(server.URL + "/api/graphs/" + summary.ID)
		require.NoError(t, err)
		resp.Body.Close()
	}

	resp, err := http.Get(server.URL + "/optim/cache/stats")
	require.NoError(t, err)
	stats := decode[map[string]any](t, resp)
	assert.Equal(t, float64(1), stats["hits"])
	assert.Equal(t, float64(1), stats["misses"])
	assert.Equal(t, float64(1), stats["cachedGraphs"])
}

func TestGzipAndOptOut(t *testing.T) {
	server := newTestServer(t)
	summary := createGraph(t, server, chainPayload("big enough to compress", 80))

	client := &http.Client{Transport: &http.Transport{DisableCompression: true}}

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/graphs/"+summary.ID, nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	compressed, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(raw))
	assert.True(t, strings.Contains(string(raw), "n079"))

	req, err = http.NewRequest(http.MethodGet, server.URL+"/api/graphs/"+summary.ID+"?nocompress=true", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	resp.Body.Close()
}

func TestMalformedBodyRejected(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Post(server.URL+"/api/graphs", "application/json",
		strings.NewReader(`{"title": `))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[common.ErrorBody](t, resp)
	assert.Equal(t, "Invalid", body.Error)

	resp, err = http.Post(server.URL+"/api/graphs", "application/json",
		strings.NewReader(`{"title":"x","edges":[{"source_id":"a","target_id":"b"}]}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
