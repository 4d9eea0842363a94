package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, srv *httptest.Server, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestRouter(t *testing.T) {
	rt, probes, reg, _ := newTestRuntime(t, pairConfig())
	require.NoError(t, rt.Start(context.Background()))
	require.Eventually(t, func() bool { return rt.Frames() > 0 }, 2*time.Second, time.Millisecond)

	srv := httptest.NewServer(newRouter(reg, probes, rt, quietLogger()))
	defer srv.Close()

	code, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", string(body))

	code, body = get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "kctx_kicks_total")
	assert.Contains(t, string(body), "kctx_mitigation_deliveries_total")

	code, body = get(t, srv, "/debug/state")
	assert.Equal(t, http.StatusOK, code)
	var state map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &state))
	assert.Contains(t, state, "port.a")

	code, body = get(t, srv, "/v1/ports")
	assert.Equal(t, http.StatusOK, code)
	var ports []map[string]any
	require.NoError(t, json.Unmarshal(body, &ports))
	assert.Len(t, ports, 2)

	code, body = get(t, srv, "/v1/ports/b")
	assert.Equal(t, http.StatusOK, code)
	var one map[string]any
	require.NoError(t, json.Unmarshal(body, &one))
	assert.Equal(t, "b", one["Name"])

	code, _ = get(t, srv, "/v1/ports/zz")
	assert.Equal(t, http.StatusNotFound, code)
}
