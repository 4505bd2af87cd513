package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimi6060/festivals-sub018/internal/realtime"
)

func postBroadcast(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestBroadcastAPI_DeliversToSessions(t *testing.T) {
	hub, ts := newTestServer(t, testConfig())

	conn := dialWS(t, ts, "/ws/fest-1")
	require.True(t, waitActive(hub, 1))

	resp := postBroadcast(t, ts.URL+"/internal/broadcast/fest-1",
		`{"type":"transaction","data":{"transaction_id":"tx-1","amount":9.5,"currency":"EUR","status":"completed"}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	env := readEnvelope(t, conn)
	assert.Equal(t, realtime.TypeTransaction, env.Type)

	payload, err := realtime.DecodePayload(env)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", payload.(realtime.TransactionPayload).TransactionID)
}

func TestBroadcastAPI_RejectsControlTypes(t *testing.T) {
	_, ts := newTestServer(t, testConfig())

	for _, body := range []string{
		`{"type":"ping"}`,
		`{"type":"subscribe","data":{"channel":"alerts"}}`,
		`{"type":"made_up_type","data":{}}`,
	} {
		resp := postBroadcast(t, ts.URL+"/internal/broadcast/fest-1", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %s", body)
	}
}

func TestBroadcastAPI_RejectsMalformedPayload(t *testing.T) {
	_, ts := newTestServer(t, testConfig())

	resp := postBroadcast(t, ts.URL+"/internal/broadcast/fest-1",
		`{"type":"stats","data":"not an object"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBroadcastAPI_RejectsInvalidBody(t *testing.T) {
	_, ts := newTestServer(t, testConfig())

	resp := postBroadcast(t, ts.URL+"/internal/broadcast/fest-1", `{{{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBroadcastAPI_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.BroadcastRate = 0.001
	cfg.BroadcastBurst = 1
	_, ts := newTestServer(t, cfg)

	resp := postBroadcast(t, ts.URL+"/internal/broadcast/fest-1",
		`{"type":"stats","data":{"tickets_sold":1}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = postBroadcast(t, ts.URL+"/internal/broadcast/fest-1",
		`{"type":"stats","data":{"tickets_sold":2}}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	hub, ts := newTestServer(t, testConfig())

	dialWS(t, ts, "/ws/fest-1")
	dialWS(t, ts, "/ws/fest-1/dashboard")
	require.True(t, waitActive(hub, 2))

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats realtime.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(2), stats.TotalConnections)
	assert.Equal(t, 2, stats.ActiveConnections)
	assert.Equal(t, map[string]int{"fest-1": 2}, stats.Festivals)
}
